// Package taskctx passes strongly-typed artifacts between successive
// pipeline stages without a shared mutable global. One Context lives for one
// pipeline run and is discarded at its end; nothing here is persisted.
package taskctx

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Level classifies a diagnostic entry.
type Level string

// Diagnostic levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Diagnostic is one append-only log entry.
type Diagnostic struct {
	Timestamp time.Time
	Level     Level
	Message   string
}

// Context holds at most one value per distinct payload type, a set of
// string-namespaced scratchpads, and an append-only diagnostics log. All
// operations are short critical sections safe for concurrent callers.
type Context struct {
	mu          sync.Mutex
	slots       map[reflect.Type]any
	scratchpads map[string]any
	diagnostics []Diagnostic
}

// New creates an empty Context.
func New() *Context {
	return &Context{
		slots:       make(map[reflect.Type]any),
		scratchpads: make(map[string]any),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Put stores a value in the slot for its type, replacing any prior value of
// that type.
func Put[T any](c *Context, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[typeOf[T]()] = value
}

// Get returns the value stored for type T, or absent. It never returns a
// partial or default value.
func Get[T any](c *Context) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slotValue[T](c)
}

// Take returns the value stored for type T and clears the slot.
func Take[T any](c *Context) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := slotValue[T](c)
	if ok {
		delete(c.slots, typeOf[T]())
	}
	return value, ok
}

// slotValue reads one slot. Callers hold the lock.
func slotValue[T any](c *Context) (T, bool) {
	var zero T
	stored, ok := c.slots[typeOf[T]()]
	if !ok {
		return zero, false
	}
	value, ok := stored.(T)
	if !ok {
		// A slot keyed by T holding a non-T value means the store itself is
		// corrupt; reporting absent would mask the bug.
		panic(fmt.Sprintf("taskctx: slot for %v holds %T", typeOf[T](), stored))
	}
	return value, true
}

// SetScratchpad stores an opaque structured value under a namespace,
// overwriting any prior value wholesale.
func (c *Context) SetScratchpad(namespace string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scratchpads[namespace] = value
}

// Scratchpad returns the value stored under a namespace, or absent.
func (c *Context) Scratchpad(namespace string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.scratchpads[namespace]
	return value, ok
}

// Log appends a diagnostic entry. Entries are insertion-ordered and never
// removed for the life of the context.
func (c *Context) Log(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
}

// Logf appends a formatted diagnostic entry.
func (c *Context) Logf(level Level, format string, args ...any) {
	c.Log(level, fmt.Sprintf(format, args...))
}

// Snapshot is an introspection view of a Context. It exists for debugging;
// stages pass data exclusively through the typed slots.
type Snapshot struct {
	// SlotTypes lists the type names currently occupying slots, sorted.
	SlotTypes []string
	// Scratchpads is a shallow copy of the namespace map.
	Scratchpads map[string]any
	// Diagnostics is a copy of the log in insertion order.
	Diagnostics []Diagnostic
}

// Snapshot captures the current state for introspection.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]string, 0, len(c.slots))
	for t := range c.slots {
		types = append(types, t.String())
	}
	sort.Strings(types)

	pads := make(map[string]any, len(c.scratchpads))
	for ns, v := range c.scratchpads {
		pads[ns] = v
	}

	diags := make([]Diagnostic, len(c.diagnostics))
	copy(diags, c.diagnostics)

	return Snapshot{SlotTypes: types, Scratchpads: pads, Diagnostics: diags}
}

// DebugEnabled reports whether snapshot dumps were requested via the
// CODEX_DEBUG_SUBAGENTS environment variable.
func DebugEnabled() bool {
	switch os.Getenv("CODEX_DEBUG_SUBAGENTS") {
	case "1", "true":
		return true
	}
	return false
}

// DebugDump logs a snapshot summary when debugging is enabled.
func (c *Context) DebugDump() {
	if !DebugEnabled() {
		return
	}
	snap := c.Snapshot()
	log.Printf("[taskctx] slots=%v scratchpads=%d diagnostics=%d",
		snap.SlotTypes, len(snap.Scratchpads), len(snap.Diagnostics))
}
