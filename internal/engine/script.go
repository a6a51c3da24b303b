package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Script describes one spawned conversation's canned behavior.
type Script struct {
	// ResolvedModel is reported by Spawn; empty means session default.
	ResolvedModel string
	// SpawnErr, when set, fails the spawn itself.
	SpawnErr error
	// SubmitErr, when set, fails Submit.
	SubmitErr error
	// Events are replayed in order by NextEvent. Once exhausted, NextEvent
	// blocks until the context ends or the conversation is released.
	Events []Event
	// EventDelay is waited before each event is delivered.
	EventDelay time.Duration
}

// ScriptedEngine replays canned conversations. Each Spawn consumes the next
// script; the last script is reused once the list runs out. It records
// spawns, submitted prompts, and releases so tests can assert on them.
type ScriptedEngine struct {
	mu       sync.Mutex
	scripts  []Script
	next     int
	prompts  []string
	releases map[string]int
	live     map[string]*scriptedConversation
	spawns   int
}

// NewScriptedEngine creates an engine that plays the given scripts in order.
func NewScriptedEngine(scripts ...Script) *ScriptedEngine {
	return &ScriptedEngine{
		scripts:  scripts,
		releases: make(map[string]int),
		live:     make(map[string]*scriptedConversation),
	}
}

// Spawn consumes the next script.
func (e *ScriptedEngine) Spawn(ctx context.Context, instructions, modelOverride string) (SpawnResult, error) {
	e.mu.Lock()
	script := Script{}
	if len(e.scripts) > 0 {
		idx := e.next
		if idx >= len(e.scripts) {
			idx = len(e.scripts) - 1
		}
		script = e.scripts[idx]
		e.next++
	}
	e.spawns++
	e.mu.Unlock()

	if script.SpawnErr != nil {
		return SpawnResult{}, script.SpawnErr
	}

	resolved := script.ResolvedModel
	if resolved == "" {
		resolved = modelOverride
	}

	conv := &scriptedConversation{
		engine: e,
		script: script,
		done:   make(chan struct{}),
	}
	id := uuid.NewString()

	e.mu.Lock()
	e.live[id] = conv
	e.mu.Unlock()

	return SpawnResult{
		ConversationID: id,
		ResolvedModel:  resolved,
		Conversation:   conv,
	}, nil
}

// Release records the release. Releasing also unblocks a NextEvent waiting
// on an exhausted script.
func (e *ScriptedEngine) Release(conversationID string) {
	e.mu.Lock()
	e.releases[conversationID]++
	conv, ok := e.live[conversationID]
	if ok {
		delete(e.live, conversationID)
	}
	e.mu.Unlock()

	if ok {
		conv.closeOnce.Do(func() { close(conv.done) })
	}
}

// Releases returns how many times a conversation id was released.
func (e *ScriptedEngine) Releases(conversationID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releases[conversationID]
}

// ReleasedOnceEach reports whether every spawned conversation was released
// exactly once.
func (e *ScriptedEngine) ReleasedOnceEach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.releases) != e.spawns {
		return fmt.Errorf("%d spawns but %d released conversations", e.spawns, len(e.releases))
	}
	for id, n := range e.releases {
		if n != 1 {
			return fmt.Errorf("conversation %s released %d times", id, n)
		}
	}
	return nil
}

// Spawns returns how many conversations were spawned.
func (e *ScriptedEngine) Spawns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawns
}

// Prompts returns every submitted prompt in order.
func (e *ScriptedEngine) Prompts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	prompts := make([]string, len(e.prompts))
	copy(prompts, e.prompts)
	return prompts
}

func (e *ScriptedEngine) recordPrompt(text string) {
	e.mu.Lock()
	e.prompts = append(e.prompts, text)
	e.mu.Unlock()
}

// scriptedConversation replays one Script.
type scriptedConversation struct {
	engine *ScriptedEngine
	script Script

	mu        sync.Mutex
	pos       int
	done      chan struct{}
	closeOnce sync.Once
}

// Submit records the prompt.
func (c *scriptedConversation) Submit(ctx context.Context, text string) error {
	if c.script.SubmitErr != nil {
		return c.script.SubmitErr
	}
	c.engine.recordPrompt(text)
	return nil
}

// NextEvent replays the next scripted event, honoring EventDelay. An
// exhausted script blocks until the context ends, mimicking an engine with
// nothing further to say.
func (c *scriptedConversation) NextEvent(ctx context.Context) (Event, error) {
	c.mu.Lock()
	var ev Event
	have := c.pos < len(c.script.Events)
	if have {
		ev = c.script.Events[c.pos]
		c.pos++
	}
	c.mu.Unlock()

	if !have {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-c.done:
			return Event{Kind: EventShutdownComplete}, nil
		}
	}

	if c.script.EventDelay > 0 {
		timer := time.NewTimer(c.script.EventDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}

	return ev, nil
}
