// Package registry discovers subagent definitions on disk and resolves them
// into a single effective, name-keyed view across precedence tiers.
package registry

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antsh3k/codex-cv/internal/subagent"
)

// Record is one effective registry entry: the parsed spec, the tier it was
// resolved from, and any warnings the parser emitted for its file.
type Record struct {
	// Spec is the validated definition.
	Spec *subagent.Spec
	// Tier is the precedence level the record was resolved from.
	Tier subagent.Source
	// Warnings holds non-fatal parser notes, such as dropped list entries.
	Warnings []string
}

// ReloadError describes one definition file the reload could not use.
type ReloadError struct {
	// Path is the offending file or directory.
	Path string
	// Message is the underlying parse or read failure.
	Message string
}

// ReloadReport summarizes a single Reload call. It is a snapshot, not
// cumulative state: Loaded lists names parsed fresh from disk this call,
// Removed lists names that were resolvable before the call and no longer are,
// and Errors lists every file excluded this call, cached failures included.
type ReloadReport struct {
	Loaded  []string
	Removed []string
	Errors  []ReloadError
}

// Options configures a Registry.
type Options struct {
	// UserDir is the user-tier definition directory, usually
	// <home>/.codex/agents. Empty disables the tier.
	UserDir string
	// ProjectDir is the project-tier definition directory, usually
	// <project>/.codex/agents. Empty disables the tier. Project definitions
	// shadow user definitions of the same name.
	ProjectDir string
	// Builtins registers the built-in pipeline specs. On-disk definitions
	// shadow builtins of the same name.
	Builtins bool
}

type cacheKey struct {
	path string
	tier subagent.Source
}

// cacheEntry remembers the outcome of parsing one file so an unchanged file
// is never re-read. Exactly one of spec or errMessage is set.
type cacheEntry struct {
	modTime    time.Time
	spec       *subagent.Spec
	warnings   []string
	errMessage string
}

// Registry is a thread-safe view of the effective subagent definitions.
// Reload holds the write lock and swaps the resolved mapping as a whole, so
// readers never observe a partially applied generation.
type Registry struct {
	userDir    string
	projectDir string
	builtins   bool

	// mu protects cache and records.
	mu      sync.RWMutex
	cache   map[cacheKey]*cacheEntry
	records map[string]*Record
}

// New creates a Registry. No disk access happens until Reload.
func New(opts Options) *Registry {
	return &Registry{
		userDir:    opts.UserDir,
		projectDir: opts.ProjectDir,
		builtins:   opts.Builtins,
		cache:      make(map[cacheKey]*cacheEntry),
		records:    make(map[string]*Record),
	}
}

// Reload rescans both tiers and replaces the effective mapping.
// A missing tier directory contributes zero entries and no error. A file that
// fails to parse is excluded and reported; the rest of the scan continues.
func (r *Registry) Reload() ReloadReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Record)
	if r.builtins {
		for _, spec := range subagent.Builtins() {
			next[spec.Name()] = &Record{Spec: spec, Tier: subagent.SourceBuiltin}
		}
	}

	var loaded []string
	var errs []ReloadError
	touched := make(map[cacheKey]bool)

	// User tier first so the project tier overwrites on name collisions.
	r.scanTier(r.userDir, subagent.SourceUser, next, &loaded, &errs, touched)
	r.scanTier(r.projectDir, subagent.SourceProject, next, &loaded, &errs, touched)

	// Drop cache entries for files that no longer exist.
	for key := range r.cache {
		if !touched[key] {
			delete(r.cache, key)
		}
	}

	var removed []string
	for name := range r.records {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	r.records = next

	return ReloadReport{
		Loaded:  dedupeNames(loaded),
		Removed: removed,
		Errors:  dedupeErrors(errs),
	}
}

// scanTier walks one tier directory, one level deep, markdown files only.
func (r *Registry) scanTier(dir string, tier subagent.Source, next map[string]*Record, loaded *[]string, errs *[]ReloadError, touched map[cacheKey]bool) {
	if dir == "" {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		*errs = append(*errs, ReloadError{Path: dir, Message: err.Error()})
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".md" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			*errs = append(*errs, ReloadError{Path: path, Message: err.Error()})
			continue
		}

		key := cacheKey{path: path, tier: tier}
		touched[key] = true

		if cached, ok := r.cache[key]; ok && cached.modTime.Equal(info.ModTime()) {
			if cached.errMessage != "" {
				*errs = append(*errs, ReloadError{Path: path, Message: cached.errMessage})
				continue
			}
			next[cached.spec.Name()] = &Record{Spec: cached.spec, Tier: tier, Warnings: cached.warnings}
			continue
		}

		parsed, err := subagent.ParseFile(path, tier)
		if err != nil {
			msg := parseMessage(err)
			r.cache[key] = &cacheEntry{modTime: info.ModTime(), errMessage: msg}
			*errs = append(*errs, ReloadError{Path: path, Message: msg})
			continue
		}

		r.cache[key] = &cacheEntry{
			modTime:  info.ModTime(),
			spec:     parsed.Spec,
			warnings: parsed.Warnings,
		}
		next[parsed.Spec.Name()] = &Record{Spec: parsed.Spec, Tier: tier, Warnings: parsed.Warnings}
		*loaded = append(*loaded, parsed.Spec.Name())
	}
}

// Get returns the effective record for a name.
func (r *Registry) Get(name string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	return rec, ok
}

// List returns every effective record, ordered by name.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Spec.Name() < records[j].Spec.Name()
	})
	return records
}

// Count returns the number of effective records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// parseMessage strips the path prefix a ParseError carries so reload reports
// do not repeat the path inside the message.
func parseMessage(err error) string {
	var perr *subagent.ParseError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}

func dedupeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func dedupeErrors(errs []ReloadError) []ReloadError {
	if len(errs) == 0 {
		return nil
	}
	seen := make(map[ReloadError]bool, len(errs))
	out := errs[:0]
	for _, e := range errs {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
