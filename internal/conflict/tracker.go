// Package conflict arbitrates concurrent file edits across subagents.
// Verdicts are advisory data for the caller; the tracker never blocks a
// write itself.
package conflict

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Kind classifies the result of checking a candidate patch.
type Kind int

const (
	// Clear means no active overlap and no foreign attribution.
	Clear Kind = iota
	// Warning means some candidate files were last modified by a different
	// agent; the patch may proceed.
	Warning
	// Blocked means another agent is actively modifying candidate files
	// right now.
	Blocked
)

// String returns the lowercase verdict name.
func (k Kind) String() string {
	switch k {
	case Clear:
		return "clear"
	case Warning:
		return "warning"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Patch describes one file-modifying operation, correlated across
// RecordBegin/RecordEnd by its call id.
type Patch struct {
	// CallID correlates the begin/end pair for this operation.
	CallID string
	// AgentName is the subagent proposing the patch, if known.
	AgentName string
	// ConversationID is the sub-conversation the patch came from, if known.
	ConversationID string
	// AffectedFiles are the paths the patch touches.
	AffectedFiles []string
}

// FileAttribution records which agent most recently modified a file
// successfully.
type FileAttribution struct {
	AgentName      string
	ConversationID string
	CallID         string
	Timestamp      time.Time
}

// FileWarning identifies one candidate file previously attributed to a
// different agent.
type FileWarning struct {
	Path      string
	AgentName string
	Timestamp time.Time
}

// CompletedPatch is one audit entry, appended whether or not the patch
// succeeded.
type CompletedPatch struct {
	CallID         string
	AgentName      string
	ConversationID string
	AffectedFiles  []string
	Success        bool
	FinishedAt     time.Time
}

// Verdict is the outcome of Check.
type Verdict struct {
	// Kind is the verdict class.
	Kind Kind
	// Files are the intersecting paths (Blocked) or foreign-attributed
	// paths (Warning).
	Files []string
	// BlockingAgent names the agent holding the active patch, Blocked only.
	BlockingAgent string
	// Warnings carry per-file prior attribution, Warning only.
	Warnings []FileWarning
	// Message is a human-readable summary, empty when Clear.
	Message string
}

// activePatch is an in-progress entry keyed by call id.
type activePatch struct {
	agentName      string
	conversationID string
	files          []string
	startedAt      time.Time
}

// Tracker tracks active patches and per-file attribution across concurrent
// subagents. Attribution and history are unbounded for the tracker's
// lifetime; pruning is caller policy.
type Tracker struct {
	// mu protects all fields. Critical sections are short and never
	// perform I/O.
	mu sync.Mutex
	// active maps call ids to in-progress patches.
	active map[string]*activePatch
	// attribution maps file paths to their last successful modifier.
	attribution map[string]FileAttribution
	// history records every completed patch in finish order.
	history []CompletedPatch
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:      make(map[string]*activePatch),
		attribution: make(map[string]FileAttribution),
	}
}

// Check evaluates a candidate patch. Active patches from other agents are
// checked first; an overlap there is Blocked and short-circuits the history
// comparison. Otherwise files last attributed to a different agent produce a
// Warning, and no findings at all produce Clear.
func (t *Tracker) Check(candidate Patch) Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()

	want := make(map[string]bool, len(candidate.AffectedFiles))
	for _, f := range candidate.AffectedFiles {
		want[f] = true
	}

	// Deterministic scan order across the active map.
	callIDs := make([]string, 0, len(t.active))
	for id := range t.active {
		callIDs = append(callIDs, id)
	}
	sort.Strings(callIDs)

	for _, id := range callIDs {
		if id == candidate.CallID {
			continue
		}
		p := t.active[id]
		if p.agentName == candidate.AgentName {
			continue
		}
		var overlap []string
		for _, f := range p.files {
			if want[f] {
				overlap = append(overlap, f)
			}
		}
		if len(overlap) == 0 {
			continue
		}
		sort.Strings(overlap)
		return Verdict{
			Kind:          Blocked,
			Files:         overlap,
			BlockingAgent: p.agentName,
			Message: fmt.Sprintf("Cannot apply patch: %s is currently modifying %d file(s) that %s is trying to edit",
				p.agentName, len(overlap), candidate.AgentName),
		}
	}

	var warnings []FileWarning
	var files []string
	for _, f := range candidate.AffectedFiles {
		attr, ok := t.attribution[f]
		if !ok || attr.AgentName == candidate.AgentName {
			continue
		}
		warnings = append(warnings, FileWarning{Path: f, AgentName: attr.AgentName, Timestamp: attr.Timestamp})
		files = append(files, f)
	}
	if len(warnings) > 0 {
		return Verdict{
			Kind:     Warning,
			Files:    files,
			Warnings: warnings,
			Message: fmt.Sprintf("Warning: %d file(s) were previously modified by different subagents in this session",
				len(warnings)),
		}
	}

	return Verdict{Kind: Clear}
}

// RecordBegin registers a patch as active.
func (t *Tracker) RecordBegin(patch Patch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	files := make([]string, len(patch.AffectedFiles))
	copy(files, patch.AffectedFiles)

	t.active[patch.CallID] = &activePatch{
		agentName:      patch.AgentName,
		conversationID: patch.ConversationID,
		files:          files,
		startedAt:      time.Now(),
	}
}

// RecordEnd removes the active entry for the patch. Attribution is
// overwritten only when the patch succeeded; a history entry is appended
// either way.
func (t *Tracker) RecordEnd(patch Patch, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.active, patch.CallID)

	now := time.Now()
	if success {
		for _, f := range patch.AffectedFiles {
			t.attribution[f] = FileAttribution{
				AgentName:      patch.AgentName,
				ConversationID: patch.ConversationID,
				CallID:         patch.CallID,
				Timestamp:      now,
			}
		}
	}

	files := make([]string, len(patch.AffectedFiles))
	copy(files, patch.AffectedFiles)
	t.history = append(t.history, CompletedPatch{
		CallID:         patch.CallID,
		AgentName:      patch.AgentName,
		ConversationID: patch.ConversationID,
		AffectedFiles:  files,
		Success:        success,
		FinishedAt:     now,
	})
}

// Attribution returns the last successful modifier of a path.
func (t *Tracker) Attribution(path string) (FileAttribution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	attr, ok := t.attribution[path]
	return attr, ok
}

// PatchesByAgent returns the active patches belonging to an agent.
func (t *Tracker) PatchesByAgent(agentName string) []Patch {
	t.mu.Lock()
	defer t.mu.Unlock()

	var patches []Patch
	for id, p := range t.active {
		if p.agentName != agentName {
			continue
		}
		files := make([]string, len(p.files))
		copy(files, p.files)
		patches = append(patches, Patch{
			CallID:         id,
			AgentName:      p.agentName,
			ConversationID: p.conversationID,
			AffectedFiles:  files,
		})
	}
	sort.Slice(patches, func(i, j int) bool { return patches[i].CallID < patches[j].CallID })
	return patches
}

// History returns a copy of the completed-patch audit log in finish order.
func (t *Tracker) History() []CompletedPatch {
	t.mu.Lock()
	defer t.mu.Unlock()

	history := make([]CompletedPatch, len(t.history))
	copy(history, t.history)
	return history
}

// Summary reports tracker occupancy.
type Summary struct {
	ActivePatches   int
	AttributedFiles int
	HistoryLength   int
}

// Summary returns current occupancy counts.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		ActivePatches:   len(t.active),
		AttributedFiles: len(t.attribution),
		HistoryLength:   len(t.history),
	}
}

// Clear drops all active patches, attribution, and history.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[string]*activePatch)
	t.attribution = make(map[string]FileAttribution)
	t.history = nil
}
