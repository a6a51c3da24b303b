package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/antsh3k/codex-cv/internal/conflict"
	"github.com/antsh3k/codex-cv/internal/taskctx"
)

// CodeWriter drafts a ProposedChanges plan from the parsed requirements.
// It plans file-level actions only; writing actual file content is the
// engine-backed agent's job.
type CodeWriter struct {
	spec    RequirementsSpec
	changes *ProposedChanges
	tracker *conflict.Tracker
}

// NewCodeWriter creates a code-writer stage for one run.
func NewCodeWriter() *CodeWriter {
	return &CodeWriter{}
}

// WithTracker attaches a conflict tracker. The drafted change set is then
// checked against other agents' activity, held as an active patch while the
// stage runs, and attributed once Finalize publishes it. Verdicts are
// advisory; a Warning or Blocked check is logged, never fatal.
func (w *CodeWriter) WithTracker(t *conflict.Tracker) *CodeWriter {
	w.tracker = t
	return w
}

// Name implements Behavior.
func (w *CodeWriter) Name() string { return "code-writer" }

// Prepare implements Behavior.
func (w *CodeWriter) Prepare(_ context.Context, tc *taskctx.Context) error {
	spec, ok := taskctx.Get[RequirementsSpec](tc)
	if !ok {
		return errors.New("no requirements spec in task context; run spec-parser first")
	}
	w.spec = spec
	return nil
}

// Execute implements Behavior.
func (w *CodeWriter) Execute(_ context.Context, tc *taskctx.Context) error {
	w.changes = DeriveChangesFromSpec(&w.spec)
	tc.Logf(taskctx.LevelInfo, "drafted %d planned changes at %s risk",
		len(w.changes.Changes), w.changes.Impact.RiskLevel)

	if w.tracker != nil {
		patch := w.patch()
		if verdict := w.tracker.Check(patch); verdict.Kind != conflict.Clear {
			tc.Logf(taskctx.LevelWarn, "%s", verdict.Message)
		}
		w.tracker.RecordBegin(patch)
	}
	return nil
}

// Finalize implements Behavior.
func (w *CodeWriter) Finalize(_ context.Context, tc *taskctx.Context) error {
	taskctx.Put(tc, *w.changes)
	tc.SetScratchpad(scratchpadKey(w.Name()), *w.changes)
	if w.tracker != nil {
		w.tracker.RecordEnd(w.patch(), true)
	}
	return nil
}

// patch describes the drafted change set to the conflict tracker, keyed by
// the change-set id.
func (w *CodeWriter) patch() conflict.Patch {
	paths := make([]string, 0, len(w.changes.Changes))
	for _, c := range w.changes.Changes {
		paths = append(paths, c.Path)
	}
	return conflict.Patch{
		CallID:        w.changes.ID,
		AgentName:     w.Name(),
		AffectedFiles: paths,
	}
}

// DeriveChangesFromSpec plans one modify action per related file, ordered so
// that data types land before logic, logic before interfaces, and tests last.
// A spec without file hints gets a single default target.
func DeriveChangesFromSpec(spec *RequirementsSpec) *ProposedChanges {
	rationale := fmt.Sprintf("Derived from %d acceptance criteria", len(spec.AcceptanceCriteria))
	changes := NewProposedChanges(GenerateID("changes"), spec.ID, rationale)

	targets := spec.RelatedFiles
	if len(targets) == 0 {
		changes.AddChange(FileChange{
			Path:   "main.go",
			Type:   ChangeModify,
			Reason: "Default target inferred from the requirements",
		})
	} else {
		for _, target := range targets {
			changes.AddChange(FileChange{
				Path:   target,
				Type:   ChangeModify,
				Reason: fmt.Sprintf("Referenced by %s", spec.ID),
			})
		}
		sort.SliceStable(changes.Changes, func(i, j int) bool {
			return filePriority(changes.Changes[i].Path) < filePriority(changes.Changes[j].Path)
		})
	}

	changes.Impact = AssessImpact(changes.Changes)
	return changes
}

// filePriority ranks a path for implementation order; lower lands earlier.
func filePriority(p string) int {
	lower := strings.ToLower(p)
	switch {
	case containsAny(lower, "model", "entity", "type"):
		return 1
	case containsAny(lower, "service", "logic", "core"):
		return 2
	case containsAny(lower, "api", "route", "handler"):
		return 3
	case containsAny(lower, "component", "view", "ui"):
		return 4
	case strings.Contains(lower, "test"):
		return 5
	default:
		return 3
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AssessImpact summarizes the blast radius of a planned change set.
func AssessImpact(changes []FileChange) ImpactAssessment {
	impact := ImpactAssessment{RiskLevel: riskForFileCount(len(changes))}

	seen := make(map[string]bool)
	for _, c := range changes {
		component := identifyComponent(c.Path)
		if !seen[component] {
			seen[component] = true
			impact.AffectedComponents = append(impact.AffectedComponents, component)
		}
	}

	for _, c := range changes {
		switch c.Type {
		case ChangeDelete:
			impact.BreakingChanges = append(impact.BreakingChanges,
				fmt.Sprintf("File deletion: %s", c.Path))
		case ChangeRename:
			impact.BreakingChanges = append(impact.BreakingChanges,
				fmt.Sprintf("File rename: %s", c.Path))
		}
		if isPublicInterface(c.Path) {
			impact.BreakingChanges = append(impact.BreakingChanges,
				fmt.Sprintf("Public interface change: %s", c.Path))
		}
	}

	if len(changes) > 5 {
		impact.PerformanceNotes = "Large number of file changes may impact build time"
	}
	for _, c := range changes {
		if isSecuritySensitive(c.Path) {
			impact.SecurityNotes = "Changes affect security-sensitive files"
			break
		}
	}
	return impact
}

func riskForFileCount(n int) RiskLevel {
	switch {
	case n <= 2:
		return RiskLow
	case n <= 5:
		return RiskMedium
	case n <= 10:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// identifyComponent names the component a path belongs to: its parent
// directory when it has one, otherwise the file stem.
func identifyComponent(p string) string {
	if dir := path.Dir(p); dir != "." && dir != "/" {
		return path.Base(dir)
	}
	base := path.Base(p)
	if stem := strings.TrimSuffix(base, path.Ext(base)); stem != "" {
		return stem
	}
	return "unknown"
}

func isPublicInterface(p string) bool {
	return containsAny(strings.ToLower(p), "api", "public", "interface")
}

func isSecuritySensitive(p string) bool {
	return containsAny(strings.ToLower(p), "auth", "security", "crypto")
}
