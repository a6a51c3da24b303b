package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/antsh3k/codex-cv/internal/taskctx"
)

// SpecDocument is the spec-parser input slot: a raw markdown brief written in
// the requirements format (an H1 title, free-form overview, and a
// `## Requirements` section of `- [REQ-NNN] summary` bullets with nested
// acceptance criteria and optional `files:` hints).
type SpecDocument struct {
	Text string
}

var (
	requirementLine = regexp.MustCompile(`^-\s*\[([A-Z0-9_-]+)\]\s*(.+)$`)
	acceptanceLine  = regexp.MustCompile(`^(AC-[0-9]{3,})?\s*:?\s*(.+)$`)
	fileHintLine    = regexp.MustCompile(`(?i)^files?\s*:\s*(.+)$`)
)

// SpecParser turns a markdown brief into a RequirementsSpec. It is the first
// pipeline stage; later stages read the spec it publishes.
type SpecParser struct {
	doc  SpecDocument
	spec *RequirementsSpec
}

// NewSpecParser creates a spec-parser stage for one run.
func NewSpecParser() *SpecParser {
	return &SpecParser{}
}

// Name implements Behavior.
func (p *SpecParser) Name() string { return "spec-parser" }

// Prepare implements Behavior.
func (p *SpecParser) Prepare(_ context.Context, tc *taskctx.Context) error {
	doc, ok := taskctx.Get[SpecDocument](tc)
	if !ok {
		return errors.New("no specification document in task context")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return errors.New("specification document is empty")
	}
	p.doc = doc
	return nil
}

// Execute implements Behavior.
func (p *SpecParser) Execute(_ context.Context, tc *taskctx.Context) error {
	spec, err := ParseRequirementsMarkdown(p.doc.Text)
	if err != nil {
		tc.Logf(taskctx.LevelError, "spec parsing failed: %v", err)
		return err
	}
	p.spec = spec
	tc.Logf(taskctx.LevelInfo, "parsed %d acceptance criteria from %q",
		len(spec.AcceptanceCriteria), spec.Title)
	return nil
}

// Finalize implements Behavior.
func (p *SpecParser) Finalize(_ context.Context, tc *taskctx.Context) error {
	taskctx.Put(tc, *p.spec)
	tc.SetScratchpad(scratchpadKey(p.Name()), *p.spec)
	return nil
}

// parsedRequirement accumulates one `- [REQ-NNN]` bullet and its children
// while walking the document.
type parsedRequirement struct {
	id       string
	summary  string
	criteria []AcceptanceCriterion
	files    []string
}

func (r *parsedRequirement) finish() error {
	if len(r.criteria) == 0 {
		return fmt.Errorf("requirement %s missing acceptance criteria", r.id)
	}
	return nil
}

func (r *parsedRequirement) addCriterion(id, text string) {
	if id == "" {
		id = fmt.Sprintf("%s-AC%d", r.id, len(r.criteria)+1)
	}
	r.criteria = append(r.criteria, AcceptanceCriterion{
		ID:           id,
		Description:  text,
		Priority:     inferPriority(text),
		Testable:     isTestable(text),
		TestScenario: testScenario(text),
	})
}

// ParseRequirementsMarkdown parses the requirements markdown format into a
// single flat spec: requirement bullets contribute their acceptance criteria
// and file hints, the H1 heading becomes the title, and everything before the
// `## Requirements` heading becomes the description.
func ParseRequirementsMarkdown(markdown string) (*RequirementsSpec, error) {
	var (
		title         string
		overviewLines []string
		requirements  []*parsedRequirement
		inSection     bool
		current       *parsedRequirement
	)
	seen := make(map[string]bool)

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := current.finish(); err != nil {
			return err
		}
		requirements = append(requirements, current)
		current = nil
		return nil
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "##") {
				heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
				if strings.EqualFold(heading, "requirements") {
					if err := flush(); err != nil {
						return nil, err
					}
					inSection = true
					continue
				}
			} else if title == "" {
				title = strings.TrimSpace(strings.TrimLeft(line, "#"))
				continue
			}
		}

		if !inSection {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				overviewLines = append(overviewLines, trimmed)
			}
			continue
		}

		trimmed := strings.TrimSpace(line)

		if m := requirementLine.FindStringSubmatch(trimmed); m != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			id := m[1]
			if err := validateRequirementID(id); err != nil {
				return nil, err
			}
			if seen[id] {
				return nil, fmt.Errorf("duplicate requirement id %s", id)
			}
			seen[id] = true
			current = &parsedRequirement{id: id, summary: strings.TrimSpace(m[2])}
			continue
		}

		if current == nil || !strings.HasPrefix(trimmed, "-") {
			continue
		}
		inner := strings.TrimSpace(strings.TrimLeft(trimmed, "-"))

		if m := fileHintLine.FindStringSubmatch(inner); m != nil {
			for _, hint := range strings.Split(m[1], ",") {
				if hint = strings.TrimSpace(hint); hint != "" {
					current.files = append(current.files, hint)
				}
			}
			continue
		}

		if m := acceptanceLine.FindStringSubmatch(inner); m != nil {
			text := strings.TrimSpace(m[2])
			if text == "" {
				return nil, errors.New("acceptance criterion missing text")
			}
			current.addCriterion(m[1], text)
			continue
		}

		if inner != "" {
			current.addCriterion("", inner)
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	if len(requirements) == 0 {
		return nil, errors.New("no requirements found")
	}

	if title == "" {
		title = "Untitled"
	}
	overview := "No overview provided"
	if len(overviewLines) > 0 {
		overview = strings.Join(overviewLines, " ")
	}

	spec := NewRequirementsSpec(GenerateID("req"), title, overview)
	fileSeen := make(map[string]bool)
	for _, req := range requirements {
		for _, c := range req.criteria {
			spec.AddCriterion(c)
		}
		for _, f := range req.files {
			if !fileSeen[f] {
				fileSeen[f] = true
				spec.RelatedFiles = append(spec.RelatedFiles, f)
			}
		}
	}
	return spec, nil
}

func validateRequirementID(id string) error {
	if !strings.HasPrefix(id, "REQ-") {
		return fmt.Errorf("requirement id %s must start with REQ-", id)
	}
	suffix := id[len("REQ-"):]
	if suffix == "" {
		return fmt.Errorf("requirement id %s must end in digits", id)
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return fmt.Errorf("requirement id %s must end in digits", id)
		}
	}
	return nil
}

// inferPriority classifies a criterion by its modal language.
func inferPriority(text string) Priority {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "must"),
		strings.Contains(lower, "critical"),
		strings.Contains(lower, "required"):
		return PriorityHigh
	case strings.Contains(lower, "should"),
		strings.Contains(lower, "important"):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// isTestable reports whether a criterion reads like something a test can
// check.
func isTestable(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{
		"test", "verify", "validate", "given", "when", "then",
		"should", "function", "feature",
	} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// testScenario returns the criterion text itself when it is written in
// given/when/then form, otherwise empty.
func testScenario(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "given") &&
		(strings.Contains(lower, "when") || strings.Contains(lower, "then")) {
		return text
	}
	return ""
}
