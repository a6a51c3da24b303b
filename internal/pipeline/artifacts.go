// Package pipeline defines the typed artifacts handed between the four
// builtin subagent stages and the transforms, validation, and stage behaviors
// that operate on them. Artifacts travel through a taskctx.Context; nothing
// here is persisted.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStage names how far a pipeline run has progressed.
type PipelineStage string

const (
	StageSpecification  PipelineStage = "specification"
	StageCodeGeneration PipelineStage = "code_generation"
	StageTesting        PipelineStage = "testing"
	StageReview         PipelineStage = "review"
	StageComplete       PipelineStage = "complete"
)

// Valid returns true if the stage is a known value.
func (s PipelineStage) Valid() bool {
	switch s {
	case StageSpecification, StageCodeGeneration, StageTesting, StageReview, StageComplete:
		return true
	default:
		return false
	}
}

// Priority ranks an acceptance criterion.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AcceptanceCriterion is one verifiable statement inside a requirements spec.
type AcceptanceCriterion struct {
	// ID is unique within the owning spec.
	ID string `json:"id"`
	// Description is the criterion text.
	Description string `json:"description"`
	// Priority ranks how important satisfying the criterion is.
	Priority Priority `json:"priority"`
	// Testable marks criteria that can be verified mechanically.
	Testable bool `json:"testable"`
	// TestScenario carries a Given/When/Then sketch when one was found.
	TestScenario string `json:"test_scenario,omitempty"`
}

// RequirementsSpec is the structured output of the spec-parser stage.
type RequirementsSpec struct {
	ID                 string                `json:"id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria"`
	// RelatedFiles lists paths the requirements explicitly reference.
	RelatedFiles []string `json:"related_files,omitempty"`
}

// NewRequirementsSpec creates an empty spec with identity fields set.
func NewRequirementsSpec(id, title, description string) *RequirementsSpec {
	return &RequirementsSpec{
		ID:          id,
		Title:       title,
		Description: description,
	}
}

// AddCriterion appends one acceptance criterion.
func (r *RequirementsSpec) AddCriterion(c AcceptanceCriterion) {
	r.AcceptanceCriteria = append(r.AcceptanceCriteria, c)
}

// TestableCriteria returns the criteria marked testable, in order.
func (r *RequirementsSpec) TestableCriteria() []AcceptanceCriterion {
	var out []AcceptanceCriterion
	for _, c := range r.AcceptanceCriteria {
		if c.Testable {
			out = append(out, c)
		}
	}
	return out
}

// ChangeType says what happens to a file in a proposed change.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
	ChangeRename ChangeType = "rename"
)

// FileChange is one file-level action inside a ProposedChanges artifact.
type FileChange struct {
	// Path is the file the change targets.
	Path string `json:"path"`
	// RenamedFrom holds the prior path for rename changes.
	RenamedFrom string     `json:"renamed_from,omitempty"`
	Type        ChangeType `json:"type"`
	// Content is the planned file content; empty for deletes.
	Content string `json:"content,omitempty"`
	// Reason explains why this file is touched.
	Reason string `json:"reason,omitempty"`
}

// RiskLevel grades the blast radius of a proposed change set.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// ImpactAssessment summarizes the expected consequences of a change set.
type ImpactAssessment struct {
	RiskLevel          RiskLevel `json:"risk_level"`
	AffectedComponents []string  `json:"affected_components,omitempty"`
	BreakingChanges    []string  `json:"breaking_changes,omitempty"`
	PerformanceNotes   string    `json:"performance_notes,omitempty"`
	SecurityNotes      string    `json:"security_notes,omitempty"`
}

// ProposedChanges is the structured output of the code-writer stage.
type ProposedChanges struct {
	ID string `json:"id"`
	// RequirementsID references the spec the changes implement.
	RequirementsID string           `json:"requirements_id"`
	Rationale      string           `json:"rationale"`
	Changes        []FileChange     `json:"changes"`
	Impact         ImpactAssessment `json:"impact"`
}

// NewProposedChanges creates an empty change set bound to a requirements spec.
func NewProposedChanges(id, requirementsID, rationale string) *ProposedChanges {
	return &ProposedChanges{
		ID:             id,
		RequirementsID: requirementsID,
		Rationale:      rationale,
		Impact:         ImpactAssessment{RiskLevel: RiskLow},
	}
}

// AddChange appends one file change.
func (p *ProposedChanges) AddChange(c FileChange) {
	p.Changes = append(p.Changes, c)
}

// FilePaths returns the target path of every change, in order.
func (p *ProposedChanges) FilePaths() []string {
	out := make([]string, 0, len(p.Changes))
	for _, c := range p.Changes {
		out = append(out, c.Path)
	}
	return out
}

// TestType classifies a planned test case.
type TestType string

const (
	TestUnit        TestType = "unit"
	TestIntegration TestType = "integration"
	TestAcceptance  TestType = "acceptance"
)

// TestCase is one planned verification inside a TestPlan.
type TestCase struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        TestType `json:"type"`
	// ExecutionCommand is the shell command that would run the case.
	ExecutionCommand string `json:"execution_command,omitempty"`
	ExpectedOutcome  string `json:"expected_outcome,omitempty"`
	// CriterionID links back to the acceptance criterion being verified.
	CriterionID string `json:"criterion_id,omitempty"`
}

// TestPlan is the structured output of the planning half of the tester stage.
type TestPlan struct {
	ID string `json:"id"`
	// RequirementsID and ChangesID reference the upstream artifacts.
	RequirementsID string     `json:"requirements_id"`
	ChangesID      string     `json:"changes_id"`
	Strategy       string     `json:"strategy"`
	TestCases      []TestCase `json:"test_cases"`
	// Results is filled once the plan has been executed.
	Results *TestResults `json:"results,omitempty"`
}

// NewTestPlan creates an empty plan bound to its upstream artifacts.
func NewTestPlan(id, requirementsID, changesID, strategy string) *TestPlan {
	return &TestPlan{
		ID:             id,
		RequirementsID: requirementsID,
		ChangesID:      changesID,
		Strategy:       strategy,
	}
}

// AddTestCase appends one test case.
func (t *TestPlan) AddTestCase(c TestCase) {
	t.TestCases = append(t.TestCases, c)
}

// TestStatus is the outcome of one test case or of a whole run.
type TestStatus string

const (
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
	TestSkipped TestStatus = "skipped"
	TestBlocked TestStatus = "blocked"
)

// TestCaseResult records how one planned case went.
type TestCaseResult struct {
	Status TestStatus `json:"status"`
	// Details explains failures, skips, and blocks.
	Details string `json:"details,omitempty"`
}

// TestResults is the execution half of the tester stage output.
type TestResults struct {
	// Status is the rolled-up run outcome.
	Status TestStatus `json:"status"`
	// CaseResults is keyed by test case id.
	CaseResults map[string]TestCaseResult `json:"case_results"`
	Summary     string                    `json:"summary,omitempty"`
}

// CountByStatus returns how many case results carry the given status.
func (r *TestResults) CountByStatus(status TestStatus) int {
	n := 0
	for _, res := range r.CaseResults {
		if res.Status == status {
			n++
		}
	}
	return n
}

// FindingSeverity grades one review finding.
type FindingSeverity string

const (
	SeverityInfo     FindingSeverity = "info"
	SeverityMinor    FindingSeverity = "minor"
	SeverityMajor    FindingSeverity = "major"
	SeverityCritical FindingSeverity = "critical"
)

func (s FindingSeverity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s FindingSeverity) AtLeast(other FindingSeverity) bool {
	return s.rank() >= other.rank()
}

// FindingCategory groups review findings by concern.
type FindingCategory string

const (
	CategoryCorrectness     FindingCategory = "correctness"
	CategoryStyle           FindingCategory = "style"
	CategorySecurity        FindingCategory = "security"
	CategoryPerformance     FindingCategory = "performance"
	CategoryMaintainability FindingCategory = "maintainability"
	CategoryTesting         FindingCategory = "testing"
)

// ReviewStatus is the reviewer's verdict on a change set.
type ReviewStatus string

const (
	ReviewPending              ReviewStatus = "pending"
	ReviewApproved             ReviewStatus = "approved"
	ReviewApprovedWithComments ReviewStatus = "approved_with_comments"
	ReviewRequestChanges       ReviewStatus = "request_changes"
)

// ReviewFinding is one issue raised during review.
type ReviewFinding struct {
	ID       string          `json:"id"`
	Severity FindingSeverity `json:"severity"`
	Category FindingCategory `json:"category"`
	Message  string          `json:"message"`
	// FilePath and Line locate the finding when known; Line 0 means the
	// whole file.
	FilePath string `json:"file_path,omitempty"`
	Line     int    `json:"line,omitempty"`
	// SuggestedFix is an optional remediation hint.
	SuggestedFix string `json:"suggested_fix,omitempty"`
	// RuleID names the check that produced the finding.
	RuleID string `json:"rule_id,omitempty"`
}

// ReviewFindings is the structured output of the reviewer stage.
type ReviewFindings struct {
	ID string `json:"id"`
	// ChangesID references the change set under review.
	ChangesID string          `json:"changes_id"`
	Summary   string          `json:"summary"`
	Status    ReviewStatus    `json:"status"`
	Findings  []ReviewFinding `json:"findings"`
}

// NewReviewFindings creates an empty review bound to a change set.
func NewReviewFindings(id, changesID string) *ReviewFindings {
	return &ReviewFindings{
		ID:        id,
		ChangesID: changesID,
		Status:    ReviewPending,
	}
}

// AddFinding appends one finding.
func (r *ReviewFindings) AddFinding(f ReviewFinding) {
	r.Findings = append(r.Findings, f)
}

// HasBlockingFindings reports whether any finding is critical.
func (r *ReviewFindings) HasBlockingFindings() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HighSeverityFindings returns the major and critical findings, in order.
func (r *ReviewFindings) HighSeverityFindings() []ReviewFinding {
	var out []ReviewFinding
	for _, f := range r.Findings {
		if f.Severity.AtLeast(SeverityMajor) {
			out = append(out, f)
		}
	}
	return out
}

// PipelineMetadata identifies one pipeline execution.
type PipelineMetadata struct {
	ExecutionID string    `json:"execution_id"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	InitiatedBy string    `json:"initiated_by"`
}

// PipelineState is the complete picture of one pipeline run. Components are
// nil until their stage has produced them.
type PipelineState struct {
	Stage        PipelineStage     `json:"stage"`
	Requirements *RequirementsSpec `json:"requirements,omitempty"`
	Changes      *ProposedChanges  `json:"changes,omitempty"`
	TestPlan     *TestPlan         `json:"test_plan,omitempty"`
	Review       *ReviewFindings   `json:"review,omitempty"`
	Metadata     PipelineMetadata  `json:"metadata"`
}

// PipelineSummary is a compact status view of a pipeline state.
type PipelineSummary struct {
	Stage               PipelineStage
	RequirementsCount   int
	ChangesCount        int
	TestCasesCount      int
	ReviewFindingsCount int
	HasBlockingIssues   bool
}

// GenerateID returns a fresh prefixed artifact identifier.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
