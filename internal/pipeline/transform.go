package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Transformer derives downstream artifacts from upstream ones. Validation of
// inputs is on by default; tests that build partial artifacts turn it off.
type Transformer struct {
	validate bool
}

// NewTransformer creates a transformer with input validation enabled.
func NewTransformer() *Transformer {
	return &Transformer{validate: true}
}

// WithoutValidation creates a transformer that accepts partial inputs.
func WithoutValidation() *Transformer {
	return &Transformer{}
}

// RequirementsToTestPlan derives a test plan from the testable acceptance
// criteria of a requirements spec.
func (t *Transformer) RequirementsToTestPlan(req *RequirementsSpec, changesID string) (*TestPlan, error) {
	if t.validate {
		if err := checkRequirements(req); err != nil {
			return nil, err
		}
	}

	plan := NewTestPlan(
		"test-plan-"+req.ID,
		req.ID,
		changesID,
		"Verify every testable acceptance criterion",
	)
	for _, criterion := range req.TestableCriteria() {
		plan.AddTestCase(TestCase{
			ID:               "test-" + criterion.ID,
			Name:             "Test: " + criterion.Description,
			Description:      criterion.Description,
			Type:             inferTestType(criterion.Description),
			ExecutionCommand: commandForScenario(criterion),
			ExpectedOutcome:  fmt.Sprintf("Criterion %q is satisfied", criterion.Description),
			CriterionID:      criterion.ID,
		})
	}
	return plan, nil
}

// ChangesToReviewScope seeds a review from a change set: the initial status
// follows the assessed risk, and breaking changes surface as a finding before
// any reviewer looks at the code.
func (t *Transformer) ChangesToReviewScope(changes *ProposedChanges) (*ReviewFindings, error) {
	if t.validate {
		if err := checkChanges(changes); err != nil {
			return nil, err
		}
	}

	review := NewReviewFindings("review-"+changes.ID, changes.ID)
	switch changes.Impact.RiskLevel {
	case RiskLow:
		review.Status = ReviewApproved
	case RiskMedium:
		review.Status = ReviewApprovedWithComments
	default:
		review.Status = ReviewRequestChanges
	}

	if len(changes.Impact.BreakingChanges) > 0 {
		var path string
		if len(changes.Changes) > 0 {
			path = changes.Changes[0].Path
		}
		review.AddFinding(ReviewFinding{
			ID:           "breaking-changes",
			Severity:     SeverityMajor,
			Category:     CategoryCorrectness,
			Message:      "Breaking changes detected: " + strings.Join(changes.Impact.BreakingChanges, ", "),
			FilePath:     path,
			SuggestedFix: "Review breaking changes carefully",
			RuleID:       "breaking-change-detection",
		})
	}
	return review, nil
}

// MergeTestResults attaches execution results to a plan. Every planned case
// without a result is recorded as blocked so the gap stays visible.
func (t *Transformer) MergeTestResults(plan *TestPlan, results TestResults) error {
	if t.validate && len(results.CaseResults) == 0 {
		return fmt.Errorf("test results contain no case results")
	}

	merged := TestResults{
		Status:      results.Status,
		CaseResults: make(map[string]TestCaseResult, len(plan.TestCases)),
		Summary:     results.Summary,
	}
	for _, tc := range plan.TestCases {
		if res, ok := results.CaseResults[tc.ID]; ok {
			merged.CaseResults[tc.ID] = res
			continue
		}
		merged.CaseResults[tc.ID] = TestCaseResult{
			Status:  TestBlocked,
			Details: "No execution result available",
		}
	}
	plan.Results = &merged
	return nil
}

// NewPipelineState assembles a state from whatever components exist so far.
func (t *Transformer) NewPipelineState(req *RequirementsSpec, changes *ProposedChanges, plan *TestPlan, review *ReviewFindings) *PipelineState {
	now := time.Now().UTC()
	return &PipelineState{
		Stage:        stageFor(req, changes, plan, review),
		Requirements: req,
		Changes:      changes,
		TestPlan:     plan,
		Review:       review,
		Metadata: PipelineMetadata{
			ExecutionID: GenerateID("pipeline"),
			StartedAt:   now,
			UpdatedAt:   now,
			InitiatedBy: "codex-cv",
		},
	}
}

// UpdatePipelineState merges newly produced components into a state and
// re-derives the stage. Nil arguments leave the existing component in place.
func (t *Transformer) UpdatePipelineState(state *PipelineState, req *RequirementsSpec, changes *ProposedChanges, plan *TestPlan, review *ReviewFindings) {
	if req != nil {
		state.Requirements = req
	}
	if changes != nil {
		state.Changes = changes
	}
	if plan != nil {
		state.TestPlan = plan
	}
	if review != nil {
		state.Review = review
	}
	state.Stage = stageFor(state.Requirements, state.Changes, state.TestPlan, state.Review)
	state.Metadata.UpdatedAt = time.Now().UTC()
}

// ExtractSummary condenses a state into counts for status displays.
func (t *Transformer) ExtractSummary(state *PipelineState) PipelineSummary {
	s := PipelineSummary{Stage: state.Stage}
	if state.Requirements != nil {
		s.RequirementsCount = len(state.Requirements.AcceptanceCriteria)
	}
	if state.Changes != nil {
		s.ChangesCount = len(state.Changes.Changes)
	}
	if state.TestPlan != nil {
		s.TestCasesCount = len(state.TestPlan.TestCases)
	}
	if state.Review != nil {
		s.ReviewFindingsCount = len(state.Review.Findings)
		s.HasBlockingIssues = state.Review.HasBlockingFindings()
	}
	return s
}

// stageFor maps component availability to the pipeline stage. Components are
// produced strictly in order, so the first missing one decides.
func stageFor(req *RequirementsSpec, changes *ProposedChanges, plan *TestPlan, review *ReviewFindings) PipelineStage {
	switch {
	case req == nil:
		return StageSpecification
	case changes == nil:
		return StageCodeGeneration
	case plan == nil:
		return StageTesting
	case review == nil:
		return StageReview
	default:
		return StageComplete
	}
}

func checkRequirements(req *RequirementsSpec) error {
	if req.ID == "" {
		return fmt.Errorf("requirements id cannot be empty")
	}
	if req.Title == "" {
		return fmt.Errorf("requirements title cannot be empty")
	}
	if len(req.AcceptanceCriteria) == 0 {
		return fmt.Errorf("requirements must have at least one acceptance criterion")
	}
	return nil
}

func checkChanges(changes *ProposedChanges) error {
	if changes.ID == "" {
		return fmt.Errorf("changes id cannot be empty")
	}
	if len(changes.Changes) == 0 {
		return fmt.Errorf("change set must contain at least one file change")
	}
	return nil
}

// inferTestType classifies a criterion by its wording.
func inferTestType(description string) TestType {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "unit") || strings.Contains(lower, "function"):
		return TestUnit
	case strings.Contains(lower, "integration") || strings.Contains(lower, "api"):
		return TestIntegration
	default:
		return TestAcceptance
	}
}

// commandForScenario picks the command a planned case would run.
func commandForScenario(criterion AcceptanceCriterion) string {
	if criterion.TestScenario != "" {
		return criterion.TestScenario
	}
	switch inferTestType(criterion.Description) {
	case TestUnit:
		return "go test ./..."
	case TestIntegration:
		return "go test -run Integration ./..."
	default:
		return ""
	}
}
