package pipeline

import "fmt"

// ValidationReport accumulates problems found while checking pipeline
// artifacts. Errors make the report invalid; warnings and info do not.
type ValidationReport struct {
	Errors   []string
	Warnings []string
	Info     []string
}

// AddError records a validation failure.
func (r *ValidationReport) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AddWarning records a non-fatal concern.
func (r *ValidationReport) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AddInfo records an observation.
func (r *ValidationReport) AddInfo(format string, args ...any) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// IsValid reports whether the checked artifacts carry no errors.
func (r *ValidationReport) IsValid() bool {
	return len(r.Errors) == 0
}

// IssueCount returns errors plus warnings.
func (r *ValidationReport) IssueCount() int {
	return len(r.Errors) + len(r.Warnings)
}

// Summary renders the report outcome as one line.
func (r *ValidationReport) Summary() string {
	if r.IsValid() {
		if len(r.Warnings) == 0 {
			return "validation passed"
		}
		return fmt.Sprintf("validation passed with %d warnings", len(r.Warnings))
	}
	return fmt.Sprintf("validation failed: %d errors, %d warnings", len(r.Errors), len(r.Warnings))
}

// Validator checks pipeline artifacts for internal and cross-component
// consistency. Strict mode turns several warnings into errors.
type Validator struct {
	strict bool
}

// NewValidator creates a strict validator.
func NewValidator() *Validator {
	return &Validator{strict: true}
}

// LenientValidator creates a validator that downgrades completeness checks
// to warnings.
func LenientValidator() *Validator {
	return &Validator{}
}

// ValidatePipeline checks every present component plus the references
// between them.
func (v *Validator) ValidatePipeline(state *PipelineState) ValidationReport {
	var report ValidationReport
	if state.Requirements != nil {
		v.ValidateRequirements(state.Requirements, &report)
	}
	if state.Changes != nil {
		v.ValidateChanges(state.Changes, &report)
	}
	if state.TestPlan != nil {
		v.ValidateTestPlan(state.TestPlan, &report)
	}
	if state.Review != nil {
		v.ValidateReview(state.Review, &report)
	}
	v.checkReferences(state, &report)
	v.checkStage(state, &report)
	return report
}

// ValidateRequirements checks one requirements spec.
func (v *Validator) ValidateRequirements(req *RequirementsSpec, report *ValidationReport) {
	if req.ID == "" {
		report.AddError("requirements id cannot be empty")
	}
	if req.Title == "" {
		report.AddError("requirements title cannot be empty")
	}
	if req.Description == "" {
		report.AddWarning("requirements description is empty")
	}
	if len(req.AcceptanceCriteria) == 0 {
		if v.strict {
			report.AddError("requirements must have at least one acceptance criterion")
		} else {
			report.AddWarning("no acceptance criteria defined")
		}
	}

	seen := make(map[string]bool)
	for _, c := range req.AcceptanceCriteria {
		if seen[c.ID] {
			report.AddError("duplicate acceptance criterion id %s", c.ID)
		}
		seen[c.ID] = true
		if c.Description == "" {
			report.AddError("acceptance criterion %s has an empty description", c.ID)
		}
	}
}

// ValidateChanges checks one proposed change set.
func (v *Validator) ValidateChanges(changes *ProposedChanges, report *ValidationReport) {
	if changes.ID == "" {
		report.AddError("changes id cannot be empty")
	}
	if changes.RequirementsID == "" {
		report.AddError("changes must reference a requirements id")
	}
	if len(changes.Changes) == 0 {
		report.AddError("change set must contain at least one file change")
	}
	if changes.Rationale == "" {
		report.AddWarning("change rationale is empty")
	}

	seen := make(map[string]bool)
	for _, c := range changes.Changes {
		if seen[c.Path] {
			report.AddError("duplicate file change for path %s", c.Path)
		}
		seen[c.Path] = true
		if c.Type == ChangeRename && c.RenamedFrom == "" {
			report.AddError("rename of %s does not record the prior path", c.Path)
		}
		if c.Content == "" && c.Type != ChangeDelete {
			report.AddWarning("file change for %s has empty content", c.Path)
		}
		if c.Reason == "" {
			report.AddWarning("file change for %s has no reason", c.Path)
		}
	}

	if len(changes.Impact.BreakingChanges) > 0 && changes.Impact.RiskLevel == RiskLow {
		report.AddWarning("breaking changes present but risk level is low")
	}
	if v.strict && len(changes.Impact.AffectedComponents) == 0 {
		report.AddWarning("no affected components specified")
	}
}

// ValidateTestPlan checks one test plan, including attached results.
func (v *Validator) ValidateTestPlan(plan *TestPlan, report *ValidationReport) {
	if plan.ID == "" {
		report.AddError("test plan id cannot be empty")
	}
	if plan.RequirementsID == "" {
		report.AddError("test plan must reference a requirements id")
	}
	if plan.ChangesID == "" {
		report.AddError("test plan must reference a changes id")
	}
	if len(plan.TestCases) == 0 {
		if v.strict {
			report.AddError("test plan must have at least one test case")
		} else {
			report.AddWarning("test plan has no test cases")
		}
	}

	seen := make(map[string]bool)
	for _, tc := range plan.TestCases {
		if seen[tc.ID] {
			report.AddError("duplicate test case id %s", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Name == "" {
			report.AddError("test case %s has an empty name", tc.ID)
		}
		if tc.ExpectedOutcome == "" {
			report.AddWarning("test case %s has no expected outcome", tc.ID)
		}
	}

	if plan.Results != nil {
		v.checkResults(plan, report)
	}
}

// ValidateReview checks one review artifact.
func (v *Validator) ValidateReview(review *ReviewFindings, report *ValidationReport) {
	if review.ID == "" {
		report.AddError("review id cannot be empty")
	}
	if review.ChangesID == "" {
		report.AddError("review must reference a changes id")
	}
	if review.Summary == "" {
		report.AddWarning("review summary is empty")
	}

	seen := make(map[string]bool)
	for _, f := range review.Findings {
		if seen[f.ID] {
			report.AddError("duplicate review finding id %s", f.ID)
		}
		seen[f.ID] = true
		if f.Message == "" {
			report.AddError("review finding %s has an empty message", f.ID)
		}
	}

	if review.HasBlockingFindings() && review.Status == ReviewApproved {
		report.AddError("review cannot be approved with critical findings")
	}
}

func (v *Validator) checkResults(plan *TestPlan, report *ValidationReport) {
	results := plan.Results

	planned := make(map[string]bool, len(plan.TestCases))
	for _, tc := range plan.TestCases {
		planned[tc.ID] = true
		if _, ok := results.CaseResults[tc.ID]; !ok {
			report.AddWarning("missing test result for case %s", tc.ID)
		}
	}
	for id := range results.CaseResults {
		if !planned[id] {
			report.AddWarning("test result for unknown case %s", id)
		}
	}

	allPassed := len(results.CaseResults) > 0
	anyFailed := false
	for _, res := range results.CaseResults {
		if res.Status != TestPassed {
			allPassed = false
		}
		if res.Status == TestFailed {
			anyFailed = true
		}
	}
	if results.Status == TestPassed && !allPassed {
		report.AddError("overall test status is passed but not all cases passed")
	}
	if results.Status == TestFailed && !anyFailed {
		report.AddError("overall test status is failed but no case failed")
	}
}

func (v *Validator) checkReferences(state *PipelineState, report *ValidationReport) {
	if state.Requirements != nil && state.Changes != nil {
		if state.Changes.RequirementsID != state.Requirements.ID {
			report.AddError("changes reference requirements %s but the spec is %s",
				state.Changes.RequirementsID, state.Requirements.ID)
		}
	}
	if state.Changes != nil && state.TestPlan != nil {
		if state.TestPlan.ChangesID != state.Changes.ID {
			report.AddError("test plan references changes %s but the change set is %s",
				state.TestPlan.ChangesID, state.Changes.ID)
		}
	}
	if state.Requirements != nil && state.TestPlan != nil {
		if state.TestPlan.RequirementsID != state.Requirements.ID {
			report.AddError("test plan references requirements %s but the spec is %s",
				state.TestPlan.RequirementsID, state.Requirements.ID)
		}
	}
	if state.Changes != nil && state.Review != nil {
		if state.Review.ChangesID != state.Changes.ID {
			report.AddError("review references changes %s but the change set is %s",
				state.Review.ChangesID, state.Changes.ID)
		}
	}
}

func (v *Validator) checkStage(state *PipelineState, report *ValidationReport) {
	expected := stageFor(state.Requirements, state.Changes, state.TestPlan, state.Review)
	if state.Stage != expected {
		report.AddWarning("pipeline stage %s does not match component availability (expected %s)",
			state.Stage, expected)
	}
}
