package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/antsh3k/codex-cv/internal/taskctx"
)

// Tester derives a test plan from the requirements and records a simulated
// execution pass. Real command execution belongs to the engine-backed agent;
// this stage documents per case why it did or did not run, so blocked cases
// surface a user-facing reason.
type Tester struct {
	commandsAllowed bool

	spec    RequirementsSpec
	changes ProposedChanges
	plan    *TestPlan
}

// NewTester creates a tester stage for one run. commandsAllowed reflects the
// active sandbox profile.
func NewTester(commandsAllowed bool) *Tester {
	return &Tester{commandsAllowed: commandsAllowed}
}

// Name implements Behavior.
func (t *Tester) Name() string { return "tester" }

// Prepare implements Behavior.
func (t *Tester) Prepare(_ context.Context, tc *taskctx.Context) error {
	spec, ok := taskctx.Get[RequirementsSpec](tc)
	if !ok {
		return errors.New("no requirements spec in task context; run spec-parser first")
	}
	changes, ok := taskctx.Get[ProposedChanges](tc)
	if !ok {
		return errors.New("no proposed changes in task context; run code-writer first")
	}
	t.spec = spec
	t.changes = changes
	return nil
}

// Execute implements Behavior.
func (t *Tester) Execute(_ context.Context, tc *taskctx.Context) error {
	tr := NewTransformer()
	plan, err := tr.RequirementsToTestPlan(&t.spec, t.changes.ID)
	if err != nil {
		return fmt.Errorf("derive test plan: %w", err)
	}
	tc.Logf(taskctx.LevelInfo, "prepared %d test cases", len(plan.TestCases))

	if len(plan.TestCases) == 0 {
		plan.Results = &TestResults{
			Status:      TestSkipped,
			CaseResults: map[string]TestCaseResult{},
			Summary:     "No testable acceptance criteria",
		}
		t.plan = plan
		return nil
	}

	results := t.executePlan(plan)
	if err := tr.MergeTestResults(plan, results); err != nil {
		return fmt.Errorf("merge test results: %w", err)
	}
	t.plan = plan
	return nil
}

// Finalize implements Behavior.
func (t *Tester) Finalize(_ context.Context, tc *taskctx.Context) error {
	taskctx.Put(tc, *t.plan)
	taskctx.Put(tc, *t.plan.Results)
	tc.SetScratchpad(scratchpadKey(t.Name()), *t.plan.Results)
	return nil
}

func (t *Tester) executePlan(plan *TestPlan) TestResults {
	results := TestResults{CaseResults: make(map[string]TestCaseResult, len(plan.TestCases))}

	for _, tc := range plan.TestCases {
		switch {
		case tc.ExecutionCommand == "":
			results.CaseResults[tc.ID] = TestCaseResult{
				Status:  TestSkipped,
				Details: "No execution command available",
			}
		case !t.commandsAllowed:
			results.CaseResults[tc.ID] = TestCaseResult{
				Status:  TestBlocked,
				Details: "Sandbox prohibits executing arbitrary commands",
			}
		default:
			results.CaseResults[tc.ID] = TestCaseResult{
				Status:  TestBlocked,
				Details: "Execution deferred to interactive shell",
			}
		}
	}

	results.Status = rollupStatus(results.CaseResults)
	results.Summary = fmt.Sprintf("%d passed, %d failed, %d skipped, %d blocked",
		results.CountByStatus(TestPassed), results.CountByStatus(TestFailed),
		results.CountByStatus(TestSkipped), results.CountByStatus(TestBlocked))
	return results
}

// rollupStatus folds per-case statuses into one: failures dominate, then
// blocked cases, then a clean pass.
func rollupStatus(cases map[string]TestCaseResult) TestStatus {
	if len(cases) == 0 {
		return TestSkipped
	}
	anyBlocked := false
	allPassed := true
	for _, res := range cases {
		switch res.Status {
		case TestFailed:
			return TestFailed
		case TestBlocked:
			anyBlocked = true
			allPassed = false
		case TestSkipped:
			allPassed = false
		}
	}
	if anyBlocked {
		return TestBlocked
	}
	if allPassed {
		return TestPassed
	}
	return TestSkipped
}

// sortedCaseIDs returns result keys in a stable order.
func sortedCaseIDs(cases map[string]TestCaseResult) []string {
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
