package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/antsh3k/codex-cv/internal/taskctx"
)

// Reviewer folds the planned changes and the test outcomes into a findings
// report with a final review status.
type Reviewer struct {
	changes ProposedChanges
	results TestResults
	review  *ReviewFindings
}

// NewReviewer creates a reviewer stage for one run.
func NewReviewer() *Reviewer {
	return &Reviewer{}
}

// Name implements Behavior.
func (r *Reviewer) Name() string { return "reviewer" }

// Prepare implements Behavior.
func (r *Reviewer) Prepare(_ context.Context, tc *taskctx.Context) error {
	changes, ok := taskctx.Get[ProposedChanges](tc)
	if !ok {
		return errors.New("no proposed changes in task context; run code-writer first")
	}
	results, ok := taskctx.Get[TestResults](tc)
	if !ok {
		return errors.New("no test results in task context; run tester first")
	}
	r.changes = changes
	r.results = results
	return nil
}

// Execute implements Behavior.
func (r *Reviewer) Execute(_ context.Context, tc *taskctx.Context) error {
	r.review = DeriveReviewFindings(&r.changes, &r.results)
	tc.Logf(taskctx.LevelInfo, "recorded %d findings, review status %s",
		len(r.review.Findings), r.review.Status)
	return nil
}

// Finalize implements Behavior.
func (r *Reviewer) Finalize(_ context.Context, tc *taskctx.Context) error {
	taskctx.Put(tc, *r.review)
	tc.SetScratchpad(scratchpadKey(r.Name()), *r.review)
	return nil
}

// DeriveReviewFindings inspects a change set and its test outcomes and
// produces severity-ranked findings plus the resulting review status.
func DeriveReviewFindings(changes *ProposedChanges, results *TestResults) *ReviewFindings {
	review := NewReviewFindings(GenerateID("review"), changes.ID)
	next := findingCounter()

	if changes.Impact.SecurityNotes != "" {
		review.AddFinding(ReviewFinding{
			ID:           next(),
			Severity:     SeverityMajor,
			Category:     CategorySecurity,
			Message:      "Security-sensitive changes need dedicated review",
			FilePath:     firstSecuritySensitivePath(changes.Changes),
			SuggestedFix: "Request a security-focused review before merging",
			RuleID:       "security-sensitive-files",
		})
	}

	for _, c := range changes.Changes {
		if mentionsUnsafe(c) {
			review.AddFinding(ReviewFinding{
				ID:           next(),
				Severity:     SeverityMajor,
				Category:     CategoryCorrectness,
				Message:      fmt.Sprintf("Change to %s mentions unsafe operations", c.Path),
				FilePath:     c.Path,
				SuggestedFix: "Consider refactoring to safe APIs",
				RuleID:       "unsafe-operations",
			})
		}
	}

	for _, id := range sortedCaseIDs(results.CaseResults) {
		res := results.CaseResults[id]
		switch res.Status {
		case TestFailed:
			review.AddFinding(ReviewFinding{
				ID:           next(),
				Severity:     SeverityCritical,
				Category:     CategoryTesting,
				Message:      testFindingMessage(id, "failed", res.Details),
				SuggestedFix: "Fix the failing behavior before merging",
				RuleID:       "failed-test",
			})
		case TestBlocked:
			review.AddFinding(ReviewFinding{
				ID:           next(),
				Severity:     SeverityMajor,
				Category:     CategoryTesting,
				Message:      testFindingMessage(id, "did not run", res.Details),
				SuggestedFix: "Run the test outside the sandbox and record the outcome",
				RuleID:       "blocked-test",
			})
		case TestSkipped:
			review.AddFinding(ReviewFinding{
				ID:       next(),
				Severity: SeverityMinor,
				Category: CategoryTesting,
				Message:  testFindingMessage(id, "was skipped", res.Details),
				RuleID:   "skipped-test",
			})
		}
	}

	sort.SliceStable(review.Findings, func(i, j int) bool {
		return review.Findings[i].Severity.rank() > review.Findings[j].Severity.rank()
	})

	switch {
	case review.HasBlockingFindings():
		review.Status = ReviewRequestChanges
	case len(review.Findings) > 0:
		review.Status = ReviewApprovedWithComments
	default:
		review.Status = ReviewApproved
	}

	if len(review.Findings) == 0 {
		review.Summary = "No review findings"
	} else {
		review.Summary = fmt.Sprintf("Identified %d findings", len(review.Findings))
	}
	return review
}

func findingCounter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("finding-%03d", n)
	}
}

func testFindingMessage(caseID, verb, details string) string {
	if details == "" {
		return fmt.Sprintf("Test %s %s", caseID, verb)
	}
	return fmt.Sprintf("Test %s %s (%s)", caseID, verb, details)
}

func firstSecuritySensitivePath(changes []FileChange) string {
	for _, c := range changes {
		if isSecuritySensitive(c.Path) {
			return c.Path
		}
	}
	return ""
}

func mentionsUnsafe(c FileChange) bool {
	return strings.Contains(strings.ToLower(c.Reason), "unsafe") ||
		strings.Contains(strings.ToLower(c.Content), "unsafe")
}
