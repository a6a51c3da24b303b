package pipeline

import (
	"strings"
	"testing"
)

func TestPipelineStageValid(t *testing.T) {
	for _, s := range []PipelineStage{
		StageSpecification, StageCodeGeneration, StageTesting, StageReview, StageComplete,
	} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if PipelineStage("shipping").Valid() {
		t.Error("unknown stage should be invalid")
	}
}

func TestRiskLevelAtLeast(t *testing.T) {
	if !RiskCritical.AtLeast(RiskLow) {
		t.Error("critical >= low")
	}
	if !RiskMedium.AtLeast(RiskMedium) {
		t.Error("medium >= medium")
	}
	if RiskLow.AtLeast(RiskHigh) {
		t.Error("low < high")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityMajor) {
		t.Error("critical >= major")
	}
	if SeverityMinor.AtLeast(SeverityMajor) {
		t.Error("minor < major")
	}
}

func TestTestableCriteria(t *testing.T) {
	spec := rolloutSpec()
	spec.AddCriterion(AcceptanceCriterion{ID: "AC-003", Description: "Reads well"})

	testable := spec.TestableCriteria()
	if len(testable) != 2 {
		t.Fatalf("testable = %d", len(testable))
	}
	for _, c := range testable {
		if !c.Testable {
			t.Fatalf("criterion %s is not testable", c.ID)
		}
	}
}

func TestFilePaths(t *testing.T) {
	changes := NewProposedChanges("changes-1", "req-1", "work")
	changes.AddChange(FileChange{Path: "a.go", Type: ChangeModify})
	changes.AddChange(FileChange{Path: "b.go", Type: ChangeCreate})

	paths := changes.FilePaths()
	if len(paths) != 2 || paths[0] != "a.go" || paths[1] != "b.go" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestCountByStatus(t *testing.T) {
	results := TestResults{
		CaseResults: map[string]TestCaseResult{
			"a": {Status: TestPassed},
			"b": {Status: TestPassed},
			"c": {Status: TestBlocked},
		},
	}
	if got := results.CountByStatus(TestPassed); got != 2 {
		t.Fatalf("passed = %d", got)
	}
	if got := results.CountByStatus(TestFailed); got != 0 {
		t.Fatalf("failed = %d", got)
	}
}

func TestReviewFindingFilters(t *testing.T) {
	review := NewReviewFindings("review-1", "changes-1")
	if review.Status != ReviewPending {
		t.Fatalf("initial status = %q", review.Status)
	}
	review.AddFinding(ReviewFinding{ID: "f1", Severity: SeverityInfo, Message: "note"})
	review.AddFinding(ReviewFinding{ID: "f2", Severity: SeverityMajor, Message: "issue"})

	if review.HasBlockingFindings() {
		t.Fatal("no critical finding yet")
	}
	if got := review.HighSeverityFindings(); len(got) != 1 || got[0].ID != "f2" {
		t.Fatalf("high severity = %v", got)
	}

	review.AddFinding(ReviewFinding{ID: "f3", Severity: SeverityCritical, Message: "broken"})
	if !review.HasBlockingFindings() {
		t.Fatal("critical finding should block")
	}
	if got := review.HighSeverityFindings(); len(got) != 2 {
		t.Fatalf("high severity = %v", got)
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("req")
	if !strings.HasPrefix(id, "req-") {
		t.Fatalf("id = %q", id)
	}
	if id == GenerateID("req") {
		t.Fatal("ids should be unique")
	}
}
