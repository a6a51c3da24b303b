package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/antsh3k/codex-cv/pkg/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestBeginAndFinishSuccess(t *testing.T) {
	ledger := openTestLedger(t)

	run, err := ledger.Begin("reviewer")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if run.Status != models.RunStatusRunning {
		t.Fatalf("status = %q", run.Status)
	}
	if run.ID == "" {
		t.Fatal("run id missing")
	}

	state := models.RunState{
		AgentName:   "reviewer",
		Model:       "claude-sonnet-4-5",
		Outcome:     models.RunOutcomeSuccess,
		LastMessage: "Review complete",
		Duration:    2 * time.Second,
	}
	if err := ledger.Finish(run, state); err != nil {
		t.Fatalf("finish: %v", err)
	}

	rows, err := ledger.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	got := rows[0]
	if got.Status != models.RunStatusSucceeded {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Outcome != "Review complete" {
		t.Fatalf("outcome = %q", got.Outcome)
	}
	if got.Model != "claude-sonnet-4-5" {
		t.Fatalf("model = %q", got.Model)
	}
	if got.FinishedAt.IsZero() {
		t.Fatal("finished_at not recorded")
	}
}

func TestFinishFailureKeepsErrorText(t *testing.T) {
	ledger := openTestLedger(t)

	run, err := ledger.Begin("tester")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	state := models.RunState{
		AgentName: "tester",
		Outcome:   models.RunOutcomeError,
		Error:     "engine error from tester: backend unavailable",
	}
	if err := ledger.Finish(run, state); err != nil {
		t.Fatalf("finish: %v", err)
	}

	rows, err := ledger.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if rows[0].Status != models.RunStatusFailed {
		t.Fatalf("status = %q", rows[0].Status)
	}
	if rows[0].Outcome != "engine error from tester: backend unavailable" {
		t.Fatalf("outcome = %q", rows[0].Outcome)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	ledger := openTestLedger(t)
	run := &Run{ID: "missing"}
	if err := ledger.Finish(run, models.RunState{}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	ledger := openTestLedger(t)

	for _, name := range []string{"first", "second", "third"} {
		if _, err := ledger.Begin(name); err != nil {
			t.Fatalf("begin %s: %v", name, err)
		}
	}

	rows, err := ledger.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].AgentName != "third" || rows[1].AgentName != "second" {
		t.Fatalf("order = %q, %q", rows[0].AgentName, rows[1].AgentName)
	}
}

func TestByAgent(t *testing.T) {
	ledger := openTestLedger(t)

	for _, name := range []string{"tester", "reviewer", "tester"} {
		if _, err := ledger.Begin(name); err != nil {
			t.Fatalf("begin %s: %v", name, err)
		}
	}

	rows, err := ledger.ByAgent("tester", 10)
	if err != nil {
		t.Fatalf("by agent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	for _, r := range rows {
		if r.AgentName != "tester" {
			t.Fatalf("agent = %q", r.AgentName)
		}
	}
}

func TestRunningRowFromDeadProcessIsStale(t *testing.T) {
	ledger := openTestLedger(t)

	run, err := ledger.Begin("spec-parser")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Rewrite the row as if a now-dead process had started it. The pid is
	// past pid_max, so no live process can hold it.
	_, err = ledger.db.Exec(`UPDATE runs SET pid = ? WHERE id = ?`, 99999999, run.ID)
	if err != nil {
		t.Fatalf("rewrite pid: %v", err)
	}

	rows, err := ledger.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if rows[0].Status != models.RunStatusStale {
		t.Fatalf("status = %q, want stale", rows[0].Status)
	}
}

func TestRunningRowFromThisProcessStaysRunning(t *testing.T) {
	ledger := openTestLedger(t)

	if _, err := ledger.Begin("code-writer"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	rows, err := ledger.Recent(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if rows[0].Status != models.RunStatusRunning {
		t.Fatalf("status = %q, want running", rows[0].Status)
	}
}
