// Package history keeps a per-run ledger so past subagent runs survive the
// process and the status command can show them.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/antsh3k/codex-cv/pkg/models"
)

// Run is one ledger row. FinishedAt stays zero while the run is in flight.
type Run struct {
	ID         string
	AgentName  string
	Model      string
	Status     models.RunStatus
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ledger records runs in SQLite. Rows are written around orchestration: one
// insert when a run starts, one update when it ends. A row still marked
// running whose writer process is gone reads back as stale.
type Ledger struct {
	db  *sql.DB
	pid int
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			model TEXT,
			status TEXT NOT NULL,
			outcome TEXT,
			pid INT,
			started_at DATETIME,
			finished_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Ledger{db: db, pid: os.Getpid()}, nil
}

// Begin inserts a running row for agentName and returns it.
func (l *Ledger) Begin(agentName string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		AgentName: agentName,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}

	_, err := l.db.Exec(`
		INSERT INTO runs (id, agent_name, model, status, outcome, pid, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.AgentName, run.Model, string(run.Status), run.Outcome, l.pid, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return run, nil
}

// Finish closes out a run with its terminal state. The outcome column keeps
// the last message on success and the error text otherwise.
func (l *Ledger) Finish(run *Run, state models.RunState) error {
	run.Model = state.Model
	run.FinishedAt = time.Now()
	if state.Success() {
		run.Status = models.RunStatusSucceeded
		run.Outcome = state.LastMessage
	} else {
		run.Status = models.RunStatusFailed
		run.Outcome = state.Error
	}

	result, err := l.db.Exec(`
		UPDATE runs
		SET model = ?, status = ?, outcome = ?, finished_at = ?
		WHERE id = ?
	`, run.Model, string(run.Status), run.Outcome, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// Recent returns up to limit runs, newest first. Rows left running by a
// process that no longer exists are reported as stale; their writer crashed
// before finishing.
func (l *Ledger) Recent(limit int) ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT id, agent_name, model, status, outcome, pid, started_at, finished_at
		FROM runs
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := l.scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ByAgent returns up to limit runs for one agent, newest first.
func (l *Ledger) ByAgent(agentName string, limit int) ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT id, agent_name, model, status, outcome, pid, started_at, finished_at
		FROM runs
		WHERE agent_name = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := l.scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (l *Ledger) scanRun(rows *sql.Rows) (Run, error) {
	var (
		run        Run
		model      sql.NullString
		outcome    sql.NullString
		pid        sql.NullInt64
		status     string
		finishedAt sql.NullTime
	)
	err := rows.Scan(&run.ID, &run.AgentName, &model, &status, &outcome, &pid,
		&run.StartedAt, &finishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Model = model.String
	run.Outcome = outcome.String
	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	if run.Status == models.RunStatusRunning && pid.Valid && !processAlive(int(pid.Int64)) {
		run.Status = models.RunStatusStale
	}
	return run, nil
}

// processAlive reports whether pid refers to a live process. Signal 0 checks
// existence without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
