package telemetry

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antsh3k/codex-cv/pkg/models"
)

// Store persists observations to SQLite so run metrics survive the process.
// Writes go through Observe like any other sink; query methods back the
// status views.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenStore opens (or creates) the metrics database at path. WAL mode is
// enabled for concurrent reads, and pending migrations are applied.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies pending schema migrations.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Observations},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Observations = `
CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_name TEXT NOT NULL,
	model TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT,
	observed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_agent ON observations(agent_name);
CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations(observed_at);
`

// Observe persists an observation. Failures are logged, never returned;
// telemetry must not disturb orchestration.
func (s *Store) Observe(o Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO observations (agent_name, model, duration_ms, success, outcome, error, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.AgentName, o.Model, int64(o.DurationMillis), boolToInt(o.Success), string(o.Outcome), o.Error,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		log.Printf("[telemetry] store write failed: %v", err)
	}
}

// StoredObservation is an observation read back from the store.
type StoredObservation struct {
	Observation
	ObservedAt time.Time
}

// Recent returns up to limit observations, newest first.
func (s *Store) Recent(limit int) ([]StoredObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT agent_name, model, duration_ms, success, outcome, COALESCE(error, ''), observed_at
		FROM observations
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []StoredObservation
	for rows.Next() {
		var o StoredObservation
		var durationMS int64
		var success int
		var outcome, observedAt string
		if err := rows.Scan(&o.AgentName, &o.Model, &durationMS, &success, &outcome, &o.Error, &observedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.DurationMillis = uint64(durationMS)
		o.Success = success != 0
		o.Outcome = outcomeFromString(outcome)
		if t, err := time.Parse(time.RFC3339, observedAt); err == nil {
			o.ObservedAt = t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AgentSummaries aggregates stored observations per agent, ordered by name.
func (s *Store) AgentSummaries() ([]AgentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT agent_name, COUNT(*), SUM(success), AVG(duration_ms)
		FROM observations
		GROUP BY agent_name
		ORDER BY agent_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var sum AgentSummary
		var successes int
		var avg float64
		if err := rows.Scan(&sum.AgentName, &sum.Executions, &successes, &avg); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sum.Executions > 0 {
			sum.SuccessRate = float64(successes) / float64(sum.Executions)
		}
		if avg > 0 {
			sum.AverageDurationMillis = uint64(avg)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// outcomeFromString maps a stored outcome back to its variant, defaulting to
// error for rows written by newer schema versions.
func outcomeFromString(s string) models.RunOutcome {
	o := models.RunOutcome(s)
	if !o.Valid() {
		return models.RunOutcomeError
	}
	return o
}
