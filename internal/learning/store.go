// Package learning records per-command execution outcomes and feeds back
// timeout and cache-path suggestions for future runs.
package learning

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	_ "modernc.org/sqlite"
)

// Outcome of one command execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one timestamped observation for a command signature. Records are
// append-only; aggregates are derived by folding over them.
type Record struct {
	Signature  string
	Outcome    Outcome
	Duration   time.Duration
	RecordedAt time.Time
}

// Suggestion is the advisory output for a known command signature. Absence
// of a suggestion never blocks a run.
type Suggestion struct {
	SuccessRate    float64
	MeanDuration   time.Duration
	TimeoutSeconds int
	CachePaths     []string
}

// Store persists learning records. It is safe for concurrent use; all
// mutation goes through database/sql which serializes access to the
// underlying SQLite handle.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the learning database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "learning.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open learning database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate learning database: %w", err)
	}

	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signature TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_signature ON command_history(signature);

	CREATE TABLE IF NOT EXISTS command_cache_paths (
		signature TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (signature, path)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record appends one outcome observation for a command signature.
func (s *Store) Record(signature string, outcome Outcome, duration time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO command_history (signature, outcome, duration_ms)
		VALUES (?, ?, ?)
	`, signature, string(outcome), duration.Milliseconds())
	return err
}

// RecordCachePaths associates cache paths with a command signature so future
// plans for the same command can pre-populate them.
func (s *Store) RecordCachePaths(signature string, paths []string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_, err := s.db.Exec(`
			INSERT INTO command_cache_paths (signature, path)
			VALUES (?, ?)
			ON CONFLICT(signature, path) DO NOTHING
		`, signature, p)
		if err != nil {
			return err
		}
	}
	return nil
}

// Suggest folds the history for signature into a suggestion. It returns nil
// for signatures that were never recorded.
func (s *Store) Suggest(signature string) (*Suggestion, error) {
	var successes, failures int
	var meanMs sql.NullFloat64

	err := s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN outcome = 'success' THEN 1 END),
			COUNT(CASE WHEN outcome = 'failure' THEN 1 END),
			AVG(duration_ms)
		FROM command_history WHERE signature = ?
	`, signature).Scan(&successes, &failures, &meanMs)
	if err != nil {
		return nil, err
	}

	total := successes + failures
	if total == 0 {
		return nil, nil
	}

	mean := time.Duration(meanMs.Float64) * time.Millisecond

	sg := &Suggestion{
		SuccessRate:    float64(successes) / float64(total),
		MeanDuration:   mean,
		TimeoutSeconds: suggestedTimeout(mean),
	}

	rows, err := s.db.Query(`
		SELECT path FROM command_cache_paths WHERE signature = ? ORDER BY path
	`, signature)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		sg.CachePaths = append(sg.CachePaths, p)
	}

	return sg, rows.Err()
}

// Stats summarizes the whole store for the dashboard and CLI.
type Stats struct {
	UniqueSignatures int     `json:"unique_signatures"`
	TotalRecords     int     `json:"total_records"`
	TotalSuccesses   int     `json:"total_successes"`
	TotalFailures    int     `json:"total_failures"`
	SuccessRate      float64 `json:"success_rate"`
}

// GetStats returns aggregate counters across all signatures.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRow(`
		SELECT
			COUNT(DISTINCT signature),
			COUNT(*),
			COUNT(CASE WHEN outcome = 'success' THEN 1 END),
			COUNT(CASE WHEN outcome = 'failure' THEN 1 END)
		FROM command_history
	`).Scan(&stats.UniqueSignatures, &stats.TotalRecords, &stats.TotalSuccesses, &stats.TotalFailures)
	if err != nil {
		return nil, err
	}

	if stats.TotalRecords > 0 {
		stats.SuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalRecords)
	}

	return stats, nil
}

// suggestedTimeout gives commands three times their mean duration, rounded up
// to a second, clamped to [30s, 3600s].
func suggestedTimeout(mean time.Duration) int {
	secs := int((3*mean + time.Second - 1) / time.Second)
	if secs < 30 {
		secs = 30
	}
	if secs > 3600 {
		secs = 3600
	}
	return secs
}

// Signature normalizes a shell command for history lookups: the program word
// plus its first non-flag argument (e.g. "cargo build --release" and
// "cargo build" share a signature). Commands that fail shell tokenization
// fall back to whitespace fields.
func Signature(command string) string {
	words, err := shellquote.Split(command)
	if err != nil {
		words = strings.Fields(command)
	}

	var kept []string
	for _, w := range words {
		if strings.HasPrefix(w, "-") {
			break
		}
		kept = append(kept, w)
		if len(kept) == 2 {
			break
		}
	}

	if len(kept) == 0 {
		return strings.TrimSpace(command)
	}
	return strings.Join(kept, " ")
}
