package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/i1skn/ironbelly-sub000/internal/tor"
)

// FileName is the database file created in the journal directory.
const FileName = "journal.db"

// timestampLayout is fixed width so timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned by Open when the journal does not exist and
// CreateIfNotExists is false.
var ErrNotFound = errors.New("journal not found")

// Journal stores state transitions in SQLite.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Options configures Journal behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the
	// running supervisor.
	EnableWAL bool
}

// DefaultOptions returns the options used by `run`.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the journal in dir.
func Open(dir string, opts Options) (*Journal, error) {
	dbPath := filepath.Join(dir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check journal path: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// mode=rw refuses to create a missing file. history may read while
	// run writes, so wait for locks instead of failing.
	dsn := dbPath + "?mode=rw&_pragma=busy_timeout(5000)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := j.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		state TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_run ON transitions(run_id);
	CREATE INDEX IF NOT EXISTS idx_transitions_timestamp ON transitions(timestamp);
	`
	_, err := j.db.ExecContext(context.Background(), schema)
	return err
}

// Transition is one recorded state.
type Transition struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"runId"`
	State     string     `json:"state"`
	Status    tor.Status `json:"status"`
	Progress  int        `json:"progress"`
	Tag       string     `json:"tag,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Record stores st as a transition of run runID at time at.
func (j *Journal) Record(ctx context.Context, runID string, st tor.State, at time.Time) error {
	query := `
	INSERT INTO transitions (run_id, state, status, progress, tag, summary, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query,
		runID,
		st.Kind.String(),
		string(st.Status()),
		st.Bootstrap.Progress,
		st.Bootstrap.Tag,
		st.Bootstrap.Summary,
		at.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit of the latest transitions, oldest first.
// limit <= 0 returns all of them.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `
	SELECT id, run_id, state, status, progress, tag, summary, timestamp
	FROM (
		SELECT * FROM transitions ORDER BY id DESC LIMIT ?
	)
	ORDER BY id ASC
	`
	return j.queryTransitions(ctx, query, limit)
}

// ForRun returns every transition of one run, oldest first.
func (j *Journal) ForRun(ctx context.Context, runID string) ([]Transition, error) {
	query := `
	SELECT id, run_id, state, status, progress, tag, summary, timestamp
	FROM transitions
	WHERE run_id = ?
	ORDER BY id ASC
	`
	return j.queryTransitions(ctx, query, runID)
}

func (j *Journal) queryTransitions(ctx context.Context, query string, args ...any) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var results []Transition
	for rows.Next() {
		var tr Transition
		var status, timestamp string
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.State, &status, &tr.Progress, &tr.Tag, &tr.Summary, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.Status = tor.Status(status)
		tr.Timestamp = parseTimestamp(timestamp)
		results = append(results, tr)
	}
	return results, rows.Err()
}

// RunSummary describes one run.
type RunSummary struct {
	RunID       string     `json:"runId"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     time.Time  `json:"endedAt"`
	FinalState  string     `json:"finalState"`
	FinalStatus tor.Status `json:"finalStatus"`
	// MaxProgress is the highest bootstrap progress the run reached.
	MaxProgress int `json:"maxProgress"`
	Transitions int `json:"transitions"`
}

// Runs returns a summary per run, most recent first. limit <= 0 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
	SELECT t.run_id, MIN(t.timestamp), MAX(t.timestamp), MAX(t.progress), COUNT(*),
		(SELECT state FROM transitions l WHERE l.run_id = t.run_id ORDER BY l.id DESC LIMIT 1),
		(SELECT status FROM transitions l WHERE l.run_id = t.run_id ORDER BY l.id DESC LIMIT 1)
	FROM transitions t
	GROUP BY t.run_id
	ORDER BY MAX(t.id) DESC
	LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started, ended, status string
		if err := rows.Scan(&rs.RunID, &started, &ended, &rs.MaxProgress, &rs.Transitions, &rs.FinalState, &status); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rs.StartedAt = parseTimestamp(started)
		rs.EndedAt = parseTimestamp(ended)
		rs.FinalStatus = tor.Status(status)
		results = append(results, rs)
	}
	return results, rows.Err()
}

// timestampFormats are tried in order when reading timestamps back.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time if s matches no known format.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
