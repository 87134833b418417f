package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "trainbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures run history persistence.
// An empty Path disables history (Open returns nil, nil).
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type RunRecord struct {
	ID         string
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is still active
}

type MetricRecord struct {
	RunID string
	Step  int
	Key   string
	Value float64
	At    time.Time
}

// Store is the SQLite-backed run history. A nil *Store is a valid,
// disabled store.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the configured store. Returns (nil, nil) when disabled.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RunStarted(ctx context.Context, runID, name string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, name, started_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		runID, name, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) MetricLogged(ctx context.Context, runID string, step int, key string, value float64) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics(run_id, step, key, value, at) VALUES(?,?,?,?,?)`,
		runID, step, key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) RunFinished(ctx context.Context, runID string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), runID,
	)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, started_at, finished_at FROM runs
		 ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunMetrics returns the metrics recorded for one run, oldest first.
func (s *Store) RunMetrics(ctx context.Context, runID string) ([]MetricRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, key, value, at FROM metrics
		 WHERE run_id = ? ORDER BY step, key`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetricRecord
	for rows.Next() {
		var m MetricRecord
		var at string
		if err := rows.Scan(&m.RunID, &m.Step, &m.Key, &m.Value, &at); err != nil {
			return nil, err
		}
		m.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastMetric returns the most recent value for key in runID.
func (s *Store) LastMetric(ctx context.Context, runID, key string) (float64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, nil
	}
	var v float64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metrics WHERE run_id = ? AND key = ?
		 ORDER BY step DESC LIMIT 1`, runID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
