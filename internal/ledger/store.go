package ledger

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Store records downloads, sweeps and invocations. It is a record only: nothing reads it
// back to decide what to fetch or which grid points to run.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS downloads (
  path TEXT PRIMARY KEY,
  model TEXT NOT NULL,
  kind TEXT NOT NULL,
  url TEXT NOT NULL,
  bytes INTEGER NOT NULL DEFAULT 0,
  digest TEXT NOT NULL DEFAULT '',
  fetched_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sweeps (
  sweep_id TEXT PRIMARY KEY,
  ntree INTEGER NOT NULL,
  seed INTEGER NOT NULL DEFAULT 0,
  models TEXT NOT NULL DEFAULT '',
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  points INTEGER NOT NULL DEFAULT 0,
  ok INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS invocations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sweep_id TEXT NOT NULL,
  model TEXT NOT NULL,
  ntree INTEGER NOT NULL,
  mtry INTEGER NOT NULL,
  topn INTEGER NOT NULL,
  exit_code INTEGER NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  duration_ms INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS invocations_sweep ON invocations(sweep_id);
`)
	return err
}

type Download struct {
	Path      string
	Model     string
	Kind      string
	URL       string
	Bytes     int64
	Digest    string
	FetchedAt time.Time
}

type Sweep struct {
	ID         string
	NTree      int
	Seed       uint64
	Models     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Points     int
	OK         int
	Failed     int
}

type Invocation struct {
	SweepID   string
	Model     string
	NTree     int
	MTry      int
	TopN      int
	ExitCode  int
	Error     string
	Duration  time.Duration
	StartedAt time.Time
}

// ModelStats aggregates invocations of one model across all sweeps.
type ModelStats struct {
	Model       string
	Invocations int
	Failed      int
	AvgDuration time.Duration
}

func (s *Store) RecordDownload(ctx context.Context, d Download) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloads(path, model, kind, url, bytes, digest, fetched_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  model=excluded.model,
  kind=excluded.kind,
  url=excluded.url,
  bytes=excluded.bytes,
  digest=excluded.digest,
  fetched_at=excluded.fetched_at;
`, d.Path, d.Model, d.Kind, d.URL, d.Bytes, d.Digest, d.FetchedAt)
	return err
}

func (s *Store) ListDownloads(ctx context.Context) ([]Download, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT path, model, kind, url, bytes, digest, fetched_at
FROM downloads ORDER BY model ASC, kind ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.Path, &d.Model, &d.Kind, &d.URL, &d.Bytes, &d.Digest, &d.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) BeginSweep(ctx context.Context, sw Sweep) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sweeps(sweep_id, ntree, seed, models, started_at, points)
VALUES(?, ?, ?, ?, ?, ?);
`, sw.ID, sw.NTree, int64(sw.Seed), sw.Models, sw.StartedAt, sw.Points)
	return err
}

func (s *Store) FinishSweep(ctx context.Context, id string, ok, failed int, at time.Time) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE sweeps SET finished_at=?, ok=?, failed=? WHERE sweep_id=?;
`, at, ok, failed, id)
	return err
}

func (s *Store) ListSweeps(ctx context.Context, limit int) ([]Sweep, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT sweep_id, ntree, seed, models, started_at, finished_at, points, ok, failed
FROM sweeps ORDER BY started_at DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sweep
	for rows.Next() {
		var sw Sweep
		var seed int64
		if err := rows.Scan(&sw.ID, &sw.NTree, &seed, &sw.Models, &sw.StartedAt, &sw.FinishedAt, &sw.Points, &sw.OK, &sw.Failed); err != nil {
			return nil, err
		}
		sw.Seed = uint64(seed)
		out = append(out, sw)
	}
	return out, rows.Err()
}

func (s *Store) RecordInvocation(ctx context.Context, inv Invocation) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocations(sweep_id, model, ntree, mtry, topn, exit_code, error, duration_ms, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, inv.SweepID, inv.Model, inv.NTree, inv.MTry, inv.TopN, inv.ExitCode, inv.Error, inv.Duration.Milliseconds(), inv.StartedAt)
	return err
}

func (s *Store) InvocationStats(ctx context.Context) ([]ModelStats, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT model, COUNT(*), SUM(CASE WHEN exit_code != 0 THEN 1 ELSE 0 END), AVG(duration_ms)
FROM invocations
GROUP BY model
ORDER BY model ASC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelStats
	for rows.Next() {
		var st ModelStats
		var avgMs float64
		if err := rows.Scan(&st.Model, &st.Invocations, &st.Failed, &avgMs); err != nil {
			return nil, err
		}
		st.AvgDuration = time.Duration(avgMs * float64(time.Millisecond))
		out = append(out, st)
	}
	return out, rows.Err()
}
