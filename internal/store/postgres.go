package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scrkit/papermeta/internal/model"
)

// Pool abstracts the pgxpool operations the store needs, so tests can swap
// in a mock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used in tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input_dir   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	report      JSONB
);

CREATE TABLE IF NOT EXISTS records (
	doc_hash     TEXT PRIMARY KEY,
	paper_id     TEXT NOT NULL,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	path         TEXT NOT NULL,
	record       JSONB NOT NULL,
	candidates   JSONB NOT NULL,
	unresolved   BOOLEAN NOT NULL DEFAULT false,
	duplicate_of TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_paper_id ON records(paper_id);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, runID, inputDir string) (*Run, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, input_dir, started_at) VALUES ($1, $2, $3)`,
		runID, inputDir, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{ID: runID, InputDir: inputDir, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $1, report = $2 WHERE id = $3`,
		time.Now().UTC(), report, runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete run")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var finished *time.Time
	var report []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, input_dir, started_at, finished_at, report FROM runs WHERE id = $1`, runID,
	).Scan(&run.ID, &run.InputDir, &run.StartedAt, &finished, &report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	run.FinishedAt = finished
	run.Report = report
	return &run, nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, runID string, rec *model.CanonicalRecord, set *model.CandidateSet) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}
	setJSON, err := json.Marshal(set)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal candidates")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (doc_hash, paper_id, run_id, path, record, candidates, unresolved, duplicate_of, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (doc_hash) DO UPDATE SET
			paper_id = EXCLUDED.paper_id,
			run_id = EXCLUDED.run_id,
			path = EXCLUDED.path,
			record = EXCLUDED.record,
			candidates = EXCLUDED.candidates,
			unresolved = EXCLUDED.unresolved,
			duplicate_of = EXCLUDED.duplicate_of,
			created_at = EXCLUDED.created_at`,
		rec.DocHash, rec.PaperID, runID, rec.Path,
		recJSON, setJSON, rec.Unresolved, rec.DuplicateOf, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save record")
}

func (s *PostgresStore) GetRecord(ctx context.Context, paperID string) (*model.CanonicalRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM records WHERE paper_id = $1 ORDER BY created_at DESC LIMIT 1`, paperID,
	).Scan(&recJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get record")
	}

	var rec model.CanonicalRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	return &rec, nil
}

func (s *PostgresStore) ProcessedHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc_hash, paper_id FROM records`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: processed hashes")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var hash, paperID string
		if err := rows.Scan(&hash, &paperID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hash")
		}
		out[hash] = paperID
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate hashes")
}
