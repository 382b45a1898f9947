package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scrkit/papermeta/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input_dir   TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	report      TEXT
);

CREATE TABLE IF NOT EXISTS records (
	doc_hash     TEXT PRIMARY KEY,
	paper_id     TEXT NOT NULL,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	path         TEXT NOT NULL,
	record       TEXT NOT NULL,
	candidates   TEXT NOT NULL,
	unresolved   INTEGER NOT NULL DEFAULT 0,
	duplicate_of TEXT,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_paper_id ON records(paper_id);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, runID, inputDir string) (*Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_dir, started_at) VALUES (?, ?, ?)`,
		runID, inputDir, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{ID: runID, InputDir: inputDir, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report []byte) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, report = ? WHERE id = ?`,
		now, string(report), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var finished sql.NullTime
	var report sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_dir, started_at, finished_at, report FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.InputDir, &run.StartedAt, &finished, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if report.Valid {
		run.Report = []byte(report.String)
	}
	return &run, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, runID string, rec *model.CanonicalRecord, set *model.CandidateSet) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	setJSON, err := json.Marshal(set)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal candidates")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (doc_hash, paper_id, run_id, path, record, candidates, unresolved, duplicate_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_hash) DO UPDATE SET
			paper_id = excluded.paper_id,
			run_id = excluded.run_id,
			path = excluded.path,
			record = excluded.record,
			candidates = excluded.candidates,
			unresolved = excluded.unresolved,
			duplicate_of = excluded.duplicate_of,
			created_at = excluded.created_at`,
		rec.DocHash, rec.PaperID, runID, rec.Path,
		string(recJSON), string(setJSON),
		boolToInt(rec.Unresolved), rec.DuplicateOf, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save record")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, paperID string) (*model.CanonicalRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM records WHERE paper_id = ? ORDER BY created_at DESC LIMIT 1`, paperID,
	).Scan(&recJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get record")
	}

	var rec model.CanonicalRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	return &rec, nil
}

func (s *SQLiteStore) ProcessedHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_hash, paper_id FROM records`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: processed hashes")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var hash, paperID string
		if err := rows.Scan(&hash, &paperID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hash")
		}
		out[hash] = paperID
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate hashes")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
