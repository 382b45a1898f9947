// Package store persists canonical records, their candidate audit trails,
// and run bookkeeping.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scrkit/papermeta/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Run is one pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	InputDir   string     `json:"input_dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Report holds the JSON diagnostics report once the run completes.
	Report []byte `json:"report,omitempty"`
}

// Store defines the persistence interface for the metadata pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, runID, inputDir string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, report []byte) error
	GetRun(ctx context.Context, runID string) (*Run, error)

	// Records. SaveRecord upserts by document content hash; reprocessing the
	// same bytes replaces the previous row. The candidate set is stored
	// alongside the record as the provenance audit trail.
	SaveRecord(ctx context.Context, runID string, rec *model.CanonicalRecord, set *model.CandidateSet) error
	GetRecord(ctx context.Context, paperID string) (*model.CanonicalRecord, error)

	// ProcessedHashes returns doc hash → paper ID for every stored record,
	// used to skip already-processed documents on resume.
	ProcessedHashes(ctx context.Context) (map[string]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
