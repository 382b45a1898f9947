// Package extract turns raw PDF documents into candidate metadata fields.
// Each extractor is an independent signal source; none of them is trusted on
// its own. Reconciliation happens downstream.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrkit/papermeta/internal/model"
)

// Extractor produces candidate fields for one document. Implementations must
// be safe for concurrent use across documents. An error return means the
// extractor could not run at all for this document; partial results with no
// error are the normal case for sparse documents.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, doc *model.Document) ([]model.CandidateField, error)
}

// Runner executes a fixed, ordered set of extractors against documents. The
// order is the configured priority order, which keeps candidate insertion
// deterministic for a given document and config.
type Runner struct {
	extractors []Extractor
	timeout    time.Duration
}

// NewRunner builds a runner over the given extractors, applying a per-extractor
// timeout to each Extract call. A zero timeout disables the bound.
func NewRunner(extractors []Extractor, timeout time.Duration) *Runner {
	return &Runner{extractors: extractors, timeout: timeout}
}

// Run executes every extractor against the document concurrently, each under
// its own timeout, and assembles the results in configured order so the
// candidate set is deterministic for a given document and config. A failing
// extractor is marked degraded and skipped; it never aborts the document.
// Only context cancellation from the caller stops the run early.
func (r *Runner) Run(ctx context.Context, doc *model.Document) (*model.CandidateSet, error) {
	set := &model.CandidateSet{DocHash: doc.ContentHash}
	if err := ctx.Err(); err != nil {
		return set, eris.Wrap(err, "extract: run cancelled")
	}

	candidates := make([][]model.CandidateField, len(r.extractors))
	failures := make([]error, len(r.extractors))

	g, gCtx := errgroup.WithContext(ctx)
	for i, ex := range r.extractors {
		g.Go(func() error {
			out, err := r.runOne(gCtx, ex, doc)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[i] = err
				return nil
			}
			candidates[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return set, eris.Wrap(err, "extract: run cancelled")
	}

	for i, ex := range r.extractors {
		if err := failures[i]; err != nil {
			zap.L().Warn("extractor degraded",
				zap.String("extractor", ex.Name()),
				zap.String("doc", doc.Path),
				zap.Error(err),
			)
			set.MarkDegraded(ex.Name())
			continue
		}
		set.Add(candidates[i]...)
	}

	return set, nil
}

func (r *Runner) runOne(ctx context.Context, ex Extractor, doc *model.Document) ([]model.CandidateField, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return ex.Extract(ctx, doc)
}
