// Package pipeline drives documents from ingestion through extraction,
// reconciliation, enrichment, and output.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrkit/papermeta/internal/diag"
	"github.com/scrkit/papermeta/internal/enrich"
	"github.com/scrkit/papermeta/internal/extract"
	"github.com/scrkit/papermeta/internal/ingest"
	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/reconcile"
	"github.com/scrkit/papermeta/internal/store"
)

// Sink receives finished records in corpus order.
type Sink interface {
	Emit(rec *model.CanonicalRecord) error
}

// Options configures a corpus run.
type Options struct {
	Concurrency int
	// Resume skips documents whose content hash already has a stored record.
	Resume bool
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	source   ingest.Source
	runner   *extract.Runner
	engine   *reconcile.Engine
	enricher *enrich.Enricher
	store    store.Store
	sink     Sink
	diag     *diag.Collector
	opts     Options
}

// New creates a pipeline. enricher may be nil to run local-only; sink may be
// nil when only the store output matters.
func New(source ingest.Source, runner *extract.Runner, engine *reconcile.Engine,
	enricher *enrich.Enricher, st store.Store, sink Sink, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		source:   source,
		runner:   runner,
		engine:   engine,
		enricher: enricher,
		store:    st,
		sink:     sink,
		diag:     diag.NewCollector(),
		opts:     opts,
	}
}

// result pairs one document's record with its candidate audit trail.
type result struct {
	path string
	set  *model.CandidateSet
	rec  *model.CanonicalRecord
}

// Run processes the whole corpus and returns the diagnostics report. Every
// listed document yields exactly one record; per-document failures degrade
// the record instead of dropping it. Only context cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context, runID string) (*diag.Report, error) {
	paths, err := p.source.List(ctx)
	if err != nil {
		return nil, err
	}
	zap.L().Info("corpus listed",
		zap.String("run_id", runID),
		zap.Int("documents", len(paths)),
	)

	var processed map[string]string
	if p.opts.Resume && p.store != nil {
		processed, err = p.store.ProcessedHashes(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Workers fill results by position so downstream order matches the sorted
	// corpus listing regardless of scheduling.
	results := make([]*result, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	var skipped int
	var mu sync.Mutex

	for i, path := range paths {
		g.Go(func() error {
			res, skip, err := p.processOne(gCtx, path, processed)
			if err != nil {
				return err
			}
			if skip {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: run aborted")
	}

	if err := p.finalize(ctx, runID, results); err != nil {
		return nil, err
	}

	report := p.diag.Report()
	zap.L().Info("run complete",
		zap.String("run_id", runID),
		zap.Int("documents", report.Documents),
		zap.Int("skipped", skipped),
		zap.Int("unresolved", report.Unresolved),
		zap.Int("duplicates", report.Duplicates),
	)
	return report, nil
}

// processOne runs the per-document stages: ingest, extract, reconcile,
// enrich, assign. It only errors on context cancellation.
func (p *Pipeline) processOne(ctx context.Context, path string, processed map[string]string) (*result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	doc, err := p.source.Read(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		// The file itself is unreadable. The document still gets a record,
		// keyed by its path since no content hash exists.
		zap.L().Error("document unreadable", zap.String("path", path), zap.Error(err))
		doc = &model.Document{Path: path, ContentHash: pathHash(path)}
	}

	if id, ok := processed[doc.ContentHash]; ok {
		zap.L().Debug("resume: skipping processed document",
			zap.String("path", path),
			zap.String("paper_id", id),
		)
		return nil, true, nil
	}

	set, err := p.runner.Run(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	rec := p.engine.Resolve(set)
	rec.Path = path

	if p.enricher != nil {
		res, err := p.enricher.Enrich(ctx, rec)
		switch {
		case errors.Is(err, enrich.ErrUnavailable):
			p.diag.ObserveEnrichFailure()
			rec.Degraded = append(rec.Degraded, model.ProvenanceEnrichment)
		case err != nil:
			return nil, false, err
		default:
			reconcile.ApplyEnrichment(rec, res)
		}
	}

	reconcile.AssignID(rec)
	return &result{path: path, set: set, rec: rec}, false, nil
}

// finalize walks results in corpus order: duplicate detection, diagnostics,
// persistence, and emission of non-duplicates. Sequential so the sink sees a
// stable order and the first occurrence of a tuple is always the one by
// corpus position.
func (p *Pipeline) finalize(ctx context.Context, runID string, results []*result) error {
	seen := make(map[string]string)
	for _, res := range results {
		if res == nil {
			continue
		}
		rec := res.rec

		if key := reconcile.TupleKey(rec); key != "" {
			if first, ok := seen[key]; ok {
				rec.DuplicateOf = first
			} else {
				seen[key] = rec.PaperID
			}
		}

		p.diag.Observe(res.set, rec)

		if p.store != nil {
			if err := p.store.SaveRecord(ctx, runID, rec, res.set); err != nil {
				return err
			}
		}
		// Duplicates stay out of the primary stream; the store and the
		// diagnostics report keep them.
		if p.sink != nil && rec.DuplicateOf == "" {
			if err := p.sink.Emit(rec); err != nil {
				return eris.Wrapf(err, "pipeline: emit %s", rec.PaperID)
			}
		}
	}
	return nil
}

func pathHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}
