// Package enrich cross-checks reconciled records against external
// bibliographic registries.
package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/reconcile"
)

// Registry is one external bibliographic source. Implementations retry
// transient failures internally; an error return means the registry is
// unavailable for this record.
type Registry interface {
	Name() string
	LookupDOI(ctx context.Context, doi string) (*model.EnrichmentResult, error)
	// SearchTitle queries by title; a non-empty year constrains the search
	// to that publication year.
	SearchTitle(ctx context.Context, title, year string) (*model.EnrichmentResult, error)
}

// ErrUnavailable reports that every configured registry failed before giving
// a definitive answer. The record still completes locally; callers record the
// degradation and move on.
var ErrUnavailable = eris.New("enrich: all registries unavailable")

// Enricher walks the configured registries in order until one produces a
// confident match.
type Enricher struct {
	registries    []Registry
	minConfidence float64
}

// NewEnricher creates an enricher over the given registries. minConfidence
// demotes weak matches to not-found so a loosely similar title cannot
// override local extraction.
func NewEnricher(registries []Registry, minConfidence float64) *Enricher {
	return &Enricher{registries: registries, minConfidence: minConfidence}
}

// Enrich looks the record up by DOI when one was extracted, falling back to
// title search constrained by the extracted year, per registry in configured
// order. The first confident match wins; later registries are not consulted.
// It returns ErrUnavailable only when every registry failed outright.
func (e *Enricher) Enrich(ctx context.Context, rec *model.CanonicalRecord) (*model.EnrichmentResult, error) {
	doi := reconcile.NormalizeDOI(rec.Get(model.FieldDOI))
	title := rec.Get(model.FieldTitle)
	year := reconcile.NormalizeField(model.FieldYear, rec.Get(model.FieldYear))
	if doi == "" && title == "" {
		return &model.EnrichmentResult{}, nil
	}

	failures := 0
	for _, reg := range e.registries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "enrich: cancelled")
		}

		res, err := e.tryRegistry(ctx, reg, doi, title, year)
		if err != nil {
			zap.L().Warn("registry unavailable",
				zap.String("registry", reg.Name()),
				zap.Error(err),
			)
			failures++
			continue
		}
		if res.Matched {
			zap.L().Debug("registry match",
				zap.String("registry", reg.Name()),
				zap.Float64("confidence", res.Confidence),
			)
			return res, nil
		}
	}

	if failures == len(e.registries) && failures > 0 {
		return nil, ErrUnavailable
	}
	return &model.EnrichmentResult{}, nil
}

// tryRegistry runs one registry's lookup ladder: DOI first, year-constrained
// title search second. Matches under the confidence floor count as not-found.
func (e *Enricher) tryRegistry(ctx context.Context, reg Registry, doi, title, year string) (*model.EnrichmentResult, error) {
	if doi != "" {
		res, err := reg.LookupDOI(ctx, doi)
		if err != nil {
			return nil, err
		}
		if e.accept(res) {
			return res, nil
		}
	}
	if title != "" {
		res, err := reg.SearchTitle(ctx, title, year)
		if err != nil {
			return nil, err
		}
		if e.accept(res) {
			return res, nil
		}
	}
	return &model.EnrichmentResult{Registry: reg.Name()}, nil
}

func (e *Enricher) accept(res *model.EnrichmentResult) bool {
	return res != nil && res.Matched && res.Confidence >= e.minConfidence
}
