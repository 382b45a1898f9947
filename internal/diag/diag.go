// Package diag accumulates per-extractor agreement statistics across a run.
// The numbers answer one question: which extractors earn their keep.
package diag

import (
	"sort"
	"sync"

	"github.com/scrkit/papermeta/internal/model"
	"github.com/scrkit/papermeta/internal/reconcile"
)

// ExtractorStats tallies one extractor's behavior over a run.
type ExtractorStats struct {
	Extractor string `json:"extractor"`
	// Proposals counts candidate fields contributed.
	Proposals int `json:"proposals"`
	// Wins counts fields where this extractor's value became canonical.
	Wins int `json:"wins"`
	// Agreements counts proposals that agreed with the final value, whether
	// or not this extractor won the field.
	Agreements int `json:"agreements"`
	// Overridden counts proposals for fields that resolved to a value this
	// extractor disagreed with, whether the majority or a registry won.
	Overridden int `json:"overridden"`
	// Sole counts canonical fields this extractor supplied as the only
	// proposer.
	Sole int `json:"sole"`
	// Degraded counts documents where the extractor failed outright.
	Degraded int `json:"degraded"`
}

// AgreementRate is Agreements/Proposals, 0 when nothing was proposed.
func (s ExtractorStats) AgreementRate() float64 {
	if s.Proposals == 0 {
		return 0
	}
	return float64(s.Agreements) / float64(s.Proposals)
}

// WinRate is Wins/Proposals, 0 when nothing was proposed.
func (s ExtractorStats) WinRate() float64 {
	if s.Proposals == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Proposals)
}

// OverrideRate is Overridden/Proposals, 0 when nothing was proposed.
func (s ExtractorStats) OverrideRate() float64 {
	if s.Proposals == 0 {
		return 0
	}
	return float64(s.Overridden) / float64(s.Proposals)
}

// ContributionRate is the fraction of the run's canonical fields this
// extractor supplied as the only proposer.
func (s ExtractorStats) ContributionRate(resolvedFields int) float64 {
	if resolvedFields == 0 {
		return 0
	}
	return float64(s.Sole) / float64(resolvedFields)
}

// Report is a finished run's diagnostic summary.
type Report struct {
	Documents    int `json:"documents"`
	Unresolved   int `json:"unresolved"`
	Duplicates   int `json:"duplicates"`
	Enriched     int `json:"enriched"`
	Overrides    int `json:"overrides"`
	EnrichFailed int `json:"enrich_failed"`
	// ResolvedFields counts canonical fields across the run, the
	// denominator for per-extractor contribution rates.
	ResolvedFields int `json:"resolved_fields"`

	Extractors []ExtractorStats `json:"extractors"`
}

// Collector accumulates statistics. Safe for concurrent use by pipeline
// workers.
type Collector struct {
	mu             sync.Mutex
	docs           int
	unresolved     int
	duplicates     int
	enriched       int
	overrides      int
	enrichFail     int
	resolvedFields int
	extractors     map[string]*ExtractorStats
}

func NewCollector() *Collector {
	return &Collector{extractors: make(map[string]*ExtractorStats)}
}

func (c *Collector) stats(name string) *ExtractorStats {
	s, ok := c.extractors[name]
	if !ok {
		s = &ExtractorStats{Extractor: name}
		c.extractors[name] = s
	}
	return s
}

// Observe folds one finished document into the run statistics. rec holds the
// final state after enrichment; set holds the raw candidates that produced it.
func (c *Collector) Observe(set *model.CandidateSet, rec *model.CanonicalRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs++
	if rec.Unresolved {
		c.unresolved++
	}
	if rec.DuplicateOf != "" {
		c.duplicates++
	}
	if rec.EnrichedBy != "" {
		c.enriched++
	}

	c.resolvedFields += len(rec.Fields)

	for _, name := range set.Degraded {
		c.stats(name).Degraded++
	}

	proposers := make(map[string]int)
	for _, cand := range set.Candidates {
		proposers[cand.Field]++
	}

	for _, cand := range set.Candidates {
		s := c.stats(cand.Source)
		s.Proposals++

		final, ok := rec.Fields[cand.Field]
		if !ok {
			// Never resolved: not an override, not an agreement.
			continue
		}
		if reconcile.ValuesAgree(cand.Field, cand.Value, final.Value) {
			s.Agreements++
			if final.Provenance == cand.Source {
				s.Wins++
				if proposers[cand.Field] == 1 {
					s.Sole++
				}
			}
			continue
		}
		// The field resolved against this proposal, whether a majority of
		// extractors or an enrichment registry supplied the winner.
		s.Overridden++
	}

	// An enrichment-owned field that some extractor also proposed was an
	// override; one nobody proposed was a plain fill.
	for field, f := range rec.Fields {
		if f.Provenance == model.ProvenanceEnrichment && proposers[field] > 0 {
			c.overrides++
		}
	}
}

// ObserveEnrichFailure records a document for which no registry answered.
func (c *Collector) ObserveEnrichFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enrichFail++
}

// Report snapshots the accumulated statistics with extractors sorted by name.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Report{
		Documents:      c.docs,
		Unresolved:     c.unresolved,
		Duplicates:     c.duplicates,
		Enriched:       c.enriched,
		Overrides:      c.overrides,
		EnrichFailed:   c.enrichFail,
		ResolvedFields: c.resolvedFields,
	}
	for _, s := range c.extractors {
		r.Extractors = append(r.Extractors, *s)
	}
	sort.Slice(r.Extractors, func(i, j int) bool {
		return r.Extractors[i].Extractor < r.Extractors[j].Extractor
	})
	return r
}
