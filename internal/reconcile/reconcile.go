package reconcile

import (
	"go.uber.org/zap"

	"github.com/scrkit/papermeta/internal/model"
)

// Band maps an extractor's local confidence scale onto the canonical [0,1]
// band used for cross-extractor comparison. A raw confidence r becomes
// Min + r*(Max-Min).
type Band struct {
	Min float64
	Max float64
}

// DefaultBands reflects how much each signal source is trusted before
// cross-validation. Structured TEI output ranks highest, filename guesses
// lowest.
func DefaultBands() map[string]Band {
	return map[string]Band{
		"grobid":   {Min: 0.50, Max: 0.95},
		"docinfo":  {Min: 0.40, Max: 0.90},
		"llm":      {Min: 0.10, Max: 0.70},
		"filename": {Min: 0.15, Max: 0.55},
	}
}

// Engine reconciles one document's CandidateSet into a CanonicalRecord.
// Resolution is deterministic: identical inputs produce byte-identical
// records on every run.
type Engine struct {
	priority []string
	rank     map[string]int
	bands    map[string]Band
}

// NewEngine creates an engine with the configured extractor priority order.
// Earlier-listed extractors win ties.
func NewEngine(priority []string) *Engine {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}
	return &Engine{
		priority: priority,
		rank:     rank,
		bands:    DefaultBands(),
	}
}

// WithBands overrides the confidence band mapping (used in tests).
func (e *Engine) WithBands(bands map[string]Band) *Engine {
	e.bands = bands
	return e
}

// normalizeConfidence maps a candidate's extractor-local confidence into the
// canonical band for its source. Unknown sources pass through clamped.
func (e *Engine) normalizeConfidence(c model.CandidateField) float64 {
	raw := c.Confidence
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	b, ok := e.bands[c.Source]
	if !ok {
		return raw
	}
	return b.Min + raw*(b.Max-b.Min)
}

// sourceRank returns the priority index for a source; unknown sources sort last.
func (e *Engine) sourceRank(source string) int {
	if r, ok := e.rank[source]; ok {
		return r
	}
	return len(e.priority)
}

// group is one cluster of candidates whose normalized values agree.
type group struct {
	key     string
	members []model.CandidateField
	weight  float64
	// bestRank is the best (lowest) priority rank among members.
	bestRank int
}

// Resolve reconciles all candidates for one document into a CanonicalRecord.
// Enrichment is applied separately via ApplyEnrichment.
func (e *Engine) Resolve(set *model.CandidateSet) *model.CanonicalRecord {
	rec := &model.CanonicalRecord{
		DocHash:  set.DocHash,
		Fields:   make(map[string]model.ResolvedField),
		Degraded: append([]string(nil), set.Degraded...),
	}

	for _, field := range model.Fields {
		candidates := nonEmpty(field, set.ByField(field))
		switch len(candidates) {
		case 0:
			rec.Missing = append(rec.Missing, field)
		case 1:
			// A lone candidate is accepted but cannot be cross-validated.
			rec.Fields[field] = model.ResolvedField{
				Value:      candidates[0].Value,
				Provenance: candidates[0].Source,
				Confidence: e.normalizeConfidence(candidates[0]),
				Agreement:  false,
			}
		default:
			rec.Fields[field] = e.resolveContested(field, candidates)
		}
	}

	if !rec.Has(model.FieldTitle) {
		rec.Unresolved = true
	}

	return rec
}

// resolveContested picks a winner among two or more candidates. Candidates
// are clustered by agreement within normalization tolerance; the largest
// cluster wins, with the summed normalized confidence (never the raw member
// count alone) breaking size ties, and configured extractor priority breaking
// exact ties.
func (e *Engine) resolveContested(field string, candidates []model.CandidateField) model.ResolvedField {
	var groups []*group

	for _, c := range candidates {
		key := NormalizeField(field, c.Value)
		placed := false
		for _, g := range groups {
			if g.key == key || ValuesAgree(field, g.members[0].Value, c.Value) {
				g.members = append(g.members, c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{key: key, members: []model.CandidateField{c}})
		}
	}

	for _, g := range groups {
		g.bestRank = len(e.priority) + 1
		for _, m := range g.members {
			g.weight += e.normalizeConfidence(m)
			if r := e.sourceRank(m.Source); r < g.bestRank {
				g.bestRank = r
			}
		}
	}

	winner := groups[0]
	for _, g := range groups[1:] {
		if g.beats(winner) {
			winner = g
		}
	}

	// The representative value comes from the highest-priority member so the
	// emitted spelling is stable under candidate reordering.
	best := winner.members[0]
	for _, m := range winner.members[1:] {
		if e.sourceRank(m.Source) < e.sourceRank(best.Source) {
			best = m
		}
	}

	conf := winner.weight
	if conf > 1 {
		conf = 1
	}

	return model.ResolvedField{
		Value:      best.Value,
		Provenance: best.Source,
		Confidence: conf,
		Agreement:  len(winner.members) >= 2,
	}
}

// beats orders groups: more members first, then higher summed weight, then
// better extractor priority.
func (g *group) beats(other *group) bool {
	if len(g.members) != len(other.members) {
		return len(g.members) > len(other.members)
	}
	if g.weight != other.weight {
		return g.weight > other.weight
	}
	return g.bestRank < other.bestRank
}

func nonEmpty(field string, candidates []model.CandidateField) []model.CandidateField {
	var out []model.CandidateField
	for _, c := range candidates {
		if NormalizeField(field, c.Value) != "" {
			out = append(out, c)
		}
	}
	return out
}

// ApplyEnrichment merges a registry result into a locally reconciled record.
// A registry value overrides the local one only when the match confidence
// exceeds the local confidence AND the normalized values differ; a registry
// value that agrees with the local value leaves provenance untouched. Fields
// the local pass left unset are filled outright.
func ApplyEnrichment(rec *model.CanonicalRecord, res *model.EnrichmentResult) {
	if res == nil || !res.Matched {
		return
	}

	applied := false
	for _, field := range model.Fields {
		val := res.Fields[field]
		if NormalizeField(field, val) == "" {
			continue
		}

		local, ok := rec.Fields[field]
		if !ok || NormalizeField(field, local.Value) == "" {
			rec.Fields[field] = model.ResolvedField{
				Value:      val,
				Provenance: model.ProvenanceEnrichment,
				Confidence: res.Confidence,
				Agreement:  false,
			}
			rec.Missing = removeField(rec.Missing, field)
			applied = true
			continue
		}

		if ValuesAgree(field, local.Value, val) {
			// Registry agreement is silent cross-validation, not an override.
			continue
		}

		if res.Confidence > local.Confidence {
			zap.L().Debug("enrichment override",
				zap.String("field", field),
				zap.String("local", local.Value),
				zap.String("registry", val),
				zap.Float64("local_confidence", local.Confidence),
				zap.Float64("match_confidence", res.Confidence),
			)
			rec.Fields[field] = model.ResolvedField{
				Value:      val,
				Provenance: model.ProvenanceEnrichment,
				Confidence: res.Confidence,
				Agreement:  local.Agreement,
			}
			applied = true
		}
	}

	if applied {
		rec.EnrichedBy = res.Registry
		if rec.Has(model.FieldTitle) {
			rec.Unresolved = false
		}
	}
}

func removeField(fields []string, field string) []string {
	out := fields[:0]
	for _, f := range fields {
		if f != field {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
