package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/scrkit/papermeta/internal/model"
)

// identityBands makes normalized confidence equal to raw confidence so
// weighted-vote arithmetic is easy to follow in tests.
func identityBands() map[string]Band {
	return map[string]Band{
		"grobid":   {Min: 0, Max: 1},
		"docinfo":  {Min: 0, Max: 1},
		"filename": {Min: 0, Max: 1},
		"llm":      {Min: 0, Max: 1},
	}
}

func testEngine() *Engine {
	return NewEngine([]string{"grobid", "docinfo", "filename", "llm"}).WithBands(identityBands())
}

func TestResolveWeightedGroupBeatsSingleHighConfidence(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(
		model.CandidateField{Field: model.FieldAuthor, Value: "Smith", Source: "docinfo", Confidence: 0.4},
		model.CandidateField{Field: model.FieldAuthor, Value: "Smith", Source: "filename", Confidence: 0.3},
		model.CandidateField{Field: model.FieldAuthor, Value: "Smyth", Source: "grobid", Confidence: 0.9},
	)

	rec := testEngine().Resolve(set)

	got := rec.Fields[model.FieldAuthor]
	if got.Value != "Smith" {
		t.Fatalf("expected two-member group to win, got %q", got.Value)
	}
	if !got.Agreement {
		t.Error("winning multi-member group should set agreement")
	}
	if got.Provenance != "docinfo" {
		t.Errorf("provenance should be the highest-priority group member, got %q", got.Provenance)
	}
	// Group weight 0.4+0.3 capped below 1.
	if got.Confidence != 0.7 {
		t.Errorf("expected summed confidence 0.7, got %v", got.Confidence)
	}
}

func TestResolveSameSizeGroupsWeightWins(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(
		model.CandidateField{Field: model.FieldJournal, Value: "Journal of Nursing", Source: "llm", Confidence: 0.3},
		model.CandidateField{Field: model.FieldJournal, Value: "Journal of Nursing", Source: "filename", Confidence: 0.2},
		model.CandidateField{Field: model.FieldJournal, Value: "J Nurs", Source: "grobid", Confidence: 0.9},
		model.CandidateField{Field: model.FieldJournal, Value: "J Nurs", Source: "docinfo", Confidence: 0.8},
	)

	rec := testEngine().Resolve(set)
	if got := rec.Fields[model.FieldJournal].Value; got != "J Nurs" {
		t.Errorf("equal-size groups should be ranked by summed confidence, got %q", got)
	}
}

func TestResolveTieBrokenByPriority(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(
		model.CandidateField{Field: model.FieldStudy, Value: "review", Source: "llm", Confidence: 0.5},
		model.CandidateField{Field: model.FieldStudy, Value: "rct", Source: "docinfo", Confidence: 0.5},
	)

	rec := testEngine().Resolve(set)
	// Identical size and weight: docinfo is listed earlier in priority.
	if got := rec.Fields[model.FieldStudy].Value; got != "rct" {
		t.Errorf("tie should go to higher-priority extractor, got %q", got)
	}
}

func TestResolveSingleCandidateNoAgreement(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(model.CandidateField{Field: model.FieldTitle, Value: "Some Title Here", Source: "grobid", Confidence: 0.8})

	rec := testEngine().Resolve(set)
	got := rec.Fields[model.FieldTitle]
	if got.Agreement {
		t.Error("lone candidate cannot have agreement")
	}
	if got.Confidence != 0.8 {
		t.Errorf("lone candidate keeps its own confidence, got %v", got.Confidence)
	}
}

func TestResolveMissingFieldsNeverFail(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(model.CandidateField{Field: model.FieldTitle, Value: "A Title That Works", Source: "grobid", Confidence: 0.9})

	rec := testEngine().Resolve(set)
	if rec.Unresolved {
		t.Error("record with a title is not unresolved")
	}
	found := false
	for _, f := range rec.Missing {
		if f == model.FieldDOI {
			found = true
		}
	}
	if !found {
		t.Error("doi should be listed in missing fields")
	}
}

func TestResolveEmptySetUnresolved(t *testing.T) {
	rec := testEngine().Resolve(&model.CandidateSet{DocHash: "deadbeefdeadbeef"})
	if !rec.Unresolved {
		t.Fatal("empty candidate set must flag the record unresolved")
	}
	AssignID(rec)
	if rec.PaperID != "paper_deadbeefdead" {
		t.Errorf("fallback ID should derive from content hash, got %q", rec.PaperID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	set := &model.CandidateSet{DocHash: "abc"}
	set.Add(
		model.CandidateField{Field: model.FieldTitle, Value: "AI in Nursing", Source: "grobid", Confidence: 0.9},
		model.CandidateField{Field: model.FieldTitle, Value: "Ai in nursing", Source: "llm", Confidence: 0.5},
		model.CandidateField{Field: model.FieldYear, Value: "2021", Source: "docinfo", Confidence: 0.7},
		model.CandidateField{Field: model.FieldDOI, Value: "10.1000/xyz", Source: "llm", Confidence: 0.6},
	)

	e := testEngine()
	a, _ := json.Marshal(e.Resolve(set))
	b, _ := json.Marshal(e.Resolve(set))
	if string(a) != string(b) {
		t.Errorf("reconciliation must be byte-for-byte idempotent:\n%s\n%s", a, b)
	}
}

func TestApplyEnrichmentOverridesOnConflict(t *testing.T) {
	rec := &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldYear: {Value: "2018", Provenance: "llm", Confidence: 0.5},
		},
	}

	ApplyEnrichment(rec, &model.EnrichmentResult{
		Matched:    true,
		Registry:   "crossref",
		Confidence: 0.9,
		Fields:     map[string]string{model.FieldYear: "2019"},
	})

	got := rec.Fields[model.FieldYear]
	if got.Value != "2019" {
		t.Fatalf("conflicting higher-confidence registry value must override, got %q", got.Value)
	}
	if got.Provenance != model.ProvenanceEnrichment {
		t.Errorf("override must switch provenance, got %q", got.Provenance)
	}
	if rec.EnrichedBy != "crossref" {
		t.Errorf("record should name the registry, got %q", rec.EnrichedBy)
	}
}

func TestApplyEnrichmentAgreementKeepsProvenance(t *testing.T) {
	rec := &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldTitle: {Value: "AI in Nursing Practice Today", Provenance: "grobid", Confidence: 0.6},
		},
	}

	ApplyEnrichment(rec, &model.EnrichmentResult{
		Matched:    true,
		Registry:   "crossref",
		Confidence: 0.9,
		Fields:     map[string]string{model.FieldTitle: "AI in nursing practice today"},
	})

	got := rec.Fields[model.FieldTitle]
	if got.Provenance != "grobid" {
		t.Errorf("agreeing registry value must not steal provenance, got %q", got.Provenance)
	}
	if got.Value != "AI in Nursing Practice Today" {
		t.Errorf("local value must stand, got %q", got.Value)
	}
}

func TestApplyEnrichmentLowerConfidenceStands(t *testing.T) {
	rec := &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldYear: {Value: "2018", Provenance: "grobid", Confidence: 0.95},
		},
	}

	ApplyEnrichment(rec, &model.EnrichmentResult{
		Matched:    true,
		Registry:   "openalex",
		Confidence: 0.7,
		Fields:     map[string]string{model.FieldYear: "2019"},
	})

	if got := rec.Fields[model.FieldYear]; got.Value != "2018" || got.Provenance != "grobid" {
		t.Errorf("weaker registry match must not override, got %+v", got)
	}
}

func TestApplyEnrichmentFillsMissing(t *testing.T) {
	rec := &model.CanonicalRecord{
		Fields:  map[string]model.ResolvedField{},
		Missing: []string{model.FieldDOI},
	}

	ApplyEnrichment(rec, &model.EnrichmentResult{
		Matched:    true,
		Registry:   "crossref",
		Confidence: 0.8,
		Fields:     map[string]string{model.FieldDOI: "10.1000/xyz"},
	})

	if rec.Get(model.FieldDOI) != "10.1000/xyz" {
		t.Fatal("missing field should be filled from registry")
	}
	for _, f := range rec.Missing {
		if f == model.FieldDOI {
			t.Error("filled field must leave the missing list")
		}
	}
}
