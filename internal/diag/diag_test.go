package diag

import (
	"path/filepath"
	"testing"

	"github.com/tealeg/xlsx/v2"

	"github.com/scrkit/papermeta/internal/model"
)

func observed() *Collector {
	c := NewCollector()

	set := &model.CandidateSet{
		DocHash: "abc",
		Candidates: []model.CandidateField{
			{Field: model.FieldTitle, Value: "AI in Nursing", Source: "grobid", Confidence: 0.9},
			{Field: model.FieldTitle, Value: "ai in nursing", Source: "llm", Confidence: 0.5},
			{Field: model.FieldYear, Value: "2018", Source: "docinfo", Confidence: 0.4},
		},
		Degraded: []string{"filename"},
	}
	rec := &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldTitle: {Value: "AI in Nursing", Provenance: "grobid", Agreement: true},
			// Registry overrode the locally extracted year.
			model.FieldYear: {Value: "2019", Provenance: model.ProvenanceEnrichment},
			// Registry filled a field nobody proposed.
			model.FieldDOI: {Value: "10.1/x", Provenance: model.ProvenanceEnrichment},
		},
		EnrichedBy: "crossref",
	}
	c.Observe(set, rec)
	return c
}

func TestCollectorCountsAgreementsAndWins(t *testing.T) {
	r := observed().Report()

	byName := make(map[string]ExtractorStats)
	for _, s := range r.Extractors {
		byName[s.Extractor] = s
	}

	grobid := byName["grobid"]
	if grobid.Proposals != 1 || grobid.Wins != 1 || grobid.Agreements != 1 {
		t.Errorf("grobid stats = %+v", grobid)
	}

	llm := byName["llm"]
	if llm.Wins != 0 || llm.Agreements != 1 {
		t.Errorf("agreeing loser should count an agreement, not a win: %+v", llm)
	}

	docinfo := byName["docinfo"]
	if docinfo.Overridden != 1 {
		t.Errorf("registry-overridden year must count against docinfo: %+v", docinfo)
	}
	if docinfo.Sole != 0 {
		t.Errorf("an overridden sole proposer contributed nothing: %+v", docinfo)
	}

	if byName["filename"].Degraded != 1 {
		t.Error("degraded extractor not counted")
	}

	if r.ResolvedFields != 3 {
		t.Errorf("resolved fields = %d", r.ResolvedFields)
	}
}

func TestCollectorDistinguishesOverrideFromUnresolved(t *testing.T) {
	yearProposal := func() *model.CandidateSet {
		return &model.CandidateSet{
			DocHash: "abc",
			Candidates: []model.CandidateField{
				{Field: model.FieldYear, Value: "2018", Source: "docinfo", Confidence: 0.4},
			},
		}
	}

	overridden := NewCollector()
	overridden.Observe(yearProposal(), &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldYear: {Value: "2019", Provenance: model.ProvenanceEnrichment},
		},
		EnrichedBy: "crossref",
	})

	unresolved := NewCollector()
	unresolved.Observe(yearProposal(), &model.CanonicalRecord{
		Fields:     map[string]model.ResolvedField{},
		Unresolved: true,
	})

	a := overridden.Report().Extractors[0]
	b := unresolved.Report().Extractors[0]
	if a.Overridden != 1 || a.OverrideRate() != 1.0 {
		t.Errorf("enrichment override must count: %+v", a)
	}
	if b.Overridden != 0 || b.OverrideRate() != 0 {
		t.Errorf("a never-resolved field is not an override: %+v", b)
	}
}

func TestCollectorCountsSoleContributions(t *testing.T) {
	c := NewCollector()
	set := &model.CandidateSet{
		DocHash: "abc",
		Candidates: []model.CandidateField{
			{Field: model.FieldTitle, Value: "AI in Nursing", Source: "grobid", Confidence: 0.9},
			{Field: model.FieldJournal, Value: "JAN", Source: "grobid", Confidence: 0.8},
			{Field: model.FieldTitle, Value: "ai in nursing", Source: "llm", Confidence: 0.5},
		},
	}
	c.Observe(set, &model.CanonicalRecord{
		Fields: map[string]model.ResolvedField{
			model.FieldTitle:   {Value: "AI in Nursing", Provenance: "grobid", Agreement: true},
			model.FieldJournal: {Value: "JAN", Provenance: "grobid"},
		},
	})

	r := c.Report()
	byName := make(map[string]ExtractorStats)
	for _, s := range r.Extractors {
		byName[s.Extractor] = s
	}
	grobid := byName["grobid"]
	if grobid.Sole != 1 {
		t.Errorf("only the journal was a sole contribution: %+v", grobid)
	}
	if rate := grobid.ContributionRate(r.ResolvedFields); rate != 0.5 {
		t.Errorf("contribution rate = %v", rate)
	}
}

func TestCollectorSeparatesOverridesFromFills(t *testing.T) {
	r := observed().Report()
	if r.Overrides != 1 {
		t.Errorf("only the contested year counts as an override, got %d", r.Overrides)
	}
	if r.Enriched != 1 {
		t.Errorf("enriched documents = %d", r.Enriched)
	}
}

func TestCollectorRates(t *testing.T) {
	s := ExtractorStats{Proposals: 4, Agreements: 3, Wins: 2, Overridden: 1, Sole: 1}
	if s.AgreementRate() != 0.75 || s.WinRate() != 0.5 {
		t.Errorf("rates = %v, %v", s.AgreementRate(), s.WinRate())
	}
	if s.OverrideRate() != 0.25 {
		t.Errorf("override rate = %v", s.OverrideRate())
	}
	if s.ContributionRate(4) != 0.25 {
		t.Errorf("contribution rate = %v", s.ContributionRate(4))
	}
	var zero ExtractorStats
	if zero.AgreementRate() != 0 || zero.WinRate() != 0 || zero.OverrideRate() != 0 {
		t.Error("zero proposals must not divide by zero")
	}
	if zero.ContributionRate(0) != 0 {
		t.Error("zero resolved fields must not divide by zero")
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagnostics.xlsx")
	if err := WriteWorkbook(path, observed().Report()); err != nil {
		t.Fatal(err)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Sheets) != 2 {
		t.Fatalf("expected summary and extractors sheets, got %d", len(f.Sheets))
	}
	if f.Sheets[0].Name != "summary" || f.Sheets[1].Name != "extractors" {
		t.Errorf("unexpected sheet names: %q, %q", f.Sheets[0].Name, f.Sheets[1].Name)
	}
	// Header plus one row per extractor in the sample.
	if got := len(f.Sheets[1].Rows); got != 5 {
		t.Errorf("extractor sheet rows = %d", got)
	}

	header := make(map[string]bool)
	for _, cell := range f.Sheets[1].Rows[0].Cells {
		header[cell.Value] = true
	}
	for _, col := range []string{"agreement_rate", "override_rate", "contribution_rate"} {
		if !header[col] {
			t.Errorf("extractor sheet missing %q column", col)
		}
	}
}
