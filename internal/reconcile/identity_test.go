package reconcile

import (
	"testing"

	"github.com/scrkit/papermeta/internal/model"
)

func recordWith(title, author, year string) *model.CanonicalRecord {
	return &model.CanonicalRecord{
		DocHash: "cafebabecafebabe",
		Fields: map[string]model.ResolvedField{
			model.FieldTitle:  {Value: title},
			model.FieldAuthor: {Value: author},
			model.FieldYear:   {Value: year},
		},
	}
}

func TestAssignIDStableAcrossFormatting(t *testing.T) {
	a := recordWith("AI in Nursing: A Review", "Smith, Jane; Doe, John", "2019")
	b := recordWith("ai in nursing a review", "Jane Smith", "2019-01-01")

	AssignID(a)
	AssignID(b)

	if a.PaperID == "" || a.PaperID != b.PaperID {
		t.Errorf("normalized tuples must yield identical IDs: %q vs %q", a.PaperID, b.PaperID)
	}
	if a.Unresolved || b.Unresolved {
		t.Error("records with full tuples are not unresolved")
	}
}

func TestAssignIDIndependentOfProvenance(t *testing.T) {
	a := recordWith("Some Paper", "Lee, Ana", "2020")
	a.Fields[model.FieldTitle] = model.ResolvedField{Value: "Some Paper", Provenance: "grobid", Confidence: 0.9}

	b := recordWith("Some Paper", "Lee, Ana", "2020")
	b.Fields[model.FieldTitle] = model.ResolvedField{Value: "Some Paper", Provenance: "llm", Confidence: 0.2}

	AssignID(a)
	AssignID(b)
	if a.PaperID != b.PaperID {
		t.Error("IDs must not depend on which extractor won")
	}
}

func TestAssignIDFallbackWhenNoTitle(t *testing.T) {
	rec := recordWith("", "Smith, Jane", "2019")
	AssignID(rec)
	if !rec.Unresolved {
		t.Error("record without a title must be unresolved")
	}
	if rec.PaperID != "paper_cafebabecafe" {
		t.Errorf("fallback ID should come from content hash, got %q", rec.PaperID)
	}
}

func TestTupleKeyDuplicateDetection(t *testing.T) {
	a := recordWith("The Same Study", "Kim, Min-Ji", "2022")
	b := recordWith("The same study!", "Min-Ji Kim; Other, A", "2022")
	if TupleKey(a) != TupleKey(b) {
		t.Errorf("equivalent tuples must collide: %q vs %q", TupleKey(a), TupleKey(b))
	}

	c := recordWith("The Same Study", "Kim, Min-Ji", "2023")
	if TupleKey(a) == TupleKey(c) {
		t.Error("different years must not collide")
	}
}
