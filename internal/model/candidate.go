package model

// Metadata field keys shared by every extractor and registry.
const (
	FieldTitle    = "title"
	FieldAuthor   = "author"
	FieldYear     = "year"
	FieldDOI      = "doi"
	FieldKeywords = "author_keywords"
	FieldCountry  = "country"
	FieldJournal  = "source_journal"
	FieldStudy    = "study_type"
)

// Fields lists all metadata field keys in canonical output order.
var Fields = []string{
	FieldTitle, FieldAuthor, FieldYear, FieldDOI,
	FieldKeywords, FieldCountry, FieldJournal, FieldStudy,
}

// CandidateField is a single proposed value for one field, produced by
// exactly one extractor. Confidence is extractor-local in [0,1] and must be
// normalized before cross-extractor comparison.
type CandidateField struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// CandidateSet collects every candidate for one document. Insertion order is
// extractor execution order, which is fixed by configuration, so the set is
// deterministic for a given document and config.
type CandidateSet struct {
	DocHash    string           `json:"doc_hash"`
	Candidates []CandidateField `json:"candidates"`
	// Degraded lists extractors that failed internally for this document.
	// They are excluded from, not penalized in, agreement statistics.
	Degraded []string `json:"degraded,omitempty"`
}

// Add appends candidates from one extractor run.
func (s *CandidateSet) Add(fields ...CandidateField) {
	s.Candidates = append(s.Candidates, fields...)
}

// MarkDegraded records an extractor failure for this document.
func (s *CandidateSet) MarkDegraded(source string) {
	for _, d := range s.Degraded {
		if d == source {
			return
		}
	}
	s.Degraded = append(s.Degraded, source)
}

// ByField returns all candidates proposing a value for the given field,
// preserving insertion order.
func (s *CandidateSet) ByField(field string) []CandidateField {
	var out []CandidateField
	for _, c := range s.Candidates {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// Sources returns the distinct extractor names that contributed candidates,
// in first-appearance order.
func (s *CandidateSet) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.Candidates {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}
