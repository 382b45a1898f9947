package model

// ProvenanceEnrichment is the provenance value used when an external registry
// overrode the locally reconciled value for a field.
const ProvenanceEnrichment = "enrichment"

// ResolvedField is the outcome of reconciling one field.
type ResolvedField struct {
	Value      string  `json:"value"`
	Provenance string  `json:"provenance"`
	Confidence float64 `json:"confidence"`
	// Agreement is true when at least two extractors proposed values that
	// matched within normalization tolerance.
	Agreement bool `json:"agreement"`
}

// CanonicalRecord is the single reconciled metadata record for a document.
// It is mutated only during reconciliation and enrichment, then frozen.
type CanonicalRecord struct {
	PaperID     string                   `json:"paper_id"`
	DocHash     string                   `json:"doc_hash"`
	Path        string                   `json:"path"`
	Fields      map[string]ResolvedField `json:"fields"`
	Missing     []string                 `json:"missing_fields,omitempty"`
	Degraded    []string                 `json:"degraded_extractors,omitempty"`
	Unresolved  bool                     `json:"unresolved,omitempty"`
	DuplicateOf string                   `json:"duplicate_of,omitempty"`
	// EnrichedBy names the registry that supplied overrides, if any.
	EnrichedBy string `json:"enriched_by,omitempty"`
}

// Get returns the resolved value for a field, or "" when unset.
func (r *CanonicalRecord) Get(field string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[field].Value
}

// Has reports whether the field was resolved to a non-empty value.
func (r *CanonicalRecord) Has(field string) bool {
	return r.Get(field) != ""
}
