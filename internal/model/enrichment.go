package model

// EnrichmentResult is a registry response. It is never persisted standalone;
// matched fields are merged into the CanonicalRecord by the reconciler.
type EnrichmentResult struct {
	Matched    bool              `json:"matched"`
	Registry   string            `json:"registry"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
}
