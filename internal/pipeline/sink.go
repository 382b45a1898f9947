package pipeline

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/scrkit/papermeta/internal/model"
)

// JSONLSink writes one JSON record per line.
type JSONLSink struct {
	enc *json.Encoder
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

func (s *JSONLSink) Emit(rec *model.CanonicalRecord) error {
	return eris.Wrap(s.enc.Encode(rec), "sink: encode record")
}
