package codec

import "github.com/drblury/pipeflow/internal/runtime/jsoncodec"

// JSON encodes with sonic in encoding/json compatible mode.
type JSON struct{}

func (JSON) Name() string        { return "json" }
func (JSON) ContentType() string { return jsoncodec.ContentType }

func (JSON) Marshal(v any) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return jsoncodec.Unmarshal(data, v)
}
