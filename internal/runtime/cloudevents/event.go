// Package cloudevents builds CloudEvents 1.0 envelopes (structured JSON mode)
// around forwarded payloads.
package cloudevents

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	idspkg "github.com/drblury/pipeflow/internal/runtime/ids"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// ContentType is the media type of a structured-mode CloudEvent.
const ContentType = "application/cloudevents+json"

// Event is a CloudEvents 1.0 event. Extensions are flattened into the top-level
// object when marshalled.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	Subject         string
	DataContentType string
	// Data holds a JSON document. It is emitted verbatim under "data".
	Data json.RawMessage
	// DataBase64 holds non-JSON payloads, emitted under "data_base64".
	DataBase64 string
	Extensions map[string]any
}

// New creates an event with a ULID id and the current UTC time.
func New(eventType, source string) Event {
	return Event{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          idspkg.CreateULID(),
		Time:        time.Now().UTC(),
	}
}

// WithSubject sets the subject attribute.
func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

// WithData attaches payload. JSON content types are embedded as-is, anything
// else is base64 encoded.
func (e Event) WithData(contentType string, payload []byte) Event {
	e.DataContentType = contentType
	e.Data = nil
	e.DataBase64 = ""
	if isJSON(contentType) && jsoncodec.Valid(payload) {
		e.Data = json.RawMessage(payload)
		return e
	}
	e.DataBase64 = base64.StdEncoding.EncodeToString(payload)
	return e
}

// WithExtension sets an extension attribute.
func (e Event) WithExtension(key string, value any) Event {
	extensions := make(map[string]any, len(e.Extensions)+1)
	for k, v := range e.Extensions {
		extensions[k] = v
	}
	extensions[key] = value
	e.Extensions = extensions
	return e
}

// Extension returns the extension value as a string, or "" when unset.
func (e Event) Extension(key string) string {
	v, ok := e.Extensions[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Payload returns the raw data bytes, decoding data_base64 when needed.
func (e Event) Payload() ([]byte, error) {
	if len(e.Data) > 0 {
		return e.Data, nil
	}
	if e.DataBase64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(e.DataBase64)
}

// Validate checks the required context attributes and extension names.
func (e Event) Validate() error {
	if e.SpecVersion == "" {
		return fmt.Errorf("specversion is required")
	}
	if e.SpecVersion != SpecVersion {
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	for key := range e.Extensions {
		if !validExtensionName(key) {
			return fmt.Errorf("invalid extension name %q", key)
		}
		if _, reserved := reservedAttributes[key]; reserved {
			return fmt.Errorf("extension %q shadows a context attribute", key)
		}
	}
	return nil
}

var reservedAttributes = map[string]struct{}{
	"specversion": {}, "type": {}, "source": {}, "id": {}, "time": {},
	"subject": {}, "datacontenttype": {}, "dataschema": {}, "data": {}, "data_base64": {},
}

// MarshalJSON renders the structured JSON format.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 8+len(e.Extensions))
	for k, v := range e.Extensions {
		m[k] = v
	}
	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = e.Time.Format(time.RFC3339Nano)
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if len(e.Data) > 0 {
		m["data"] = e.Data
	}
	if e.DataBase64 != "" {
		m["data_base64"] = e.DataBase64
	}
	return jsoncodec.Marshal(m)
}

// UnmarshalJSON parses the structured JSON format. Unknown attributes become
// extensions.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return err
	}

	*e = Event{}
	strs := map[string]*string{
		"specversion":     &e.SpecVersion,
		"type":            &e.Type,
		"source":          &e.Source,
		"id":              &e.ID,
		"subject":         &e.Subject,
		"datacontenttype": &e.DataContentType,
		"data_base64":     &e.DataBase64,
	}
	for key, raw := range m {
		if dst, ok := strs[key]; ok {
			if err := jsoncodec.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			continue
		}
		switch key {
		case "time":
			var s string
			if err := jsoncodec.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("invalid time: %w", err)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return fmt.Errorf("invalid time format: %w", err)
			}
			e.Time = t
		case "data":
			e.Data = append(json.RawMessage(nil), raw...)
		case "dataschema":
		default:
			var v any
			if err := jsoncodec.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("invalid extension %q: %w", key, err)
			}
			if e.Extensions == nil {
				e.Extensions = make(map[string]any)
			}
			e.Extensions[key] = v
		}
	}
	return nil
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

func validExtensionName(name string) bool {
	if name == "" || len(name) > 20 {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
