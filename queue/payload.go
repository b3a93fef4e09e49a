package queue

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// Kind discriminates Payload's tagged union (Design Notes redesign item 2:
// replace dynamic task payloads with a schema-validated tagged union, with
// a plain map kept only at the wire boundary).
type Kind string

const (
	KindStartCapture      Kind = "start_capture"
	KindPostProcessStep   Kind = "postprocess_step"
	KindOrphanRecoveryCheck Kind = "orphan_recovery_check"
)

// Payload is the decoded, typed form every handler actually receives.
// Fields not relevant to a given Kind are left zero.
type Payload struct {
	Kind Kind

	StreamID    int64
	StreamerID  int64
	RecordingID int64
	StreamerName string

	// KindPostProcessStep
	Step string

	// KindStartCapture
	Quality   string
	CodecList []string
	ProxyURL  string
}

// StreamerKey returns the routing key the manager uses to pick a
// per-streamer queue (spec.md §4.6). It is never empty: the streamer name
// when set, else a synthetic key built from the streamer id, else one built
// from the stream id. No database lookup is made.
func (p Payload) StreamerKey() string {
	if p.StreamerName != "" {
		return p.StreamerName
	}
	if p.StreamerID != 0 {
		return fmt.Sprintf("streamer_%d", p.StreamerID)
	}
	return fmt.Sprintf("stream_%d", p.StreamID)
}

var schemas = map[Kind]*gojsonschema.Schema{}

func init() {
	must := func(k Kind, def string) {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def))
		if err != nil {
			panic(fmt.Sprintf("queue: invalid schema for %s: %v", k, err))
		}
		schemas[k] = s
	}
	must(KindStartCapture, `{
		"type": "object",
		"required": ["stream_id", "streamer_id"],
		"properties": {
			"stream_id": {"type": "integer"},
			"streamer_id": {"type": "integer"},
			"recording_id": {"type": "integer"},
			"streamer_name": {"type": "string"},
			"quality": {"type": "string"},
			"codec_list": {"type": "array", "items": {"type": "string"}},
			"proxy_url": {"type": "string"}
		}
	}`)
	must(KindPostProcessStep, `{
		"type": "object",
		"required": ["recording_id", "step"],
		"properties": {
			"recording_id": {"type": "integer"},
			"stream_id": {"type": "integer"},
			"streamer_id": {"type": "integer"},
			"streamer_name": {"type": "string"},
			"step": {"type": "string"}
		}
	}`)
	must(KindOrphanRecoveryCheck, `{
		"type": "object",
		"properties": {
			"streamer_name": {"type": "string"}
		}
	}`)
}

// DecodePayload validates raw (the wire-boundary map[string]any a REST
// handler or recovery scan produces) against kind's JSON schema, then
// decodes it into the typed Payload variant. Schema-invalid input is a
// NonRetryable error: it can never succeed on retry.
func DecodePayload(kind Kind, raw map[string]any) (Payload, error) {
	schema, ok := schemas[kind]
	if !ok {
		return Payload{}, modelerrors.NonRetryable(fmt.Sprintf("queue: unknown payload kind %q", kind), nil)
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return Payload{}, modelerrors.NonRetryable("queue: marshaling payload for validation failed", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return Payload{}, modelerrors.NonRetryable("queue: schema validation error", err)
	}
	if !result.Valid() {
		return Payload{}, modelerrors.NonRetryable(fmt.Sprintf("queue: payload failed schema for %s: %v", kind, result.Errors()), nil)
	}

	p := Payload{Kind: kind}
	if v, ok := raw["stream_id"]; ok {
		p.StreamID = toInt64(v)
	}
	if v, ok := raw["streamer_id"]; ok {
		p.StreamerID = toInt64(v)
	}
	if v, ok := raw["recording_id"]; ok {
		p.RecordingID = toInt64(v)
	}
	if v, ok := raw["streamer_name"].(string); ok {
		p.StreamerName = v
	}
	if v, ok := raw["step"].(string); ok {
		p.Step = v
	}
	if v, ok := raw["quality"].(string); ok {
		p.Quality = v
	}
	if v, ok := raw["proxy_url"].(string); ok {
		p.ProxyURL = v
	}
	if v, ok := raw["codec_list"].([]interface{}); ok {
		for _, c := range v {
			if s, ok := c.(string); ok {
				p.CodecList = append(p.CodecList, s)
			}
		}
	}
	return p, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
