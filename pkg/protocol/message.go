// Package protocol classifies inbound stream frames and serializes outbound payloads.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// DoneSentinel is the plain-text frame some backends send after the last chunk.
const DoneSentinel = "[DONE]"

// endMarkers are the type/event/status values that close a streamed turn.
var endMarkers = map[string]struct{}{
	"done":     {},
	"end":      {},
	"complete": {},
	"stop":     {},
	"finished": {},
	"final":    {},
}

// Frame is the classified form of one inbound frame.
type Frame struct {
	// Chunk is the text to append to the current turn. Empty means no text.
	Chunk string
	// Done reports an end-of-turn signal.
	Done bool
	// Structured is true when the frame parsed as a JSON object.
	Structured bool
}

// HasChunk reports whether the frame carries text to append.
func (f Frame) HasChunk() bool {
	return f.Chunk != ""
}

// Decode classifies a raw frame. It never fails: anything that is not a JSON
// object is handled as plain text.
func Decode(raw string) Frame {
	var payload any
	if err := sonic.UnmarshalString(raw, &payload); err != nil {
		return decodeText(raw)
	}
	record, ok := payload.(map[string]any)
	if !ok {
		return decodeText(raw)
	}
	return decodeRecord(record)
}

func decodeRecord(record map[string]any) Frame {
	f := Frame{Structured: true}

	if done, ok := record["done"].(bool); ok && done {
		f.Done = true
	} else if kind, ok := firstPresent(record, "type", "event", "status").(string); ok {
		_, f.Done = endMarkers[strings.ToLower(kind)]
	}

	f.Chunk = chunkOf(record)
	return f
}

// chunkOf returns the text of the first recognized chunk field. A string
// field that is present but empty still wins over later alternatives.
func chunkOf(record map[string]any) string {
	for _, key := range []string{"content", "text", "message"} {
		if s, ok := record[key].(string); ok {
			return s
		}
	}
	if delta, ok := record["delta"].(map[string]any); ok {
		if s, ok := delta["content"].(string); ok {
			return s
		}
	}
	if choices, ok := record["choices"].([]any); ok && len(choices) > 0 {
		return truthyText(lookup(choices[0], "delta", "content"))
	}
	return ""
}

// firstPresent returns the first non-null value among keys.
func firstPresent(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// lookup walks nested objects along path and returns the value at the end.
func lookup(v any, path ...string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

// truthyText renders a truthy scalar as text. Falsy values, objects and
// arrays yield "".
func truthyText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == 0 || math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "true"
		}
	}
	return ""
}

func decodeText(raw string) Frame {
	trimmed := strings.TrimSpace(raw)
	if trimmed == DoneSentinel || strings.EqualFold(trimmed, "done") {
		return Frame{Done: true}
	}
	return Frame{Chunk: raw}
}

// Encode serializes an outbound payload into the text sent over the wire.
// Strings are sent verbatim, protobuf messages as protojson and everything
// else as JSON.
func Encode(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case proto.Message:
		data, err := protojson.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}
		return string(data), nil
	default:
		s, err := sonic.MarshalString(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}
		return s, nil
	}
}
