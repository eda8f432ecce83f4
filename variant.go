package genaistream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Variant selects how chunk payloads turn into text fragments.
// The set is closed; every backend family maps onto exactly one of these.
type Variant string

const (
	// VariantPlainSSE: `data:` lines carry text; `[DONE]` ends the stream.
	VariantPlainSSE Variant = "plain_sse"

	// VariantJSONPatchSSE: `data:` lines carry {"ops":[...]} records; only "add" ops on the
	// streamed_output leaf contribute. Malformed JSON fails the whole stream.
	VariantJSONPatchSSE Variant = "json_patch_sse"

	// VariantChatCompletionSSE: `data:` lines carry OpenAI-compatible chat completion chunks.
	VariantChatCompletionSSE Variant = "chat_completion_sse"

	// VariantByteStringSSE: lines carry the backend's byte-string repr (b'...'), cleaned
	// literally before use.
	VariantByteStringSSE Variant = "byte_string_sse"

	// VariantRawText: no framing, the body is plain UTF-8 text.
	VariantRawText Variant = "raw_text"
)

// Framing constants shared by the SSE variants.
const (
	DoneSentinel        = "[DONE]"
	EndOfSequence       = "</s>"
	StreamedOutputPath  = "/streamed_output/-"
	dataPrefix          = "data:"
	maxReportedLineSize = 256
)

// Variants lists every supported variant.
func Variants() []Variant {
	return []Variant{
		VariantPlainSSE,
		VariantJSONPatchSSE,
		VariantChatCompletionSSE,
		VariantByteStringSSE,
		VariantRawText,
	}
}

// ParseVariant validates a variant name.
func ParseVariant(name string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(name)))
	if v.IsValid() {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// IsValid returns true if v is one of the supported variants.
func (v Variant) IsValid() bool {
	switch v {
	case VariantPlainSSE, VariantJSONPatchSSE, VariantChatCompletionSSE, VariantByteStringSSE, VariantRawText:
		return true
	default:
		return false
	}
}

// IsFramed returns true if the variant expects line framing (everything but raw text).
func (v Variant) IsFramed() bool {
	return v != VariantRawText
}

// String returns the string representation of the variant
func (v Variant) String() string {
	return string(v)
}

// decodeLine turns one complete line of a fetch-streamed body into fragments.
// done reports the end-of-stream sentinel.
func decodeLine(v Variant, line string) (fragments []string, done bool, err error) {
	if v == VariantByteStringSSE {
		if strings.TrimSpace(line) == "" {
			return nil, false, nil
		}
		return decodePayload(v, line)
	}

	payload, ok := stripDataPrefix(line)
	if !ok {
		// comments, event:/id:/retry: fields and blank separators carry no text
		return nil, false, nil
	}
	return decodePayload(v, payload)
}

// decodePayload turns one de-framed SSE payload into fragments.
func decodePayload(v Variant, payload string) ([]string, bool, error) {
	switch v {
	case VariantPlainSSE:
		if payload == DoneSentinel {
			return nil, true, nil
		}
		if payload == "" {
			return nil, false, nil
		}
		return []string{payload}, false, nil

	case VariantJSONPatchSSE:
		if payload == DoneSentinel {
			return nil, true, nil
		}
		frags, err := decodeJSONPatch(payload)
		if err != nil {
			return nil, false, &DecodeError{Variant: v, Line: clip(payload), Err: err}
		}
		return frags, false, nil

	case VariantChatCompletionSSE:
		if payload == DoneSentinel {
			return nil, true, nil
		}
		return decodeChatCompletion(payload)

	case VariantByteStringSSE:
		cleaned := CleanByteStringLine(payload)
		if cleaned == DoneSentinel {
			return nil, true, nil
		}
		if cleaned == "" {
			return nil, false, nil
		}
		return []string{cleaned}, false, nil

	case VariantRawText:
		if payload == "" {
			return nil, false, nil
		}
		return []string{payload}, false, nil

	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
	}
}

// stripDataPrefix removes the `data:` field name and one optional space after it.
func stripDataPrefix(line string) (string, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := line[len(dataPrefix):]
	if strings.HasPrefix(payload, " ") {
		payload = payload[1:]
	}
	return payload, true
}

// patchEnvelope is the JSON-patch record list streamed by the FAQ generator backend.
type patchEnvelope struct {
	Ops []patchOp `json:"ops"`
}

type patchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// decodeJSONPatch extracts the text added to the streamed_output leaf.
func decodeJSONPatch(payload string) ([]string, error) {
	var env patchEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, err
	}

	var frags []string
	for _, op := range env.Ops {
		if op.Op != "add" {
			continue
		}
		if !strings.HasSuffix(op.Path, StreamedOutputPath) || len(op.Path) <= len(StreamedOutputPath) {
			continue
		}
		var value string
		if err := json.Unmarshal(op.Value, &value); err != nil {
			// structured values (e.g. the final output object) are not text
			continue
		}
		if value == EndOfSequence || value == "" {
			continue
		}
		frags = append(frags, value)
	}
	return frags, nil
}

var errBackendReported = errors.New("backend reported an error")

// decodeChatCompletion reads choices[0].delta.content from an OpenAI-compatible chunk.
// Unparseable payloads are keep-alives and are dropped; an error object is fatal.
func decodeChatCompletion(payload string) ([]string, bool, error) {
	if !gjson.Valid(payload) {
		return nil, false, nil
	}

	if msg := gjson.Get(payload, "error.message"); msg.Exists() {
		return nil, false, &DecodeError{
			Variant: VariantChatCompletionSSE,
			Line:    clip(payload),
			Err:     fmt.Errorf("%w: %s", errBackendReported, msg.String()),
		}
	}

	content := gjson.Get(payload, "choices.0.delta.content")
	if content.Type != gjson.String || content.Str == "" {
		return nil, false, nil
	}
	return []string{content.Str}, false, nil
}

// CleanByteStringLine undoes the DocSum backend's byte-string framing:
// a leading "data: ", then a leading "b'", then any trailing quote or apostrophe
// characters are removed. The rules are literal and applied once each, in order.
func CleanByteStringLine(line string) string {
	line = strings.TrimPrefix(line, "data: ")
	line = strings.TrimPrefix(line, "b'")
	return strings.TrimRight(line, `'"`)
}

func clip(s string) string {
	if len(s) <= maxReportedLineSize {
		return s
	}
	return s[:maxReportedLineSize] + "..."
}
