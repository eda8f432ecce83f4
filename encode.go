package genaistream

import (
	"github.com/tidwall/sjson"
)

// Wire templates for the structured variants. Values are filled in with sjson.
const (
	patchTemplate          = `{"ops":[{"op":"add","path":"/logs/HuggingFaceEndpoint/streamed_output/-","value":""}]}`
	chatCompletionTemplate = `{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":""}}]}`
)

// EncodeFragment renders one fragment the way a backend of variant v puts it on the
// wire, including SSE framing. It is the inverse of decoding and serves mocks and tests.
// Fragments for line-framed variants must not contain newlines.
func EncodeFragment(v Variant, fragment string) []byte {
	switch v {
	case VariantPlainSSE:
		return sseFrame([]byte(fragment))

	case VariantJSONPatchSSE:
		payload, _ := sjson.SetBytes([]byte(patchTemplate), "ops.0.value", fragment)
		return sseFrame(payload)

	case VariantChatCompletionSSE:
		payload, _ := sjson.SetBytes([]byte(chatCompletionTemplate), "choices.0.delta.content", fragment)
		return sseFrame(payload)

	case VariantByteStringSSE:
		return sseFrame([]byte("b'" + fragment + "'"))

	default:
		return []byte(fragment)
	}
}

// EncodeDone renders the end-of-stream marker of v. Raw text has none: the body just ends.
func EncodeDone(v Variant) []byte {
	switch v {
	case VariantJSONPatchSSE:
		// the backend closes the leaf before the sentinel
		payload, _ := sjson.SetBytes([]byte(patchTemplate), "ops.0.value", EndOfSequence)
		return append(sseFrame(payload), sseFrame([]byte(DoneSentinel))...)
	case VariantPlainSSE, VariantChatCompletionSSE, VariantByteStringSSE:
		return sseFrame([]byte(DoneSentinel))
	default:
		return nil
	}
}

func sseFrame(payload []byte) []byte {
	out := make([]byte, 0, len(dataPrefix)+len(payload)+3)
	out = append(out, dataPrefix...)
	out = append(out, ' ')
	out = append(out, payload...)
	return append(out, '\n', '\n')
}
