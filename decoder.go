package genaistream

import (
	"fmt"
	"strings"
)

// MaxLineSize bounds the carry-over buffer. A line that grows past it without a
// newline fails the stream instead of growing memory without limit.
const MaxLineSize = 1 << 20

// Chunk is one unit delivered by a transport.
type Chunk struct {
	// Data holds raw body bytes, or the payload of one SSE event when Framed is set
	Data []byte

	// Framed is true when the transport already removed SSE framing (one event per chunk)
	Framed bool

	// Event is the SSE event name for framed chunks ("" and "message" carry text)
	Event string
}

// DecodeResult is what one chunk produced.
type DecodeResult struct {
	// Fragments are ready to append, in arrival order
	Fragments []string

	// Done is set when the end-of-stream sentinel was seen
	Done bool
}

// DecodeChunk is the string-level decoding contract: given the carry-over from the
// previous call and a new chunk of text, it returns the fragments of every complete
// line, the new carry-over (the trailing incomplete line), and whether the
// end-of-stream sentinel was seen. Text after the sentinel is discarded.
//
// Raw text has no lines: the chunk is a fragment on its own and carry is unused.
func DecodeChunk(v Variant, chunk, carry string) (fragments []string, rest string, done bool, err error) {
	if !v.IsValid() {
		return nil, carry, false, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
	}

	if !v.IsFramed() {
		if chunk != "" {
			fragments = []string{chunk}
		}
		return fragments, "", false, nil
	}

	buf := carry + chunk
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(buf[:i], "\r")
		buf = buf[i+1:]

		frags, end, err := decodeLine(v, line)
		fragments = append(fragments, frags...)
		if err != nil {
			return fragments, buf, false, err
		}
		if end {
			return fragments, "", true, nil
		}
	}

	if len(buf) > MaxLineSize {
		return fragments, "", false, &DecodeError{
			Variant: v,
			Line:    clip(buf),
			Err:     fmt.Errorf("line exceeds %d bytes", MaxLineSize),
		}
	}
	return fragments, buf, false, nil
}

// ChunkDecoder turns transport chunks into fragments for one session.
// It owns the session's raw buffer: undecoded UTF-8 bytes plus the incomplete line.
// It is not safe for concurrent use; a session has exactly one producer.
type ChunkDecoder struct {
	variant Variant
	text    *textDecoder
	carry   string
	done    bool
}

// NewChunkDecoder creates a decoder for the given variant.
func NewChunkDecoder(v Variant) (*ChunkDecoder, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
	}
	return &ChunkDecoder{variant: v, text: newTextDecoder()}, nil
}

// Variant returns the decoder variant.
func (d *ChunkDecoder) Variant() Variant {
	return d.variant
}

// Carry returns the incomplete trailing line held for the next chunk.
func (d *ChunkDecoder) Carry() string {
	return d.carry
}

// Done reports whether the end-of-stream sentinel has been seen.
func (d *ChunkDecoder) Done() bool {
	return d.done
}

// Decode processes one chunk. After the sentinel every further chunk is ignored.
func (d *ChunkDecoder) Decode(c Chunk) (DecodeResult, error) {
	if d.done {
		return DecodeResult{Done: true}, nil
	}

	if c.Framed {
		return d.decodeFrame(c)
	}

	frags, rest, done, err := DecodeChunk(d.variant, d.text.Decode(c.Data), d.carry)
	d.carry = rest
	d.done = done
	return DecodeResult{Fragments: frags, Done: done}, err
}

// decodeFrame handles one SSE event that the transport already de-framed.
func (d *ChunkDecoder) decodeFrame(c Chunk) (DecodeResult, error) {
	switch c.Event {
	case "", "message":
	case "error":
		return DecodeResult{}, &DecodeError{
			Variant: d.variant,
			Line:    clip(string(c.Data)),
			Err:     errBackendReported,
		}
	default:
		return DecodeResult{}, nil
	}

	payload := d.text.Decode(c.Data) + d.text.Flush()
	frags, done, err := decodePayload(d.variant, payload)
	d.done = done
	return DecodeResult{Fragments: frags, Done: done}, err
}

// Flush decodes whatever is left once the body has ended: held-back bytes and a final
// line that had no trailing newline.
func (d *ChunkDecoder) Flush() (DecodeResult, error) {
	if d.done {
		return DecodeResult{Done: true}, nil
	}

	tail := d.text.Flush()
	if !d.variant.IsFramed() {
		frags, _, _, err := DecodeChunk(d.variant, tail, "")
		return DecodeResult{Fragments: frags}, err
	}

	line := strings.TrimSuffix(d.carry+tail, "\r")
	d.carry = ""
	if line == "" {
		return DecodeResult{}, nil
	}

	frags, done, err := decodeLine(d.variant, line)
	d.done = done
	return DecodeResult{Fragments: frags, Done: done}, err
}

// Reset clears the raw buffer so the decoder can serve a fresh submission.
func (d *ChunkDecoder) Reset() {
	d.text.Reset()
	d.carry = ""
	d.done = false
}
