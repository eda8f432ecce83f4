package genaistream

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder decodes a byte stream as UTF-8 one chunk at a time.
// A multi-byte rune split across chunks is held back until its remaining bytes arrive;
// invalid sequences become U+FFFD instead of failing the stream.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     [4096]byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text that is complete after appending chunk.
func (d *textDecoder) Decode(chunk []byte) string {
	return d.run(chunk, false)
}

// Flush returns whatever is still held back, replacing a truncated rune with U+FFFD.
func (d *textDecoder) Flush() string {
	out := d.run(nil, true)
	d.t.Reset()
	return out
}

// Pending reports how many bytes are waiting for the rest of a rune.
func (d *textDecoder) Pending() int {
	return len(d.pending)
}

func (d *textDecoder) Reset() {
	d.t.Reset()
	d.pending = d.pending[:0]
}

func (d *textDecoder) run(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(append([]byte(nil), d.pending...), chunk...)
		d.pending = d.pending[:0]
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf[:], src, atEOF)
		out.Write(d.buf[:nDst])
		src = src[nSrc:]

		switch err {
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			d.pending = append(d.pending, src...)
			return out.String()
		default:
			// nil, or an error the UTF-8 decoder never reports for replaced input
			return out.String()
		}
	}
}
