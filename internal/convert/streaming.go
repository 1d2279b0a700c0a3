package convert

// streaming.go holds the readers every text-based converter stacks in front
// of its parser:
//
//   - BOMSkippingReader: drops a leading UTF-8 byte order mark
//   - UTF8Sanitizer: replaces invalid UTF-8 with U+FFFD as it streams
//
// TextReader wires them together behind charset decoding.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader removes the UTF-8 BOM Windows tools like to prepend.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if head, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces invalid UTF-8 sequences with the replacement
// character. A multi-byte rune split across two reads of the underlying
// reader is held back until it is complete.
type UTF8Sanitizer struct {
	r       io.Reader
	chunk   []byte
	pending []byte
	out     []byte
	err     error
}

func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, chunk: make([]byte, 32<<10)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.r.Read(s.chunk)
		s.err = err

		data := s.pending
		s.pending = nil
		data = append(data, s.chunk[:n]...)
		s.out = s.sanitize(data, err != nil)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *UTF8Sanitizer) sanitize(data []byte, final bool) []byte {
	if !final && utf8.Valid(data) {
		return data
	}

	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		if data[0] < utf8.RuneSelf {
			out = append(out, data[0])
			data = data[1:]
			continue
		}
		if !final && !utf8.FullRune(data) {
			s.pending = append(s.pending, data...)
			break
		}
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
		} else {
			out = append(out, data[:size]...)
		}
		data = data[size:]
	}
	return out
}
