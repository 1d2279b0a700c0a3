package convert

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// sniffLimit bounds how much of a document is handed to the detector.
const sniffLimit = 32 << 10

// DetectCharset guesses the text encoding of data. Valid UTF-8, with or
// without a BOM, never reaches the detector.
func DetectCharset(data []byte) string {
	if bytes.HasPrefix(data, utf8BOM) || utf8.Valid(data) {
		return "utf-8"
	}

	sample := data
	if len(sample) > sniffLimit {
		sample = sample[:sniffLimit]
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Charset == "" {
		return "utf-8"
	}
	return strings.ToLower(res.Charset)
}

// DecodeReader yields UTF-8 text for data stored in charset. Unknown
// charsets pass the bytes through untouched.
func DecodeReader(data []byte, charset string) io.Reader {
	r := bytes.NewReader(data)
	if charset == "" || charset == "utf-8" {
		return r
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// TextReader decodes, strips the BOM and sanitizes a user-supplied text
// document.
func TextReader(data []byte) io.Reader {
	decoded := DecodeReader(data, DetectCharset(data))
	return NewUTF8Sanitizer(NewBOMSkippingReader(decoded))
}

// CharsetReader satisfies xml.Decoder.CharsetReader for documents that
// declare a non UTF-8 encoding.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
