package convert

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"file with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "lon,lat"...), "lon,lat"},
		{"file without BOM", []byte("lon,lat"), "lon,lat"},
		{"empty file", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'a'}, string([]byte{0xEF, 0xBB, 'a'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"ascii", []byte("Cable A,1"), "Cable A,1"},
		{"valid multibyte", []byte("Øresund"), "Øresund"},
		{"invalid byte", []byte{'a', 0xFF, 'b'}, "a�b"},
		{"truncated rune at end", []byte{'a', 0xC3}, "a�"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_SplitRunes(t *testing.T) {
	input := strings.Repeat("Æbleø,", 50)
	r := NewUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input)))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != input {
		t.Errorf("runes split across reads were altered: got %q", got)
	}
}

func TestDecodeReader_Latin1(t *testing.T) {
	// "Ålborg,Søndervig" in ISO-8859-1
	data := []byte{0xC5, 'l', 'b', 'o', 'r', 'g', ',', 'S', 0xF8, 'n', 'd', 'e', 'r', 'v', 'i', 'g'}

	got, err := io.ReadAll(DecodeReader(data, "iso-8859-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "Ålborg,Søndervig" {
		t.Errorf("decoded text = %q", got)
	}
}

func TestTextReader_AlwaysUTF8(t *testing.T) {
	line := []byte{0xC5, 'l', 'b', 'o', 'r', 'g', ',', 'S', 0xF8, 'n', 'd', 'e', 'r', 'v', 'i', 'g', '\n'}
	data := append([]byte{}, bytes.Repeat(line, 40)...)

	got, err := io.ReadAll(TextReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.Valid(got) {
		t.Error("TextReader produced invalid UTF-8")
	}
	if !strings.Contains(string(got), "lborg,S") {
		t.Errorf("ASCII content lost: %q", got[:20])
	}
}

func TestDetectCharset_UTF8(t *testing.T) {
	for _, in := range [][]byte{[]byte("plain ascii"), []byte("Ålborg"), append([]byte{0xEF, 0xBB, 0xBF}, 'x')} {
		if got := DetectCharset(in); got != "utf-8" {
			t.Errorf("DetectCharset(%q) = %q, want utf-8", in, got)
		}
	}
}
