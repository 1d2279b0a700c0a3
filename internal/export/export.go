// Package export renders curated feature collections as downloadable
// artifacts.
package export

import (
	"strings"
	"unicode"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// DefaultName is used when a collection has no usable name.
const DefaultName = "converted"

// All returns every built-in exporter.
func All() []core.Exporter {
	return []core.Exporter{NewGeoJSONExporter(), NewXMLExporter()}
}

// fileName builds a safe download name from a label and extension.
func fileName(name, ext string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	base := strings.Trim(b.String(), "._")
	if base == "" {
		base = DefaultName
	}
	return base + "." + ext
}
