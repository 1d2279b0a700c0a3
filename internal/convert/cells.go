package convert

import (
	"strings"
)

// HeaderIndex maps lowercased, cleaned column names to their position.
type HeaderIndex map[string]int

// MakeHeaderIndex indexes a header row. The first occurrence of a repeated
// column name wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Find returns the position of the first alias present in the index.
func (h HeaderIndex) Find(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := h[strings.ToLower(a)]; ok {
			return i, true
		}
	}
	return -1, false
}

// CleanCell strips spreadsheet export artifacts from a cell: surrounding
// whitespace, the Excel text formula wrapper (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// cell returns the cleaned value at i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return CleanCell(row[i])
}
