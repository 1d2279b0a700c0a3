package core

import (
	"path"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// SummaryEntry is the end-of-workflow view of one record.
type SummaryEntry struct {
	Index         int            `json:"index"`
	Label         string         `json:"label"`
	Committed     bool           `json:"committed"`
	StoreID       string         `json:"store_id,omitempty"`
	Confirmations []string       `json:"confirmations,omitempty"`
	Severities    SeverityCounts `json:"severities"`
	LastError     string         `json:"last_error,omitempty"`
}

// Summarize lists every record of the session with its identifiers.
func Summarize(s *EditSession) []SummaryEntry {
	out := make([]SummaryEntry, len(s.Records))
	for i, r := range s.Records {
		out[i] = SummaryEntry{
			Index:         r.Index,
			Label:         r.Label,
			Committed:     r.Committed(),
			StoreID:       r.StoreID,
			Confirmations: append([]string(nil), r.Confirmations...),
			Severities:    CountSeverities(r.Properties),
			LastError:     r.LastError,
		}
	}
	return out
}

// BuildCollection renders the given records as a new feature collection.
// The collection shares no memory with the records.
func BuildCollection(records []*FeatureRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		fc.Append(r.Feature())
	}
	return fc
}

// artifactName is the base file name for an export of label from s.
func artifactName(s *EditSession, label string) string {
	if label != "" {
		return label
	}
	name := strings.TrimSpace(s.DocumentName)
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(name, path.Ext(name))
}
