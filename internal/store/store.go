// Package store persists committed cable records and confirmed collections.
//
// Two backends implement Store: PostgreSQL through pgxpool and an embedded
// SQLite database through modernc.org/sqlite. CachedStore layers a Redis
// cache over either one for the cable listing.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// Store is the persistence collaborator used by the workflow and the
// cable listing endpoint.
type Store interface {
	core.RecordPersister
	core.CollectionStore

	// ListCables returns every feature of every confirmed collection that
	// matches f, in confirmation order.
	ListCables(ctx context.Context, f Filter) ([]*geojson.Feature, error)

	// Record returns a persisted record by store ID.
	Record(ctx context.Context, id string) (StoredRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// StoredRecord is one row of cable_records.
type StoredRecord struct {
	ID         string
	SessionID  string
	Label      string
	Properties map[string]any
	Geometry   orb.LineString
	CreatedAt  time.Time
}

// ErrNotFound is returned by Record for unknown IDs.
var ErrNotFound = fmt.Errorf("record not found")

// Filter narrows the cable listing. Every non-empty field must appear,
// case-insensitively, as a substring of the matching property.
type Filter struct {
	Name            string
	Status          string
	Condition       string
	CategoryOfCable string
}

func (f Filter) normalized() Filter {
	return Filter{
		Name:            strings.ToLower(strings.TrimSpace(f.Name)),
		Status:          strings.ToLower(strings.TrimSpace(f.Status)),
		Condition:       strings.ToLower(strings.TrimSpace(f.Condition)),
		CategoryOfCable: strings.ToLower(strings.TrimSpace(f.CategoryOfCable)),
	}
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.normalized() == Filter{}
}

// Key is a stable cache key fragment for the filter.
func (f Filter) Key() string {
	n := f.normalized()
	return strings.Join([]string{n.Name, n.Status, n.Condition, n.CategoryOfCable}, "|")
}

// Match reports whether a feature's properties satisfy the filter.
func (f Filter) Match(props geojson.Properties) bool {
	n := f.normalized()
	checks := [...]struct {
		want  string
		field core.FieldID
	}{
		{n.Name, core.FieldName},
		{n.Status, core.FieldStatus},
		{n.Condition, core.FieldCondition},
		{n.CategoryOfCable, core.FieldCategoryOfCable},
	}
	for _, c := range checks {
		if c.want == "" {
			continue
		}
		got, _ := props[c.field.String()].(string)
		if !strings.Contains(strings.ToLower(got), c.want) {
			return false
		}
	}
	return true
}

// appendMatching decodes one stored collection and appends the features
// that pass the filter.
func appendMatching(out []*geojson.Feature, raw []byte, f Filter) ([]*geojson.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return out, fmt.Errorf("decode stored collection: %w", err)
	}
	for _, feat := range fc.Features {
		if f.Match(feat.Properties) {
			out = append(out, feat)
		}
	}
	return out, nil
}

// encodeRecord renders the JSON columns of a persisted record.
func encodeRecord(req core.PersistRequest) (props, geom []byte, err error) {
	props, err = json.Marshal(req.Properties)
	if err != nil {
		return nil, nil, fmt.Errorf("encode properties: %w", err)
	}
	geom, err = geojson.NewGeometry(req.Coordinates).MarshalJSON()
	if err != nil {
		return nil, nil, fmt.Errorf("encode geometry: %w", err)
	}
	return props, geom, nil
}

func decodeRecord(rec *StoredRecord, props, geom []byte) error {
	if err := json.Unmarshal(props, &rec.Properties); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}
	g, err := geojson.UnmarshalGeometry(geom)
	if err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}
	line, ok := g.Geometry().(orb.LineString)
	if !ok {
		return fmt.Errorf("decode geometry: stored %s, want LineString", g.Geometry().GeoJSONType())
	}
	rec.Geometry = line
	return nil
}
