package core

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureRecord is one cable line under edit.
type FeatureRecord struct {
	Index       int
	Label       string
	Coordinates orb.LineString
	Properties  Properties

	// StoreID is set once the record has been committed by the persister.
	StoreID string
	// Confirmations holds the identifiers returned by collection confirms
	// that included this record, oldest first.
	Confirmations []string
	// LastError is the most recent persistence failure, cleared on success.
	LastError string
}

// NewFeatureRecord builds a record that owns its own copy of coords.
func NewFeatureRecord(index int, label string, coords orb.LineString, props Properties) *FeatureRecord {
	return &FeatureRecord{
		Index:       index,
		Label:       label,
		Coordinates: copyLine(coords),
		Properties:  props.Clone(),
	}
}

// Committed reports whether the record has been persisted.
func (r *FeatureRecord) Committed() bool {
	return r.StoreID != ""
}

// Feature renders the record as a GeoJSON LineString feature.
func (r *FeatureRecord) Feature() *geojson.Feature {
	f := geojson.NewFeature(copyLine(r.Coordinates))
	f.Properties = geojson.Properties(r.Properties.Map())
	return f
}

func copyLine(ls orb.LineString) orb.LineString {
	if ls == nil {
		return nil
	}
	out := make(orb.LineString, len(ls))
	copy(out, ls)
	return out
}
