package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// GeoJSONConverter accepts a FeatureCollection or a bare Feature. A
// MultiLineString feature is split into one feature per member so each
// line can be edited on its own. Non-line geometries are passed through and
// ignored later by the edit session.
type GeoJSONConverter struct{}

func NewGeoJSONConverter() *GeoJSONConverter {
	return &GeoJSONConverter{}
}

func (c *GeoJSONConverter) ConvertCollection(ctx context.Context, doc core.Document) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(TextReader(doc.Data))
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var in *geojson.FeatureCollection
	switch probe.Type {
	case "FeatureCollection":
		in, err = geojson.UnmarshalFeatureCollection(data)
	case "Feature":
		var f *geojson.Feature
		f, err = geojson.UnmarshalFeature(data)
		if err == nil {
			in = geojson.NewFeatureCollection()
			in.Append(f)
		}
	default:
		return nil, errors.New("parse geojson: expected a Feature or FeatureCollection")
	}
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	out := geojson.NewFeatureCollection()
	for _, f := range in.Features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f == nil || f.Geometry == nil {
			continue
		}
		mls, ok := f.Geometry.(orb.MultiLineString)
		if !ok || len(mls) < 2 {
			out.Append(f)
			continue
		}
		for _, member := range mls {
			part := geojson.NewFeature(member)
			for k, v := range f.Properties {
				part.Properties[k] = v
			}
			out.Append(part)
		}
	}
	return out, nil
}
