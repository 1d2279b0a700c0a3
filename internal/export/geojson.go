package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// GeoJSONExporter writes the collection as indented GeoJSON.
type GeoJSONExporter struct{}

func NewGeoJSONExporter() *GeoJSONExporter {
	return &GeoJSONExporter{}
}

func (e *GeoJSONExporter) Format() string { return "geojson" }

func (e *GeoJSONExporter) Export(ctx context.Context, name string, fc *geojson.FeatureCollection) (core.Artifact, error) {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return core.Artifact{}, fmt.Errorf("encode geojson: %w", err)
	}
	return core.Artifact{
		Filename:    fileName(name, "geojson"),
		ContentType: "application/geo+json",
		Data:        data,
	}, nil
}
