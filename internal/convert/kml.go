package convert

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// DefaultPlacemarkName labels placemarks that carry no <name>.
const DefaultPlacemarkName = "Unnamed Placemark"

// KMLConverter reads every Placemark of a KML document into a line feature.
// The first <coordinates> element inside a placemark is its geometry;
// placemarks with fewer than two points are dropped. ExtendedData entries
// whose names match the property schema fill those fields, the rest are
// kept as extra properties.
type KMLConverter struct{}

func NewKMLConverter() *KMLConverter {
	return &KMLConverter{}
}

type placemark struct {
	name   string
	coords string
	found  bool
	data   [][2]string
}

func (c *KMLConverter) ConvertCollection(ctx context.Context, doc core.Document) (*geojson.FeatureCollection, error) {
	dec := xml.NewDecoder(NewBOMSkippingReader(bytes.NewReader(doc.Data)))
	dec.CharsetReader = CharsetReader
	dec.Strict = false

	fc := geojson.NewFeatureCollection()
	sawRoot := false
	for n := 0; ; n++ {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse kml: %w", err)
		}
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			sawRoot = true
			if start.Name.Local != "kml" {
				return nil, fmt.Errorf("parse kml: unexpected root element <%s>", start.Name.Local)
			}
			continue
		}
		if start.Name.Local != "Placemark" {
			continue
		}

		pm, err := readPlacemark(dec)
		if err != nil {
			return nil, fmt.Errorf("parse kml: %w", err)
		}
		line := parseCoordinates(pm.coords)
		if len(line) < 2 {
			continue
		}
		fc.Append(placemarkFeature(pm, line))
	}
	if !sawRoot {
		return nil, errors.New("parse kml: no root element")
	}
	return fc, nil
}

// readPlacemark consumes tokens up to the Placemark's end element.
func readPlacemark(dec *xml.Decoder) (placemark, error) {
	var pm placemark
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return pm, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "name" && depth == 1:
				if err := dec.DecodeElement(&pm.name, &t); err != nil {
					return pm, err
				}
				continue
			case t.Name.Local == "coordinates" && !pm.found:
				if err := dec.DecodeElement(&pm.coords, &t); err != nil {
					return pm, err
				}
				pm.found = true
				continue
			case t.Name.Local == "Data":
				var d struct {
					Value string `xml:"value"`
				}
				if err := dec.DecodeElement(&d, &t); err != nil {
					return pm, err
				}
				pm.data = append(pm.data, [2]string{attr(t, "name"), d.Value})
				continue
			case t.Name.Local == "SimpleData":
				var v string
				if err := dec.DecodeElement(&v, &t); err != nil {
					return pm, err
				}
				pm.data = append(pm.data, [2]string{attr(t, "name"), v})
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return pm, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseCoordinates reads "lon,lat[,alt]" tuples separated by whitespace.
// Altitude is dropped; malformed tuples are skipped.
func parseCoordinates(text string) orb.LineString {
	var line orb.LineString
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		line = append(line, orb.Point{lon, lat})
	}
	return line
}

func placemarkFeature(pm placemark, line orb.LineString) *geojson.Feature {
	var props core.Properties
	for _, kv := range pm.data {
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		props.SetValue(key, strings.TrimSpace(kv[1]))
	}

	name := strings.TrimSpace(pm.name)
	if name == "" {
		name = DefaultPlacemarkName
	}
	props.Set(core.FieldName, name)

	f := geojson.NewFeature(line)
	f.Properties = props.Map()
	return f
}
