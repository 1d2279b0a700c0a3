package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// XMLExporter writes the CableData document format:
//
//	<CableData>
//	  <Metadata><Status>1</Status>...</Metadata>
//	  <Locations>
//	    <Location><Index>1</Index><Longitude/><Latitude/><Depth/></Location>
//	  </Locations>
//	</CableData>
//
// Several features are wrapped in a <CableCollection> root. Depth is always
// empty because coordinates are two-dimensional.
type XMLExporter struct{}

func NewXMLExporter() *XMLExporter {
	return &XMLExporter{}
}

func (e *XMLExporter) Format() string { return "xml" }

func (e *XMLExporter) Export(ctx context.Context, name string, fc *geojson.FeatureCollection) (core.Artifact, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	w := &tokenWriter{enc: enc}
	wrap := len(fc.Features) != 1
	if wrap {
		w.start("CableCollection")
	}
	for _, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return core.Artifact{}, err
		}
		writeCable(w, f)
	}
	if wrap {
		w.end("CableCollection")
	}
	if w.err == nil {
		w.err = enc.Flush()
	}
	if w.err != nil {
		return core.Artifact{}, fmt.Errorf("encode xml: %w", w.err)
	}
	buf.WriteByte('\n')

	return core.Artifact{
		Filename:    fileName(name, "xml"),
		ContentType: "application/xml",
		Data:        buf.Bytes(),
	}, nil
}

func writeCable(w *tokenWriter, f *geojson.Feature) {
	props := core.PropertiesFromRaw(f.Properties)

	w.start("CableData")
	w.start("Metadata")
	used := make(map[string]bool)
	for _, spec := range core.Fields() {
		name := elementName(spec.Name)
		used[name] = true
		w.text(name, props.Get(spec.ID))
	}
	for _, key := range props.ExtraKeys() {
		w.text(uniqueName(elementName(key), used), props.Extra[key])
	}
	w.end("Metadata")

	w.start("Locations")
	for i, pt := range points(f.Geometry) {
		w.start("Location")
		w.text("Index", strconv.Itoa(i+1))
		w.text("Longitude", strconv.FormatFloat(pt.Lon(), 'f', -1, 64))
		w.text("Latitude", strconv.FormatFloat(pt.Lat(), 'f', -1, 64))
		w.text("Depth", "")
		w.end("Location")
	}
	w.end("Locations")
	w.end("CableData")
}

func points(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.LineString:
		return t
	case orb.MultiLineString:
		var out []orb.Point
		for _, ls := range t {
			out = append(out, ls...)
		}
		return out
	case orb.Point:
		return []orb.Point{t}
	}
	return nil
}

// elementName turns a property key into a valid XML element name:
// "[Feature Name]: Name" becomes "Feature_Name_Name".
func elementName(key string) string {
	var b strings.Builder
	gap := false
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	name := b.String()
	if name == "" {
		return "Property"
	}
	if first := rune(name[0]); !unicode.IsLetter(first) {
		name = "_" + name
	}
	if strings.HasPrefix(strings.ToLower(name), "xml") {
		name = "_" + name
	}
	return name
}

// uniqueName suffixes name with _2, _3, ... until it is not in used, and
// marks the result used. Schema elements are registered first and keep
// their plain names.
func uniqueName(name string, used map[string]bool) string {
	out := name
	for i := 2; used[out]; i++ {
		out = name + "_" + strconv.Itoa(i)
	}
	used[out] = true
	return out
}

// tokenWriter keeps the first encoding error so the call sites stay flat.
type tokenWriter struct {
	enc *xml.Encoder
	err error
}

func (w *tokenWriter) start(name string) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}})
	}
}

func (w *tokenWriter) end(name string) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
	}
}

func (w *tokenWriter) text(name, value string) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeElement(value, xml.StartElement{Name: xml.Name{Local: name}})
}
