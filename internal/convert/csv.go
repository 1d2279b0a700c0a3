package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// Column aliases recognised in a CSV header, matched case-insensitively.
var (
	DefaultLabelColumns     = []string{"sheet", "label", "cable", "name", "[feature name]: name"}
	DefaultLongitudeColumns = []string{"longitude", "lon", "lng", "long", "x"}
	DefaultLatitudeColumns  = []string{"latitude", "lat", "y"}
)

// ctxCheckEvery is how many rows are parsed between context checks.
const ctxCheckEvery = 1000

var ErrMissingCoordinateColumns = errors.New("missing longitude/latitude columns")

// CSVConverter turns a flat point table into one line record per label.
//
// Each row is a vertex. Rows sharing a label value form one record, in the
// order the label first appears. Rows with an empty longitude or latitude
// are skipped. Every other column becomes a raw property carrying the first
// non-empty value seen for that record.
type CSVConverter struct {
	LabelColumns     []string
	LongitudeColumns []string
	LatitudeColumns  []string
}

func NewCSVConverter() *CSVConverter {
	return &CSVConverter{
		LabelColumns:     DefaultLabelColumns,
		LongitudeColumns: DefaultLongitudeColumns,
		LatitudeColumns:  DefaultLatitudeColumns,
	}
}

type csvGroup struct {
	label string
	line  orb.LineString
	props map[string]any
}

func (c *CSVConverter) ConvertRecordSet(ctx context.Context, doc core.Document) ([]core.RawRecord, error) {
	r := csv.NewReader(TextReader(doc.Data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	idx := MakeHeaderIndex(header)
	lonCol, okLon := idx.Find(c.LongitudeColumns...)
	latCol, okLat := idx.Find(c.LatitudeColumns...)
	if !okLon || !okLat {
		return nil, ErrMissingCoordinateColumns
	}
	labelCol, _ := idx.Find(c.LabelColumns...)

	fallback := documentLabel(doc.Name)
	var order []*csvGroup
	groups := make(map[string]*csvGroup)

	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		lonText, latText := cell(row, lonCol), cell(row, latCol)
		if lonText == "" || latText == "" {
			continue
		}
		pt, err := parsePoint(lonText, latText)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		label := cell(row, labelCol)
		if label == "" {
			label = fallback
		}
		g, ok := groups[label]
		if !ok {
			g = &csvGroup{label: label, props: make(map[string]any)}
			groups[label] = g
			order = append(order, g)
		}
		g.line = append(g.line, pt)

		for i, name := range header {
			if i == lonCol || i == latCol || i == labelCol {
				continue
			}
			key := CleanCell(name)
			if key == "" {
				continue
			}
			if _, seen := g.props[key]; seen {
				continue
			}
			if v := cell(row, i); v != "" {
				g.props[key] = v
			}
		}
	}

	out := make([]core.RawRecord, 0, len(order))
	for _, g := range order {
		if len(g.line) < 2 {
			continue
		}
		out = append(out, core.RawRecord{Label: g.label, Coordinates: g.line, Properties: g.props})
	}
	return out, nil
}

// readHeader returns the first row that has any content.
func readHeader(r *csv.Reader) ([]string, error) {
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil, core.ErrEmptyDocument
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		for _, v := range row {
			if CleanCell(v) != "" {
				return row, nil
			}
		}
	}
}

func parsePoint(lonText, latText string) (orb.Point, error) {
	lon, err := strconv.ParseFloat(lonText, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q", lonText)
	}
	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q", latText)
	}
	if lon < -180 || lon > 180 {
		return orb.Point{}, fmt.Errorf("longitude %v out of range", lon)
	}
	if lat < -90 || lat > 90 {
		return orb.Point{}, fmt.Errorf("latitude %v out of range", lat)
	}
	return orb.Point{lon, lat}, nil
}

// documentLabel is the file name without directory or extension.
func documentLabel(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
