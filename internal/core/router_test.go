package core

import (
	"context"
	"testing"
)

func TestRouter_Route(t *testing.T) {
	router := NewRouter()
	router.RegisterCollection("kml", &fakeCollection{}, "application/vnd.google-earth.kml+xml")
	router.RegisterCollection("geojson", &fakeCollection{}, "application/geo+json")
	router.RegisterRecordSet("csv", &fakeRecordSet{}, "text/csv")

	tests := []struct {
		name       string
		doc        Document
		wantFormat string
		wantKind   DocumentKind
		wantErr    bool
	}{
		{"kml by extension", Document{Name: "route.kml", Data: []byte("<kml/>")}, "kml", KindSingleCollection, false},
		{"extension is case-insensitive", Document{Name: "ROUTE.KML", Data: []byte("<kml/>")}, "kml", KindSingleCollection, false},
		{"csv by extension", Document{Name: "sheets.csv", Data: []byte("a,b")}, "csv", KindMultiRecord, false},
		{"content type fallback", Document{Name: "upload", ContentType: "application/geo+json; charset=utf-8", Data: []byte("{}")}, "geojson", KindSingleCollection, false},
		{"extension wins over content type", Document{Name: "a.csv", ContentType: "application/geo+json", Data: []byte("x")}, "csv", KindMultiRecord, false},
		{"unknown extension", Document{Name: "cable.shp", Data: []byte("x")}, "", "", true},
		{"no type at all", Document{Name: "cable", Data: []byte("x")}, "", "", true},
		{"empty document", Document{Name: "cable.kml"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := router.Route(tt.doc)
			if tt.wantErr {
				if !isKind(err, KindInvalidFormat) {
					t.Errorf("Route() error = %v, want invalid-format", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Route() error = %v", err)
			}
			if got.Format != tt.wantFormat || got.Kind != tt.wantKind {
				t.Errorf("Route() = %+v, want %s/%s", got, tt.wantFormat, tt.wantKind)
			}
		})
	}
}

func TestRouter_Formats(t *testing.T) {
	router := NewRouter()
	router.RegisterRecordSet("xlsx", &fakeRecordSet{})
	router.RegisterCollection("kml", &fakeCollection{})

	formats := router.Formats()
	if len(formats) != 2 || formats[0].Format != "kml" || formats[1].Format != "xlsx" {
		t.Errorf("Formats() = %+v, want kml then xlsx", formats)
	}
}

func TestRouter_RegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		def  FormatDefinition
	}{
		{"duplicate", FormatDefinition{Format: "kml", Kind: KindSingleCollection, Collection: &fakeCollection{}}},
		{"missing converter", FormatDefinition{Format: "csv", Kind: KindMultiRecord}},
		{"unknown kind", FormatDefinition{Format: "gpx", Kind: "stream", Collection: &fakeCollection{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter()
			router.RegisterCollection("kml", &fakeCollection{})
			defer func() {
				if recover() == nil {
					t.Error("Register() did not panic")
				}
			}()
			router.Register(tt.def)
		})
	}
}

func TestRouter_ConvertEmptyResult(t *testing.T) {
	router := NewRouter()
	router.RegisterRecordSet("csv", &fakeRecordSet{})

	_, err := router.convert(context.Background(), RoutingDecision{Format: "csv", Kind: KindMultiRecord}, Document{Name: "a.csv", Data: []byte("x")})
	if !isKind(err, KindConversionFailed) {
		t.Errorf("convert() error = %v, want conversion-failed", err)
	}
}

func TestSessionLabels(t *testing.T) {
	raw := []RawRecord{
		{Label: "Link", Coordinates: line(0, 0, 1, 1)},
		{Label: "Link", Coordinates: line(1, 1, 2, 2)},
		{Label: " ", Coordinates: line(2, 2, 3, 3)},
	}
	s, err := sessionFromRecords("s1", RoutingDecision{Format: "csv", Kind: KindMultiRecord}, "a.csv", raw)
	if err != nil {
		t.Fatalf("sessionFromRecords() error = %v", err)
	}

	want := []string{"Link", "Link (2)", "Record #3"}
	for i, r := range s.Records {
		if r.Label != want[i] {
			t.Errorf("record %d label = %q, want %q", i, r.Label, want[i])
		}
	}

	// records own their coordinates
	raw[0].Coordinates[0][0] = 99
	if s.Records[0].Coordinates[0][0] == 99 {
		t.Error("record shares coordinates with converter output")
	}
}
