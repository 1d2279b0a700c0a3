package convert

import (
	"time"

	"github.com/JonMunkholm/cablemap/internal/core"
)

// Options selects the optional converters.
type Options struct {
	RemoteURL     string // Spreadsheet conversion service; xlsx is unsupported when empty
	RemoteTimeout time.Duration
}

// RegisterAll installs the built-in converters on r.
func RegisterAll(r *core.Router, opts Options) {
	kml := NewKMLConverter()
	r.RegisterCollection("kml", kml, "application/vnd.google-earth.kml+xml")

	gj := NewGeoJSONConverter()
	r.RegisterCollection("geojson", gj, "application/geo+json")
	r.RegisterCollection("json", gj, "application/json")

	r.RegisterRecordSet("csv", NewCSVConverter(), "text/csv")

	if opts.RemoteURL != "" {
		r.RegisterRecordSet("xlsx", NewRemoteConverter(opts.RemoteURL, opts.RemoteTimeout),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}
}
