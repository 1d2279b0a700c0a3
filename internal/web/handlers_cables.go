package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/core"
	"github.com/JonMunkholm/cablemap/internal/store"
)

type fieldResponse struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Codes    []string `json:"codes,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// handleSchema describes the cable properties and accepted formats so
// clients can render forms.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	specs := core.Fields()
	fields := make([]fieldResponse, len(specs))
	for i, spec := range specs {
		fields[i] = fieldResponse{
			Name:     spec.Name,
			Kind:     spec.Kind.String(),
			Required: spec.Required,
			Codes:    spec.Codes,
			Help:     spec.Help,
		}
	}
	writeJSON(w, map[string]any{
		"fields":         fields,
		"formats":        s.service.Formats(),
		"export_formats": s.service.ExportFormats(),
		"max_file_size":  s.cfg.Upload.MaxFileSize,
	})
}

// handleListCables returns the confirmed cable features matching the
// Name, Status, Condition and CategoryOfCable query parameters.
func (s *Server) handleListCables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Name:            q.Get("Name"),
		Status:          q.Get("Status"),
		Condition:       q.Get("Condition"),
		CategoryOfCable: q.Get("CategoryOfCable"),
	}

	features, err := s.store.ListCables(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	writeJSON(w, fc)
}

type recordResponse struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Label      string            `json:"label"`
	Properties map[string]any    `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
	CreatedAt  time.Time         `json:"created_at"`
}

// handleGetRecord returns one committed record by store ID.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, recordResponse{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Label:      rec.Label,
		Properties: rec.Properties,
		Geometry:   geojson.NewGeometry(rec.Geometry),
		CreatedAt:  rec.CreatedAt,
	})
}

// handleHealth reports store reachability and workflow load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	var storeErr string
	if err := s.store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storeErr = err.Error()
	}

	writeJSONStatus(w, code, map[string]any{
		"status":           status,
		"store_error":      storeErr,
		"active_workflows": s.service.ActiveWorkflows(),
		"conversions":      s.service.ConversionStatus(),
	})
}
