package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/cablemap/internal/core"
	"github.com/JonMunkholm/cablemap/internal/logging"
)

// maxJSONBody bounds form submissions and metadata edits.
const maxJSONBody = 1 << 20

type uploadResponse struct {
	Stage    core.Stage        `json:"stage"`
	Kind     core.DocumentKind `json:"kind"`
	Format   string            `json:"format"`
	Document string            `json:"document"`
}

// handleUpload reads the multipart "file" field and starts converting it.
// Conversion continues in the background; clients follow it on the
// progress stream or by polling the snapshot.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			respondError(w, r, fmt.Errorf("file too large: %w", &http.MaxBytesError{Limit: maxSize}))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	doc := core.Document{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}

	wf := s.service.Workflow(core.ClientIDFromContext(r.Context()))
	decision, err := wf.Upload(r.Context(), doc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, uploadResponse{
		Stage:    core.StageConverting,
		Kind:     decision.Kind,
		Format:   decision.Format,
		Document: doc.Name,
	})
}

type snapshotResponse struct {
	core.Snapshot
	Error *core.UserMessage `json:"error,omitempty"`
}

// handleSnapshot reports the workflow stage. Clients without a workflow
// see an idle one.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		writeJSON(w, snapshotResponse{Snapshot: core.Snapshot{Stage: core.StageIdle}})
		return
	}

	snap := wf.Snapshot()
	resp := snapshotResponse{Snapshot: snap}
	if snap.Err != nil {
		msg := core.MapError(snap.Err)
		resp.Error = &msg
	}
	writeJSON(w, resp)
}

// handleProgress streams the conversion estimate via Server-Sent Events.
// Supports resumption via the lastEventId query parameter; the event ID is
// the percentage, so already-seen values are skipped after a reconnect. The
// stream ends with "complete" once the conversion settles, or "closed" when
// the session was discarded first.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	est := wf.Progress()
	if est == nil {
		respondError(w, r, core.ErrNoSession)
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, unsubscribe := est.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Warn("progress stream not flushable", "error", err)
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// A session closed mid-conversion resets the estimate to idle.
				event := "complete"
				if est.Snapshot().State == core.ProgressIdle {
					event = "closed"
				}
				fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event)
				rc.Flush()
				return
			}
			// Terminal states are always sent so the client sees the outcome.
			if progress.Percent <= lastEventID && !progress.Done() {
				continue
			}
			lastEventID = progress.Percent

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent, data)
			rc.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleForm returns the record under the cursor.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := wf.Form()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handleRecords returns every record of the session.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views, err := wf.Records()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"records": views})
}

type submitRequest struct {
	Properties map[string]string `json:"properties"`
}

// handleSubmit commits the current record with the submitted properties.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := wf.Submit(r.Context(), req.Properties)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type metadataRequest struct {
	Features []map[string]string `json:"features"`
}

// handleMetadata replaces the properties of every feature of a
// single-collection document.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := wf.SaveMetadata(req.Features); err != nil {
		if errors.Is(err, core.ErrNoSession) || errors.Is(err, core.ErrWrongStage) {
			respondError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := wf.Records()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"records": views})
}

// handleSummary lists every record with its store and confirmation IDs.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	entries, err := wf.Summary()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"stage":          wf.Snapshot().Stage,
		"records":        entries,
		"export_formats": s.service.ExportFormats(),
	})
}

// handleExport renders the labelled record, or the whole session when no
// label is given, as a file download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "geojson"
	}

	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	art, err := wf.Export(r.Context(), label, format)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(art.Data)
}

// handleConfirm stores the labelled record, or the whole session, as a
// confirmed feature collection.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := wf.Confirm(r.Context(), r.URL.Query().Get("label"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// handleClose discards the caller's workflow from any stage.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.service.Discard(core.ClientIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// isTooLarge reports whether err came from the MaxBytesReader limit. The
// multipart reader does not always wrap the underlying error.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// decodeBody decodes a JSON request body into v, writing a 400 response and
// returning false when it is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
