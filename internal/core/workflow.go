package core

// workflow.go drives one client's document from upload to commit.
//
// A Workflow moves through idle -> converting -> editing(cursor) -> summary
// for multi-record documents, and idle -> converting -> review for
// single-collection documents. All state lives behind mu and every
// collaborator call is made without holding it.
//
// Serialization rules:
//   - one conversion per session; an upload while converting is rejected
//   - one record persistence call per session; the cursor only moves when it
//     settles
//   - one export or confirm per (action, record) pair; different pairs run
//     concurrently
//
// Every session gets a new generation number. A collaborator result carries
// the generation it was issued under and is dropped if the session has been
// closed or replaced since, so late results never touch a newer session.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/JonMunkholm/cablemap/internal/logging"
)

// WorkflowConfig tunes the cosmetic progress estimate.
type WorkflowConfig struct {
	ProgressTick time.Duration
	ProgressCap  int
}

// Collaborators are the external services a workflow calls.
type Collaborators struct {
	Router    *Router
	Persister RecordPersister
	Store     CollectionStore
	Exporters []Exporter
	Limiter   *ConversionLimiter
	Observer  Observer
}

func (c Collaborators) exporter(format string) (Exporter, bool) {
	for _, e := range c.Exporters {
		if e.Format() == format {
			return e, true
		}
	}
	return nil, false
}

type actionKey struct {
	action string
	label  string
}

// Workflow is the per-client ingestion controller.
type Workflow struct {
	clientID string
	deps     Collaborators
	cfg      WorkflowConfig

	mu         sync.Mutex
	generation uint64
	stage      Stage
	session    *EditSession
	decision   RoutingDecision
	docName    string
	progress   *ProgressEstimator
	lastErr    error
	committing bool
	inflight   map[actionKey]struct{}
	lastActive time.Time
}

// NewWorkflow creates an idle workflow.
func NewWorkflow(clientID string, deps Collaborators, cfg WorkflowConfig) *Workflow {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Workflow{
		clientID:   clientID,
		deps:       deps,
		cfg:        cfg,
		stage:      StageIdle,
		inflight:   make(map[actionKey]struct{}),
		lastActive: time.Now(),
	}
}

// Upload routes doc, takes a conversion slot and starts converting it in the
// background. Routing failures return an invalid-format error and a full
// limiter returns ErrTooManyConversions, both without changing any state. An
// existing session is discarded.
func (w *Workflow) Upload(ctx context.Context, doc Document) (RoutingDecision, error) {
	decision, err := w.deps.Router.Route(doc)
	if err != nil {
		return RoutingDecision{}, err
	}

	w.mu.Lock()
	converting := w.stage == StageConverting
	w.mu.Unlock()
	if converting {
		return RoutingDecision{}, ErrConversionInFlight
	}

	release := func() {}
	if w.deps.Limiter != nil {
		release, err = w.deps.Limiter.Acquire(ctx, decision.Format)
		if err != nil {
			return RoutingDecision{}, err
		}
	}

	w.mu.Lock()
	// Another upload may have started while waiting for the slot.
	if w.stage == StageConverting {
		w.mu.Unlock()
		release()
		return RoutingDecision{}, ErrConversionInFlight
	}
	w.teardownLocked()
	gen := w.generation
	est := NewProgressEstimator(w.cfg.ProgressCap)
	est.Start()
	w.stage = StageConverting
	w.decision = decision
	w.docName = doc.Name
	w.progress = est
	w.touchLocked()
	w.mu.Unlock()

	logger := logging.WithFields(ctx,
		"document", doc.Name,
		"format", decision.Format,
		"kind", decision.Kind,
	)
	logger.Info("conversion started", "bytes", len(doc.Data))

	// The conversion outlives the request that started it.
	convCtx, stopTicker := context.WithCancel(context.WithoutCancel(ctx))
	go est.Run(convCtx, w.cfg.ProgressTick)
	go w.runConversion(convCtx, stopTicker, release, gen, decision, doc, est, logger)

	return decision, nil
}

func (w *Workflow) runConversion(ctx context.Context, stop context.CancelFunc, release func(), gen uint64, decision RoutingDecision, doc Document, est *ProgressEstimator, logger *slog.Logger) {
	defer stop()

	var (
		session *EditSession
		err     error
	)
	start := time.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("conversion panic", "panic", r, "stack", string(debug.Stack()))
				err = newWorkflowError(KindConversionFailed, "", fmt.Errorf("converter panic: %v", r))
			}
		}()
		defer release()

		var res conversion
		res, err = w.deps.Router.convert(ctx, decision, doc)
		if err != nil {
			return
		}
		id := uuid.New().String()
		if res.collection != nil {
			session, err = sessionFromCollection(id, decision, doc.Name, res.collection)
		} else {
			session, err = sessionFromRecords(id, decision, doc.Name, res.records)
		}
		if err != nil {
			err = newWorkflowError(KindConversionFailed, "", err)
		}
	}()

	elapsed := time.Since(start)
	w.deps.Observer.ConversionFinished(decision.Format, decision.Kind, elapsed, err)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		logger.Info("discarding conversion result for closed session", "duration_ms", elapsed.Milliseconds())
		return
	}

	if err != nil {
		est.Fail()
		w.stage = StageIdle
		w.lastErr = err
		logger.Warn("conversion failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return
	}

	est.Complete()
	w.session = session
	if session.Kind == KindMultiRecord {
		w.stage = StageEditing
	} else {
		w.stage = StageReview
	}
	logger.Info("conversion completed",
		"session_id", session.ID,
		"records", session.Len(),
		"duration_ms", elapsed.Milliseconds(),
	)
}

// Form returns the record under the cursor. Only valid while editing.
func (w *Workflow) Form() (RecordView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked()

	if w.session == nil {
		return RecordView{}, ErrNoSession
	}
	if w.stage != StageEditing {
		return RecordView{}, ErrWrongStage
	}
	return viewOf(w.session.Current(), w.session), nil
}

// Records returns every record of the session.
func (w *Workflow) Records() ([]RecordView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked()

	if w.session == nil {
		return nil, ErrNoSession
	}
	out := make([]RecordView, len(w.session.Records))
	for i, r := range w.session.Records {
		out[i] = viewOf(r, w.session)
	}
	return out, nil
}

// SubmitResult reports a successful record commit.
type SubmitResult struct {
	Label   string `json:"label"`
	StoreID string `json:"store_id"`
	Cursor  int    `json:"cursor"`
	Total   int    `json:"total"`
	Stage   Stage  `json:"stage"`
}

// Submit replaces the current record's properties with values and persists
// it. A record missing a required field is refused with a validation-blocked
// error and no collaborator call. On persistence failure the cursor stays put
// and the submitted values remain on the record.
func (w *Workflow) Submit(ctx context.Context, values map[string]string) (SubmitResult, error) {
	w.mu.Lock()
	w.touchLocked()
	if w.session == nil {
		w.mu.Unlock()
		return SubmitResult{}, ErrNoSession
	}
	if w.stage != StageEditing {
		w.mu.Unlock()
		return SubmitResult{}, ErrWrongStage
	}
	if w.committing {
		w.mu.Unlock()
		return SubmitResult{}, ErrCommitInFlight
	}

	session := w.session
	rec := session.Current()
	rec.Properties = PropertiesFromValues(values)

	if err := CheckCommittable(rec.Label, rec.Properties); err != nil {
		w.mu.Unlock()
		return SubmitResult{}, err
	}

	w.committing = true
	gen := w.generation
	req := PersistRequest{
		SessionID:   session.ID,
		Label:       rec.Label,
		Properties:  rec.Properties.Map(),
		Coordinates: copyLine(rec.Coordinates),
	}
	format := session.Format
	w.mu.Unlock()

	logger := logging.WithFields(ctx, "session_id", req.SessionID, "label", req.Label)

	storeID, err := w.deps.Persister.PersistRecord(context.WithoutCancel(ctx), req)
	w.deps.Observer.RecordCommitted(format, err)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		logger.Info("discarding persistence result for closed session", "store_id", storeID, "error", err)
		return SubmitResult{}, ErrSessionClosed
	}
	w.committing = false

	if err != nil {
		werr := newWorkflowError(KindPersistenceFailed, rec.Label, err)
		rec.LastError = werr.Error()
		logger.Warn("record persistence failed", "error", err)
		return SubmitResult{}, werr
	}

	rec.StoreID = storeID
	rec.LastError = ""
	session.Cursor++
	if session.Done() {
		w.stage = StageSummary
	}
	logger.Info("record committed", "store_id", storeID, "cursor", session.Cursor)

	return SubmitResult{
		Label:   rec.Label,
		StoreID: storeID,
		Cursor:  session.Cursor,
		Total:   session.Len(),
		Stage:   w.stage,
	}, nil
}

// SaveMetadata replaces the properties of every feature of a
// single-collection session, in feature order.
func (w *Workflow) SaveMetadata(values []map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked()

	if w.session == nil {
		return ErrNoSession
	}
	if w.stage != StageReview {
		return ErrWrongStage
	}
	if len(values) != w.session.Len() {
		return fmt.Errorf("metadata for %d features, session has %d", len(values), w.session.Len())
	}
	for i, v := range values {
		w.session.Records[i].Properties = PropertiesFromValues(v)
	}
	return nil
}

// Export renders the record with the given label, or the whole session when
// label is empty, in the named format.
func (w *Workflow) Export(ctx context.Context, label, format string) (Artifact, error) {
	exp, ok := w.deps.exporter(format)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrUnknownExport, format)
	}

	key := actionKey{action: "export:" + format, label: label}
	fc, name, gen, err := w.beginAction(key, false)
	if err != nil {
		return Artifact{}, err
	}

	art, err := exp.Export(context.WithoutCancel(ctx), name, fc)
	w.deps.Observer.Exported(format, err)
	w.endAction(key, gen)

	if err != nil {
		logging.WithFields(ctx, "label", label, "format", format).Warn("export failed", "error", err)
		return Artifact{}, newWorkflowError(KindExportFailed, label, err)
	}
	return art, nil
}

// ConfirmResult reports a stored collection.
type ConfirmResult struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels"`
}

// Confirm stores the record with the given label, or the whole session when
// label is empty, as a feature collection. Records missing a required field
// are refused with a validation-blocked error. The assigned identifier is
// added to each included record; it does not replace a record's StoreID.
func (w *Workflow) Confirm(ctx context.Context, label string) (ConfirmResult, error) {
	key := actionKey{action: "confirm", label: label}
	fc, _, gen, err := w.beginAction(key, true)
	if err != nil {
		return ConfirmResult{}, err
	}

	id, err := w.deps.Store.ConfirmCollection(context.WithoutCancel(ctx), fc)
	w.deps.Observer.Confirmed(len(fc.Features), err)

	logger := logging.WithFields(ctx, "label", label)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		logger.Info("discarding confirmation result for closed session", "id", id, "error", err)
		return ConfirmResult{}, ErrSessionClosed
	}
	delete(w.inflight, key)

	if err != nil {
		logger.Warn("confirmation failed", "error", err)
		return ConfirmResult{}, newWorkflowError(KindConfirmationFailed, label, err)
	}

	records, _ := w.session.targets(label)
	labels := make([]string, len(records))
	for i, r := range records {
		r.Confirmations = append(r.Confirmations, id)
		labels[i] = r.Label
	}
	logger.Info("collection confirmed", "id", id, "records", len(records))
	return ConfirmResult{ID: id, Labels: labels}, nil
}

// beginAction validates the stage, marks key in flight and snapshots the
// target records as a collection.
func (w *Workflow) beginAction(key actionKey, requireComplete bool) (*geojson.FeatureCollection, string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked()

	if w.session == nil {
		return nil, "", 0, ErrNoSession
	}
	if w.stage != StageSummary && w.stage != StageReview {
		return nil, "", 0, ErrWrongStage
	}
	records, err := w.session.targets(key.label)
	if err != nil {
		return nil, "", 0, err
	}
	if requireComplete {
		for _, r := range records {
			if err := CheckCommittable(r.Label, r.Properties); err != nil {
				return nil, "", 0, err
			}
		}
	}
	if _, busy := w.inflight[key]; busy {
		return nil, "", 0, ErrActionInFlight
	}
	w.inflight[key] = struct{}{}
	return BuildCollection(records), artifactName(w.session, key.label), w.generation, nil
}

func (w *Workflow) endAction(key actionKey, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.generation {
		delete(w.inflight, key)
	}
}

// Summary lists every record with its identifiers. Available once a
// session exists; during editing it shows partial completion.
func (w *Workflow) Summary() ([]SummaryEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touchLocked()

	if w.session == nil {
		return nil, ErrNoSession
	}
	return Summarize(w.session), nil
}

// Progress returns the estimator of the current conversion, or nil when no
// conversion has run for this session.
func (w *Workflow) Progress() *ProgressEstimator {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

// Close discards the session from any stage. In-flight calls are not
// cancelled; their results are ignored when they arrive.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.teardownLocked()
	w.stage = StageIdle
	w.touchLocked()
}

// teardownLocked drops the session and starts a new generation.
func (w *Workflow) teardownLocked() {
	w.generation++
	w.session = nil
	w.decision = RoutingDecision{}
	w.docName = ""
	w.lastErr = nil
	w.committing = false
	w.inflight = make(map[actionKey]struct{})
	if w.progress != nil {
		w.progress.Reset()
		w.progress = nil
	}
}

func (w *Workflow) touchLocked() {
	w.lastActive = time.Now()
}

// LastActive returns the time of the last client interaction.
func (w *Workflow) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Busy reports whether a conversion or record commit is outstanding.
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage == StageConverting || w.committing || len(w.inflight) > 0
}

// Snapshot is a read-only view of the workflow.
type Snapshot struct {
	Stage        Stage        `json:"stage"`
	SessionID    string       `json:"session_id,omitempty"`
	Kind         DocumentKind `json:"kind,omitempty"`
	Format       string       `json:"format,omitempty"`
	DocumentName string       `json:"document,omitempty"`
	Cursor       int          `json:"cursor"`
	Total        int          `json:"total"`
	Committing   bool         `json:"committing"`
	Progress     *Progress    `json:"progress,omitempty"`

	// Err is the last conversion failure, kept for display until the next
	// upload or close.
	Err error `json:"-"`
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		Stage:        w.stage,
		Kind:         w.decision.Kind,
		Format:       w.decision.Format,
		DocumentName: w.docName,
		Committing:   w.committing,
		Err:          w.lastErr,
	}
	if w.progress != nil {
		p := w.progress.Snapshot()
		snap.Progress = &p
	}
	if w.session != nil {
		snap.SessionID = w.session.ID
		snap.Cursor = w.session.Cursor
		snap.Total = w.session.Len()
	}
	return snap
}

// RecordView is the form state of one record.
type RecordView struct {
	Index       int               `json:"index"`
	Label       string            `json:"label"`
	Cursor      int               `json:"cursor"`
	Total       int               `json:"total"`
	Coordinates [][2]float64      `json:"coordinates"`
	Fields      []FieldReport     `json:"fields"`
	Extra       map[string]string `json:"extra,omitempty"`
	StoreID     string            `json:"store_id,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
}

func viewOf(r *FeatureRecord, s *EditSession) RecordView {
	coords := make([][2]float64, len(r.Coordinates))
	for i, p := range r.Coordinates {
		coords[i] = [2]float64{p[0], p[1]}
	}
	var extra map[string]string
	if len(r.Properties.Extra) > 0 {
		extra = r.Properties.Clone().Extra
	}
	return RecordView{
		Index:       r.Index,
		Label:       r.Label,
		Cursor:      s.Cursor,
		Total:       s.Len(),
		Coordinates: coords,
		Fields:      ValidateProperties(r.Properties),
		Extra:       extra,
		StoreID:     r.StoreID,
		LastError:   r.LastError,
	}
}
