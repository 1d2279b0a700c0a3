package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorkflow_MultiRecordCommitSequence(t *testing.T) {
	env := newTestEnv(t)
	w := env.workflow
	ctx := context.Background()

	upload(t, w, "cables.csv")
	snap := waitForStage(t, w, StageEditing)
	if snap.Cursor != 0 || snap.Total != 2 || snap.Kind != KindMultiRecord {
		t.Fatalf("snapshot after conversion = %+v", snap)
	}
	if snap.Progress == nil || snap.Progress.Percent != 100 {
		t.Errorf("progress after conversion = %+v, want 100", snap.Progress)
	}

	form, err := w.Form()
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}
	if form.Label != "CableAlpha" {
		t.Fatalf("first form label = %q, want CableAlpha", form.Label)
	}

	res, err := w.Submit(ctx, formValues(form))
	if err != nil {
		t.Fatalf("Submit(CableAlpha) error = %v", err)
	}
	if res.Cursor != 1 || res.StoreID == "" || res.Stage != StageEditing {
		t.Errorf("Submit result = %+v", res)
	}

	// CableBeta has no Condition: refused locally, no persistence call.
	form, _ = w.Form()
	_, err = w.Submit(ctx, formValues(form))
	if kind, _ := KindOf(err); kind != KindValidationBlocked {
		t.Fatalf("Submit(CableBeta) error = %v, want validation-blocked", err)
	}
	if got := env.persister.callCount(); got != 1 {
		t.Errorf("persister calls = %d, want 1", got)
	}
	if snap := w.Snapshot(); snap.Cursor != 1 {
		t.Errorf("cursor after blocked submit = %d, want 1", snap.Cursor)
	}

	values := formValues(form)
	values["Condition"] = "5"
	res, err = w.Submit(ctx, values)
	if err != nil {
		t.Fatalf("Submit(CableBeta) after fix error = %v", err)
	}
	if res.Stage != StageSummary || res.Cursor != 2 {
		t.Errorf("final Submit result = %+v, want summary at cursor 2", res)
	}

	summary, err := w.Summary()
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	for _, e := range summary {
		if !e.Committed || e.StoreID == "" {
			t.Errorf("summary entry %+v not committed", e)
		}
	}
}

func TestWorkflow_PersistenceFailureHoldsCursor(t *testing.T) {
	env := newTestEnv(t)
	env.persister.fail["CableBeta"] = errServer
	w := env.workflow
	ctx := context.Background()

	upload(t, w, "cables.csv")
	waitForStage(t, w, StageEditing)

	form, _ := w.Form()
	alpha, err := w.Submit(ctx, formValues(form))
	if err != nil {
		t.Fatalf("Submit(CableAlpha) error = %v", err)
	}

	form, _ = w.Form()
	values := formValues(form)
	values["Condition"] = "1"
	values["[Information]: Text"] = "edited before failure"
	_, err = w.Submit(ctx, values)
	if kind, _ := KindOf(err); kind != KindPersistenceFailed {
		t.Fatalf("Submit(CableBeta) error = %v, want persistence-failed", err)
	}

	form, err = w.Form()
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}
	if form.Label != "CableBeta" || form.Cursor != 1 {
		t.Errorf("form after failure = %s at %d, want CableBeta at 1", form.Label, form.Cursor)
	}
	if got := formValues(form)["[Information]: Text"]; got != "edited before failure" {
		t.Errorf("edited value not retained, got %q", got)
	}
	if form.LastError == "" {
		t.Error("form should carry the persistence error")
	}

	summary, _ := w.Summary()
	if summary[0].StoreID != alpha.StoreID {
		t.Errorf("CableAlpha store id = %q, want %q", summary[0].StoreID, alpha.StoreID)
	}
	if summary[1].Committed {
		t.Error("CableBeta should not be committed")
	}

	// retry succeeds once the collaborator recovers
	delete(env.persister.fail, "CableBeta")
	if _, err := w.Submit(ctx, values); err != nil {
		t.Fatalf("retry Submit error = %v", err)
	}
	if got := w.Snapshot().Stage; got != StageSummary {
		t.Errorf("stage after retry = %q, want summary", got)
	}
}

func TestWorkflow_OneCommitInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.persister.release = make(chan struct{})
	w := env.workflow

	upload(t, w, "cables.csv")
	waitForStage(t, w, StageEditing)
	form, _ := w.Form()

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), formValues(form))
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !w.Snapshot().Committing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := w.Submit(context.Background(), formValues(form)); !errors.Is(err, ErrCommitInFlight) {
		t.Errorf("second Submit error = %v, want ErrCommitInFlight", err)
	}

	close(env.persister.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit error = %v", err)
	}
	if got := env.persister.callCount(); got != 1 {
		t.Errorf("persister calls = %d, want 1", got)
	}
}

func TestWorkflow_SingleCollection(t *testing.T) {
	env := newTestEnv(t)
	w := env.workflow
	ctx := context.Background()

	upload(t, w, "route.geojson")
	snap := waitForStage(t, w, StageReview)
	if snap.Total != 3 {
		t.Fatalf("records = %d, want 3", snap.Total)
	}

	records, err := w.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	var nonstandard int
	for _, r := range records {
		for _, f := range r.Fields {
			if f.Name == "Condition" && f.Severity == SeverityNonstandard {
				nonstandard++
			}
		}
	}
	if nonstandard != 1 {
		t.Errorf("nonstandard Condition count = %d, want 1", nonstandard)
	}

	// nonstandard does not block confirmation
	res, err := w.Confirm(ctx, "")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if len(res.Labels) != 3 || res.ID == "" {
		t.Errorf("Confirm() = %+v", res)
	}

	if _, err := w.Form(); !errors.Is(err, ErrWrongStage) {
		t.Errorf("Form() in review error = %v, want ErrWrongStage", err)
	}

	meta := make([]map[string]string, len(records))
	for i := range records {
		meta[i] = map[string]string{"Condition": ""}
	}
	if err := w.SaveMetadata(meta); err != nil {
		t.Fatalf("SaveMetadata() error = %v", err)
	}
	if _, err := w.Confirm(ctx, ""); !isKind(err, KindValidationBlocked) {
		t.Errorf("Confirm() with empty Condition error = %v, want validation-blocked", err)
	}
	if err := w.SaveMetadata(meta[:1]); err == nil {
		t.Error("SaveMetadata() with wrong length should fail")
	}
}

func TestWorkflow_CloseDuringConversionIgnoresResult(t *testing.T) {
	env := newTestEnv(t)
	env.records.release = make(chan struct{})
	w := env.workflow

	upload(t, w, "cables.csv")
	if got := w.Snapshot().Stage; got != StageConverting {
		t.Fatalf("stage = %q, want converting", got)
	}
	if _, err := w.Upload(context.Background(), Document{Name: "other.csv", Data: []byte("x")}); !errors.Is(err, ErrConversionInFlight) {
		t.Errorf("Upload while converting error = %v, want ErrConversionInFlight", err)
	}

	w.Close()
	close(env.records.release)

	time.Sleep(50 * time.Millisecond)
	snap := w.Snapshot()
	if snap.Stage != StageIdle || snap.SessionID != "" {
		t.Errorf("late conversion result changed state: %+v", snap)
	}
}

func TestWorkflow_UploadRejectedWhenSlotsFull(t *testing.T) {
	env := newTestEnv(t)
	w := env.workflow
	limiter := NewConversionLimiter(1, 20*time.Millisecond)
	w.deps.Limiter = limiter

	upload(t, w, "cables.csv")
	before := waitForStage(t, w, StageEditing)
	if n := limiter.ActiveCount(); n != 0 {
		t.Fatalf("active conversions after settle = %d, want 0", n)
	}

	release, err := limiter.Acquire(context.Background(), "csv")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	_, err = w.Upload(context.Background(), Document{Name: "cables.csv", Data: []byte("payload")})
	if !errors.Is(err, ErrTooManyConversions) {
		t.Fatalf("Upload with no free slot error = %v, want ErrTooManyConversions", err)
	}
	if kind, ok := KindOf(err); ok && kind == KindConversionFailed {
		t.Errorf("busy limiter reported as %s", kind)
	}
	after := w.Snapshot()
	if after.Stage != StageEditing || after.SessionID != before.SessionID || after.Err != nil {
		t.Errorf("state changed after rejected upload: before %+v after %+v", before, after)
	}

	release()
	upload(t, w, "cables.csv")
	if snap := waitForStage(t, w, StageEditing); snap.SessionID == before.SessionID {
		t.Error("upload after release did not start a new session")
	}
}

func TestWorkflow_InvalidFormatLeavesState(t *testing.T) {
	env := newTestEnv(t)
	w := env.workflow

	upload(t, w, "cables.csv")
	before := waitForStage(t, w, StageEditing)

	tests := []Document{
		{Name: "notes.pdf", Data: []byte("%PDF")},
		{Name: "cables.csv"},
		{Name: "noext", Data: []byte("x")},
	}
	for _, doc := range tests {
		_, err := w.Upload(context.Background(), doc)
		if !isKind(err, KindInvalidFormat) {
			t.Errorf("Upload(%q) error = %v, want invalid-format", doc.Name, err)
		}
	}

	after := w.Snapshot()
	if after.SessionID != before.SessionID || after.Stage != StageEditing {
		t.Errorf("state changed after invalid uploads: before %+v after %+v", before, after)
	}
}

func TestWorkflow_ConversionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.records.err = errors.New("sheet parse error")
	w := env.workflow

	upload(t, w, "cables.csv")
	snap := waitForStage(t, w, StageIdle)
	if !isKind(snap.Err, KindConversionFailed) {
		t.Errorf("snapshot error = %v, want conversion-failed", snap.Err)
	}
	if snap.SessionID != "" {
		t.Error("failed conversion must not leave a session")
	}
	if snap.Progress == nil || snap.Progress.State != ProgressFailed {
		t.Errorf("progress = %+v, want failed", snap.Progress)
	}
}

func TestWorkflow_ExportAndConfirmPerRecord(t *testing.T) {
	env := newTestEnv(t)
	w := env.workflow
	ctx := context.Background()

	upload(t, w, "cables.csv")
	waitForStage(t, w, StageEditing)

	if _, err := w.Export(ctx, "", "geojson"); !errors.Is(err, ErrWrongStage) {
		t.Errorf("Export while editing error = %v, want ErrWrongStage", err)
	}

	for i := 0; i < 2; i++ {
		form, _ := w.Form()
		values := formValues(form)
		values["Condition"] = "1"
		if _, err := w.Submit(ctx, values); err != nil {
			t.Fatalf("Submit(%s) error = %v", form.Label, err)
		}
	}

	art, err := w.Export(ctx, "CableBeta", "geojson")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if art.Filename != "CableBeta.geojson" {
		t.Errorf("Filename = %q", art.Filename)
	}
	if _, err := w.Export(ctx, "", "shp"); !errors.Is(err, ErrUnknownExport) {
		t.Errorf("Export(shp) error = %v, want ErrUnknownExport", err)
	}
	if _, err := w.Export(ctx, "CableGamma", "geojson"); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("Export(CableGamma) error = %v, want ErrUnknownRecord", err)
	}

	res, err := w.Confirm(ctx, "CableAlpha")
	if err != nil {
		t.Fatalf("Confirm(CableAlpha) error = %v", err)
	}
	summary, _ := w.Summary()
	if got := summary[0].Confirmations; len(got) != 1 || got[0] != res.ID {
		t.Errorf("CableAlpha confirmations = %v, want [%s]", got, res.ID)
	}
	if summary[0].StoreID == "" {
		t.Error("confirmation must not replace the per-record store id")
	}
	if len(summary[1].Confirmations) != 0 {
		t.Errorf("CableBeta confirmations = %v, want none", summary[1].Confirmations)
	}
}

func TestWorkflow_ActionsInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.store.release = make(chan struct{})
	w := env.workflow
	ctx := context.Background()

	upload(t, w, "route.geojson")
	waitForStage(t, w, StageReview)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := w.Confirm(ctx, "Feature #1"); err != nil {
			t.Errorf("Confirm() error = %v", err)
		}
	}()

	deadline := time.Now().Add(time.Second)
	for !w.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := w.Confirm(ctx, "Feature #1"); !errors.Is(err, ErrActionInFlight) {
		t.Errorf("duplicate Confirm error = %v, want ErrActionInFlight", err)
	}
	// a different action on the same record is independent
	if _, err := w.Export(ctx, "Feature #1", "geojson"); err != nil {
		t.Errorf("concurrent Export error = %v", err)
	}

	close(env.store.release)
	wg.Wait()
}

func TestWorkflow_LateCommitAfterClose(t *testing.T) {
	env := newTestEnv(t)
	env.persister.release = make(chan struct{})
	w := env.workflow

	upload(t, w, "cables.csv")
	waitForStage(t, w, StageEditing)
	form, _ := w.Form()

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), formValues(form))
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for !w.Snapshot().Committing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	w.Close()
	close(env.persister.release)

	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("late Submit error = %v, want ErrSessionClosed", err)
	}
	if snap := w.Snapshot(); snap.Stage != StageIdle || snap.SessionID != "" {
		t.Errorf("late result changed state: %+v", snap)
	}
}

func isKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
