package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// fakeRecordSet returns fixed records, optionally waiting on release first.
type fakeRecordSet struct {
	records []RawRecord
	err     error
	release chan struct{}
}

func (f *fakeRecordSet) ConvertRecordSet(ctx context.Context, doc Document) ([]RawRecord, error) {
	if f.release != nil {
		<-f.release
	}
	return f.records, f.err
}

type fakeCollection struct {
	fc  *geojson.FeatureCollection
	err error
}

func (f *fakeCollection) ConvertCollection(ctx context.Context, doc Document) (*geojson.FeatureCollection, error) {
	return f.fc, f.err
}

// fakePersister records calls and fails labels listed in fail.
type fakePersister struct {
	mu      sync.Mutex
	calls   []PersistRequest
	fail    map[string]error
	release chan struct{}
}

func (f *fakePersister) PersistRecord(ctx context.Context, req PersistRequest) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.fail[req.Label]; err != nil {
		return "", err
	}
	return "rec-" + strconv.Itoa(len(f.calls)), nil
}

func (f *fakePersister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu      sync.Mutex
	stored  []*geojson.FeatureCollection
	err     error
	release chan struct{}
}

func (f *fakeStore) ConfirmCollection(ctx context.Context, fc *geojson.FeatureCollection) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.stored = append(f.stored, fc)
	return strconv.Itoa(len(f.stored)), nil
}

type fakeExporter struct {
	format  string
	err     error
	release chan struct{}
}

func (f *fakeExporter) Format() string { return f.format }

func (f *fakeExporter) Export(ctx context.Context, name string, fc *geojson.FeatureCollection) (Artifact, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return Artifact{}, f.err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Filename: name + "." + f.format, ContentType: "application/json", Data: data}, nil
}

var errServer = errors.New("server returned 500")

func line(coords ...float64) orb.LineString {
	var ls orb.LineString
	for i := 0; i+1 < len(coords); i += 2 {
		ls = append(ls, orb.Point{coords[i], coords[i+1]})
	}
	return ls
}

// twoSheets is a multi-record document: CableAlpha complete, CableBeta
// missing its Condition.
func twoSheets() []RawRecord {
	return []RawRecord{
		{
			Label:       "CableAlpha",
			Coordinates: line(10, 55, 11, 56),
			Properties:  map[string]any{"Condition": "1", "Status": "1"},
		},
		{
			Label:       "CableBeta",
			Coordinates: line(12, 57, 13, 58, 14, 59),
			Properties:  map[string]any{"Status": "4"},
		},
	}
}

func threeFeatures() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, cond := range []string{"1", "7", "5"} {
		f := geojson.NewFeature(line(float64(i), 0, float64(i), 1))
		f.Properties["Condition"] = cond
		fc.Append(f)
	}
	return fc
}

type testEnv struct {
	workflow  *Workflow
	records   *fakeRecordSet
	persister *fakePersister
	store     *fakeStore
	exporter  *fakeExporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		records:   &fakeRecordSet{records: twoSheets()},
		persister: &fakePersister{fail: map[string]error{}},
		store:     &fakeStore{},
		exporter:  &fakeExporter{format: "geojson"},
	}
	router := NewRouter()
	router.RegisterCollection("geojson", &fakeCollection{fc: threeFeatures()}, "application/geo+json")
	router.RegisterRecordSet("csv", env.records, "text/csv")

	env.workflow = NewWorkflow("client-1", Collaborators{
		Router:    router,
		Persister: env.persister,
		Store:     env.store,
		Exporters: []Exporter{env.exporter},
		Limiter:   NewConversionLimiter(2, time.Second),
	}, WorkflowConfig{ProgressTick: 5 * time.Millisecond})
	return env
}

// waitForStage polls until the workflow leaves the converting stage.
func waitForStage(t *testing.T, w *Workflow, want Stage) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := w.Snapshot()
		if snap.Stage == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("workflow stage = %q, want %q", w.Snapshot().Stage, want)
	return Snapshot{}
}

func upload(t *testing.T, w *Workflow, name string) {
	t.Helper()
	if _, err := w.Upload(context.Background(), Document{Name: name, Data: []byte("payload")}); err != nil {
		t.Fatalf("Upload(%q) error = %v", name, err)
	}
}

func formValues(view RecordView) map[string]string {
	values := make(map[string]string, len(view.Fields))
	for _, f := range view.Fields {
		values[f.Name] = f.Value
	}
	return values
}
