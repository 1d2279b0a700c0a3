package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EditSession holds the records of one converted document while they are
// reviewed and committed. It is owned by a single Workflow and is never
// shared; all access happens under the workflow's lock.
type EditSession struct {
	ID           string
	Kind         DocumentKind
	Format       string
	DocumentName string
	CreatedAt    time.Time

	Records []*FeatureRecord
	byLabel map[string]*FeatureRecord

	// Cursor is the index of the record being edited. Cursor == len(Records)
	// means every record has been committed.
	Cursor int
}

func newEditSession(id string, decision RoutingDecision, docName string) *EditSession {
	return &EditSession{
		ID:           id,
		Kind:         decision.Kind,
		Format:       decision.Format,
		DocumentName: docName,
		CreatedAt:    time.Now(),
		byLabel:      make(map[string]*FeatureRecord),
	}
}

// sessionFromCollection builds a session from a single-collection
// conversion. Only line geometries become records.
func sessionFromCollection(id string, decision RoutingDecision, docName string, fc *geojson.FeatureCollection) (*EditSession, error) {
	s := newEditSession(id, decision, docName)
	for _, f := range fc.Features {
		line, ok := lineOf(f.Geometry)
		if !ok {
			continue
		}
		props := PropertiesFromRaw(f.Properties)
		label := strings.TrimSpace(props.Get(FieldName))
		if label == "" {
			label = "Feature #" + strconv.Itoa(len(s.Records)+1)
		}
		s.add(label, line, props)
	}
	if len(s.Records) == 0 {
		return nil, ErrNoRecords
	}
	return s, nil
}

// sessionFromRecords builds a session from a multi-record conversion,
// keeping the converter's order.
func sessionFromRecords(id string, decision RoutingDecision, docName string, raw []RawRecord) (*EditSession, error) {
	s := newEditSession(id, decision, docName)
	for i, r := range raw {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			label = "Record #" + strconv.Itoa(i+1)
		}
		s.add(label, r.Coordinates, PropertiesFromRaw(r.Properties))
	}
	if len(s.Records) == 0 {
		return nil, ErrNoRecords
	}
	return s, nil
}

func (s *EditSession) add(label string, line orb.LineString, props Properties) {
	label = s.uniqueLabel(label)
	rec := NewFeatureRecord(len(s.Records), label, line, props)
	s.Records = append(s.Records, rec)
	s.byLabel[label] = rec
}

func (s *EditSession) uniqueLabel(label string) string {
	if _, taken := s.byLabel[label]; !taken {
		return label
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", label, n)
		if _, taken := s.byLabel[candidate]; !taken {
			return candidate
		}
	}
}

// Len returns the number of records.
func (s *EditSession) Len() int {
	return len(s.Records)
}

// Done reports whether the cursor has passed the last record.
func (s *EditSession) Done() bool {
	return s.Cursor >= len(s.Records)
}

// Current returns the record under the cursor, or nil when done.
func (s *EditSession) Current() *FeatureRecord {
	if s.Done() {
		return nil
	}
	return s.Records[s.Cursor]
}

// Record returns the record with the given label.
func (s *EditSession) Record(label string) (*FeatureRecord, bool) {
	r, ok := s.byLabel[label]
	return r, ok
}

// targets resolves a label to the records it covers; "" means all.
func (s *EditSession) targets(label string) ([]*FeatureRecord, error) {
	if label == "" {
		return s.Records, nil
	}
	r, ok := s.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, label)
	}
	return []*FeatureRecord{r}, nil
}

// lineOf extracts a line from a feature geometry. A MultiLineString with a
// single member is accepted as that member.
func lineOf(g orb.Geometry) (orb.LineString, bool) {
	switch t := g.(type) {
	case orb.LineString:
		return t, len(t) > 1
	case orb.MultiLineString:
		if len(t) == 1 && len(t[0]) > 1 {
			return t[0], true
		}
	}
	return nil, false
}
