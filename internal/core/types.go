// Package core provides the business logic for cable record ingestion.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Document is an uploaded source file.
type Document struct {
	Name        string // Original file name; its extension declares the format
	ContentType string // MIME type sent by the client, used when the name has no extension
	Data        []byte
}

// RawRecord is one labelled line produced by a multi-record converter.
type RawRecord struct {
	Label       string
	Coordinates orb.LineString
	Properties  map[string]any
}

// PersistRequest is the payload for committing a single record.
type PersistRequest struct {
	SessionID   string
	Label       string
	Properties  map[string]any
	Coordinates orb.LineString
}

// Artifact is a rendered export file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CollectionConverter turns a single-collection document into GeoJSON.
type CollectionConverter interface {
	ConvertCollection(ctx context.Context, doc Document) (*geojson.FeatureCollection, error)
}

// RecordSetConverter turns a multi-record document into ordered labelled
// records. The returned order is the display order.
type RecordSetConverter interface {
	ConvertRecordSet(ctx context.Context, doc Document) ([]RawRecord, error)
}

// RecordPersister stores one committed record and returns its identifier.
type RecordPersister interface {
	PersistRecord(ctx context.Context, req PersistRequest) (string, error)
}

// CollectionStore stores a finished feature collection and returns the
// identifier it was assigned.
type CollectionStore interface {
	ConfirmCollection(ctx context.Context, fc *geojson.FeatureCollection) (string, error)
}

// Exporter renders a feature collection as a downloadable artifact.
type Exporter interface {
	Format() string
	Export(ctx context.Context, name string, fc *geojson.FeatureCollection) (Artifact, error)
}

// Stage is the position of a workflow in its lifecycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageConverting Stage = "converting"
	StageEditing    Stage = "editing" // multi-record, cursor on a record
	StageReview     Stage = "review"  // single-collection flat form
	StageSummary    Stage = "summary" // multi-record, every record committed
)

// DocumentKind decides which editing path a document takes.
type DocumentKind string

const (
	KindSingleCollection DocumentKind = "single-collection"
	KindMultiRecord      DocumentKind = "multi-record"
)
