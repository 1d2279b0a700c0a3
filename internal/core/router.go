package core

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// FormatDefinition binds a declared document type to its converter.
// Exactly one of Collection and RecordSet must be set, matching Kind.
type FormatDefinition struct {
	Format       string   // Lowercase file extension without the dot: "kml"
	Kind         DocumentKind
	ContentTypes []string // MIME types that declare this format when the name has no extension
	Collection   CollectionConverter
	RecordSet    RecordSetConverter
}

// FormatInfo is the public description of a registered format.
type FormatInfo struct {
	Format string       `json:"format"`
	Kind   DocumentKind `json:"kind"`
}

// RoutingDecision is the outcome of routing a document.
type RoutingDecision struct {
	Format string       `json:"format"`
	Kind   DocumentKind `json:"kind"`
}

// Router selects a conversion path from a document's declared type.
type Router struct {
	mu      sync.RWMutex
	formats map[string]FormatDefinition
	types   map[string]string // content type -> format
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		formats: make(map[string]FormatDefinition),
		types:   make(map[string]string),
	}
}

// Register adds a format definition.
// Panics if the format is already registered or the converter does not match the kind.
func (r *Router) Register(def FormatDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def.Format = strings.ToLower(strings.TrimPrefix(def.Format, "."))
	if _, exists := r.formats[def.Format]; exists {
		panic(fmt.Sprintf("format already registered: %s", def.Format))
	}

	switch def.Kind {
	case KindSingleCollection:
		if def.Collection == nil {
			panic(fmt.Sprintf("format %s: single-collection needs a CollectionConverter", def.Format))
		}
	case KindMultiRecord:
		if def.RecordSet == nil {
			panic(fmt.Sprintf("format %s: multi-record needs a RecordSetConverter", def.Format))
		}
	default:
		panic(fmt.Sprintf("format %s: unknown kind %q", def.Format, def.Kind))
	}

	r.formats[def.Format] = def
	for _, ct := range def.ContentTypes {
		r.types[strings.ToLower(ct)] = def.Format
	}
}

// RegisterCollection registers a single-collection format.
func (r *Router) RegisterCollection(format string, conv CollectionConverter, contentTypes ...string) {
	r.Register(FormatDefinition{
		Format:       format,
		Kind:         KindSingleCollection,
		ContentTypes: contentTypes,
		Collection:   conv,
	})
}

// RegisterRecordSet registers a multi-record format.
func (r *Router) RegisterRecordSet(format string, conv RecordSetConverter, contentTypes ...string) {
	r.Register(FormatDefinition{
		Format:       format,
		Kind:         KindMultiRecord,
		ContentTypes: contentTypes,
		RecordSet:    conv,
	})
}

// Formats returns all registered formats sorted by name.
func (r *Router) Formats() []FormatInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FormatInfo, 0, len(r.formats))
	for _, def := range r.formats {
		out = append(out, FormatInfo{Format: def.Format, Kind: def.Kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Format < out[j].Format })
	return out
}

// Route decides the conversion path for doc. It performs no conversion and
// never touches workflow state; unknown or empty documents fail with an
// invalid-format error.
func (r *Router) Route(doc Document) (RoutingDecision, error) {
	if len(doc.Data) == 0 {
		return RoutingDecision{}, newWorkflowError(KindInvalidFormat, "", ErrEmptyDocument)
	}

	def, ok := r.lookup(doc)
	if !ok {
		declared := declaredType(doc)
		if declared == "" {
			declared = "unknown"
		}
		return RoutingDecision{}, newWorkflowError(KindInvalidFormat, "",
			fmt.Errorf("unsupported file type: %s", declared))
	}
	return RoutingDecision{Format: def.Format, Kind: def.Kind}, nil
}

func (r *Router) lookup(doc Document) (FormatDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ext := fileExtension(doc.Name); ext != "" {
		def, ok := r.formats[ext]
		return def, ok
	}
	if mt := mediaType(doc.ContentType); mt != "" {
		if format, ok := r.types[mt]; ok {
			return r.formats[format], true
		}
	}
	return FormatDefinition{}, false
}

// conversion is the output of a converter call; exactly one field is set.
type conversion struct {
	collection *geojson.FeatureCollection
	records    []RawRecord
}

func (r *Router) convert(ctx context.Context, decision RoutingDecision, doc Document) (conversion, error) {
	r.mu.RLock()
	def, ok := r.formats[decision.Format]
	r.mu.RUnlock()
	if !ok {
		return conversion{}, newWorkflowError(KindInvalidFormat, "",
			fmt.Errorf("unsupported file type: %s", decision.Format))
	}

	switch def.Kind {
	case KindSingleCollection:
		fc, err := def.Collection.ConvertCollection(ctx, doc)
		if err != nil {
			return conversion{}, newWorkflowError(KindConversionFailed, "", err)
		}
		if fc == nil || len(fc.Features) == 0 {
			return conversion{}, newWorkflowError(KindConversionFailed, "", ErrNoRecords)
		}
		return conversion{collection: fc}, nil
	default:
		records, err := def.RecordSet.ConvertRecordSet(ctx, doc)
		if err != nil {
			return conversion{}, newWorkflowError(KindConversionFailed, "", err)
		}
		if len(records) == 0 {
			return conversion{}, newWorkflowError(KindConversionFailed, "", ErrNoRecords)
		}
		return conversion{records: records}, nil
	}
}

func declaredType(doc Document) string {
	if ext := fileExtension(doc.Name); ext != "" {
		return ext
	}
	return mediaType(doc.ContentType)
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), "."))
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mt)
}
