// Package core provides the business logic for cable record ingestion.
//
// This package is the heart of the service, containing all domain logic
// independent of transport and storage. It can be driven by the web
// handlers, by tests with fake collaborators, or by any other frontend.
//
// # Architecture
//
//   - Schema: the fixed table of cable properties ([Fields], [LookupField]).
//   - Validation: per-field classification into ok, missing or nonstandard
//     ([Validate]); only missing required fields block a commit.
//   - Router: picks the conversion path from a document's declared type
//     ([Router.Route]); single-collection formats produce one GeoJSON
//     collection, multi-record formats produce labelled records.
//   - Workflow: the per-client controller that owns the [EditSession] and
//     serializes commits ([Workflow.Submit]).
//   - Progress: a cosmetic estimate shown while a conversion runs
//     ([ProgressEstimator]).
//   - Summary: the end view of identifiers and export/confirm targets
//     ([Summarize], [BuildCollection]).
//
// # Collaborators
//
// Conversion, persistence, confirmation and export are interfaces
// ([CollectionConverter], [RecordSetConverter], [RecordPersister],
// [CollectionStore], [Exporter]) implemented by the convert, store and export
// packages.
//
// # Error Handling
//
// Failures are classified as [WorkflowError] values with a kind such as
// invalid-format or persistence-failed. [MapError] turns any error into a
// user message with a support code.
package core
