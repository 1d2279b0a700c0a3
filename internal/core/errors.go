package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the ingestion workflow.
type ErrorKind string

const (
	KindInvalidFormat      ErrorKind = "invalid-format"
	KindConversionFailed   ErrorKind = "conversion-failed"
	KindValidationBlocked  ErrorKind = "validation-blocked"
	KindPersistenceFailed  ErrorKind = "persistence-failed"
	KindExportFailed       ErrorKind = "export-failed"
	KindConfirmationFailed ErrorKind = "confirmation-failed"
)

// WorkflowError is a classified workflow failure. Label names the record it
// concerns, if any.
type WorkflowError struct {
	Kind   ErrorKind
	Label  string
	Fields []string // Missing required fields for validation-blocked errors
	Err    error
}

func (e *WorkflowError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Label, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a WorkflowError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind, true
	}
	return "", false
}

func newWorkflowError(kind ErrorKind, label string, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Label: label, Err: err}
}

// State errors returned when an operation does not fit the workflow stage.
var (
	ErrNoSession          = errors.New("no active edit session")
	ErrWrongStage         = errors.New("operation not allowed in current stage")
	ErrCommitInFlight     = errors.New("commit in flight for this session")
	ErrActionInFlight     = errors.New("action already in flight for this record")
	ErrConversionInFlight = errors.New("conversion in flight for this session")
	ErrSessionClosed      = errors.New("edit session closed")
	ErrUnknownRecord      = errors.New("unknown record label")
	ErrUnknownExport      = errors.New("unknown export format")
	ErrEmptyDocument      = errors.New("empty file")
	ErrNoRecords          = errors.New("no cable features found in file")
)
