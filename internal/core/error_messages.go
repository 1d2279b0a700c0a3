package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Classified workflow errors (WorkflowError) map by kind; state
// errors map by identity; anything else falls back to substring patterns.
//
// # Format Errors (FMT)
//
//	FMT001 - Unsupported file: the file type is not one the converter accepts
//	         Action: Upload a KML, GeoJSON, CSV or XLSX file
//	FMT002 - Empty file: the uploaded file has no content
//	         Action: Choose a file that contains cable data
//
// # Conversion Errors (CNV)
//
//	CNV001 - Conversion failed: the converter could not read the document
//	         Action: Check the file and upload it again
//	CNV002 - No cables: the document converted but held no line features
//	         Action: Make sure the file contains lines with two or more points
//	CNV003 - System busy: every conversion slot is in use
//	         Action: Please wait a moment and try again
//
// # Validation Errors (VAL)
//
//	VAL001 - Required field: a required property is empty
//	         Action: Fill in every required field before saving
//
// # Persistence Errors (PER)
//
//	PER001 - Save failed: the record could not be stored
//	         Action: Your edits are kept; try saving this cable again
//
// # Export and Confirmation Errors (EXP, CNF)
//
//	EXP001 - Export failed: the file could not be generated
//	         Action: Try the export again
//	EXP002 - Unknown export format
//	         Action: Choose GeoJSON or XML
//	CNF001 - Confirmation failed: the collection could not be stored
//	         Action: Try confirming again
//
// # Workflow State Errors (WF)
//
//	WF001 - No session: there is no document being edited
//	        Action: Upload a file to start
//	WF002 - Wrong step: the action does not apply at this step
//	        Action: Refresh to see the current step
//	WF003 - Save in progress: the previous save has not finished
//	        Action: Wait for the current save to complete
//	WF004 - Already running: the same action is still running
//	        Action: Wait for it to finish
//	WF005 - Session closed: the session ended before the call finished
//	        Action: Upload the file again to continue
//	WF006 - Unknown cable: no record has that label
//	        Action: Refresh the summary and try again
//	WF007 - Conversion running: a file is still being converted
//	        Action: Wait for it to finish or close it first
//
// # Database Errors (DB)
//
//	DB001 - Connection refused / DB002 - Timeout
//
// # Rate Limiting (RATE001)
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the application
// logs for the original technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgUnsupported   = UserMessage{"The file type is not supported", "Upload a KML, GeoJSON, CSV or XLSX file", "FMT001"}
	msgEmptyFile     = UserMessage{"The uploaded file is empty", "Choose a file that contains cable data", "FMT002"}
	msgConversion    = UserMessage{"The file could not be converted", "Check the file and upload it again", "CNV001"}
	msgNoRecords     = UserMessage{"No cable lines were found in the file", "Make sure the file contains lines with two or more points", "CNV002"}
	msgBusy          = UserMessage{"The system is busy converting other files", "Please wait a moment and try again", "CNV003"}
	msgRequired      = UserMessage{"A required field is empty", "Fill in every required field before saving", "VAL001"}
	msgPersistence   = UserMessage{"The cable could not be saved", "Your edits are kept; try saving this cable again", "PER001"}
	msgExport        = UserMessage{"The export could not be generated", "Try the export again", "EXP001"}
	msgUnknownExport = UserMessage{"Unknown export format", "Choose GeoJSON or XML", "EXP002"}
	msgConfirmation  = UserMessage{"The collection could not be stored", "Try confirming again", "CNF001"}
)

// kindMessages maps classified workflow errors to user messages.
var kindMessages = map[ErrorKind]UserMessage{
	KindInvalidFormat:      msgUnsupported,
	KindConversionFailed:   msgConversion,
	KindValidationBlocked:  msgRequired,
	KindPersistenceFailed:  msgPersistence,
	KindExportFailed:       msgExport,
	KindConfirmationFailed: msgConfirmation,
}

// sentinelMessages maps specific errors; checked before kinds so that a
// wrapped cause can refine its kind's message.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrEmptyDocument, msgEmptyFile},
	{ErrNoRecords, msgNoRecords},
	{ErrTooManyConversions, msgBusy},
	{ErrUnknownExport, msgUnknownExport},
	{ErrNoSession, UserMessage{"There is no file being edited", "Upload a file to start", "WF001"}},
	{ErrWrongStage, UserMessage{"That action does not apply at this step", "Refresh to see the current step", "WF002"}},
	{ErrCommitInFlight, UserMessage{"The previous save has not finished", "Wait for the current save to complete", "WF003"}},
	{ErrActionInFlight, UserMessage{"The same action is still running", "Wait for it to finish", "WF004"}},
	{ErrSessionClosed, UserMessage{"The session ended before the request finished", "Upload the file again to continue", "WF005"}},
	{ErrUnknownRecord, UserMessage{"No cable has that label", "Refresh the summary and try again", "WF006"}},
	{ErrConversionInFlight, UserMessage{"A file is still being converted", "Wait for it to finish or close it first", "WF007"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch untyped errors (case-insensitive, first match wins).
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB001"}},
	{"timeout", UserMessage{"The operation timed out", "Please try again later", "DB002"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{"file too large", UserMessage{"The file exceeds the maximum upload size", "Split the file or simplify its geometry", "FMT003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FMT004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "ERR001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Please try again", "ERR002"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}
	if kind, ok := KindOf(err); ok {
		if msg, ok := kindMessages[kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
