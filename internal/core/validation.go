package core

// validation.go classifies cable property values against the schema.
//
// Validation is advisory except for required fields: a value outside a coded
// field's domain is flagged as nonstandard but never blocks a commit, while an
// empty required field does. The classification is pure and safe to call from
// any goroutine.

import (
	"fmt"
	"strings"
)

// Severity is the outcome of checking one property value.
type Severity string

const (
	SeverityOK          Severity = "ok"
	SeverityMissing     Severity = "missing"
	SeverityNonstandard Severity = "nonstandard"
)

// Validate classifies value for the named field. Values are trimmed before
// classification. Names outside the schema are treated as optional free text.
func Validate(field, value string) Severity {
	spec, ok := LookupField(field)
	if !ok {
		return SeverityOK
	}
	return validateSpec(spec, value)
}

func validateSpec(spec FieldSpec, value string) Severity {
	value = strings.TrimSpace(value)
	if value == "" {
		if spec.Required {
			return SeverityMissing
		}
		return SeverityOK
	}
	if spec.Kind == FieldCoded && !spec.hasCode(value) {
		return SeverityNonstandard
	}
	return SeverityOK
}

// FieldReport is the validation annotation for one schema field.
type FieldReport struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Codes    []string `json:"codes,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// ValidateProperties annotates every schema field of p, in schema order.
func ValidateProperties(p Properties) []FieldReport {
	reports := make([]FieldReport, 0, numFields)
	for _, spec := range schema {
		v := p.Get(spec.ID)
		reports = append(reports, FieldReport{
			Name:     spec.Name,
			Value:    v,
			Severity: validateSpec(spec, v),
			Kind:     spec.Kind.String(),
			Required: spec.Required,
			Codes:    spec.Codes,
			Help:     spec.Help,
		})
	}
	return reports
}

// SeverityCounts tallies reports by severity.
type SeverityCounts struct {
	OK          int `json:"ok"`
	Missing     int `json:"missing"`
	Nonstandard int `json:"nonstandard"`
}

// CountSeverities summarises the validation state of p.
func CountSeverities(p Properties) SeverityCounts {
	var c SeverityCounts
	for _, spec := range schema {
		switch validateSpec(spec, p.Get(spec.ID)) {
		case SeverityMissing:
			c.Missing++
		case SeverityNonstandard:
			c.Nonstandard++
		default:
			c.OK++
		}
	}
	return c
}

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Property name
	Value   string // The rejected value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the blocking problems of a record.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// CheckProperties returns the blocking problems of p. Nonstandard values are
// not blocking.
func CheckProperties(p Properties) ValidationResult {
	result := ValidationResult{Valid: true}
	for _, spec := range schema {
		if validateSpec(spec, p.Get(spec.ID)) == SeverityMissing {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   spec.Name,
				Message: "required field is empty",
			})
		}
	}
	return result
}

// CheckCommittable returns a validation-blocked error naming every missing
// required field of the record, or nil when it may be committed.
func CheckCommittable(label string, p Properties) error {
	result := CheckProperties(p)
	if result.Valid {
		return nil
	}
	fields := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		fields[i] = e.Field
	}
	return &WorkflowError{
		Kind:   KindValidationBlocked,
		Label:  label,
		Fields: fields,
		Err:    fmt.Errorf("required field is empty: %s", strings.Join(fields, ", ")),
	}
}
