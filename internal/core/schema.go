package core

import "strings"

// FieldKind describes how a property value is checked.
type FieldKind int

const (
	FieldText  FieldKind = iota // free text, any value accepted
	FieldCoded                  // value must be one of Codes
)

func (k FieldKind) String() string {
	if k == FieldCoded {
		return "coded"
	}
	return "text"
}

// FieldID identifies a recognised cable property. The zero value is the
// first schema field; use LookupField to resolve names.
type FieldID int

const (
	FieldBuriedDepth FieldID = iota
	FieldCategoryOfCable
	FieldCondition
	FieldNameLanguage
	FieldName
	FieldNameUsage
	FieldDateEnd
	FieldDateStart
	FieldStatus
	FieldScaleMinimum
	FieldInfoFileLocator
	FieldInfoFileReference
	FieldInfoHeadline
	FieldInfoLanguage
	FieldInfoText
	FieldComponentOf
	FieldUpdates
	FieldPositions
	FieldProvidesInformation

	numFields
)

// FieldSpec defines validation rules for a single cable property.
type FieldSpec struct {
	ID       FieldID
	Name     string    // Property key as it appears in GeoJSON
	Kind     FieldKind // Text or coded
	Required bool      // Record cannot be committed while empty
	Codes    []string  // Valid values for FieldCoded
	Help     string    // Explanation of the codes, shown next to the input
}

// schema is the process-wide property table, in the order the converters
// emit properties. It is never mutated.
var schema = [numFields]FieldSpec{
	{ID: FieldBuriedDepth, Name: "Buried Depth"},
	{
		ID:    FieldCategoryOfCable,
		Name:  "Category of Cable",
		Kind:  FieldCoded,
		Codes: []string{"1", "6", "7", "9", "10", "Unknown"},
		Help:  "1 : power line, 6 : mooring cable, 7 : ferry, 9: junction cable, 10 : telecommunications cable, Unknown: Not classified",
	},
	{
		ID:       FieldCondition,
		Name:     "Condition",
		Kind:     FieldCoded,
		Required: true,
		Codes:    []string{"1", "5", "Unknown"},
		Help:     "1: under construction, 5: planned construction, Unknown: Condition not classified",
	},
	{ID: FieldNameLanguage, Name: "[Feature Name]: Language"},
	{ID: FieldName, Name: "[Feature Name]: Name"},
	{ID: FieldNameUsage, Name: "[Feature Name]: Name Usage"},
	{ID: FieldDateEnd, Name: "[Fixed Date Range]: Date End"},
	{ID: FieldDateStart, Name: "[Fixed Date Range]: Date Start"},
	{
		ID:    FieldStatus,
		Name:  "Status",
		Kind:  FieldCoded,
		Codes: []string{"1", "4", "13", "18", "Unknown"},
		Help:  "1: permanent, 4: not in use, 13: historic, 18: existence doubtful, Unknown: Status not classified",
	},
	{ID: FieldScaleMinimum, Name: "Scale Minimum"},
	{ID: FieldInfoFileLocator, Name: "[Information]: File Locator"},
	{ID: FieldInfoFileReference, Name: "[Information]: File Reference"},
	{ID: FieldInfoHeadline, Name: "[Information]: Headline"},
	{ID: FieldInfoLanguage, Name: "[Information]: Language"},
	{ID: FieldInfoText, Name: "[Information]: Text"},
	{ID: FieldComponentOf, Name: "Feature Association: Component of"},
	{ID: FieldUpdates, Name: "Feature Association: Updates"},
	{ID: FieldPositions, Name: "Feature Association: Positions"},
	{ID: FieldProvidesInformation, Name: "Feature Association: Provides Information"},
}

var fieldsByName = func() map[string]FieldID {
	m := make(map[string]FieldID, len(schema))
	for _, spec := range schema {
		m[strings.ToLower(spec.Name)] = spec.ID
	}
	return m
}()

// Fields returns the property schema in display order.
// The returned slice is a copy; callers may not change the schema.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(schema))
	copy(out, schema[:])
	return out
}

// LookupField resolves a property name (case-insensitive) to its schema entry.
func LookupField(name string) (FieldSpec, bool) {
	id, ok := fieldsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FieldSpec{}, false
	}
	return schema[id], true
}

// Spec returns the schema entry for id.
func (id FieldID) Spec() FieldSpec {
	return schema[id]
}

// String returns the property name.
func (id FieldID) String() string {
	if id < 0 || id >= numFields {
		return "unknown"
	}
	return schema[id].Name
}

// RequiredFields returns the names of all required properties.
func RequiredFields() []string {
	var names []string
	for _, spec := range schema {
		if spec.Required {
			names = append(names, spec.Name)
		}
	}
	return names
}

func (s FieldSpec) hasCode(value string) bool {
	for _, code := range s.Codes {
		if strings.EqualFold(code, value) {
			return true
		}
	}
	return false
}
