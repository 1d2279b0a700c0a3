package core

import (
	"fmt"
	"sort"
	"strconv"
)

// Properties is the property map of one cable record. Recognised fields are
// stored by FieldID; keys outside the schema are kept in Extra and round-trip
// unchanged.
type Properties struct {
	known [numFields]string
	Extra map[string]string
}

// Get returns the value of a schema field.
func (p *Properties) Get(id FieldID) string {
	return p.known[id]
}

// Set assigns a schema field.
func (p *Properties) Set(id FieldID, value string) {
	p.known[id] = value
}

// Value returns the value for any property name, schema or extra.
func (p *Properties) Value(name string) string {
	if spec, ok := LookupField(name); ok {
		return p.known[spec.ID]
	}
	return p.Extra[name]
}

// SetValue assigns any property name, routing unknown names to Extra.
func (p *Properties) SetValue(name, value string) {
	if spec, ok := LookupField(name); ok {
		p.known[spec.ID] = value
		return
	}
	if p.Extra == nil {
		p.Extra = make(map[string]string)
	}
	p.Extra[name] = value
}

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	out := Properties{known: p.known}
	if len(p.Extra) > 0 {
		out.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Map renders the properties as a GeoJSON property map. Every schema field is
// present; empty schema values encode as null.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, int(numFields)+len(p.Extra))
	for _, spec := range schema {
		if v := p.known[spec.ID]; v != "" {
			out[spec.Name] = v
		} else {
			out[spec.Name] = nil
		}
	}
	for k, v := range p.Extra {
		out[k] = v
	}
	return out
}

// Values renders the properties as plain strings, schema fields first.
func (p Properties) Values() map[string]string {
	out := make(map[string]string, int(numFields)+len(p.Extra))
	for _, spec := range schema {
		out[spec.Name] = p.known[spec.ID]
	}
	for k, v := range p.Extra {
		out[k] = v
	}
	return out
}

// ExtraKeys returns the non-schema keys in sorted order.
func (p Properties) ExtraKeys() []string {
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PropertiesFromValues builds properties from submitted form values.
// The result replaces a record's properties entirely.
func PropertiesFromValues(values map[string]string) Properties {
	var p Properties
	for _, k := range applyOrder(values) {
		p.SetValue(k, values[k])
	}
	return p
}

// PropertiesFromRaw builds properties from a decoded JSON property map.
// nil becomes empty; non-string scalars are formatted.
func PropertiesFromRaw(raw map[string]any) Properties {
	var p Properties
	for _, k := range applyOrder(raw) {
		p.SetValue(k, stringifyProperty(raw[k]))
	}
	return p
}

// applyOrder returns the keys of m in the order they are applied. Several
// keys can name the same schema field ("Condition", "condition "); the
// exact schema spelling is applied last and the rest in sorted order, so
// the same input always yields the same properties.
func applyOrder[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := isSchemaSpelling(keys[i]), isSchemaSpelling(keys[j])
		if ei != ej {
			return ej
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isSchemaSpelling(name string) bool {
	spec, ok := LookupField(name)
	return ok && spec.Name == name
}

func stringifyProperty(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
