package llm

import (
	"sort"
	"strings"

	"google.golang.org/genai"
)

// Schema is a provider-neutral subset of JSON Schema. Every listed property
// is required and objects reject unknown properties.
type Schema struct {
	Type        string // object, array, string, integer, number, boolean
	Description string
	Properties  map[string]*Schema
	Order       []string // property order; defaults to sorted keys
	Items       *Schema
	Enum        []string
	Pattern     string
}

// JSONSchema renders the schema as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if s.Items != nil {
		out["items"] = s.Items.JSONSchema()
	}
	if s.Type == "object" {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		out["required"] = s.keys()
		out["additionalProperties"] = false
	}
	return out
}

// Describe renders the schema as indented text for providers that take the
// schema as prompt instructions.
func (s *Schema) Describe() string {
	var b strings.Builder
	s.describe(&b, "", "")
	return b.String()
}

func (s *Schema) describe(b *strings.Builder, indent, name string) {
	b.WriteString(indent)
	if name != "" {
		b.WriteString(name + ": ")
	}
	b.WriteString(s.Type)
	if len(s.Enum) > 0 {
		b.WriteString(" one of [" + strings.Join(s.Enum, " | ") + "]")
	}
	if s.Description != "" {
		b.WriteString(" - " + s.Description)
	}
	b.WriteString("\n")
	if s.Items != nil {
		s.Items.describe(b, indent+"  ", "items")
	}
	for _, k := range s.keys() {
		s.Properties[k].describe(b, indent+"  ", k)
	}
}

func (s *Schema) keys() []string {
	if len(s.Order) > 0 {
		return s.Order
	}
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var genaiTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
}

// Genai converts the schema for Gemini's ResponseSchema.
func (s *Schema) Genai() *genai.Schema {
	out := &genai.Schema{
		Type:        genaiTypes[s.Type],
		Description: s.Description,
		Enum:        s.Enum,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if s.Items != nil {
		out.Items = s.Items.Genai()
	}
	if s.Type == "object" {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = p.Genai()
		}
		out.Required = s.keys()
		out.PropertyOrdering = s.keys()
	}
	return out
}
