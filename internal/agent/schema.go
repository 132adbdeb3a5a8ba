package agent

import "strings"

// Schema type names, in the upper-case spelling the Gemini API expects.
const (
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
	TypeString = "STRING"
)

// Schema is the subset of OpenAPI schema both providers understand.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// jsonSchema converts s to standard JSON Schema spelling (lower-case types).
func (s *Schema) jsonSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": strings.ToLower(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.jsonSchema()
		}
		out["properties"] = props
	}
	if s.Items != nil {
		out["items"] = s.Items.jsonSchema()
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}
