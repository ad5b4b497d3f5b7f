// Package schema compiles model descriptors into structural schemas and
// remote tool descriptors. Compilation is pure: identical models produce
// byte-identical descriptors when marshaled.
package schema

import "encoding/json"

// Primitive structural types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// Schema is a JSON-Schema-like description of a value's shape.
// Every name in Required must be a key of Properties.
type Schema struct {
	Ref         string             `json:"$ref,omitempty"`
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Format      string             `json:"format,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"` // sorted
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	OneOf       []*Schema          `json:"oneOf,omitempty"`
	Nullable    bool               `json:"nullable,omitempty"`
	Defs        map[string]*Schema `json:"$defs,omitempty"`
}

// Map converts the schema into a generic JSON object.
func (s *Schema) Map() (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToolDescriptor is a named, remotely invocable operation with its
// request and response contracts.
type ToolDescriptor struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	InputSchema  *Schema `json:"inputSchema"`
	OutputSchema *Schema `json:"outputSchema"`
}

func object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func nullSchema() *Schema {
	return &Schema{Type: TypeNull}
}
