package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate checks value against s. A property marked nullable also accepts
// JSON null. value is normalized through JSON first, so structs and typed
// maps are accepted.
func Validate(s *Schema, value any) error {
	doc, err := s.Map()
	if err != nil {
		return fmt.Errorf("Validate: schema marshal: %w", err)
	}
	expandNullable(doc)

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return fmt.Errorf("Validate: schema compile: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("Validate: schema compile: %w", err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("Validate: value marshal: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("Validate: value unmarshal: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("Validate: %w", err)
	}
	return nil
}

// expandNullable rewrites {type: T, nullable: true} into {type: [T, "null"]}
// throughout the document.
func expandNullable(node any) {
	switch n := node.(type) {
	case map[string]any:
		// A "properties" map may itself hold a property called "nullable",
		// so only the boolean keyword is consumed.
		if nullable, isBool := n["nullable"].(bool); isBool {
			if typ, ok := n["type"].(string); ok && nullable {
				n["type"] = []any{typ, TypeNull}
			}
			if enum, ok := n["enum"].([]any); ok && nullable {
				n["enum"] = append(enum, nil)
			}
			delete(n, "nullable")
		}
		for _, child := range n {
			expandNullable(child)
		}
	case []any:
		for _, child := range n {
			expandNullable(child)
		}
	}
}
