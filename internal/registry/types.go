package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/schema"
)

// ToolDefinition is a published tool descriptor, one row of the
// tool_definitions table.
type ToolDefinition struct {
	ToolName     string
	Namespace    string
	Model        string
	Operation    string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any // nil when the operation returns nothing
	SchemaHash   string
	UpdatedAt    time.Time
}

// NewDefinition builds the publishable form of a compiled descriptor. The
// hash covers the name, description and both schemas, so it changes exactly
// when the descriptor does.
func NewDefinition(m model.Descriptor, op schema.Operation, td *schema.ToolDescriptor) (*ToolDefinition, error) {
	canonical, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("NewDefinition: %w", err)
	}
	sum := sha256.Sum256(canonical)

	def := &ToolDefinition{
		ToolName:    td.Name,
		Namespace:   m.Namespace,
		Model:       m.PluralName,
		Operation:   string(op),
		Description: td.Description,
		SchemaHash:  hex.EncodeToString(sum[:]),
	}
	if def.InputSchema, err = td.InputSchema.Map(); err != nil {
		return nil, fmt.Errorf("NewDefinition: input schema: %w", err)
	}
	if td.OutputSchema != nil {
		if def.OutputSchema, err = td.OutputSchema.Map(); err != nil {
			return nil, fmt.Errorf("NewDefinition: output schema: %w", err)
		}
	}
	return def, nil
}

// DefinitionsForCatalog compiles and wraps every tool of every model.
func DefinitionsForCatalog(c *model.Catalog, naming schema.NameStrategy) ([]*ToolDefinition, error) {
	var defs []*ToolDefinition
	for _, m := range c.All() {
		tools, err := schema.ToolsForModel(m, naming)
		if err != nil {
			return nil, err
		}
		for i, td := range tools {
			def, err := NewDefinition(m, schema.Operations[i], td)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}
