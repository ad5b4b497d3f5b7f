package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/triage-ai/mcpstore/internal/model"
	"github.com/triage-ai/mcpstore/internal/storeerr"
)

// Operation is a storage operation exposed as a remote tool.
type Operation string

const (
	OpSave       Operation = "save"
	OpRetrieve   Operation = "retrieve"
	OpDelete     Operation = "delete"
	OpSearch     Operation = "search"
	OpBulkInsert Operation = "bulkInsert"
	OpBulkDelete Operation = "bulkDelete"
)

// Operations lists every operation in publication order.
var Operations = []Operation{OpSave, OpRetrieve, OpDelete, OpSearch, OpBulkInsert, OpBulkDelete}

// ErrUnknownOperation is returned for an operation outside Operations.
var ErrUnknownOperation = errors.New("unknown operation")

// NameStrategy derives the tool name for a model operation. It must be pure.
type NameStrategy func(m model.Descriptor, op Operation) string

var nonAlnumRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DefaultToolName is lowercase(namespace_pluralName_operation) with every run
// of non-alphanumeric characters collapsed to a single underscore.
func DefaultToolName(m model.Descriptor, op Operation) string {
	raw := m.Namespace + "_" + m.PluralName + "_" + string(op)
	return strings.ToLower(nonAlnumRun.ReplaceAllString(raw, "_"))
}

// PropertyType maps a property kind to its structural primitive.
func PropertyType(kind model.Kind) (string, error) {
	switch kind {
	case model.KindText, model.KindBigText, model.KindDate, model.KindDatetime,
		model.KindEmail, model.KindModelReference, model.KindUniqueID:
		return TypeString, nil
	case model.KindInteger:
		return TypeInteger, nil
	case model.KindNumber:
		return TypeNumber, nil
	case model.KindBoolean:
		return TypeBoolean, nil
	case model.KindArray:
		return TypeArray, nil
	case model.KindObject:
		return TypeObject, nil
	}
	return "", storeerr.Newf(storeerr.UnsupportedPropertyKind, "unsupported property kind %q", kind)
}

func propertyFormat(kind model.Kind) string {
	switch kind {
	case model.KindDate:
		return "date"
	case model.KindDatetime:
		return "date-time"
	case model.KindEmail:
		return "email"
	}
	return ""
}

// PropertySchema compiles one property. Properties that are not required are
// marked nullable.
func PropertySchema(p model.Property) (*Schema, error) {
	typ, err := PropertyType(p.Kind)
	if err != nil {
		return nil, err
	}
	s := &Schema{
		Type:        typ,
		Description: p.Description,
		Format:      propertyFormat(p.Kind),
		Nullable:    !p.Required,
	}
	if len(p.Choices) > 0 {
		s.Enum = append([]string(nil), p.Choices...)
	}
	return s, nil
}

// CompileModelSchema converts a model's properties into an object schema.
func CompileModelSchema(m model.Descriptor) (*Schema, error) {
	props := make(map[string]*Schema, len(m.Properties))
	for _, name := range m.PropertyNames() {
		ps, err := PropertySchema(m.Properties[name])
		if err != nil {
			return nil, fmt.Errorf("CompileModelSchema: %s.%s: %w", m.Key(), name, err)
		}
		props[name] = ps
	}
	return object(props, m.RequiredNames()...), nil
}

// CompileToolDescriptor builds the descriptor for one model operation. A nil
// naming strategy selects DefaultToolName.
func CompileToolDescriptor(m model.Descriptor, op Operation, naming NameStrategy) (*ToolDescriptor, error) {
	if naming == nil {
		naming = DefaultToolName
	}
	full, err := CompileModelSchema(m)
	if err != nil {
		return nil, err
	}

	td := &ToolDescriptor{Name: naming(m, op)}
	switch op {
	case OpSave:
		td.Description = fmt.Sprintf("Save (create or update) a %s record", m.PluralName)
		td.InputSchema = full
		td.OutputSchema = full
	case OpRetrieve:
		td.Description = fmt.Sprintf("Retrieve a %s record by ID", m.PluralName)
		td.InputSchema = idSchema()
		td.OutputSchema = &Schema{OneOf: []*Schema{full, nullSchema()}}
	case OpDelete:
		td.Description = fmt.Sprintf("Delete a %s record by ID", m.PluralName)
		td.InputSchema = idSchema()
		td.OutputSchema = nullSchema()
	case OpSearch:
		td.Description = fmt.Sprintf("Search for %s records", m.PluralName)
		td.InputSchema = SearchInputSchema()
		td.OutputSchema = object(map[string]*Schema{
			"instances": {Type: TypeArray, Items: full},
			"page":      {Type: TypeObject},
		}, "instances")
	case OpBulkInsert:
		td.Description = fmt.Sprintf("Bulk insert %s records", m.PluralName)
		td.InputSchema = object(map[string]*Schema{
			"items": {Type: TypeArray, Items: full},
		}, "items")
		td.OutputSchema = nullSchema()
	case OpBulkDelete:
		td.Description = fmt.Sprintf("Bulk delete %s records by IDs", m.PluralName)
		td.InputSchema = object(map[string]*Schema{
			"ids": {Type: TypeArray, Items: &Schema{Type: TypeString}},
		}, "ids")
		td.OutputSchema = nullSchema()
	default:
		return nil, fmt.Errorf("CompileToolDescriptor: %w: %q", ErrUnknownOperation, op)
	}
	return td, nil
}

// ToolsForModel compiles every operation of a model, in Operations order.
func ToolsForModel(m model.Descriptor, naming NameStrategy) ([]*ToolDescriptor, error) {
	tools := make([]*ToolDescriptor, 0, len(Operations))
	for _, op := range Operations {
		td, err := CompileToolDescriptor(m, op, naming)
		if err != nil {
			return nil, err
		}
		tools = append(tools, td)
	}
	return tools, nil
}

func idSchema() *Schema {
	return object(map[string]*Schema{"id": {Type: TypeString}}, "id")
}
