package schema

// Query token grammar. A token is one of:
//
//	"AND" | "OR"
//	{type: "property", key, value, valueType, equalitySymbol, options?}
//	{type: "datesAfter", key, date, valueType, options?}
//	{type: "datesBefore", key, date, valueType, options?}
//	[token, ...]  (nested group)
//
// The grammar is closed: adding a token kind changes every search tool's
// input contract.

// Token type discriminators.
const (
	TokenProperty    = "property"
	TokenDatesAfter  = "datesAfter"
	TokenDatesBefore = "datesBefore"
)

var (
	booleanOperators = []string{"AND", "OR"}
	valueTypes       = []string{"string", "number", "date", "object", "boolean"}
	equalitySymbols  = []string{"=", "<", "<=", ">", ">="}
	sortOrders       = []string{"asc", "dsc"}
)

const tokenRef = "#/$defs/token"

// SearchInputSchema returns the fixed query-language input schema shared by
// every search tool.
func SearchInputSchema() *Schema {
	s := object(map[string]*Schema{
		"take": {Type: TypeInteger, Description: "Max records to return"},
		"sort": {
			Type:        TypeObject,
			Description: "Sorting statement",
			Properties: map[string]*Schema{
				"key":   {Type: TypeString, Description: "Property key/column"},
				"order": {Type: TypeString, Enum: sortOrders, Description: "Sort order (asc or dsc)"},
			},
			Required: []string{"key", "order"},
		},
		"page": {Type: TypeObject, Description: "Pagination information (any shape)"},
		"query": {
			Type:        TypeArray,
			Description: "Query tokens",
			Items:       &Schema{Ref: tokenRef},
		},
	}, "query")
	s.Defs = map[string]*Schema{"token": tokenSchema()}
	return s
}

func tokenSchema() *Schema {
	return &Schema{OneOf: []*Schema{
		{Type: TypeString, Enum: booleanOperators, Description: "Boolean query"},
		propertyTokenSchema(),
		dateTokenSchema(TokenDatesAfter, "equalToAndAfter"),
		dateTokenSchema(TokenDatesBefore, "equalToAndBefore"),
		{Type: TypeArray, Items: &Schema{Ref: tokenRef}, Description: "Nested QueryTokens"},
	}}
}

func propertyTokenSchema() *Schema {
	return object(map[string]*Schema{
		"type":           {Type: TypeString, Enum: []string{TokenProperty}, Description: TokenProperty},
		"key":            {Type: TypeString},
		"value":          {},
		"valueType":      {Type: TypeString, Enum: valueTypes},
		"equalitySymbol": {Type: TypeString, Enum: equalitySymbols},
		"options": object(map[string]*Schema{
			"caseSensitive": {Type: TypeBoolean},
			"startsWith":    {Type: TypeBoolean},
			"endsWith":      {Type: TypeBoolean},
		}),
	}, "equalitySymbol", "key", "type", "value", "valueType")
}

func dateTokenSchema(kind, inclusiveOption string) *Schema {
	return object(map[string]*Schema{
		"type":      {Type: TypeString, Enum: []string{kind}, Description: kind},
		"key":       {Type: TypeString},
		"date":      {Type: TypeString, Format: "date-time"},
		"valueType": {Type: TypeString, Enum: valueTypes},
		"options": object(map[string]*Schema{
			inclusiveOption: {Type: TypeBoolean},
		}),
	}, "date", "key", "type", "valueType")
}
