// Package query builds search requests in the datastore query grammar.
//
// A request is a list of tokens: the boolean operators And and Or,
// property comparisons, date-range predicates, and nested groups. The
// builders here only produce well-formed tokens; evaluating them is the
// remote endpoint's job.
package query

import (
	"time"

	"github.com/triage-ai/mcpstore/internal/schema"
)

// Token is one element of a query. The set of implementations is closed.
type Token interface {
	token()
}

// Bool is a boolean operator token.
type Bool string

const (
	And Bool = "AND"
	Or  Bool = "OR"
)

func (Bool) token() {}

// Op is a comparison operator.
type Op string

const (
	Eq  Op = "="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// ValueType tells the endpoint how to compare a value.
type ValueType string

const (
	String  ValueType = "string"
	Number  ValueType = "number"
	Date    ValueType = "date"
	Object  ValueType = "object"
	Boolean ValueType = "boolean"
)

type PropertyOptions struct {
	CaseSensitive bool `json:"caseSensitive,omitempty"`
	StartsWith    bool `json:"startsWith,omitempty"`
	EndsWith      bool `json:"endsWith,omitempty"`
}

// PropertyToken compares one property against a value.
type PropertyToken struct {
	Type           string           `json:"type"`
	Key            string           `json:"key"`
	Value          any              `json:"value"`
	ValueType      ValueType        `json:"valueType"`
	EqualitySymbol Op               `json:"equalitySymbol"`
	Options        *PropertyOptions `json:"options,omitempty"`
}

func (PropertyToken) token() {}

// Property builds a comparison. The value type is inferred from value;
// time.Time values are sent as RFC 3339 strings typed "date".
func Property(key string, op Op, value any) PropertyToken {
	vt := inferValueType(value)
	if t, ok := value.(time.Time); ok {
		value = t.UTC().Format(time.RFC3339Nano)
	}
	return PropertyToken{
		Type:           schema.TokenProperty,
		Key:            key,
		Value:          value,
		ValueType:      vt,
		EqualitySymbol: op,
	}
}

// As overrides the inferred value type.
func (p PropertyToken) As(vt ValueType) PropertyToken {
	p.ValueType = vt
	return p
}

func (p PropertyToken) CaseSensitive() PropertyToken {
	p.Options = p.options()
	p.Options.CaseSensitive = true
	return p
}

func (p PropertyToken) StartsWith() PropertyToken {
	p.Options = p.options()
	p.Options.StartsWith = true
	return p
}

func (p PropertyToken) EndsWith() PropertyToken {
	p.Options = p.options()
	p.Options.EndsWith = true
	return p
}

// options returns a copy so derived tokens never share state.
func (p PropertyToken) options() *PropertyOptions {
	if p.Options == nil {
		return &PropertyOptions{}
	}
	o := *p.Options
	return &o
}

// DateToken is a datesAfter or datesBefore predicate.
type DateToken struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Date      string          `json:"date"`
	ValueType ValueType       `json:"valueType"`
	Options   map[string]bool `json:"options,omitempty"`
}

func (DateToken) token() {}

// DatesAfter matches key after t, or on-or-after when inclusive.
func DatesAfter(key string, t time.Time, inclusive bool) DateToken {
	return dateToken(schema.TokenDatesAfter, "equalToAndAfter", key, t, inclusive)
}

// DatesBefore matches key before t, or on-or-before when inclusive.
func DatesBefore(key string, t time.Time, inclusive bool) DateToken {
	return dateToken(schema.TokenDatesBefore, "equalToAndBefore", key, t, inclusive)
}

func dateToken(kind, option, key string, t time.Time, inclusive bool) DateToken {
	tok := DateToken{
		Type:      kind,
		Key:       key,
		Date:      t.UTC().Format(time.RFC3339Nano),
		ValueType: Date,
	}
	if inclusive {
		tok.Options = map[string]bool{option: true}
	}
	return tok
}

// Group is a nested token list.
type Group []Token

func (Group) token() {}

// All joins tokens with And.
func All(tokens ...Token) Group { return join(And, tokens) }

// Any joins tokens with Or.
func Any(tokens ...Token) Group { return join(Or, tokens) }

func join(op Bool, tokens []Token) Group {
	g := make(Group, 0, 2*len(tokens))
	for i, t := range tokens {
		if i > 0 {
			g = append(g, op)
		}
		g = append(g, t)
	}
	return g
}

// Order is a sort direction.
type Order string

const (
	Asc Order = "asc"
	Dsc Order = "dsc"
)

type Sort struct {
	Key   string `json:"key"`
	Order Order  `json:"order"`
}

// Request is the search tool input.
type Request struct {
	Query []Token        `json:"query"`
	Take  int            `json:"take,omitempty"`
	Sort  *Sort          `json:"sort,omitempty"`
	Page  map[string]any `json:"page,omitempty"`
}

// New starts a request from tokens. No tokens matches everything.
func New(tokens ...Token) *Request {
	if tokens == nil {
		tokens = []Token{}
	}
	return &Request{Query: tokens}
}

func (r *Request) WithTake(n int) *Request {
	r.Take = n
	return r
}

func (r *Request) SortBy(key string, order Order) *Request {
	r.Sort = &Sort{Key: key, Order: order}
	return r
}

// WithPage passes an endpoint-defined page cursor, usually the Page of a
// previous result.
func (r *Request) WithPage(page map[string]any) *Request {
	r.Page = page
	return r
}

// Validate checks r against the search input schema.
func (r *Request) Validate() error {
	return schema.Validate(schema.SearchInputSchema(), r)
}

func inferValueType(v any) ValueType {
	switch v.(type) {
	case string:
		return String
	case bool:
		return Boolean
	case time.Time:
		return Date
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Number
	}
	return Object
}
