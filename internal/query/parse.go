package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operators in match order; two-character operators come first.
var ops = []Op{Gte, Lte, Eq, Lt, Gt}

// ParseCondition parses "key<op>value", for example "name=Foo" or
// "age>=30". Values that decode as JSON numbers, booleans or objects keep
// that type; RFC 3339 timestamps become dates; anything else is a string.
func ParseCondition(expr string) (PropertyToken, error) {
	for i := 0; i < len(expr); i++ {
		for _, op := range ops {
			if !strings.HasPrefix(expr[i:], string(op)) {
				continue
			}
			key := strings.TrimSpace(expr[:i])
			if key == "" {
				return PropertyToken{}, fmt.Errorf("condition %q: missing property", expr)
			}
			return Property(key, op, parseValue(expr[i+len(op):])), nil
		}
	}
	return PropertyToken{}, fmt.Errorf("condition %q: expected one of = < <= > >=", expr)
}

func parseValue(raw string) any {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool, map[string]any, string:
			return v
		}
	}
	return raw
}

// ParseSort parses "key" or "key:asc" / "key:dsc".
func ParseSort(expr string) (*Sort, error) {
	key, order, found := strings.Cut(expr, ":")
	if key == "" {
		return nil, fmt.Errorf("sort %q: missing property", expr)
	}
	if !found {
		return &Sort{Key: key, Order: Asc}, nil
	}
	switch Order(order) {
	case Asc, Dsc:
		return &Sort{Key: key, Order: Order(order)}, nil
	}
	return nil, fmt.Errorf("sort %q: order must be asc or dsc", expr)
}

// ParseDate parses "key=RFC3339" into a date-range token built by mk,
// which is DatesAfter or DatesBefore.
func ParseDate(expr string, inclusive bool, mk func(string, time.Time, bool) DateToken) (DateToken, error) {
	key, raw, found := strings.Cut(expr, "=")
	if !found || key == "" {
		return DateToken{}, fmt.Errorf("date %q: expected key=RFC3339", expr)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return DateToken{}, fmt.Errorf("date %q: %w", expr, err)
	}
	return mk(key, t, inclusive), nil
}
