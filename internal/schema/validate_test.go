package schema

import (
	"strings"
	"testing"
)

func fullInstance() map[string]any {
	return map[string]any{
		"id":       "item-1",
		"sku":      "SKU-9",
		"notes":    "long text",
		"active":   true,
		"received": "2024-01-02",
		"updated":  "2024-01-02T03:04:05Z",
		"contact":  "ops@example.com",
		"count":    3,
		"owner":    "user-7",
		"price":    9.5,
		"attrs":    map[string]any{"color": "red"},
		"tags":     []any{"a", "b"},
		"status":   "open",
	}
}

func TestValidate_FullInstanceRoundTrip(t *testing.T) {
	s, err := CompileModelSchema(richModel())
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(s, fullInstance()); err != nil {
		t.Fatalf("expected fully populated instance to validate: %v", err)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	s, err := CompileModelSchema(richModel())
	if err != nil {
		t.Fatal(err)
	}
	inst := fullInstance()
	delete(inst, "sku")
	err = Validate(s, inst)
	if err == nil {
		t.Fatal("expected validation failure for missing required field")
	}
	if !strings.Contains(err.Error(), "sku") {
		t.Fatalf("expected error to name the missing field, got: %v", err)
	}
}

func TestValidate_NullableAcceptsNull(t *testing.T) {
	s, err := CompileModelSchema(richModel())
	if err != nil {
		t.Fatal(err)
	}
	inst := fullInstance()
	inst["notes"] = nil
	inst["status"] = nil
	if err := Validate(s, inst); err != nil {
		t.Fatalf("expected null optional fields to validate: %v", err)
	}

	inst = fullInstance()
	inst["sku"] = nil
	if err := Validate(s, inst); err == nil {
		t.Fatal("expected null in a required field to fail")
	}
}

func TestValidate_WrongType(t *testing.T) {
	s, err := CompileModelSchema(richModel())
	if err != nil {
		t.Fatal(err)
	}
	inst := fullInstance()
	inst["count"] = "three"
	if err := Validate(s, inst); err == nil {
		t.Fatal("expected type mismatch to fail")
	}
}

func TestValidate_SearchQueryGrammar(t *testing.T) {
	s := SearchInputSchema()
	valid := map[string]any{
		"take": 10,
		"sort": map[string]any{"key": "name", "order": "asc"},
		"query": []any{
			map[string]any{"type": "property", "key": "name", "value": "Foo", "valueType": "string", "equalitySymbol": "=",
				"options": map[string]any{"caseSensitive": false, "startsWith": true}},
			"AND",
			[]any{
				map[string]any{"type": "datesAfter", "key": "updated", "date": "2024-01-01T00:00:00Z", "valueType": "date"},
				"OR",
				[]any{
					map[string]any{"type": "datesBefore", "key": "updated", "date": "2023-01-01T00:00:00Z", "valueType": "date",
						"options": map[string]any{"equalToAndBefore": true}},
				},
			},
		},
	}
	if err := Validate(s, valid); err != nil {
		t.Fatalf("expected nested query to validate: %v", err)
	}

	cases := map[string]map[string]any{
		"missing query":     {"take": 1},
		"bad operator":      {"query": []any{"XOR"}},
		"bad equality":      {"query": []any{map[string]any{"type": "property", "key": "a", "value": 1, "valueType": "number", "equalitySymbol": "!="}}},
		"unknown token":     {"query": []any{map[string]any{"type": "regex", "key": "a"}}},
		"bad sort order":    {"query": []any{}, "sort": map[string]any{"key": "a", "order": "desc"}},
		"nested bad token":  {"query": []any{[]any{[]any{"NOT"}}}},
		"date missing date": {"query": []any{map[string]any{"type": "datesAfter", "key": "a", "valueType": "date"}}},
	}
	for name, q := range cases {
		if err := Validate(s, q); err == nil {
			t.Errorf("%s: expected validation failure", name)
		}
	}
}

func TestValidate_BulkDeleteInput(t *testing.T) {
	td, err := CompileToolDescriptor(widgets(), OpBulkDelete, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(td.InputSchema, map[string]any{"ids": []string{"a", "b"}}); err != nil {
		t.Fatalf("expected ids payload to validate: %v", err)
	}
	if err := Validate(td.InputSchema, map[string]any{"ids": []any{1, 2}}); err == nil {
		t.Fatal("expected non-string ids to fail")
	}
}

func TestValidate_RetrieveOutputAcceptsNull(t *testing.T) {
	td, err := CompileToolDescriptor(widgets(), OpRetrieve, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(td.OutputSchema, nil); err != nil {
		t.Fatalf("expected null retrieve output to validate: %v", err)
	}
	if err := Validate(td.OutputSchema, map[string]any{"name": "Foo"}); err != nil {
		t.Fatalf("expected record retrieve output to validate: %v", err)
	}
}
