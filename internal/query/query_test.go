package query

import (
	"encoding/json"
	"testing"
	"time"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestProperty_JSON(t *testing.T) {
	got := mustJSON(t, Property("name", Eq, "Foo").CaseSensitive().StartsWith())
	want := `{"type":"property","key":"name","value":"Foo","valueType":"string","equalitySymbol":"=","options":{"caseSensitive":true,"startsWith":true}}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestProperty_InfersValueType(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		value any
		want  ValueType
	}{
		{"x", String},
		{42, Number},
		{3.5, Number},
		{true, Boolean},
		{ts, Date},
		{map[string]any{"a": 1}, Object},
	}
	for _, tc := range cases {
		if got := Property("k", Gte, tc.value).ValueType; got != tc.want {
			t.Errorf("%v: expected %s, got %s", tc.value, tc.want, got)
		}
	}
	if v := Property("k", Gt, ts).Value; v != "2024-05-01T12:00:00Z" {
		t.Errorf("expected RFC 3339 date, got %v", v)
	}
	if vt := Property("k", Eq, "5").As(Number).ValueType; vt != Number {
		t.Errorf("expected override, got %s", vt)
	}
}

func TestProperty_OptionsNotShared(t *testing.T) {
	base := Property("name", Eq, "a").CaseSensitive()
	derived := base.EndsWith()
	if base.Options.EndsWith {
		t.Fatal("deriving a token mutated the original")
	}
	if !derived.Options.CaseSensitive || !derived.Options.EndsWith {
		t.Fatalf("unexpected derived options %+v", derived.Options)
	}
}

func TestDateTokens(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	got := mustJSON(t, DatesAfter("createdAt", ts, true))
	want := `{"type":"datesAfter","key":"createdAt","date":"2024-01-02T02:04:05Z","valueType":"date","options":{"equalToAndAfter":true}}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	got = mustJSON(t, DatesBefore("createdAt", ts, false))
	want = `{"type":"datesBefore","key":"createdAt","date":"2024-01-02T02:04:05Z","valueType":"date"}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestJoin(t *testing.T) {
	g := Any(Property("a", Eq, 1), Property("b", Eq, 2), Property("c", Eq, 3))
	if len(g) != 5 || g[1] != Or || g[3] != Or {
		t.Fatalf("unexpected group %v", g)
	}
	if len(All()) != 0 {
		t.Fatal("expected empty group")
	}
}

func TestRequest_ValidatesAgainstSearchSchema(t *testing.T) {
	now := time.Now()
	cases := map[string]*Request{
		"empty":           New(),
		"single property": New(Property("name", Eq, "Foo")),
		"nested": New(
			Property("status", Eq, "open"),
			And,
			Any(
				DatesAfter("createdAt", now.Add(-time.Hour), true),
				All(Property("priority", Gte, 3), DatesBefore("dueAt", now, false)),
			),
		).WithTake(25).SortBy("createdAt", Dsc).WithPage(map[string]any{"cursor": "abc"}),
	}
	for name, r := range cases {
		if err := r.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestRequest_InvalidRejected(t *testing.T) {
	bad := New(Property("name", "~", "Foo"))
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown operator to be rejected")
	}

	badSort := New().SortBy("name", "up")
	if err := badSort.Validate(); err == nil {
		t.Fatal("expected unknown sort order to be rejected")
	}
}

func TestRequest_JSON(t *testing.T) {
	got := mustJSON(t, New(And, Group{Or}).WithTake(1))
	want := `{"query":["AND",["OR"]],"take":1}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
