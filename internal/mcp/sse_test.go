package mcp

import (
	"errors"
	"strings"
	"testing"
)

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": comment",
		"event: endpoint",
		"data: /messages?sessionId=abc",
		"",
		"id: 7",
		"data: {\"a\":",
		"data: 1}",
		"",
		"",
		"event: message",
		"data:no-space",
	}, "\n")

	var got []Event
	err := ReadEvents(strings.NewReader(stream), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []Event{
		{Name: "endpoint", Data: "/messages?sessionId=abc"},
		{Name: "message", Data: "{\"a\":\n1}", ID: "7"},
		{Name: "message", Data: "no-space"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestReadEvents_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ReadEvents(strings.NewReader("data: 1\n\ndata: 2\n\n"), func(Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"http": KindStreamable, "SSE": KindEventStream} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("websocket"); err == nil {
		t.Error("expected error for unsupported kind")
	}
}
