package storeerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("Retrieve: %w", Wrap(Connection, "dial endpoint", errors.New("connection refused")))

	if !errors.Is(err, ErrConnection) {
		t.Fatal("expected wrapped connection error to match ErrConnection")
	}
	if errors.Is(err, ErrToolInvocation) {
		t.Fatal("connection error must not match ErrToolInvocation")
	}
}

func TestIs_EmptyKindNeverMatches(t *testing.T) {
	err := New(MalformedResponse, "no content")
	if errors.Is(err, &Error{}) {
		t.Fatal("expected empty-kind target not to match")
	}
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := Wrap(ToolInvocation, "tool acct_widgets_retrieve failed", errors.New("not found"))
	msg := err.Error()
	if !strings.Contains(msg, "tool_invocation_error") || !strings.Contains(msg, "not found") {
		t.Fatalf("unexpected message: %s", msg)
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(fmt.Errorf("outer: %w", New(UnsupportedPropertyKind, "Geo"))); k != UnsupportedPropertyKind {
		t.Fatalf("expected unsupported_property_kind, got %q", k)
	}
	if k := KindOf(errors.New("plain")); k != "" {
		t.Fatalf("expected empty kind for plain error, got %q", k)
	}
}

func TestWithPayload(t *testing.T) {
	err := New(ToolInvocation, "remote error").WithPayload(map[string]any{"code": 404})
	payload, ok := err.Payload.(map[string]any)
	if !ok || payload["code"] != 404 {
		t.Fatalf("unexpected payload: %#v", err.Payload)
	}
}
