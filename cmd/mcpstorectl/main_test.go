package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/mcpstore/internal/mcp"
	"github.com/triage-ai/mcpstore/internal/mcp/mcptest"
)

const catalogYAML = `models:
  - namespace: acct
    pluralName: Widgets
    properties:
      id:
        kind: UniqueId
      name:
        kind: Text
        required: true
  - namespace: crm
    pluralName: Contacts
    properties:
      email:
        kind: Email
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"MCPSTORE_URL", "MCPSTORE_TRANSPORT", "MCPSTORE_OAUTH_TOKEN", "MCPSTORE_OAUTH_TOKEN_URL",
		"MCPSTORE_OAUTH_CLIENT_ID", "MCPSTORE_OAUTH_CLIENT_SECRET", "MCPSTORE_API_KEY", "MCPSTORE_MODELS"} {
		t.Setenv(k, "")
	}
	t.Setenv("MCPSTORE_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "mcpstorectl dev\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	if err != nil {
		t.Fatal(err)
	}
	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		switch {
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		case strings.HasPrefix(line, "hash:"):
			hash = strings.TrimSpace(strings.TrimPrefix(line, "hash:"))
		}
	}
	if !strings.HasPrefix(key, "msk_") {
		t.Fatalf("unexpected key %q", key)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Fatalf("hash does not match key: %v", err)
	}
}

func TestTools(t *testing.T) {
	out, err := run(t, "tools", "--models", writeCatalog(t), "--namespace", "crm")
	if err != nil {
		t.Fatal(err)
	}
	var tools []map[string]any
	if err := json.Unmarshal([]byte(out), &tools); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(tools) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(tools))
	}
	if tools[0]["name"] != "crm_contacts_save" {
		t.Fatalf("unexpected first tool %v", tools[0]["name"])
	}
}

func TestTools_PublishNeedsDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := run(t, "tools", "--models", writeCatalog(t), "--publish")
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

func TestOperationsAgainstEndpoint(t *testing.T) {
	srv := mcptest.NewServer(func(_ context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, *mcp.RPCError) {
		switch name {
		case "acct_widgets_save":
			var obj map[string]any
			_ = json.Unmarshal(args, &obj)
			obj["id"] = "w1"
			return mcptest.TextResult(obj), nil
		case "acct_widgets_retrieve":
			return mcptest.TextResult(nil), nil
		case "acct_widgets_search":
			return mcptest.TextResult(map[string]any{"instances": []any{map[string]any{"id": "w1"}}}), nil
		}
		return &mcp.CallToolResult{}, nil
	})
	t.Cleanup(srv.Close)
	models := writeCatalog(t)
	common := []string{"--models", models, "--url", srv.StreamableURL(), "--token", "secret"}

	out, err := run(t, append([]string{"save", "acct", "Widgets", `{"name":"Foo"}`}, common...)...)
	if err != nil {
		t.Fatal(err)
	}
	var saved map[string]any
	if err := json.Unmarshal([]byte(out), &saved); err != nil || saved["id"] != "w1" {
		t.Fatalf("unexpected save output %q (%v)", out, err)
	}

	out, err = run(t, append([]string{"retrieve", "acct", "Widgets", "w404"}, common...)...)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Fatalf("expected null, got %q", out)
	}

	out, err = run(t, append([]string{"search", "acct", "Widgets", "--take", "5"}, common...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"instances"`) {
		t.Fatalf("unexpected search output %q", out)
	}

	if _, err := run(t, append([]string{"bulk-delete", "acct", "Widgets", "a", "b"}, common...)...); err != nil {
		t.Fatal(err)
	}

	calls := srv.Calls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(calls))
	}
	var searchArgs map[string]any
	_ = json.Unmarshal(calls[2].Arguments, &searchArgs)
	if searchArgs["take"] != float64(5) {
		t.Fatalf("expected take 5, got %v", searchArgs)
	}
	if string(calls[3].Arguments) != `{"ids":["a","b"]}` {
		t.Fatalf("unexpected bulk delete args %s", calls[3].Arguments)
	}
	for _, c := range calls {
		if c.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("call %s missing bearer header", c.Name)
		}
	}
}

func TestSave_CheckRejectsInvalidRecord(t *testing.T) {
	srv := mcptest.NewServer(func(context.Context, string, json.RawMessage) (*mcp.CallToolResult, *mcp.RPCError) {
		return &mcp.CallToolResult{}, nil
	})
	t.Cleanup(srv.Close)

	_, err := run(t, "save", "acct", "Widgets", `{"id":"x"}`, "--check",
		"--models", writeCatalog(t), "--url", srv.StreamableURL())
	if err == nil {
		t.Fatal("expected missing required name to be rejected")
	}
	if len(srv.Calls()) != 0 {
		t.Fatal("invalid record should not be sent")
	}
}

func TestSearch_InvalidRequest(t *testing.T) {
	_, err := run(t, "search", "acct", "Widgets", `{"query":[{"type":"bogus"}]}`,
		"--models", writeCatalog(t), "--url", "http://127.0.0.1:1/mcp")
	if err == nil {
		t.Fatal("expected invalid search request to be rejected")
	}
}

func TestUnknownModel(t *testing.T) {
	_, err := run(t, "retrieve", "acct", "Gadgets", "g1",
		"--models", writeCatalog(t), "--url", "http://127.0.0.1:1/mcp")
	if err == nil || !strings.Contains(err.Error(), "unknown model") {
		t.Fatalf("expected unknown model error, got %v", err)
	}
}

func TestEvents_NeedsDSN(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "")
	_, err := run(t, "events", "list")
	if err == nil || !strings.Contains(err.Error(), "CLICKHOUSE_DSN") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

func TestEventFlags_Filter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ef := &eventFlags{tool: "acct_widgets_save", outcome: "error", since: time.Hour, page: 2, pageSize: 10}
	f := ef.filter(now)
	if f.ToolName != "acct_widgets_save" || f.Outcome != "error" || f.Page != 2 || f.PageSize != 10 {
		t.Fatalf("unexpected filter %+v", f)
	}
	if !f.Since.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected since %s", f.Since)
	}
	if !(&eventFlags{}).filter(now).Since.IsZero() {
		t.Fatal("zero duration should not bound the time range")
	}
}

func TestKeygen_RegisterNeedsDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := run(t, "keygen", "--register", "ci")
	if err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

// canonical re-encodes JSON so key order and escaping do not matter.
func canonical(t *testing.T, data []byte) string {
	t.Helper()
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSearch_FilterFlags(t *testing.T) {
	srv := mcptest.NewServer(func(context.Context, string, json.RawMessage) (*mcp.CallToolResult, *mcp.RPCError) {
		return mcptest.TextResult(map[string]any{"instances": []any{}}), nil
	})
	t.Cleanup(srv.Close)

	_, err := run(t, "search", "acct", "Widgets",
		"--where", "name=Foo", "--where", "size>=3",
		"--after", "created=2024-01-01T00:00:00Z", "--inclusive",
		"--sort", "name:dsc", "--take", "2",
		"--models", writeCatalog(t), "--url", srv.StreamableURL())
	if err != nil {
		t.Fatal(err)
	}

	calls := srv.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	want := `{"query":[` +
		`{"type":"property","key":"name","value":"Foo","valueType":"string","equalitySymbol":"="},"AND",` +
		`{"type":"property","key":"size","value":3,"valueType":"number","equalitySymbol":">="},"AND",` +
		`{"type":"datesAfter","key":"created","date":"2024-01-01T00:00:00Z","valueType":"date","options":{"equalToAndAfter":true}}],` +
		`"take":2,"sort":{"key":"name","order":"dsc"}}`
	if canonical(t, calls[0].Arguments) != canonical(t, []byte(want)) {
		t.Fatalf("unexpected search args\n got %s\nwant %s", calls[0].Arguments, want)
	}
}

func TestSearch_FilterFlagErrors(t *testing.T) {
	models := writeCatalog(t)
	cases := map[string][]string{
		"bad condition":     {"--where", "name"},
		"bad sort":          {"--sort", "name:desc"},
		"bad date":          {"--before", "created=yesterday"},
		"request and flags": {`{"query":[]}`, "--where", "name=Foo"},
	}
	for name, extra := range cases {
		args := append([]string{"search", "acct", "Widgets"}, extra...)
		args = append(args, "--models", models, "--url", "http://127.0.0.1:1/mcp")
		if _, err := run(t, args...); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
