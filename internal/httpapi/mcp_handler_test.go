package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/workbridge/workbridge/internal/config"
	"github.com/workbridge/workbridge/internal/dispatch"
	"github.com/workbridge/workbridge/internal/wire"
)

// echoWorkerLink answers dispatched frames asynchronously, the way a socket
// read loop would: ping gets pong, everything else echoes its args.
type echoWorkerLink struct {
	dispatcher *dispatch.Dispatcher
}

func (l *echoWorkerLink) Send(frame wire.CommandFrame) error {
	go func() {
		payload := frame.Args
		if frame.Command == "ping" {
			payload = json.RawMessage(`{"message":"pong"}`)
		}
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		l.dispatcher.HandleWorkerResult(wire.ResultFrame{CallID: frame.CallID, OK: true, Payload: payload})
	}()
	return nil
}

func (l *echoWorkerLink) Close() {}

func newMCPTestRouter(t *testing.T) (http.Handler, *dispatch.Dispatcher) {
	t.Helper()

	cfg := config.Config{
		CommandTimeout:    2 * time.Second,
		MaxCommandTimeout: 30 * time.Second,
		SendQueueSize:     16,
		PingInterval:      30 * time.Second,
		MaxMessageBytes:   1 << 20,
	}
	dispatcher := dispatch.NewDispatcher(nil, cfg.CommandTimeout, zerolog.Nop())
	handler := NewHandler(dispatcher, cfg, zerolog.Nop())
	return NewRouter(handler), dispatcher
}

func mcpPostJSON(t *testing.T, router http.Handler, workspace string, body string) map[string]any {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if workspace != "" {
		req.Header.Set(workspaceHeader, workspace)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode MCP response: %v body=%s", err, rec.Body.String())
	}
	return payload
}

func TestMCPInitialize(t *testing.T) {
	router, _ := newMCPTestRouter(t)
	payload := mcpPostJSON(t, router, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`)

	result := mustMapField(t, payload, "result")
	serverInfo := mustMapField(t, result, "serverInfo")
	if got := asString(t, serverInfo["name"]); got != mcpServerName {
		t.Fatalf("expected serverInfo.name=%q, got %q", mcpServerName, got)
	}
	if got := asString(t, serverInfo["version"]); got != mcpServerVersion {
		t.Fatalf("expected serverInfo.version=%q, got %q", mcpServerVersion, got)
	}
}

func TestMCPToolsList(t *testing.T) {
	router, _ := newMCPTestRouter(t)
	payload := mcpPostJSON(t, router, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)

	result := mustMapField(t, payload, "result")
	toolsRaw, ok := result["tools"].([]any)
	if !ok {
		t.Fatalf("expected tools array, got %#v", result["tools"])
	}

	toolByName := map[string]map[string]any{}
	for _, toolRaw := range toolsRaw {
		tool, ok := toolRaw.(map[string]any)
		if !ok {
			t.Fatalf("expected tool object, got %#v", toolRaw)
		}
		toolByName[asString(t, tool["name"])] = tool
	}

	expected := []string{"ping", "execute-command", "get-note", "put-note", "search-notes", "list-commands"}
	if len(toolByName) != len(expected) {
		t.Fatalf("expected %d tools, got %d: %v", len(expected), len(toolByName), toolByName)
	}
	for _, name := range expected {
		if _, ok := toolByName[name]; !ok {
			t.Fatalf("expected tool %q in tools/list", name)
		}
	}

	getNote := toolByName["get-note"]
	inputSchema := mustMapField(t, getNote, "inputSchema")
	assertRequiredContains(t, inputSchema["required"], "path")
	pingOutput := mustMapField(t, toolByName["ping"], "outputSchema")
	assertRequiredContains(t, pingOutput["required"], "message")
}

func TestMCPToolCallPingSuccess(t *testing.T) {
	router, dispatcher := newMCPTestRouter(t)
	dispatcher.OnWorkerConnect("w1", "doc-a", &echoWorkerLink{dispatcher: dispatcher})

	payload := mcpPostJSON(t, router, "doc-a", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	result := mustMapField(t, payload, "result")
	if asBool(result["isError"]) {
		t.Fatalf("expected tool call success, got %s", mustJSON(t, result))
	}
	structured := mustMapField(t, result, "structuredContent")
	if got := asString(t, structured["message"]); got != "pong" {
		t.Fatalf("expected message=pong, got %q", got)
	}
}

func TestMCPToolCallGetNoteEchoesWorkerPayload(t *testing.T) {
	router, dispatcher := newMCPTestRouter(t)
	dispatcher.OnWorkerConnect("w1", "doc-a", &echoWorkerLink{dispatcher: dispatcher})

	payload := mcpPostJSON(t, router, "doc-a", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get-note","arguments":{"path":"notes/a.md"}}}`)
	result := mustMapField(t, payload, "result")
	if asBool(result["isError"]) {
		t.Fatalf("expected tool call success, got %s", mustJSON(t, result))
	}
	structured := mustMapField(t, result, "structuredContent")
	if got := asString(t, structured["path"]); got != "notes/a.md" {
		t.Fatalf("expected worker payload echoed back, got %s", mustJSON(t, structured))
	}
}

func TestMCPToolCallMissingWorkspaceIsInvalidParams(t *testing.T) {
	router, dispatcher := newMCPTestRouter(t)
	dispatcher.OnWorkerConnect("w1", "doc-a", &echoWorkerLink{dispatcher: dispatcher})

	payload := mcpPostJSON(t, router, "", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	errorBody := mustMapField(t, payload, "error")
	if code := asInt(t, errorBody["code"]); code != -32602 {
		t.Fatalf("expected JSON-RPC invalid params -32602, got %d body=%s", code, mustJSON(t, payload))
	}
}

func TestMCPToolCallEmptyArgumentIsInvalidParams(t *testing.T) {
	router, dispatcher := newMCPTestRouter(t)
	dispatcher.OnWorkerConnect("w1", "doc-a", &echoWorkerLink{dispatcher: dispatcher})

	payload := mcpPostJSON(t, router, "doc-a", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get-note","arguments":{"path":"   "}}}`)
	errorBody := mustMapField(t, payload, "error")
	if code := asInt(t, errorBody["code"]); code != -32602 {
		t.Fatalf("expected JSON-RPC invalid params -32602, got %d body=%s", code, mustJSON(t, payload))
	}
}

func TestMCPToolCallNoWorkerIsToolError(t *testing.T) {
	router, _ := newMCPTestRouter(t)

	payload := mcpPostJSON(t, router, "doc-a", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	result := mustMapField(t, payload, "result")
	if !asBool(result["isError"]) {
		t.Fatalf("expected tool error, got %s", mustJSON(t, result))
	}
	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("expected non-empty content in tool error, got %s", mustJSON(t, result))
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("expected content object, got %#v", contentRaw[0])
	}
	if text := asString(t, first["text"]); !strings.Contains(text, "start the workspace plugin") {
		t.Fatalf("expected actionable routing message, got %q", text)
	}
}

func TestMCPToolCallListCommandsNeedsNoWorkspace(t *testing.T) {
	router, _ := newMCPTestRouter(t)

	payload := mcpPostJSON(t, router, "", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list-commands","arguments":{}}}`)
	result := mustMapField(t, payload, "result")
	if asBool(result["isError"]) {
		t.Fatalf("expected tool call success, got %s", mustJSON(t, result))
	}
	structured := mustMapField(t, result, "structuredContent")
	commands, ok := structured["commands"].([]any)
	if !ok || len(commands) == 0 {
		t.Fatalf("expected non-empty command list, got %s", mustJSON(t, structured))
	}
}

func mustMapField(t *testing.T, payload map[string]any, field string) map[string]any {
	t.Helper()

	raw, ok := payload[field]
	if !ok {
		t.Fatalf("missing field %q in payload=%s", field, mustJSON(t, payload))
	}
	result, ok := raw.(map[string]any)
	if !ok {
		t.Fatalf("field %q must be object, got %#v", field, raw)
	}
	return result
}

func assertRequiredContains(t *testing.T, raw any, expected string) {
	t.Helper()
	items, ok := raw.([]any)
	if !ok {
		t.Fatalf("expected required to be an array, got %#v", raw)
	}
	for _, item := range items {
		value, ok := item.(string)
		if ok && value == expected {
			return
		}
	}
	t.Fatalf("required array %#v does not contain %q", items, expected)
}

func asBool(value any) bool {
	parsed, _ := value.(bool)
	return parsed
}

func asString(t *testing.T, value any) string {
	t.Helper()
	result, ok := value.(string)
	if !ok {
		t.Fatalf("expected string, got %#v", value)
	}
	return result
}

func asInt(t *testing.T, value any) int {
	t.Helper()
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	default:
		t.Fatalf("expected number, got %#v", value)
		return 0
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	encoded, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode json: %v", err)
	}
	return string(encoded)
}
