package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/db"
	"github.com/sheethub/sheethub/internal/mcp"
	"github.com/sheethub/sheethub/internal/spreadsheet/spreadsheettest"
	"github.com/sheethub/sheethub/internal/tools"
)

func newTestServer(t *testing.T, fake *spreadsheettest.Fake, audit *core.AuditService, build BuildInfo) *Server {
	t.Helper()
	if fake == nil {
		fake = &spreadsheettest.Fake{}
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	inv := tools.NewInvoker(tools.NewRegistry(), fake, nil, audit, logger)
	d := mcp.NewDispatcher(inv, mcp.ServerInfo{Name: "sheethub", Version: "test"}, logger)
	return NewServer("127.0.0.1:0", d, audit, "*", logger, build)
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *mcp.RPCError   `json:"error"`
}

func decodeReply(t *testing.T, rr *httptest.ResponseRecorder) rpcReply {
	t.Helper()
	var out rpcReply
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode reply: %v: %s", err, rr.Body.String())
	}
	return out
}

func TestPostRPC(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	tests := []struct {
		name     string
		body     string
		wantID   any
		wantCode int
	}{
		{name: "ping", body: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, wantID: float64(1)},
		{name: "tools/list", body: `{"jsonrpc":"2.0","id":"x","method":"tools/list"}`, wantID: "x"},
		{name: "unknown method", body: `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`, wantID: float64(2), wantCode: mcp.CodeMethodNotFound},
		{name: "parse error", body: `{not json`, wantCode: mcp.CodeParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, http.MethodPost, "/mcp", tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content-type = %q", ct)
			}
			if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Fatal("missing CORS header")
			}
			out := decodeReply(t, rr)
			if out.ID != tt.wantID {
				t.Fatalf("id = %v, want %v", out.ID, tt.wantID)
			}
			if tt.wantCode == 0 {
				if out.Error != nil {
					t.Fatalf("unexpected error %+v", out.Error)
				}
				return
			}
			if out.Error == nil || out.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %d", out.Error, tt.wantCode)
			}
		})
	}
}

func TestPostRPCBodyTooLarge(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	body := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}}`
	rr := serve(s, http.MethodPost, "/mcp", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
	out := decodeReply(t, rr)
	if out.Error == nil || out.Error.Code != mcp.CodeInvalidRequest {
		t.Fatalf("error = %+v", out.Error)
	}
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	rr := serve(s, http.MethodOptions, "/mcp", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Fatalf("allow-methods = %q", got)
	}
}

func TestPreflightWithoutOrigin(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	inv := tools.NewInvoker(tools.NewRegistry(), &spreadsheettest.Fake{}, nil, nil, logger)
	s := NewServer("127.0.0.1:0", mcp.NewDispatcher(inv, mcp.ServerInfo{}, logger), nil, "", logger, BuildInfo{})

	rr := serve(s, http.MethodOptions, "/mcp", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header when no origin is configured")
	}
}

func TestGetRPCMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	rr := serve(s, http.MethodGet, "/mcp", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	out := decodeReply(t, rr)
	if out.Error == nil || out.Error.Code != mcp.CodeInvalidRequest || out.ID != nil {
		t.Fatalf("reply = %+v", out)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	rr := serve(s, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetricsAfterCall(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})
	serve(s, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_spreadsheets"}}`)

	rr := serve(s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `sheethub_tool_calls_total{tool="list_spreadsheets",status="ok"}`) {
		t.Fatalf("tool call counter missing:\n%s", rr.Body.String())
	}
}

func TestLegacyToolRoute(t *testing.T) {
	fake := &spreadsheettest.Fake{Values: [][]any{{"x"}}}
	s := newTestServer(t, fake, nil, BuildInfo{})

	rr := serve(s, http.MethodPost, "/api/v1/tools/read_range", `{"spreadsheet_id":"S1","range":"A1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Deprecation") != "true" {
		t.Fatal("missing Deprecation header")
	}
	var tr mcp.ToolResult
	if err := json.Unmarshal(rr.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.IsError || len(tr.Content) != 1 || !strings.Contains(tr.Content[0].Text, `"x"`) {
		t.Fatalf("result = %+v", tr)
	}
	if fake.LastCall().SpreadsheetID != "S1" {
		t.Fatalf("spreadsheet id = %q", fake.LastCall().SpreadsheetID)
	}
}

func TestLegacyToolRouteRejections(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown tool", target: "/api/v1/tools/drop_table", body: `{}`, wantStatus: http.StatusNotFound, wantCode: "unknown_tool"},
		{name: "missing argument", target: "/api/v1/tools/read_range", body: `{"range":"A1"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_arguments"},
		{name: "bad json", target: "/api/v1/tools/read_range", body: `{"range":`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request_schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, http.MethodPost, tt.target, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var failure core.ToolFailure
			if err := json.Unmarshal(rr.Body.Bytes(), &failure); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if failure.Error.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", failure.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestListToolCallsDisabledWithoutAudit(t *testing.T) {
	s := newTestServer(t, nil, nil, BuildInfo{})

	rr := serve(s, http.MethodGet, "/api/v1/tool-calls", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestListToolCallsFromAudit(t *testing.T) {
	database, err := db.New("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	fake := &spreadsheettest.Fake{}
	s := newTestServer(t, fake, core.NewAuditService(database), BuildInfo{})

	serve(s, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"clear_range","arguments":{"spreadsheet_id":"S1","range":"A1:B2"}}}`)
	serve(s, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_spreadsheets"}}`)

	rr := serve(s, http.MethodGet, "/api/v1/tool-calls?tool_name=clear_range", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got struct {
		ToolCalls []db.ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ToolName != "clear_range" || tc.SpreadsheetID != "S1" || tc.Status != "ok" {
		t.Fatalf("tool call = %+v", tc)
	}

	rr = serve(s, http.MethodGet, "/api/v1/tool-calls?status=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
