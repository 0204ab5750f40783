package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	httpsvr "github.com/sheethub/sheethub/internal/http"
	"github.com/sheethub/sheethub/internal/mcp"
	"github.com/sheethub/sheethub/internal/spreadsheet/spreadsheettest"
	"github.com/sheethub/sheethub/internal/tools"
)

func startSheethub(t *testing.T, fake *spreadsheettest.Fake) string {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	inv := tools.NewInvoker(tools.NewRegistry(), fake, nil, nil, logger)
	d := mcp.NewDispatcher(inv, mcp.ServerInfo{Name: "sheethub", Version: "test"}, logger)
	s := httpsvr.NewServer("127.0.0.1:0", d, nil, "", logger, httpsvr.BuildInfo{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv.URL + "/mcp"
}

func TestRunCommands(t *testing.T) {
	url := startSheethub(t, &spreadsheettest.Fake{Values: [][]any{{"hello"}}})

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "init", args: []string{"init"}, wantOut: `"protocolVersion"`},
		{name: "tools", args: []string{"tools"}, wantOut: `"read_range"`},
		{name: "call", args: []string{"call", "read_range", `{"spreadsheet_id":"S","range":"A1"}`}, wantOut: `"hello"`},
		{name: "rpc error", args: []string{"call", "no_such_tool"}, wantCode: 1},
		{name: "bad arguments", args: []string{"call", "read_range", `[1]`}, wantCode: 2},
		{name: "unknown command", args: []string{"frobnicate"}, wantCode: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(append([]string{"-url", url}, tt.args...), &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			if tt.wantOut != "" && !strings.Contains(stdout.String(), tt.wantOut) {
				t.Fatalf("stdout missing %s:\n%s", tt.wantOut, stdout.String())
			}
		})
	}
}

func TestRunToolFailureExitCode(t *testing.T) {
	url := startSheethub(t, &spreadsheettest.Fake{Err: &googleapi.Error{Code: 404, Message: "Requested entity was not found."}})

	var stdout, stderr bytes.Buffer
	code := run([]string{"-url", url, "call", "get_spreadsheet_info", `{"spreadsheet_id":"missing"}`}, &stdout, &stderr)
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if !strings.Contains(stderr.String(), "spreadsheet_not_found") {
		t.Fatalf("stderr missing error code:\n%s", stderr.String())
	}
}

func TestClientRetriesOnlyReadOnlyCalls(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"unavailable"}}`)
			return
		}
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer srv.Close()

	tests := []struct {
		name         string
		method       string
		params       any
		wantAttempts int32
	}{
		{name: "tools/list", method: "tools/list", wantAttempts: 2},
		{name: "read-only tool", method: "tools/call", params: toolCallParams{Name: "read_range"}, wantAttempts: 2},
		{name: "mutating tool", method: "tools/call", params: toolCallParams{Name: "append_data"}, wantAttempts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts.Store(0)
			c := newRPCClient(srv.URL, 5*time.Second, slog.New(slog.NewJSONHandler(io.Discard, nil)))
			c.retry.RetryWaitMin = time.Millisecond
			c.retry.RetryWaitMax = 5 * time.Millisecond

			if _, err := c.call(context.Background(), tt.method, tt.params); err != nil {
				t.Fatalf("call: %v", err)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Fatalf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}
