package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/db"
	"github.com/sheethub/sheethub/internal/mcp"
	"github.com/sheethub/sheethub/internal/telemetry"
	"github.com/sheethub/sheethub/internal/tools"
)

// BuildInfo is reported by GET /version.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildTime string
}

type Server struct {
	dispatcher    *mcp.Dispatcher
	audit         *core.AuditService
	allowedOrigin string
	build         BuildInfo
	srv           *http.Server
	logger        *slog.Logger
}

const maxRequestBodyBytes = 1 << 20

// NewServer builds the HTTP transport. audit may be nil when the audit
// trail is disabled; allowedOrigin "" disables cross-origin access.
func NewServer(addr string, dispatcher *mcp.Dispatcher, audit *core.AuditService, allowedOrigin string, logger *slog.Logger, build BuildInfo) *Server {
	s := &Server{
		dispatcher:    dispatcher,
		audit:         audit,
		allowedOrigin: allowedOrigin,
		build:         build,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", s.handleRPC)
	mux.HandleFunc("OPTIONS /mcp", s.handlePreflight)
	mux.HandleFunc("/mcp", s.handleRPCMethodNotAllowed)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/tool-calls", s.handleListToolCalls)
	mux.HandleFunc("POST /api/v1/tools/{name}", s.handleLegacyToolCall)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.build.Version,
		"git_commit": s.build.GitCommit,
		"build_time": s.build.BuildTime,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, telemetry.RenderPrometheus())
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	if s.allowedOrigin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
	w.Header().Set("Access-Control-Max-Age", "86400")
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRPCMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	w.Header().Set("Allow", "POST, OPTIONS")
	telemetry.IncRPCError(mcp.CodeInvalidRequest)
	writeJSON(w, http.StatusMethodNotAllowed, mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		Error:   &mcp.RPCError{Code: mcp.CodeInvalidRequest, Message: fmt.Sprintf("method %s not allowed", r.Method)},
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		msg := "invalid request: could not read body"
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			msg = fmt.Sprintf("invalid request: body exceeds %d bytes", maxRequestBodyBytes)
		}
		telemetry.IncRPCError(mcp.CodeInvalidRequest)
		writeJSON(w, status, mcp.Response{
			JSONRPC: mcp.JSONRPCVersion,
			Error:   &mcp.RPCError{Code: mcp.CodeInvalidRequest, Message: msg},
		})
		return
	}

	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(r.Context(), body))
}

// handleLegacyToolCall serves the deprecated {name}/arguments surface. It
// shares the invoker with tools/call and returns the same result payload.
func (s *Server) handleLegacyToolCall(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Deprecation", "true")
	w.Header().Set("Link", `</mcp>; rel="successor-version"`)

	var args map[string]any
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &args); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_request_schema", "invalid json: "+err.Error())
			return
		}
	}

	result, err := s.dispatcher.CallTool(r.Context(), r.PathValue("name"), args)
	if err != nil {
		var invErr *tools.InvocationError
		if errors.As(err, &invErr) {
			info := core.MapError(invErr, http.StatusBadRequest)
			writeErr(w, info.HTTPStatus, info.Code, info.Message)
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeErr(w, http.StatusNotFound, "audit_disabled", "audit trail is not configured")
		return
	}
	filters, err := parseToolCallListFilters(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request_schema", err.Error())
		return
	}
	calls, err := s.audit.ListToolCalls(r.Context(), filters)
	if err != nil {
		s.logger.Error("list tool calls failed", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal_error", "list tool calls failed")
		return
	}
	if calls == nil {
		calls = []*db.ToolCall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool_calls": calls})
}

const maxToolCallListLimit = 500

func parseToolCallListFilters(r *http.Request) (db.ToolCallFilter, error) {
	q := r.URL.Query()
	f := db.ToolCallFilter{
		Status:        strings.TrimSpace(q.Get("status")),
		ToolName:      strings.TrimSpace(q.Get("tool_name")),
		SpreadsheetID: strings.TrimSpace(q.Get("spreadsheet_id")),
	}
	if f.Status != "" && f.Status != "ok" && f.Status != "fail" {
		return f, fmt.Errorf("status must be ok or fail")
	}
	if raw := q.Get("created_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("created_after must be RFC3339: %w", err)
		}
		f.CreatedAfter = &t
	}
	if raw := q.Get("created_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("created_before must be RFC3339: %w", err)
		}
		f.CreatedBefore = &t
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return f, fmt.Errorf("created_after must not be later than created_before")
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxToolCallListLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxToolCallListLimit)
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, core.ToolFailure{Error: core.ToolError{Code: code, Message: msg}})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
