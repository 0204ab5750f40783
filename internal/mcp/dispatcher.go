package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/telemetry"
	"github.com/sheethub/sheethub/internal/tools"
)

// Dispatcher validates envelopes and routes them by method. It holds no
// per-session state.
type Dispatcher struct {
	invoker *tools.Invoker
	info    ServerInfo
	logger  *slog.Logger
}

func NewDispatcher(invoker *tools.Invoker, info ServerInfo, logger *slog.Logger) *Dispatcher {
	if info.Name == "" {
		info.Name = "sheethub"
	}
	return &Dispatcher{invoker: invoker, info: info, logger: logger}
}

// Dispatch decodes one raw envelope and returns the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		if json.Valid(body) {
			telemetry.IncRPCError(CodeInvalidRequest)
			return errorResponse(nil, CodeInvalidRequest, "invalid request: envelope must be a JSON object")
		}
		telemetry.IncRPCError(CodeParseError)
		d.logger.Debug("rpc parse error", "err", err)
		return errorResponse(nil, CodeParseError, "parse error")
	}
	return d.Handle(ctx, req)
}

// Handle routes a decoded envelope. Panics are converted into an internal
// error that still echoes the request id.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	traceID := core.TraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
		ctx = core.WithTraceID(ctx, traceID)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("rpc dispatch panic", "trace_id", traceID, "method", req.Method, "panic", r)
			resp = errorResponse(validID(req.ID), CodeInternalError, "internal error")
		}
		if resp.Error != nil {
			telemetry.IncRPCError(resp.Error.Code)
		}
	}()

	if req.JSONRPC != JSONRPCVersion {
		return errorResponse(nil, CodeInvalidRequest, `invalid request: jsonrpc must be "2.0"`)
	}
	if req.Method == "" {
		return errorResponse(nil, CodeInvalidRequest, "invalid request: method is required")
	}
	if validID(req.ID) == nil && len(req.ID) > 0 {
		return errorResponse(nil, CodeInvalidRequest, "invalid request: id must be a string, number or null")
	}

	base := Response{JSONRPC: JSONRPCVersion, ID: req.ID}

	switch req.Method {
	case "initialize":
		telemetry.IncRPCRequest(req.Method)
		base.Result = map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      d.info,
		}
		return base

	case "notifications/initialized", "ping":
		telemetry.IncRPCRequest(req.Method)
		base.Result = map[string]any{}
		return base

	case "tools/list":
		telemetry.IncRPCRequest(req.Method)
		base.Result = map[string]any{"tools": d.invoker.Registry().Descriptors()}
		return base

	case "tools/call":
		telemetry.IncRPCRequest(req.Method)
		return d.handleToolCall(ctx, req, base)

	default:
		telemetry.IncRPCRequest("unknown")
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req Request, base Response) Response {
	var params toolCallParams
	if len(req.Params) == 0 || bytes.Equal(req.Params, []byte("null")) {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: name is required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params: name is required")
	}

	var args map[string]any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: arguments must be an object")
		}
	}

	result, err := d.CallTool(ctx, params.Name, args)
	if err != nil {
		var invErr *tools.InvocationError
		if errors.As(err, &invErr) {
			return errorResponse(req.ID, CodeInvalidParams, invErr.Error())
		}
		d.logger.Error("tool result encoding failed", "trace_id", core.TraceID(ctx), "tool_name", params.Name, "err", err)
		return errorResponse(req.ID, CodeInternalError, "internal error")
	}
	base.Result = result
	return base
}

// CallTool invokes a tool and wraps the outcome. Only rejections
// (*tools.InvocationError) and encoding failures are returned as errors.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	out, err := d.invoker.Invoke(ctx, name, args)
	if err != nil {
		return ToolResult{}, err
	}
	return NewToolResult(out)
}

// validID returns id when it is a JSON string, number or null, else nil.
func validID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return nil
	}
	switch v.(type) {
	case nil, string, float64:
		return id
	default:
		return nil
	}
}
