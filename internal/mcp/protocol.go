// Package mcp implements the JSON-RPC 2.0 envelope used by MCP clients and
// routes it to the spreadsheet tools.
package mcp

import (
	"encoding/json"

	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/tools"
)

const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2024-11-05"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming envelope. ID keeps the raw JSON so it is echoed
// byte for byte; it is empty when the member was absent.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carried no id.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response carries exactly one of Result or Error. A nil ID renders as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

func errorResponse(id json.RawMessage, code int, msg string) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the tools/call result payload.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewToolResult serializes an outcome as a single text block. Failures
// render as {"error":{"code","message"}} and set IsError.
func NewToolResult(out tools.Outcome) (ToolResult, error) {
	var payload any = out.Value
	if out.Failed() {
		payload = core.ToolFailure{Error: *out.Failure}
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		IsError: out.Failed(),
	}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ServerInfo identifies this server in the initialize reply.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
