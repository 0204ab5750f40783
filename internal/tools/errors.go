package tools

import "errors"

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// InvocationError rejects a call before any handler runs. It is a caller
// mistake and travels as a JSON-RPC error, never as a tool result.
type InvocationError struct {
	Kind   error
	Tool   string
	Detail string
}

func (e *InvocationError) Error() string { return e.Detail }

func (e *InvocationError) Unwrap() error { return e.Kind }

func (e *InvocationError) ErrorCode() string {
	if e.Kind == ErrUnknownTool {
		return "unknown_tool"
	}
	return "invalid_arguments"
}
