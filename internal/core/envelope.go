package core

// ToolError represents a tool-level error (distinct from transport errors).
// It is serialized inside the tool result text, never as a JSON-RPC error.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolFailure is the text payload of a tool result flagged isError.
type ToolFailure struct {
	Error ToolError `json:"error"`
}

// NewToolError maps err into the tool-level error shape.
func NewToolError(err error) *ToolError {
	info := MapError(err, 500)
	return &ToolError{Code: info.Code, Message: info.Message}
}
