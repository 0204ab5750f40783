// Package tools defines the closed set of spreadsheet tools, their argument
// schemas and handlers, and the Invoker that runs them.
package tools

import (
	"context"
	"fmt"

	"github.com/sheethub/sheethub/internal/spreadsheet"
)

// Name identifies a tool. Only the constants below are valid.
type Name string

const (
	ListSpreadsheets   Name = "list_spreadsheets"
	GetSpreadsheetInfo Name = "get_spreadsheet_info"
	ReadRange          Name = "read_range"
	WriteRange         Name = "write_range"
	AppendData         Name = "append_data"
	ClearRange         Name = "clear_range"
	CreateSpreadsheet  Name = "create_spreadsheet"
	AddSheet           Name = "add_sheet"
	DuplicateSheet     Name = "duplicate_sheet"
	BatchUpdate        Name = "batch_update"
)

// ParamType is a JSON schema primitive type.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one tool argument. Items describes array elements.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	Items       *Param
}

// HandlerFunc runs a tool against already validated arguments.
type HandlerFunc func(ctx context.Context, c spreadsheet.Client, args Args) (any, error)

type Tool struct {
	Name        Name
	Description string
	Params      []Param
	// ReadOnly tools never modify a spreadsheet.
	ReadOnly bool

	handler HandlerFunc
}

// InputSchema renders Params as a JSON schema object.
func (t *Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (p Param) schema() map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Items != nil {
		s["items"] = p.Items.schema()
	}
	return s
}

// Descriptor is the tools/list rendering of a tool.
func (t *Tool) Descriptor() map[string]any {
	return map[string]any{
		"name":        string(t.Name),
		"description": t.Description,
		"inputSchema": t.InputSchema(),
	}
}

// Registry is the immutable lookup table of tools, built once at startup.
type Registry struct {
	ordered []*Tool
	byName  map[Name]*Tool
}

// NewRegistry builds the registry of built-in tools. It panics on a
// duplicate or handler-less definition, which is a programming error.
func NewRegistry() *Registry {
	defs := builtinTools()
	r := &Registry{
		ordered: make([]*Tool, 0, len(defs)),
		byName:  make(map[Name]*Tool, len(defs)),
	}
	for i := range defs {
		t := &defs[i]
		if t.handler == nil {
			panic(fmt.Sprintf("tool %s has no handler", t.Name))
		}
		if _, dup := r.byName[t.Name]; dup {
			panic(fmt.Sprintf("tool %s registered twice", t.Name))
		}
		r.ordered = append(r.ordered, t)
		r.byName[t.Name] = t
	}
	return r
}

// Lookup resolves a raw tool name. Unknown names yield an *InvocationError.
func (r *Registry) Lookup(name string) (*Tool, error) {
	t, ok := r.byName[Name(name)]
	if !ok {
		return nil, &InvocationError{Kind: ErrUnknownTool, Tool: name, Detail: fmt.Sprintf("unknown tool: %s", name)}
	}
	return t, nil
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []*Tool {
	return append([]*Tool(nil), r.ordered...)
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

// Descriptors renders every tool for tools/list.
func (r *Registry) Descriptors() []map[string]any {
	out := make([]map[string]any, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, t.Descriptor())
	}
	return out
}
