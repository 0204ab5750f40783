package tools

import (
	"fmt"
	"math"

	"github.com/sheethub/sheethub/internal/spreadsheet"
)

// maxExactInteger is the largest magnitude a JSON number decoded into float64
// represents exactly (2^53).
const maxExactInteger = 1 << 53

// Args holds decoded JSON arguments. Accessors assume Validate has passed.
type Args map[string]any

// Validate checks required presence and JSON types against the schema.
// Unknown keys are ignored. A null value counts as absent.
func Validate(t *Tool, args Args) error {
	for _, p := range t.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return invalidArgs(t, "missing required argument %q", p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return invalidArgs(t, "argument %q: %v", p.Name, err)
		}
	}
	return nil
}

func invalidArgs(t *Tool, format string, a ...any) error {
	return &InvocationError{Kind: ErrInvalidArguments, Tool: string(t.Name), Detail: fmt.Sprintf(format, a...)}
}

func checkType(p Param, v any) error {
	switch p.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %s", jsonType(v))
		}
	case TypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
			return fmt.Errorf("expected integer, got %s", jsonType(v))
		}
		if f > maxExactInteger || f < -maxExactInteger {
			return fmt.Errorf("expected integer in range [-%d, %d], got %g", int64(maxExactInteger), int64(maxExactInteger), f)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %s", jsonType(v))
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %s", jsonType(v))
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %s", jsonType(v))
		}
		if p.Items != nil {
			for i, item := range items {
				if err := checkType(*p.Items, item); err != nil {
					return fmt.Errorf("element %d: %v", i, err)
				}
			}
		}
	}
	return nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// SpreadsheetID returns the normalized spreadsheet_id argument.
func (a Args) SpreadsheetID() string {
	return spreadsheet.ExtractID(a.String("spreadsheet_id"))
}

// Int returns an integer argument and whether it was supplied.
func (a Args) Int(name string) (int64, bool) {
	f, ok := a[name].(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (a Args) Strings(name string) []string {
	raw, _ := a[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, _ := v.(string)
		out = append(out, s)
	}
	return out
}

// Rows returns a two-dimensional values argument.
func (a Args) Rows(name string) [][]any {
	raw, _ := a[name].([]any)
	out := make([][]any, 0, len(raw))
	for _, row := range raw {
		cells, _ := row.([]any)
		if cells == nil {
			cells = []any{}
		}
		out = append(out, cells)
	}
	return out
}

func (a Args) Objects(name string) []map[string]any {
	raw, _ := a[name].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		m, _ := v.(map[string]any)
		out = append(out, m)
	}
	return out
}
