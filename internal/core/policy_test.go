package core

import (
	"errors"
	"testing"
)

func policyCode(err error) string {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func TestPolicyCheckTool(t *testing.T) {
	tests := []struct {
		name     string
		policy   *Policy
		tool     string
		readOnly bool
		wantCode string
	}{
		{name: "nil policy allows all", policy: nil, tool: "write_range"},
		{name: "empty allowlist allows all", policy: NewPolicy("", "", false), tool: "batch_update"},
		{name: "listed tool", policy: NewPolicy("", "read_range, write_range", false), tool: "write_range"},
		{name: "unlisted tool", policy: NewPolicy("", "read_range", false), tool: "clear_range", wantCode: "tool_not_allowed"},
		{name: "read-only allows reads", policy: NewPolicy("", "", true), tool: "read_range", readOnly: true},
		{name: "read-only forbids writes", policy: NewPolicy("", "", true), tool: "append_data", wantCode: "write_forbidden"},
		{name: "allowlist checked before read-only", policy: NewPolicy("", "read_range", true), tool: "append_data", wantCode: "tool_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.CheckTool(tt.tool, tt.readOnly)
			if got := policyCode(err); got != tt.wantCode {
				t.Fatalf("code = %q, want %q (err %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestPolicyCheckSpreadsheet(t *testing.T) {
	p := NewPolicy("ABC123, https://docs.google.com/spreadsheets/d/XYZ-789_q/edit#gid=0", "", false)

	for _, id := range []string{"ABC123", "XYZ-789_q"} {
		if err := p.CheckSpreadsheet(id); err != nil {
			t.Fatalf("expected %s allowed, got %v", id, err)
		}
	}
	if got := policyCode(p.CheckSpreadsheet("OTHER")); got != "spreadsheet_not_allowed" {
		t.Fatalf("code = %q, want spreadsheet_not_allowed", got)
	}
	if err := NewPolicy("", "", false).CheckSpreadsheet("anything"); err != nil {
		t.Fatalf("empty allowlist denied: %v", err)
	}
}

func TestPolicyAllowedTools(t *testing.T) {
	p := NewPolicy("", " write_range,read_range,,", true)
	got := p.AllowedTools()
	if len(got) != 2 || got[0] != "read_range" || got[1] != "write_range" {
		t.Fatalf("AllowedTools = %v", got)
	}
	if !p.ReadOnly() {
		t.Fatal("expected read-only policy")
	}
	var nilPolicy *Policy
	if nilPolicy.ReadOnly() || nilPolicy.AllowedTools() != nil {
		t.Fatal("nil policy should be unrestricted")
	}
}
