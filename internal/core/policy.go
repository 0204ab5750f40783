package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sheethub/sheethub/internal/spreadsheet"
)

// Policy enforces spreadsheet and tool allowlists parsed from comma-separated
// env vars. An empty allowlist allows everything.
type Policy struct {
	allowedSpreadsheets map[string]bool
	allowedTools        map[string]bool
	readOnly            bool
}

// NewPolicy creates a Policy from comma-separated allowlist strings.
// Spreadsheet entries may be ids or full URLs.
func NewPolicy(spreadsheetCSV, toolCSV string, readOnly bool) *Policy {
	spreadsheets := make(map[string]bool)
	for id := range parseCSV(spreadsheetCSV) {
		spreadsheets[spreadsheet.ExtractID(id)] = true
	}
	return &Policy{
		allowedSpreadsheets: spreadsheets,
		allowedTools:        parseCSV(toolCSV),
		readOnly:            readOnly,
	}
}

// PolicyError is returned when a deployment refuses an otherwise valid call.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string     { return e.Message }
func (e *PolicyError) ErrorCode() string { return e.Code }

// CheckTool rejects tools outside the allowlist, and mutating tools when the
// policy is read-only.
func (p *Policy) CheckTool(toolName string, readOnlyTool bool) error {
	if p == nil {
		return nil
	}
	if len(p.allowedTools) > 0 && !p.allowedTools[toolName] {
		return &PolicyError{Code: "tool_not_allowed", Message: fmt.Sprintf("tool %q not in allowlist", toolName)}
	}
	if p.readOnly && !readOnlyTool {
		return &PolicyError{Code: "write_forbidden", Message: fmt.Sprintf("tool %q modifies spreadsheets and this deployment is read-only", toolName)}
	}
	return nil
}

// CheckSpreadsheet rejects spreadsheet ids outside the allowlist. The id must
// already be normalized.
func (p *Policy) CheckSpreadsheet(spreadsheetID string) error {
	if p == nil || len(p.allowedSpreadsheets) == 0 {
		return nil
	}
	if !p.allowedSpreadsheets[spreadsheetID] {
		return &PolicyError{Code: "spreadsheet_not_allowed", Message: fmt.Sprintf("spreadsheet %q not in allowlist", spreadsheetID)}
	}
	return nil
}

func (p *Policy) ReadOnly() bool {
	return p != nil && p.readOnly
}

// AllowedTools lists the tool allowlist in sorted order, empty when unrestricted.
func (p *Policy) AllowedTools() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.allowedTools))
	for name := range p.allowedTools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func parseCSV(s string) map[string]bool {
	m := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			m[item] = true
		}
	}
	return m
}
