package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/spreadsheet"
	"github.com/sheethub/sheethub/internal/telemetry"
)

// Outcome is the result of a tool that was accepted for execution: either a
// success Value or a Failure, never both.
type Outcome struct {
	Value   any
	Failure *core.ToolError
}

func (o Outcome) Failed() bool { return o.Failure != nil }

// Invoker validates and runs tool calls.
type Invoker struct {
	registry *Registry
	client   spreadsheet.Client
	policy   *core.Policy
	audit    *core.AuditService
	logger   *slog.Logger
}

// NewInvoker wires the invoker. policy and audit may be nil.
func NewInvoker(registry *Registry, client spreadsheet.Client, policy *core.Policy, audit *core.AuditService, logger *slog.Logger) *Invoker {
	return &Invoker{
		registry: registry,
		client:   client,
		policy:   policy,
		audit:    audit,
		logger:   logger,
	}
}

func (inv *Invoker) Registry() *Registry {
	return inv.registry
}

// Invoke runs the named tool. A non-nil error is always an *InvocationError
// and means the call was rejected before execution. Everything that goes
// wrong afterwards, including handler panics, is reported in the Outcome.
func (inv *Invoker) Invoke(ctx context.Context, name string, args map[string]any) (Outcome, error) {
	tool, err := inv.registry.Lookup(name)
	if err != nil {
		return Outcome{}, err
	}
	if args == nil {
		args = map[string]any{}
	}
	a := Args(args)
	if err := Validate(tool, a); err != nil {
		return Outcome{}, err
	}

	spreadsheetID := ""
	if _, ok := a["spreadsheet_id"]; ok {
		spreadsheetID = a.SpreadsheetID()
	}

	start := time.Now()
	value, runErr := inv.run(ctx, tool, a, spreadsheetID)
	elapsed := time.Since(start)

	outcome := Outcome{Value: value}
	status := "ok"
	if runErr != nil {
		outcome = Outcome{Failure: core.NewToolError(runErr)}
		status = "fail"
	}

	telemetry.IncToolCall(string(tool.Name), status)
	telemetry.ObserveToolDuration(string(tool.Name), elapsed)

	traceID := core.TraceID(ctx)
	attrs := []any{
		"trace_id", traceID,
		"tool_name", string(tool.Name),
		"spreadsheet_id", spreadsheetID,
		"status", status,
		"duration", fmt.Sprintf("%dms", elapsed.Milliseconds()),
	}
	if outcome.Failed() {
		attrs = append(attrs, "error_code", outcome.Failure.Code, "err", runErr)
		inv.logger.Warn("tool call failed", attrs...)
	} else {
		inv.logger.Info("tool call completed", attrs...)
	}

	if inv.audit != nil {
		// The call already ran; a client hang-up must not drop its audit row.
		tc, auditErr := inv.audit.Record(context.WithoutCancel(ctx), core.RecordInput{
			TraceID:       traceID,
			ToolName:      string(tool.Name),
			SpreadsheetID: spreadsheetID,
			Request:       args,
			Response:      outcome.Value,
			Failure:       outcome.Failure,
			Duration:      elapsed,
		})
		if auditErr != nil {
			telemetry.IncAuditWriteFailure()
			inv.logger.Error("audit record failed", "trace_id", traceID, "tool_name", string(tool.Name), "err", auditErr)
		} else {
			inv.logger.Debug("tool call audited", "trace_id", traceID, "tool_call_id", tc.ToolCallID)
		}
	}

	return outcome, nil
}

func (inv *Invoker) run(ctx context.Context, tool *Tool, args Args, spreadsheetID string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("tool handler panic", "trace_id", core.TraceID(ctx), "tool_name", string(tool.Name), "panic", r)
			value, err = nil, fmt.Errorf("tool %s panicked: %v", tool.Name, r)
		}
	}()

	if err := inv.policy.CheckTool(string(tool.Name), tool.ReadOnly); err != nil {
		return nil, err
	}
	if spreadsheetID != "" {
		if err := inv.policy.CheckSpreadsheet(spreadsheetID); err != nil {
			return nil, err
		}
	}
	return tool.handler(ctx, inv.client, args)
}
