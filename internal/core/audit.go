package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheethub/sheethub/internal/db"
)

// AuditService records every tool invocation with its request and response
// and a SHA-256 evidence hash for tamper detection.
type AuditService struct {
	db *db.DB
}

// NewAuditService wires the audit layer to its store.
func NewAuditService(database *db.DB) *AuditService {
	return &AuditService{db: database}
}

// RecordInput captures what is needed to log a tool call.
type RecordInput struct {
	TraceID       string
	ToolName      string
	SpreadsheetID string
	Request       any
	Response      any
	Failure       *ToolError
	Duration      time.Duration
}

// Record persists a tool call.
func (a *AuditService) Record(ctx context.Context, in RecordInput) (*db.ToolCall, error) {
	reqJSON, err := json.Marshal(in.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var respJSON []byte
	if in.Failure != nil {
		respJSON, err = json.Marshal(ToolFailure{Error: *in.Failure})
	} else {
		respJSON, err = json.Marshal(in.Response)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	status := "ok"
	var errorCode *string
	if in.Failure != nil {
		status = "fail"
		code := in.Failure.Code
		errorCode = &code
	}

	evidence := sha256.Sum256(append(reqJSON, respJSON...))

	tc := &db.ToolCall{
		ToolCallID:    uuid.New().String(),
		TraceID:       in.TraceID,
		ToolName:      in.ToolName,
		SpreadsheetID: in.SpreadsheetID,
		Status:        status,
		ErrorCode:     errorCode,
		RequestJSON:   string(reqJSON),
		ResponseJSON:  string(respJSON),
		EvidenceHash:  hex.EncodeToString(evidence[:]),
		DurationMS:    in.Duration.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.db.InsertToolCall(ctx, tc); err != nil {
		return nil, fmt.Errorf("insert tool_call: %w", err)
	}
	return tc, nil
}

func (a *AuditService) ListToolCalls(ctx context.Context, filter db.ToolCallFilter) ([]*db.ToolCall, error) {
	return a.db.ListToolCalls(ctx, filter)
}

// VerifyEvidence recomputes the evidence hash of a stored call.
func VerifyEvidence(tc *db.ToolCall) bool {
	sum := sha256.Sum256([]byte(tc.RequestJSON + tc.ResponseJSON))
	return hex.EncodeToString(sum[:]) == tc.EvidenceHash
}
