package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

type testCodedError struct{ code, msg string }

func (e *testCodedError) Error() string     { return e.msg }
func (e *testCodedError) ErrorCode() string { return e.code }

func TestMapErrorGoogleAPI(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
		wantHTTP int
	}{
		{name: "bad request", status: 400, wantCode: "invalid_request", wantHTTP: 400},
		{name: "unauthorized", status: 401, wantCode: "auth_failed", wantHTTP: 502},
		{name: "forbidden", status: 403, wantCode: "permission_denied", wantHTTP: 403},
		{name: "not found", status: 404, wantCode: "spreadsheet_not_found", wantHTTP: 404},
		{name: "rate limited", status: 429, wantCode: "quota_exceeded", wantHTTP: 429},
		{name: "server error", status: 503, wantCode: "upstream_unavailable", wantHTTP: 502},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("sheets get: %w", &googleapi.Error{Code: tt.status, Message: "upstream says no"})
			got := MapError(err, 500)
			if got.Code != tt.wantCode {
				t.Fatalf("want code %q, got %q", tt.wantCode, got.Code)
			}
			if got.HTTPStatus != tt.wantHTTP {
				t.Fatalf("want status %d, got %d", tt.wantHTTP, got.HTTPStatus)
			}
			if got.Message != "upstream says no" {
				t.Fatalf("message = %q", got.Message)
			}
		})
	}
}

func TestMapErrorCodedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantHTTP int
	}{
		{name: "tool not allowed", err: &PolicyError{Code: "tool_not_allowed", Message: "denied"}, wantCode: "tool_not_allowed", wantHTTP: 403},
		{name: "spreadsheet not allowed", err: &PolicyError{Code: "spreadsheet_not_allowed", Message: "denied"}, wantCode: "spreadsheet_not_allowed", wantHTTP: 403},
		{name: "write forbidden", err: &PolicyError{Code: "write_forbidden", Message: "read-only"}, wantCode: "write_forbidden", wantHTTP: 403},
		{name: "auth failed", err: &testCodedError{code: "auth_failed", msg: "token exchange failed"}, wantCode: "auth_failed", wantHTTP: 502},
		{name: "unknown tool", err: &testCodedError{code: "unknown_tool", msg: "unknown tool: x"}, wantCode: "unknown_tool", wantHTTP: 404},
		{name: "invalid arguments", err: &testCodedError{code: "invalid_arguments", msg: "range is required"}, wantCode: "invalid_arguments", wantHTTP: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err, 500)
			if got.Code != tt.wantCode {
				t.Fatalf("want code %q, got %q", tt.wantCode, got.Code)
			}
			if got.HTTPStatus != tt.wantHTTP {
				t.Fatalf("want status %d, got %d", tt.wantHTTP, got.HTTPStatus)
			}
		})
	}
}

func TestMapErrorFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback int
		wantCode string
		wantHTTP int
	}{
		{name: "nil error", err: nil, fallback: 500, wantCode: "internal_error", wantHTTP: 500},
		{name: "plain error", err: errors.New("boom"), fallback: 500, wantCode: "internal_error", wantHTTP: 500},
		{name: "plain error with 4xx fallback", err: errors.New("bad"), fallback: 400, wantCode: "bad_request", wantHTTP: 400},
		{name: "cancelled", err: fmt.Errorf("read: %w", context.Canceled), fallback: 500, wantCode: "request_cancelled", wantHTTP: 499},
		{name: "deadline", err: fmt.Errorf("read: %w", context.DeadlineExceeded), fallback: 500, wantCode: "upstream_timeout", wantHTTP: 504},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err, tt.fallback)
			if got.Code != tt.wantCode {
				t.Fatalf("want code %q, got %q", tt.wantCode, got.Code)
			}
			if got.HTTPStatus != tt.wantHTTP {
				t.Fatalf("want status %d, got %d", tt.wantHTTP, got.HTTPStatus)
			}
		})
	}
}

func TestNewToolError(t *testing.T) {
	te := NewToolError(&googleapi.Error{Code: 404, Message: "Requested entity was not found."})
	if te.Code != "spreadsheet_not_found" || te.Message != "Requested entity was not found." {
		t.Fatalf("tool error = %+v", te)
	}
}
