package core

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

type ErrorInfo struct {
	Code       string
	Message    string
	HTTPStatus int
}

// MapError classifies a tool failure. HTTPStatus is advisory: JSON-RPC
// replies always travel with 200, the deprecated REST surface uses it.
func MapError(err error, fallbackStatus int) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: "internal_error", Message: "internal server error", HTTPStatus: fallbackStatus}
	}

	msg := err.Error()

	var coded CodedError
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		switch code {
		case "tool_not_allowed", "spreadsheet_not_allowed", "write_forbidden":
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: http.StatusForbidden}
		case "auth_failed":
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: http.StatusBadGateway}
		case "unknown_tool":
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: http.StatusNotFound}
		case "invalid_arguments":
			return ErrorInfo{Code: code, Message: msg, HTTPStatus: http.StatusBadRequest}
		}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Message != "" {
			msg = gerr.Message
		}
		switch {
		case gerr.Code == http.StatusBadRequest:
			return ErrorInfo{Code: "invalid_request", Message: msg, HTTPStatus: http.StatusBadRequest}
		case gerr.Code == http.StatusUnauthorized:
			return ErrorInfo{Code: "auth_failed", Message: msg, HTTPStatus: http.StatusBadGateway}
		case gerr.Code == http.StatusForbidden:
			return ErrorInfo{Code: "permission_denied", Message: msg, HTTPStatus: http.StatusForbidden}
		case gerr.Code == http.StatusNotFound:
			return ErrorInfo{Code: "spreadsheet_not_found", Message: msg, HTTPStatus: http.StatusNotFound}
		case gerr.Code == http.StatusTooManyRequests:
			return ErrorInfo{Code: "quota_exceeded", Message: msg, HTTPStatus: http.StatusTooManyRequests}
		case gerr.Code >= 500:
			return ErrorInfo{Code: "upstream_unavailable", Message: msg, HTTPStatus: http.StatusBadGateway}
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorInfo{Code: "request_cancelled", Message: msg, HTTPStatus: 499}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{Code: "upstream_timeout", Message: msg, HTTPStatus: http.StatusGatewayTimeout}
	default:
		code := "internal_error"
		if fallbackStatus >= 400 && fallbackStatus < 500 {
			code = "bad_request"
		}
		return ErrorInfo{Code: code, Message: msg, HTTPStatus: fallbackStatus}
	}
}
