// Package common holds the pieces shared by the aggregator and its outer
// surfaces: the HTTP error shape and the settle-all fan-out.
package common

import (
	"fmt"
	"net/http"
)

// HttpError is an error that already knows its HTTP status and stable code.
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

func newHttpError(status int, code, fallback, msg string) *HttpError {
	if msg == "" {
		msg = fallback
	}
	return &HttpError{StatusCode: status, Code: code, Message: msg}
}

func HTTPErrorBadRequest(msg string) *HttpError {
	return newHttpError(http.StatusBadRequest, "BAD_REQUEST", "Bad request", msg)
}

func HTTPErrorNotFound(msg string) *HttpError {
	return newHttpError(http.StatusNotFound, "NOT_FOUND", "Not found", msg)
}

// HTTPErrorUnprocessable is for well-formed requests the aggregator cannot
// serve, such as an incompatible token standard or a dust amount.
func HTTPErrorUnprocessable(msg string) *HttpError {
	return newHttpError(http.StatusUnprocessableEntity, "UNPROCESSABLE", "Unprocessable request", msg)
}

func HTTPErrorUnauthorized(msg string) *HttpError {
	return newHttpError(http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid admin token", msg)
}

func HTTPErrorForbidden(msg string) *HttpError {
	return newHttpError(http.StatusForbidden, "FORBIDDEN", "Forbidden", msg)
}

func HTTPErrorTooManyRequests(msg string) *HttpError {
	return newHttpError(http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded", msg)
}

// HTTPErrorBadGateway reports a DEX or ledger canister that rejected or
// failed a call.
func HTTPErrorBadGateway(msg string) *HttpError {
	return newHttpError(http.StatusBadGateway, "UPSTREAM_FAILED", "Upstream call failed", msg)
}

func HTTPErrorInternalError(msg string) *HttpError {
	return newHttpError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error", msg)
}

func HTTPErrorServiceUnavailable(msg string) *HttpError {
	return newHttpError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service unavailable", msg)
}
