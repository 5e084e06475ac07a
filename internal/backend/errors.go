package backend

import (
	"errors"
	"strings"
)

// APIError is a backend-level error delivered inside a 2xx response body.
type APIError struct {
	Op      string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Op + ": " + e.Code + ": " + e.Message
	}
	return e.Op + ": " + e.Message
}

// noSessionCode is the structured error code newer backend builds return.
const noSessionCode = "no_session"

// legacyNoSessionMarker appears in the free-text error of older backends:
// "세션이 존재하지 않습니다. 먼저 /start_session 호출하세요."
const legacyNoSessionMarker = "/start_session"

// IsNoSession reports whether err means the backend lost the in-memory
// session for this user, i.e. recovery should be attempted. The check is
// deliberately the only place that knows about the legacy error text.
func IsNoSession(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == noSessionCode {
		return true
	}
	return strings.Contains(apiErr.Message, legacyNoSessionMarker)
}
