package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for backend operations.
var (
	// ErrNotReady means the result has not been computed yet.
	ErrNotReady        = errors.New("result not ready")
	ErrUnsuccessful    = errors.New("backend reported failure")
	ErrInvalidResponse = errors.New("invalid backend response")
)

// APIError is a non-2xx response. Detail carries the server's message verbatim.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: API error (%d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: API error (%d): %s", e.Op, e.Status, e.Detail)
}

// IsValidation reports whether the server rejected the request payload.
func (e *APIError) IsValidation() bool {
	return e.Status == http.StatusUnprocessableEntity || e.Status == http.StatusBadRequest
}

// IsUnauthorized reports whether the credential was rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// parseDetail extracts a human-readable message from an error body.
// FastAPI-style bodies carry either a string or a list of validation items
// under "detail".
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			var loc []string
			for _, l := range it.Loc {
				if ls := fmt.Sprint(l); ls != "body" {
					loc = append(loc, ls)
				}
			}
			if len(loc) > 0 {
				msgs = append(msgs, strings.Join(loc, ".")+": "+it.Msg)
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(payload.Detail))
}
