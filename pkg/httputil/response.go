package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/webprobe/webprobe/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an API error
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response
func JSONError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(resp)
}

// ErrorFromDomain converts a domain error to an HTTP response
func ErrorFromDomain(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError

	if errors.As(err, &domainErr) {
		JSONError(w, domainErrorToStatus(domainErr), domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}

	JSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
}

func domainErrorToStatus(err *domain.DomainError) int {
	switch err.Code {
	case domain.ErrCodeConfig:
		return http.StatusBadRequest
	case domain.ErrCodeLLM, domain.ErrCodeBrowser:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes JSON from a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.NewError(ErrCodeBadRequest, "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return domain.NewError(ErrCodeBadRequest, "invalid JSON: "+err.Error())
	}

	return nil
}

// ErrCodeBadRequest marks malformed client input
const ErrCodeBadRequest = "BAD_REQUEST"

// Limit extracts a positive ?limit= query parameter, clamped to max.
func Limit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
