package domain

import (
	"errors"
	"fmt"
)

// Error codes for categorization
const (
	ErrCodeConfig       = "CONFIG_INVALID"
	ErrCodeBrowser      = "BROWSER_LAUNCH_FAILED"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeAuth         = "AUTH_UNRESOLVED"
	ErrCodeLLM          = "LLM_UNAVAILABLE"
	ErrCodeLLMResponse  = "LLM_INVALID_RESPONSE"
	ErrCodeSelector     = "SELECTOR_NOT_FOUND"
	ErrCodeCrawlFailed  = "CRAWL_FAILED"
	ErrCodePlanFailed   = "PLAN_FAILED"
	ErrCodeExecFailed   = "EXECUTION_FAILED"
	ErrCodeCoverage     = "COVERAGE_FAILED"
	ErrCodeReportFailed = "REPORT_FAILED"
)

// DomainError is the structured error used at stage boundaries. Per-page and
// per-test failures never surface as DomainError; only stage-fatal conditions
// do.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for error comparison
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors (used with errors.Is)
var (
	ErrConfigInvalid  = &DomainError{Code: ErrCodeConfig, Message: "configuration invalid"}
	ErrBrowserLaunch  = &DomainError{Code: ErrCodeBrowser, Message: "browser launch failed"}
	ErrAuthUnresolved = &DomainError{Code: ErrCodeAuth, Message: "auth unresolved"}
	ErrLLMUnavailable = &DomainError{Code: ErrCodeLLM, Message: "llm unavailable"}
)

// NewError creates a DomainError with the given code
func NewError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WrapError wraps an underlying error into a DomainError
func WrapError(err error, code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// WithDetail attaches a key/value detail to the error
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ErrCrawlFailed wraps a stage-fatal crawl failure
func ErrCrawlFailed(reason string, err error) *DomainError {
	return WrapError(err, ErrCodeCrawlFailed, fmt.Sprintf("crawl failed: %s", reason))
}

// ErrPlanFailed wraps a stage-fatal planning failure
func ErrPlanFailed(reason string, err error) *DomainError {
	return WrapError(err, ErrCodePlanFailed, fmt.Sprintf("planning failed: %s", reason))
}

// ErrExecutionFailed wraps a stage-fatal execution failure
func ErrExecutionFailed(reason string, err error) *DomainError {
	return WrapError(err, ErrCodeExecFailed, fmt.Sprintf("execution failed: %s", reason))
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
