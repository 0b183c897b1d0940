package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeConflict represents conflicts with existing immutable resources
	ErrTypeConflict ErrorType = "conflict"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeStepFailure represents a nonzero exit from an external process step
	ErrTypeStepFailure ErrorType = "step_failure"
	// ErrTypeGateDenied represents a denied or rejected input gate
	ErrTypeGateDenied ErrorType = "gate_denied"
	// ErrTypeGateTimeout represents an input gate that expired without a decision
	ErrTypeGateTimeout ErrorType = "gate_timeout"
	// ErrTypeUnrecognizedStrategy represents an unknown pipeline strategy key
	ErrTypeUnrecognizedStrategy ErrorType = "unrecognized_strategy"
	// ErrTypeTrigger represents downstream job trigger errors
	ErrTypeTrigger ErrorType = "trigger"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ConflictError creates a new conflict error for immutable resources
func ConflictError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeConflict,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// StepFailureError creates an error for a step whose process exited nonzero
func StepFailureError(step string, exitCode int, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStepFailure,
		Message: fmt.Sprintf("step %s exited with code %d", step, exitCode),
		Cause:   cause,
		Context: map[string]interface{}{"exit_code": exitCode},
	}
}

// GateDeniedError creates an error for a denied input gate
func GateDeniedError(stage, approver string) *AppError {
	return &AppError{
		Type:    ErrTypeGateDenied,
		Message: fmt.Sprintf("approval for stage %s denied by %s", stage, approver),
	}
}

// GateTimeoutError creates an error for an input gate that expired
func GateTimeoutError(stage string) *AppError {
	return &AppError{
		Type:    ErrTypeGateTimeout,
		Message: fmt.Sprintf("approval for stage %s timed out", stage),
	}
}

// UnrecognizedStrategyError creates an error for an unknown strategy key
func UnrecognizedStrategyError(key string) *AppError {
	return &AppError{
		Type:    ErrTypeUnrecognizedStrategy,
		Message: fmt.Sprintf("no pipeline strategy registered for %q", key),
	}
}

// TriggerError creates an error for a failed downstream job trigger
func TriggerError(jobRef string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTrigger,
		Message: fmt.Sprintf("failed to trigger job %s", jobRef),
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
