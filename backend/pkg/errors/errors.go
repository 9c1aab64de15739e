package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeStore represents durable store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeRender represents layout renderer errors
	ErrorTypeRender ErrorType = "render"
	// ErrorTypeCommand represents rejected user commands
	ErrorTypeCommand ErrorType = "command"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind reports the error category. Promoted to every typed error embedding *BaseError.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Store Errors

// ErrDuplicateEdge is returned when the durable store already holds the edge
type ErrDuplicateEdge struct {
	*BaseError
	GuildID  int64
	UserID   int64
	TargetID int64
}

func NewDuplicateEdge(guildID, userID, targetID int64) *ErrDuplicateEdge {
	return &ErrDuplicateEdge{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("edge already exists: %d -> %d in guild %d", userID, targetID, guildID), nil),
		GuildID:   guildID,
		UserID:    userID,
		TargetID:  targetID,
	}
}

// ErrEdgeNotFound is returned when deleting an edge the durable store does not hold
type ErrEdgeNotFound struct {
	*BaseError
	GuildID  int64
	UserID   int64
	TargetID int64
}

func NewEdgeNotFound(guildID, userID, targetID int64) *ErrEdgeNotFound {
	return &ErrEdgeNotFound{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("edge not found: %d -> %d in guild %d", userID, targetID, guildID), nil),
		GuildID:   guildID,
		UserID:    userID,
		TargetID:  targetID,
	}
}

// ErrStoreQueryFailed is returned when a durable store query fails
type ErrStoreQueryFailed struct {
	*BaseError
	Operation string
}

func NewStoreQueryFailed(operation string, err error) *ErrStoreQueryFailed {
	return &ErrStoreQueryFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("query failed: %s", operation), err),
		Operation: operation,
	}
}

// Command Errors

// ErrSelfReference is returned when source and target are the same user.
// It is a sentinel: match it with errors.Is, which compares identity.
var ErrSelfReference = NewBaseError(ErrorTypeCommand, "source and target are the same user", nil)

// ErrSimpLimitReached is returned when a user already targets the maximum number of users
type ErrSimpLimitReached struct {
	*BaseError
	UserID int64
	Limit  int
	Count  int
}

func NewSimpLimitReached(userID int64, limit, count int) *ErrSimpLimitReached {
	return &ErrSimpLimitReached{
		BaseError: NewBaseError(ErrorTypeCommand, fmt.Sprintf("simp limit reached: %d of %d", count, limit), nil),
		UserID:    userID,
		Limit:     limit,
		Count:     count,
	}
}

// Render Errors

// ErrRenderTimeout is returned when the layout renderer exceeds its time budget
type ErrRenderTimeout struct {
	*BaseError
	Binary  string
	Timeout time.Duration
}

func NewRenderTimeout(binary string, timeout time.Duration) *ErrRenderTimeout {
	return &ErrRenderTimeout{
		BaseError: NewBaseError(ErrorTypeRender, fmt.Sprintf("%s timed out after %v", binary, timeout), nil),
		Binary:    binary,
		Timeout:   timeout,
	}
}

// ErrRenderProcess is returned when the layout renderer fails or leaves no artifact
type ErrRenderProcess struct {
	*BaseError
	Binary string
	Stderr string
}

func NewRenderProcess(binary, stderr string, err error) *ErrRenderProcess {
	return &ErrRenderProcess{
		BaseError: NewBaseError(ErrorTypeRender, fmt.Sprintf("%s failed", binary), err),
		Binary:    binary,
		Stderr:    stderr,
	}
}

// ErrScratchIO is returned when a temporary render file cannot be written or read
type ErrScratchIO struct {
	*BaseError
	Path string
}

func NewScratchIO(path string, err error) *ErrScratchIO {
	return &ErrScratchIO{
		BaseError: NewBaseError(ErrorTypeRender, fmt.Sprintf("scratch file I/O failed: %s", path), err),
		Path:      path,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var kinded interface{ Kind() ErrorType }
	if stderrors.As(err, &kinded) {
		return kinded.Kind() == errType
	}
	return false
}

// TypeOf returns the category of err, or "unknown"
func TypeOf(err error) string {
	var kinded interface{ Kind() ErrorType }
	if stderrors.As(err, &kinded) {
		return string(kinded.Kind())
	}
	return "unknown"
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var timeout *ErrRenderTimeout
	if stderrors.As(err, &timeout) {
		return true
	}
	var queryErr *ErrStoreQueryFailed
	return stderrors.As(err, &queryErr)
}
