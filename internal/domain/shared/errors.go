package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same error code, so that
// errors.Is(err, ErrNotFound) matches any NOT_FOUND error regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// NotFound returns a NOT_FOUND error with a specific message
func NotFound(message string) *DomainError {
	return NewDomainError(CodeNotFound, message)
}

// AlreadyExists returns an ALREADY_EXISTS error with a specific message
func AlreadyExists(message string) *DomainError {
	return NewDomainError(CodeAlreadyExists, message)
}

// InvalidInput returns an INVALID_INPUT error with a specific message
func InvalidInput(message string) *DomainError {
	return NewDomainError(CodeInvalidInput, message)
}

// InvalidState returns an INVALID_STATE error with a specific message
func InvalidState(message string) *DomainError {
	return NewDomainError(CodeInvalidState, message)
}
