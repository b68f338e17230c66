package model

// ValidationError reports a malformed topic predicate, subscriber id or stored
// subscription payload. Reason is a human-readable explanation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}

// Domain errors returned by job decoding.
var (
	// ErrMissingPredicate indicates a notification carries neither a predicate nor a message predicate.
	ErrMissingPredicate = DomainError{Code: "MISSING_PREDICATE", Message: "notification has neither predicate nor message predicate"}

	// ErrMissingCallback indicates an outbox job has no subscriber callback URL.
	ErrMissingCallback = DomainError{Code: "MISSING_CALLBACK", Message: "outbox job has no subscriber url"}

	// ErrNegativeRetry indicates an outbox job carries a negative retry counter.
	ErrNegativeRetry = DomainError{Code: "NEGATIVE_RETRY", Message: "outbox job retry counter is negative"}
)
