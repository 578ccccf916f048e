// Package shared contains the error taxonomy used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, checked with errors.Is().
var (
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown account or exam.
	ErrNotFound = errors.New("entity not found")

	// ErrQuotaExceeded is a business rejection: no attempts left.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrLedgerUnavailable marks ledger connectivity failures and timeouts.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrContentFetch marks a content store miss or malformed content.
	ErrContentFetch = errors.New("content fetch error")

	// ErrDuplicate marks a uniqueness violation.
	ErrDuplicate = errors.New("duplicate")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "exam", "account", "ledger"
	Op      string // Operation that failed, e.g., "Submit", "Register"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Exam domain errors
var (
	ErrExamNotFound      = NewDomainError("exam", "Find", ErrNotFound, "exam not found")
	ErrExamAlreadyExists = NewDomainError("exam", "Create", ErrDuplicate, "exam already exists for proposal")
	ErrInvalidExamRef    = NewDomainError("exam", "Validate", ErrValidation, "invalid exam reference")
	ErrMalformedContent  = NewDomainError("exam", "ParseContent", ErrContentFetch, "content lacks a well-formed question list")
)

// Account domain errors
var (
	ErrAccountNotFound      = NewDomainError("account", "Find", ErrNotFound, "account not found")
	ErrAccountAlreadyExists = NewDomainError("account", "Create", ErrDuplicate, "account already exists")
	ErrStudentAlreadyLinked = NewDomainError("account", "Create", ErrDuplicate, "student ID already linked to another wallet")
	ErrNoAttemptsLeft       = NewDomainError("account", "ConsumeAttempt", ErrQuotaExceeded, "no attempts left")
	ErrInvalidWallet        = NewDomainError("account", "Validate", ErrValidation, "invalid wallet address")
	ErrInvalidStudentID     = NewDomainError("account", "Validate", ErrValidation, "student ID is required")
	ErrInvalidGrant         = NewDomainError("account", "GrantAttempts", ErrValidation, "attempt count must be positive")
)

// External collaborator errors
var (
	ErrLedgerTimeout    = NewDomainError("ledger", "Call", ErrLedgerUnavailable, "ledger call timed out")
	ErrRewardReverted   = NewDomainError("ledger", "AwaitConfirmation", ErrLedgerUnavailable, "reward transaction reverted")
	ErrProposalNotFound = NewDomainError("ledger", "GetProposal", ErrNotFound, "proposal not found on ledger")
	ErrContentNotFound  = NewDomainError("content", "Get", ErrContentFetch, "content not found")
	ErrContentRejected  = NewDomainError("content", "Put", ErrContentFetch, "content store rejected the blob")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if the error is a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsQuotaExceeded checks if the caller ran out of attempts.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsLedgerUnavailable checks if the ledger could not be reached in time.
func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}

// IsContentFetch checks if content could not be fetched or parsed.
func IsContentFetch(err error) bool {
	return errors.Is(err, ErrContentFetch)
}

// Message returns the human-readable message of a domain error, or err.Error().
func Message(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
