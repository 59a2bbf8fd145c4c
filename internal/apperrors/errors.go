package apperrors

import (
	"errors"
)

var (
	ErrApplicantNotFound = errors.New("applicant not found")

	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAlreadyProcessed   = errors.New("withdrawal already processed")

	ErrAmountInvalid       = errors.New("withdrawal amount must be positive")
	ErrAmountBelowMinimum  = errors.New("withdrawal amount below minimum")
	ErrNotesRequired       = errors.New("rejection notes must not be empty")
	ErrBalanceInsufficient = errors.New("insufficient balance")

	// Storage or upstream unavailability. Safe to retry with backoff,
	// unlike the validation and conflict errors above.
	ErrTransient = errors.New("transient error")
)

// Transient wraps err so callers may detect the retryable class with
// errors.Is(err, ErrTransient) while keeping the original cause in the chain.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return "transient error: " + e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}
