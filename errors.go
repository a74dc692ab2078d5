package spendguard

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("spendguard: not found")
	ErrInvalidInput = errors.New("spendguard: invalid input")
	ErrNotStarted   = errors.New("spendguard: wallet not started")
	ErrStarted      = errors.New("spendguard: wallet already started")

	// Event rejection reasons. These classify why a purchase event did not
	// reach the ledger; they are resolved internally and reported through
	// apply results rather than surfaced as call failures.
	ErrUnverifiedEvent   = errors.New("spendguard: event not verified")
	ErrNonPositiveAmount = errors.New("spendguard: event amount must be positive")
	ErrUnknownProduct    = errors.New("spendguard: product not in catalog")
	ErrCurrencyMismatch  = errors.New("spendguard: event currency does not match ledger currency")

	// ErrDuplicateEvent marks an event id already folded into the ledger.
	// Benign: redelivery and replay hit this path by design.
	ErrDuplicateEvent = errors.New("spendguard: duplicate event")

	// ErrVerificationFailed is returned by PurchaseCredits when the
	// synthesized purchase could not be recognized.
	ErrVerificationFailed = errors.New("spendguard: purchase verification failed")

	// Budget errors
	ErrLimitExceeded = errors.New("spendguard: monthly spending limit exceeded")

	// Persistence errors. A failed store write rolls the triggering
	// mutation back in memory; callers retry the whole operation, which the
	// duplicate-id rule keeps safe.
	ErrPersistence  = errors.New("spendguard: persistence failed")
	ErrStoreTimeout = errors.New("spendguard: store operation timed out")
	ErrStoreClosed  = errors.New("spendguard: store is closed")

	// ErrInconsistentState marks persisted ledger fields missing a
	// counterpart at startup; the ledger is rebuilt from the event
	// snapshot instead of trusting partial local data.
	ErrInconsistentState = errors.New("spendguard: persisted ledger state inconsistent")
)

// PersistenceError wraps a store failure with the field group that failed.
type PersistenceError struct {
	Op  string // "save_state", "mark_applied", "load_state", ...
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("spendguard: persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IsRejection returns true if the error is an event rejection reason.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnverifiedEvent) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// IsLimitError returns true if the error reports a spend over the monthly cap.
// This is an expected, user-facing outcome rather than a system fault.
func IsLimitError(err error) bool {
	return errors.Is(err, ErrLimitExceeded)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. Retrying an already-applied event is safe: the duplicate-id
// rule turns it into a no-op.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrStoreTimeout)
}
