package reconcile

import "errors"

var (
	// ErrUnknownPayment means no payment matched the event's idempotency
	// key. A data-integrity guard: the engine never fabricates records.
	ErrUnknownPayment = errors.New("no payment matches the settlement event")
	// ErrCourseFull is the admission-time rejection. The check is
	// optimistic; see Engine.Admit.
	ErrCourseFull           = errors.New("course has no remaining seats")
	ErrAlreadyEnrolled      = errors.New("user is already enrolled in this course")
	ErrDuplicateTransaction = errors.New("transaction id already used")
	ErrMissingTransactionID = errors.New("transaction id is required")
	ErrInvalidOutcome       = errors.New("settlement outcome is not recognized")
	ErrNotRefundable        = errors.New("payment is not in a refundable state")
	ErrNotCancellable       = errors.New("enrollment is not in a cancellable state")

	// errStatusMoved signals a lost compare-and-swap inside a settlement
	// transaction; the caller reloads and re-evaluates.
	errStatusMoved = errors.New("payment status moved concurrently")
)
