package reconcile

import "github.com/ardiannugra/kelasin/internal/models"

// The payment lifecycle moves forward only:
//
//	pending → processing → {completed | failed | canceled | requires_action}
//
// requires_action may fall back to processing (the provider restarted the
// attempt) and completed may move to refunded through an explicit refund.
// Every other terminal transition attempt is a no-op, never an error —
// that is what makes duplicate and out-of-order signals safe.

func IsTerminal(status models.PaymentStatus) bool {
	switch status {
	case models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled, models.PaymentRefunded:
		return true
	}
	return false
}

// canAdvance reports whether a payment may legally move from current to
// target. A false return is the idempotent no-op path, not a failure.
func canAdvance(current, target models.PaymentStatus) bool {
	if current == target {
		return false
	}
	switch current {
	case models.PaymentPending:
		switch target {
		case models.PaymentProcessing, models.PaymentRequiresAction, models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled:
			return true
		}
		return false
	case models.PaymentProcessing:
		switch target {
		case models.PaymentRequiresAction, models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled:
			return true
		}
		return false
	case models.PaymentRequiresAction:
		switch target {
		case models.PaymentProcessing, models.PaymentCompleted, models.PaymentFailed, models.PaymentCanceled:
			return true
		}
		return false
	case models.PaymentCompleted:
		return target == models.PaymentRefunded
	default:
		// failed, canceled and refunded accept nothing further.
		return false
	}
}
