package reconcile

import (
	"github.com/ardiannugra/kelasin/internal/models"
)

// Outcome is the provider-agnostic result carried by a settlement signal.
// Gateway adapters map each provider's status vocabulary onto these four
// values; nothing downstream ever sees a provider-specific status.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeFailed         Outcome = "failed"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeRequiresAction Outcome = "requires_action"
)

func (o Outcome) paymentStatus() (models.PaymentStatus, bool) {
	switch o {
	case OutcomeSucceeded:
		return models.PaymentCompleted, true
	case OutcomeFailed:
		return models.PaymentFailed, true
	case OutcomeCanceled:
		return models.PaymentCanceled, true
	case OutcomeRequiresAction:
		return models.PaymentRequiresAction, true
	}
	return "", false
}

// SettlementEvent is the normalized signal every entry point produces.
// It is transient; only its effect on Payment/Enrollment/Course is stored.
type SettlementEvent struct {
	// IdempotencyKey is the ExternalTransactionID for client-side entry
	// points or the provider reference for gateway-originated ones.
	IdempotencyKey string
	// GatewayReferenceID, when present, is recorded on the payment the
	// first time a gateway signal is observed.
	GatewayReferenceID string
	Provider           string
	Outcome            Outcome
	Metadata           map[string]string
}

// Result reports what ApplySettlement did. AlreadyApplied means the
// signal was a duplicate or arrived out of order and changed nothing.
type Result struct {
	AlreadyApplied bool
	Payment        *models.Payment
	Enrollment     *models.Enrollment
}
