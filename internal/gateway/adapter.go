package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ardiannugra/kelasin/internal/reconcile"
)

var (
	// ErrInvalidSignature means the payload failed authenticity checks
	// and must be discarded without any state change.
	ErrInvalidSignature = errors.New("gateway signature verification failed")
	ErrUnknownProvider  = errors.New("no adapter registered for provider")
	ErrInvalidPayload   = errors.New("gateway payload could not be parsed")
	// ErrEventIgnored marks payloads whose status has no place in the
	// settlement vocabulary; they are acknowledged and dropped.
	ErrEventIgnored = errors.New("gateway event carries no settlement outcome")
)

// Adapter translates one provider's confirmation payloads into
// normalized settlement events. The status mapping table is the only
// provider-specific logic in the system; everything behind it is
// provider-agnostic.
type Adapter interface {
	Provider() string
	// Verify authenticates the raw payload against provider headers.
	// It must reject before Parse is ever consulted.
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*reconcile.SettlementEvent, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if name == "" {
			continue
		}
		r.adapters[name] = adapter
	}
	return r
}

func (r *Registry) Get(provider string) (Adapter, error) {
	adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return adapter, nil
}

// MapGenericStatus maps the loose status vocabulary used by manual and
// legacy verification flows onto a settlement outcome.
func MapGenericStatus(status string) (reconcile.Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "succeeded", "paid", "settled", "completed":
		return reconcile.OutcomeSucceeded, true
	case "failed", "failure", "error", "declined":
		return reconcile.OutcomeFailed, true
	case "expired", "canceled", "cancelled", "void":
		return reconcile.OutcomeCanceled, true
	case "pending", "awaiting", "requires_action", "in_progress":
		return reconcile.OutcomeRequiresAction, true
	}
	return "", false
}
