package gateway

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ardiannugra/kelasin/internal/reconcile"
)

// XenditAdapter handles Xendit invoice callbacks, the redirect-based
// rail used for mobile banking and e-wallet payments. Xendit
// authenticates callbacks with a shared token header rather than a
// payload signature.
type XenditAdapter struct {
	callbackToken string
}

func NewXenditAdapter(callbackToken string) *XenditAdapter {
	return &XenditAdapter{callbackToken: callbackToken}
}

func (a *XenditAdapter) Provider() string { return "xendit" }

func (a *XenditAdapter) Verify(payload []byte, headers http.Header) error {
	token := strings.TrimSpace(headers.Get("X-Callback-Token"))
	if token == "" || a.callbackToken == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(token), []byte(a.callbackToken)) {
		return ErrInvalidSignature
	}
	return nil
}

type xenditInvoiceCallback struct {
	ID            string `json:"id"`
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	PaidAmount    int64  `json:"paid_amount"`
	PaymentMethod string `json:"payment_method"`
	BankCode      string `json:"bank_code"`
}

func (a *XenditAdapter) Parse(payload []byte) (*reconcile.SettlementEvent, error) {
	var callback xenditInvoiceCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, ErrInvalidPayload
	}
	if callback.ExternalID == "" {
		return nil, ErrInvalidPayload
	}

	outcome, ok := a.mapStatus(callback.Status)
	if !ok {
		return nil, ErrEventIgnored
	}

	return &reconcile.SettlementEvent{
		IdempotencyKey:     callback.ExternalID,
		GatewayReferenceID: callback.ID,
		Provider:           a.Provider(),
		Outcome:            outcome,
		Metadata: map[string]string{
			"provider_event_id": callback.ID,
			"payment_method":    callback.PaymentMethod,
			"bank_code":         callback.BankCode,
		},
	}, nil
}

func (a *XenditAdapter) mapStatus(status string) (reconcile.Outcome, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SETTLED":
		return reconcile.OutcomeSucceeded, true
	case "FAILED":
		return reconcile.OutcomeFailed, true
	case "EXPIRED", "VOIDED":
		return reconcile.OutcomeCanceled, true
	case "PENDING":
		return reconcile.OutcomeRequiresAction, true
	}
	return "", false
}
