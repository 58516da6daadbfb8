package gateway

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/reconcile"
)

// DokuAdapter handles DOKU checkout notifications. DOKU signs each
// notification with an HMAC over the Client-Id/Request-Id/
// Request-Timestamp/Request-Target/Digest component string, mirroring
// the headers we send on outbound checkout calls.
type DokuAdapter struct {
	clientID   string
	secretKey  string
	notifyPath string
}

func NewDokuAdapter(clientID, secretKey, notifyPath string) *DokuAdapter {
	return &DokuAdapter{clientID: clientID, secretKey: secretKey, notifyPath: notifyPath}
}

func (a *DokuAdapter) Provider() string { return "doku" }

func (a *DokuAdapter) Verify(payload []byte, headers http.Header) error {
	clientID := strings.TrimSpace(headers.Get("Client-Id"))
	requestID := strings.TrimSpace(headers.Get("Request-Id"))
	timestamp := strings.TrimSpace(headers.Get("Request-Timestamp"))
	signature := strings.TrimSpace(headers.Get("Signature"))
	if clientID == "" || requestID == "" || timestamp == "" || signature == "" {
		return ErrInvalidSignature
	}
	if clientID != a.clientID {
		return ErrInvalidSignature
	}

	digest := helpers.DokuDigest(string(payload))
	expected := helpers.DokuComponentSignature(clientID, requestID, timestamp, a.notifyPath, digest, a.secretKey)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

type dokuNotification struct {
	Order struct {
		InvoiceNumber string `json:"invoice_number"`
		Amount        int64  `json:"amount"`
	} `json:"order"`
	Transaction struct {
		Status            string `json:"status"`
		Date              string `json:"date"`
		OriginalRequestID string `json:"original_request_id"`
	} `json:"transaction"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Service struct {
		ID string `json:"id"`
	} `json:"service"`
}

func (a *DokuAdapter) Parse(payload []byte) (*reconcile.SettlementEvent, error) {
	var notification dokuNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, ErrInvalidPayload
	}
	if notification.Order.InvoiceNumber == "" {
		return nil, ErrInvalidPayload
	}

	outcome, ok := a.mapStatus(notification.Transaction.Status)
	if !ok {
		return nil, ErrEventIgnored
	}

	return &reconcile.SettlementEvent{
		IdempotencyKey:     notification.Order.InvoiceNumber,
		GatewayReferenceID: notification.Transaction.OriginalRequestID,
		Provider:           a.Provider(),
		Outcome:            outcome,
		Metadata: map[string]string{
			"provider_event_id": notification.Transaction.OriginalRequestID,
			"channel":           notification.Channel.ID,
			"service":           notification.Service.ID,
		},
	}, nil
}

func (a *DokuAdapter) mapStatus(status string) (reconcile.Outcome, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS":
		return reconcile.OutcomeSucceeded, true
	case "FAILED", "DECLINED":
		return reconcile.OutcomeFailed, true
	case "EXPIRED":
		return reconcile.OutcomeCanceled, true
	case "PENDING":
		return reconcile.OutcomeRequiresAction, true
	}
	return "", false
}
