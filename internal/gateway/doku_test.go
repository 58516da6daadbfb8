package gateway

import (
	"net/http"
	"testing"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dokuClientID   = "BRN-0201-1234567890"
	dokuSecretKey  = "SK-test-secret"
	dokuNotifyPath = "/v1/payments/webhook/doku"
)

func signedDokuHeaders(payload []byte) http.Header {
	requestID := "req-001"
	timestamp := "2025-04-01T08:00:00Z"
	digest := helpers.DokuDigest(string(payload))
	signature := helpers.DokuComponentSignature(dokuClientID, requestID, timestamp, dokuNotifyPath, digest, dokuSecretKey)

	headers := http.Header{}
	headers.Set("Client-Id", dokuClientID)
	headers.Set("Request-Id", requestID)
	headers.Set("Request-Timestamp", timestamp)
	headers.Set("Signature", signature)
	return headers
}

func TestDokuVerify(t *testing.T) {
	adapter := NewDokuAdapter(dokuClientID, dokuSecretKey, dokuNotifyPath)
	payload := []byte(`{"order":{"invoice_number":"INV-001","amount":150000},"transaction":{"status":"SUCCESS"}}`)

	assert.NoError(t, adapter.Verify(payload, signedDokuHeaders(payload)))

	tampered := signedDokuHeaders(payload)
	assert.Error(t, adapter.Verify([]byte(`{"order":{"invoice_number":"INV-002"}}`), tampered))

	wrongKey := NewDokuAdapter(dokuClientID, "SK-other-secret", dokuNotifyPath)
	assert.ErrorIs(t, wrongKey.Verify(payload, signedDokuHeaders(payload)), ErrInvalidSignature)

	wrongClient := signedDokuHeaders(payload)
	wrongClient.Set("Client-Id", "BRN-9999-0000000000")
	assert.ErrorIs(t, adapter.Verify(payload, wrongClient), ErrInvalidSignature)

	missing := signedDokuHeaders(payload)
	missing.Del("Signature")
	assert.ErrorIs(t, adapter.Verify(payload, missing), ErrInvalidSignature)
}

func TestDokuParse(t *testing.T) {
	adapter := NewDokuAdapter(dokuClientID, dokuSecretKey, dokuNotifyPath)

	payload := []byte(`{
		"order": {"invoice_number": "INV-001", "amount": 150000},
		"transaction": {"status": "SUCCESS", "original_request_id": "doku-evt-42"},
		"channel": {"id": "VIRTUAL_ACCOUNT_BCA"},
		"service": {"id": "VIRTUAL_ACCOUNT"},
		"additional_info": {"whatever": true}
	}`)

	event, err := adapter.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", event.IdempotencyKey)
	assert.Equal(t, "doku-evt-42", event.GatewayReferenceID)
	assert.Equal(t, "doku", event.Provider)
	assert.Equal(t, reconcile.OutcomeSucceeded, event.Outcome)
	assert.Equal(t, "VIRTUAL_ACCOUNT_BCA", event.Metadata["channel"])
}

func TestDokuParseStatusMapping(t *testing.T) {
	adapter := NewDokuAdapter(dokuClientID, dokuSecretKey, dokuNotifyPath)

	tests := []struct {
		status  string
		outcome reconcile.Outcome
	}{
		{"SUCCESS", reconcile.OutcomeSucceeded},
		{"success", reconcile.OutcomeSucceeded},
		{"FAILED", reconcile.OutcomeFailed},
		{"DECLINED", reconcile.OutcomeFailed},
		{"EXPIRED", reconcile.OutcomeCanceled},
		{"PENDING", reconcile.OutcomeRequiresAction},
	}
	for _, tt := range tests {
		payload := []byte(`{"order":{"invoice_number":"INV-001"},"transaction":{"status":"` + tt.status + `"}}`)
		event, err := adapter.Parse(payload)
		require.NoError(t, err, tt.status)
		assert.Equal(t, tt.outcome, event.Outcome, tt.status)
	}
}

func TestDokuParseRejections(t *testing.T) {
	adapter := NewDokuAdapter(dokuClientID, dokuSecretKey, dokuNotifyPath)

	_, err := adapter.Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = adapter.Parse([]byte(`{"transaction":{"status":"SUCCESS"}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = adapter.Parse([]byte(`{"order":{"invoice_number":"INV-001"},"transaction":{"status":"REVERSAL"}}`))
	assert.ErrorIs(t, err, ErrEventIgnored)
}
