package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// DokuDigest is the base64 SHA-256 of the request body, as DOKU expects
// it in the Digest header and inside the component signature.
func DokuDigest(jsonBody string) string {
	hash := sha256.Sum256([]byte(jsonBody))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// DokuComponentSignature computes the HMAC over DOKU's canonical
// component string. Both outbound requests and inbound notification
// verification use the same construction.
func DokuComponentSignature(clientID, requestID, requestTimestamp, requestTarget, digest, secretKey string) string {
	componentSignature := "Client-Id:" + clientID + "\n" +
		"Request-Id:" + requestID + "\n" +
		"Request-Timestamp:" + requestTimestamp + "\n" +
		"Request-Target:" + requestTarget + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(componentSignature))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return "HMACSHA256=" + signature
}

func NewDokuHeaderGenerator(clientID, secretKey, requestPath string) *DokuHeaderGenerator {
	return &DokuHeaderGenerator{
		ClientID:    clientID,
		SecretKey:   secretKey,
		RequestID:   uuid.New().String(),
		RequestPath: requestPath,
	}
}

type DokuHeaderGenerator struct {
	ClientID    string
	SecretKey   string
	RequestID   string
	RequestPath string
}

func (d *DokuHeaderGenerator) GetHeaders(jsonBody string) map[string]string {
	digest := DokuDigest(jsonBody)
	requestTimestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	signature := DokuComponentSignature(d.ClientID, d.RequestID, requestTimestamp, d.RequestPath, digest, d.SecretKey)

	return map[string]string{
		"Client-Id":         d.ClientID,
		"Request-Id":        d.RequestID,
		"Request-Timestamp": requestTimestamp,
		"Signature":         signature,
		"Content-Type":      "application/json",
		"Digest":            digest,
	}
}
