package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrMissingSecret is returned when a signer is built without a shared secret.
var ErrMissingSecret = errors.New("payment signing secret is required")

// Signer computes and checks processor checkout signatures. The secret never
// leaves the server.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer around the processor's shared secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex encoded HMAC-SHA256 of "orderID|paymentID".
func (s *Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected signature using a
// constant-time comparison.
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	expected := s.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
