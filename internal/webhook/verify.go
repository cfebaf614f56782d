// Package webhook verifies and routes inbound repository events.
//
// Delivery order matters: handlers read-then-write the pipeline row for
// a (project, PR) key, so events for the same key must be applied in
// arrival order. The dispatcher does not serialize; the HTTP receiver
// owns that with a per-key queue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

// SignatureHeader is the HTTP header carrying the HMAC signature.
const SignatureHeader = "X-Hub-Signature-256"

// EventTypeHeader is the HTTP header naming the delivery's event type.
const EventTypeHeader = "X-GitHub-Event"

// Sign computes the signature header value for a payload. Used by the
// CLI's webhook test command and by tests.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery's HMAC-SHA256 signature. It runs before any
// state mutation; a missing or mismatched signature rejects the
// delivery.
func Verify(signatureHeader string, body []byte, secret string) error {
	if secret == "" || signatureHeader == "" {
		return deckerrors.ErrWebhookSignature()
	}
	provided, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok {
		return deckerrors.ErrWebhookSignature()
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return deckerrors.ErrWebhookSignature()
	}
	return nil
}
