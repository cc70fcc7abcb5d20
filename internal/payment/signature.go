package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	errors "github.com/frahmantamala/payments-service/internal"
)

// ComputeIntentSignature builds the outbound integrity signature the checkout
// widget sends to the gateway: sha256(reference + amount + currency + secret).
func ComputeIntentSignature(reference string, amountInCents int64, currency, integritySecret string) string {
	concatenated := fmt.Sprintf("%s%d%s%s", reference, amountInCents, currency, integritySecret)
	sum := sha256.Sum256([]byte(concatenated))
	return hex.EncodeToString(sum[:])
}

// ComputeWebhookChecksum reconstructs the checksum the gateway signs events
// with: sha256(transaction.id + status + amount_in_cents + timestamp + secret).
func ComputeWebhookChecksum(transactionID, status string, amountInCents, timestamp int64, eventsSecret string) string {
	concatenated := fmt.Sprintf("%s%s%d%d%s", transactionID, status, amountInCents, timestamp, eventsSecret)
	sum := sha256.Sum256([]byte(concatenated))
	return hex.EncodeToString(sum[:])
}

// SignatureVerifier checks webhook authenticity. The checksum only proves the
// gateway authored this exact status transition at roughly this time; it does
// not prevent replay inside the window, so the window width is the tunable
// security/availability trade-off.
type SignatureVerifier struct {
	eventsSecret string
	replayWindow time.Duration
}

func NewSignatureVerifier(eventsSecret string, replayWindow time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		eventsSecret: eventsSecret,
		replayWindow: replayWindow,
	}
}

// Verify returns nil for an authentic, fresh webhook. The replay window is
// enforced first: a stale timestamp is rejected even if the checksum matches.
func (v *SignatureVerifier) Verify(w *Webhook, now time.Time) *errors.AppError {
	eventTime := time.Unix(w.Timestamp, 0)
	drift := now.Sub(eventTime)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.replayWindow {
		return errors.ErrSignatureExpired
	}

	tx := w.Data.Transaction
	expected := ComputeWebhookChecksum(tx.ID, tx.Status, tx.AmountInCents, w.Timestamp, v.eventsSecret)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(w.Signature.Checksum)) != 1 {
		return errors.ErrSignatureInvalid
	}
	return nil
}
