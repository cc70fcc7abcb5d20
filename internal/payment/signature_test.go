package payment_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/payments-service/internal"
	paymentPkg "github.com/frahmantamala/payments-service/internal/payment"
)

var _ = Describe("Intent signature", func() {
	const secret = "test_integrity_secret"

	It("hashes reference, amount, currency and secret in order", func() {
		sum := sha256.Sum256([]byte("REF-123" + "1500000" + "COP" + secret))
		expected := hex.EncodeToString(sum[:])

		Expect(paymentPkg.ComputeIntentSignature("REF-123", 1500000, "COP", secret)).To(Equal(expected))
	})

	It("changes when any field changes", func() {
		base := paymentPkg.ComputeIntentSignature("REF-123", 1500000, "COP", secret)

		Expect(paymentPkg.ComputeIntentSignature("REF-124", 1500000, "COP", secret)).ToNot(Equal(base))
		Expect(paymentPkg.ComputeIntentSignature("REF-123", 1500001, "COP", secret)).ToNot(Equal(base))
		Expect(paymentPkg.ComputeIntentSignature("REF-123", 1500000, "USD", secret)).ToNot(Equal(base))
		Expect(paymentPkg.ComputeIntentSignature("REF-123", 1500000, "COP", "other")).ToNot(Equal(base))
	})
})

var _ = Describe("SignatureVerifier", func() {
	const secret = "test_events_secret"

	var (
		verifier *paymentPkg.SignatureVerifier
		now      time.Time
	)

	BeforeEach(func() {
		verifier = paymentPkg.NewSignatureVerifier(secret, 5*time.Minute)
		now = time.Now()
	})

	Context("when the checksum is authentic and fresh", func() {
		It("accepts the webhook", func() {
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, now.Unix(), secret)

			Expect(verifier.Verify(webhook, now)).To(BeNil())
		})
	})

	Context("when a signed field was tampered with", func() {
		It("rejects the webhook", func() {
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, now.Unix(), secret)
			webhook.Data.Transaction.Status = "DECLINED"

			appErr := verifier.Verify(webhook, now)
			Expect(appErr).ToNot(BeNil())
			Expect(appErr.Code).To(Equal(errors.ErrCodeSignatureInvalid))
		})
	})

	Context("when the checksum was produced with a different secret", func() {
		It("rejects the webhook", func() {
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, now.Unix(), "wrong_secret")

			appErr := verifier.Verify(webhook, now)
			Expect(appErr).ToNot(BeNil())
			Expect(appErr.Code).To(Equal(errors.ErrCodeSignatureInvalid))
		})
	})

	Context("when the timestamp is outside the replay window", func() {
		It("rejects a stale webhook even with a correct checksum", func() {
			stale := now.Add(-301 * time.Second).Unix()
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, stale, secret)

			appErr := verifier.Verify(webhook, now)
			Expect(appErr).ToNot(BeNil())
			Expect(appErr.Code).To(Equal(errors.ErrCodeSignatureExpired))
		})

		It("rejects a webhook from the future", func() {
			future := now.Add(301 * time.Second).Unix()
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, future, secret)

			appErr := verifier.Verify(webhook, now)
			Expect(appErr).ToNot(BeNil())
			Expect(appErr.Code).To(Equal(errors.ErrCodeSignatureExpired))
		})

		It("accepts a webhook just inside the window", func() {
			recent := now.Add(-299 * time.Second).Unix()
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, recent, secret)

			Expect(verifier.Verify(webhook, now)).To(BeNil())
		})
	})
})

var _ = Describe("Webhook checksum", func() {
	It("matches the documented concatenation", func() {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s%s%d%d%s", "tx-9", "APPROVED", 42, int64(1700000000), "s3cret")))
		expected := hex.EncodeToString(sum[:])

		Expect(paymentPkg.ComputeWebhookChecksum("tx-9", "APPROVED", 42, 1700000000, "s3cret")).To(Equal(expected))
	})
})
