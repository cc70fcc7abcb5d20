package payment_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	goerrors "errors"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
	paymentPkg "github.com/frahmantamala/payments-service/internal/payment"
)

var _ = Describe("PaymentService", func() {
	var (
		paymentService *paymentPkg.PaymentService
		mockRepo       *mockPaymentRepository
		logger         *slog.Logger
	)

	credentials := paymentPkg.GatewayCredentials{
		PublicKey:       "pub_test_key",
		IntegritySecret: "test_integrity_secret",
		AmountInCents:   1500000,
		Currency:        "COP",
	}

	BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		paymentService = paymentPkg.NewPaymentService(mockRepo, credentials, logger)
	})

	Describe("CreateIntent", func() {
		Context("when the store accepts the record", func() {
			It("persists a PENDING record before returning the intent", func() {
				intent, err := paymentService.CreateIntent(context.Background(), "device-1")

				Expect(err).ToNot(HaveOccurred())
				Expect(intent).ToNot(BeNil())
				Expect(intent.Reference).To(MatchRegexp(`^[0-9A-Z]+-[0-9A-Z]{8}$`))
				Expect(intent.Amount).To(Equal(int64(1500000)))
				Expect(intent.Currency).To(Equal("COP"))
				Expect(intent.PublicKey).To(Equal("pub_test_key"))

				record := mockRepo.get(intent.Reference)
				Expect(record).ToNot(BeNil())
				Expect(record.Status).To(Equal(payment.StatusPending))
				Expect(record.AmountInCents).To(Equal(int64(1500000)))
				Expect(record.Currency).To(Equal("COP"))
				Expect(record.DeviceID).To(Equal("device-1"))
				Expect(record.WompiTransactionID).To(BeNil())
			})

			It("signs the reference, amount and currency with the integrity secret", func() {
				intent, err := paymentService.CreateIntent(context.Background(), "device-1")

				Expect(err).ToNot(HaveOccurred())
				expected := paymentPkg.ComputeIntentSignature(intent.Reference, 1500000, "COP", "test_integrity_secret")
				Expect(intent.Signature).To(Equal(expected))
			})

			It("generates distinct references across intents", func() {
				first, err := paymentService.CreateIntent(context.Background(), "device-1")
				Expect(err).ToNot(HaveOccurred())
				second, err := paymentService.CreateIntent(context.Background(), "device-1")
				Expect(err).ToNot(HaveOccurred())

				Expect(first.Reference).ToNot(Equal(second.Reference))
			})
		})

		Context("when the generated reference collides", func() {
			It("regenerates and retries the create", func() {
				mockRepo.createErrs = []error{
					errors.NewConflictError("payment reference already exists", errors.ErrCodeDuplicateReference),
				}

				intent, err := paymentService.CreateIntent(context.Background(), "device-1")

				Expect(err).ToNot(HaveOccurred())
				Expect(intent).ToNot(BeNil())
				Expect(mockRepo.createCalls).To(Equal(2))
			})
		})

		Context("when the store fails", func() {
			It("surfaces an intent-creation failure and returns no intent", func() {
				mockRepo.createErrs = []error{goerrors.New("connection refused")}

				intent, err := paymentService.CreateIntent(context.Background(), "device-1")

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to create payment record"))
				Expect(intent).To(BeNil())
			})
		})
	})

	Describe("GetPaymentByReference", func() {
		It("returns the stored record", func() {
			mockRepo.seed(&payment.Payment{Reference: "REF-GET", Status: payment.StatusPending, AmountInCents: 100, Currency: "COP"})

			record, err := paymentService.GetPaymentByReference(context.Background(), "REF-GET")

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Reference).To(Equal("REF-GET"))
		})

		It("propagates not-found from the store", func() {
			_, err := paymentService.GetPaymentByReference(context.Background(), "REF-MISSING")

			Expect(err).To(HaveOccurred())
		})
	})
})
