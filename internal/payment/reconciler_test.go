package payment_test

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
	"github.com/frahmantamala/payments-service/internal/core/events"
	paymentPkg "github.com/frahmantamala/payments-service/internal/payment"
)

const eventsSecret = "test_events_secret"

// eventRecorder captures bus events; Publish dispatches on goroutines so
// assertions go through Eventually.
type eventRecorder struct {
	mu     sync.Mutex
	events []*events.PaymentStatusChangedEvent
}

func (r *eventRecorder) handle(ctx context.Context, event events.Event) error {
	statusEvent, ok := event.(*events.PaymentStatusChangedEvent)
	if !ok {
		return goerrors.New("unexpected event type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, statusEvent)
	return nil
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) last() *events.PaymentStatusChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

var _ = Describe("Reconciler", func() {
	var (
		reconciler *paymentPkg.Reconciler
		mockRepo   *mockPaymentRepository
		recorder   *eventRecorder
		logger     *slog.Logger
	)

	seedPending := func(reference string) {
		mockRepo.seed(&payment.Payment{
			Reference:     reference,
			Status:        payment.StatusPending,
			AmountInCents: 1500000,
			Currency:      "COP",
		})
	}

	BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		recorder = &eventRecorder{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		verifier := paymentPkg.NewSignatureVerifier(eventsSecret, 5*time.Minute)
		eventBus := events.NewEventBus(logger)
		eventBus.Subscribe(events.EventTypePaymentStatusChanged, recorder.handle)

		reconciler = paymentPkg.NewReconciler(mockRepo, verifier, eventBus, logger)
	})

	Context("with an unsupported event type", func() {
		It("acknowledges success without touching the store", func() {
			webhook := buildWebhook("transaction.created", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeTrue())
			Expect(result.Status).To(BeEmpty())
			Expect(mockRepo.getCalls).To(BeZero())
			Expect(mockRepo.updateCalls).To(BeZero())
		})
	})

	Context("with a malformed payload", func() {
		It("fails validation without touching the store", func() {
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)
			webhook.Data.Transaction.Reference = ""

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeValidationFailed))
			Expect(mockRepo.updateCalls).To(BeZero())
		})
	})

	Context("with an invalid signature", func() {
		It("rejects without mutation", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), "wrong_secret")

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeSignatureInvalid))
			Expect(mockRepo.get("REF-1").Status).To(Equal(payment.StatusPending))
		})
	})

	Context("with a stale timestamp", func() {
		It("rejects regardless of checksum correctness", func() {
			seedPending("REF-1")
			stale := time.Now().Add(-10 * time.Minute).Unix()
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, stale, eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeSignatureExpired))
			Expect(mockRepo.get("REF-1").Status).To(Equal(payment.StatusPending))
		})
	})

	Context("with a reference this service never issued", func() {
		It("rejects and never creates a record", func() {
			webhook := buildWebhook("transaction.updated", "REF-GHOST", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeUnknownReference))
			Expect(mockRepo.get("REF-GHOST")).To(BeNil())
		})
	})

	Context("with a valid webhook for a pending payment", func() {
		It("applies the transition and notifies subscribers", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeTrue())
			Expect(result.Status).To(Equal(payment.StatusApproved))

			record := mockRepo.get("REF-1")
			Expect(record.Status).To(Equal(payment.StatusApproved))
			Expect(record.WompiTransactionID).ToNot(BeNil())
			Expect(*record.WompiTransactionID).To(Equal("tx-1"))
			Expect(record.PaymentMethodType).ToNot(BeNil())
			Expect(*record.PaymentMethodType).To(Equal("CARD"))

			var metadata map[string]json.RawMessage
			Expect(json.Unmarshal(record.Metadata, &metadata)).To(Succeed())
			Expect(metadata).To(HaveKey("transaction"))
			Expect(metadata).To(HaveKey("environment"))

			Eventually(recorder.count).Should(Equal(1))
			Expect(recorder.last().Reference).To(Equal("REF-1"))
			Expect(recorder.last().Status).To(Equal(payment.StatusApproved))
			Expect(recorder.last().TransactionID).To(Equal("tx-1"))
		})

		It("does not notify for non-terminal statuses", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "VOIDED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeTrue())
			Expect(mockRepo.get("REF-1").Status).To(Equal(payment.StatusVoided))
			Consistently(recorder.count, 100*time.Millisecond).Should(BeZero())
		})

		It("notifies for DECLINED as well", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "DECLINED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeTrue())
			Eventually(recorder.count).Should(Equal(1))
			Expect(recorder.last().Status).To(Equal(payment.StatusDeclined))
		})
	})

	Context("when the identical webhook is delivered twice", func() {
		It("reaches the same final state as a single delivery", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			first := reconciler.Process(context.Background(), webhook)
			after := mockRepo.get("REF-1")

			second := reconciler.Process(context.Background(), webhook)

			Expect(first.Success).To(BeTrue())
			Expect(second.Success).To(BeTrue())

			record := mockRepo.get("REF-1")
			Expect(record.Status).To(Equal(after.Status))
			Expect(*record.WompiTransactionID).To(Equal(*after.WompiTransactionID))
			Expect(record.Metadata).To(MatchJSON(after.Metadata))
		})
	})

	Context("when a second webhook carries a different transaction id", func() {
		It("reports a conflict and keeps the recorded id", func() {
			seedPending("REF-1")
			first := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)
			Expect(reconciler.Process(context.Background(), first).Success).To(BeTrue())

			conflicting := buildWebhook("transaction.updated", "REF-1", "tx-2", "DECLINED", 1500000, time.Now().Unix(), eventsSecret)
			result := reconciler.Process(context.Background(), conflicting)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeConflictingTransaction))

			record := mockRepo.get("REF-1")
			Expect(*record.WompiTransactionID).To(Equal("tx-1"))
			Expect(record.Status).To(Equal(payment.StatusApproved))
		})
	})

	Context("when N duplicate deliveries race", func() {
		It("serializes writes per reference and lands on one state", func() {
			seedPending("REF-1")
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			const n = 10
			var wg sync.WaitGroup
			results := make([]paymentPkg.ReconcileResult, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = reconciler.Process(context.Background(), webhook)
				}(i)
			}
			wg.Wait()

			for _, result := range results {
				Expect(result.Success).To(BeTrue())
			}

			record := mockRepo.get("REF-1")
			Expect(record.Status).To(Equal(payment.StatusApproved))
			Expect(*record.WompiTransactionID).To(Equal("tx-1"))

			// the keyed lock must never let two writes overlap
			Expect(mockRepo.maxInFlight).To(Equal(1))
		})
	})

	Context("when the store read fails transiently", func() {
		It("retries and still applies the update", func() {
			seedPending("REF-1")
			mockRepo.getErrs = []error{
				goerrors.New("connection reset"),
				goerrors.New("connection reset"),
			}
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeTrue())
			Expect(mockRepo.get("REF-1").Status).To(Equal(payment.StatusApproved))
		})
	})

	Context("when the store write keeps failing", func() {
		It("gives up after bounded retries and reports a transient failure", func() {
			seedPending("REF-1")
			mockRepo.updateErrs = []error{
				goerrors.New("timeout"), goerrors.New("timeout"), goerrors.New("timeout"),
				goerrors.New("timeout"), goerrors.New("timeout"), goerrors.New("timeout"),
			}
			webhook := buildWebhook("transaction.updated", "REF-1", "tx-1", "APPROVED", 1500000, time.Now().Unix(), eventsSecret)

			result := reconciler.Process(context.Background(), webhook)

			Expect(result.Success).To(BeFalse())
			Expect(result.Reason).To(Equal(errors.ErrCodeStoreUnavailable))
			Expect(mockRepo.get("REF-1").Status).To(Equal(payment.StatusPending))
			Consistently(recorder.count, 100*time.Millisecond).Should(BeZero())
		})
	})
})
