package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
)

const maxReferenceAttempts = 3

// PaymentService issues payment intents: it generates the reference, signs
// the amount/currency so the gateway can detect tampering, and persists the
// PENDING record before the intent is handed to the payer.
type PaymentService struct {
	repository RepositoryAPI
	gateway    GatewayCredentials
	logger     *slog.Logger
}

// GatewayCredentials is the slice of config the intent path needs.
type GatewayCredentials struct {
	PublicKey       string
	IntegritySecret string
	AmountInCents   int64
	Currency        string
}

func NewPaymentService(repository RepositoryAPI, gateway GatewayCredentials, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		repository: repository,
		gateway:    gateway,
		logger:     logger,
	}
}

// CreateIntent creates a PENDING payment record and returns everything the
// checkout widget needs. The record write happens before returning so any
// webhook for this reference finds it.
func (s *PaymentService) CreateIntent(ctx context.Context, deviceID string) (*IntentResponse, error) {
	var reference string

	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		candidate := generateReference(time.Now().UTC())

		record := &payment.Payment{
			Reference:     candidate,
			Status:        payment.StatusPending,
			AmountInCents: s.gateway.AmountInCents,
			Currency:      s.gateway.Currency,
			DeviceID:      deviceID,
		}

		err := s.repository.Create(ctx, record)
		if err == nil {
			reference = candidate
			break
		}

		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeDuplicateReference {
			// astronomically unlikely, but never trust randomness alone
			s.logger.Warn("reference collision, regenerating",
				"reference", candidate,
				"attempt", attempt)
			continue
		}

		s.logger.Error("failed to create payment record",
			"error", err,
			"reference", candidate,
			"device_id", deviceID)
		return nil, errors.NewInternalError("failed to create payment record", err)
	}

	if reference == "" {
		return nil, errors.NewInternalError(
			fmt.Sprintf("could not generate a unique reference after %d attempts", maxReferenceAttempts), nil)
	}

	signature := ComputeIntentSignature(reference, s.gateway.AmountInCents, s.gateway.Currency, s.gateway.IntegritySecret)

	s.logger.Info("payment intent created",
		"reference", reference,
		"amount_in_cents", s.gateway.AmountInCents,
		"currency", s.gateway.Currency,
		"device_id", deviceID)

	return &IntentResponse{
		Reference: reference,
		Signature: signature,
		Amount:    s.gateway.AmountInCents,
		Currency:  s.gateway.Currency,
		PublicKey: s.gateway.PublicKey,
	}, nil
}

func (s *PaymentService) GetPaymentByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return s.repository.GetByReference(ctx, reference)
}

// generateReference concatenates a base36 millisecond token with a random
// base36 suffix: unique with overwhelming probability, short enough to read
// over the phone. Collisions are handled by the create-retry loop above.
func generateReference(now time.Time) string {
	token := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return token + "-" + randomSuffix(8)
}

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is a broken platform; fall back to the clock
		return strings.ToUpper(strconv.FormatInt(time.Now().UnixNano(), 36))
	}
	for i := range b {
		b[i] = referenceAlphabet[int(b[i])%len(referenceAlphabet)]
	}
	return string(b)
}
