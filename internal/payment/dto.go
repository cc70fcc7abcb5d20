package payment

import (
	"encoding/json"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/common/validation"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
)

// CreateIntentRequest is the body of POST /payments.
type CreateIntentRequest struct {
	DeviceID string `json:"deviceId"`
}

func (r *CreateIntentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("deviceId", r.DeviceID).Required().MaxLength(128)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// IntentResponse is what the checkout widget needs to open a gateway session.
type IntentResponse struct {
	Reference string `json:"reference"`
	Signature string `json:"signature"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PublicKey string `json:"publicKey"`
}

// PaymentView is the read model returned by GET /payments/{reference}.
type PaymentView struct {
	Reference         string          `json:"reference"`
	Status            string          `json:"status"`
	AmountInCents     int64           `json:"amount_in_cents"`
	Currency          string          `json:"currency"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	PaymentMethodType *string         `json:"payment_method_type,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

func ToView(p *payment.Payment) *PaymentView {
	return &PaymentView{
		Reference:         p.Reference,
		Status:            p.Status,
		AmountInCents:     p.AmountInCents,
		Currency:          p.Currency,
		TransactionID:     p.WompiTransactionID,
		PaymentMethodType: p.PaymentMethodType,
		Metadata:          p.Metadata,
		CreatedAt:         p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:         p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Webhook event types this service reconciles. Anything else is acknowledged
// and ignored so future gateway event types don't bounce.
const (
	EventTransactionUpdated      = "transaction.updated"
	EventNequiTokenUpdated       = "nequi_token.updated"
	EventBancolombiaTokenUpdated = "bancolombia_transfer_token.updated"
)

func IsSupportedEvent(event string) bool {
	switch event {
	case EventTransactionUpdated, EventNequiTokenUpdated, EventBancolombiaTokenUpdated:
		return true
	}
	return false
}

// Webhook is the gateway notification payload. Parsing is permissive: only
// the fields reconciliation reads are typed, everything else rides along in
// the raw data blob and ends up in the record's metadata.
type Webhook struct {
	Event       string           `json:"event"`
	Data        WebhookData      `json:"data"`
	Environment string           `json:"environment,omitempty"`
	Signature   WebhookSignature `json:"signature"`
	Timestamp   int64            `json:"timestamp"`
	SentAt      string           `json:"sent_at,omitempty"`
}

type WebhookData struct {
	Transaction WebhookTransaction

	raw json.RawMessage
}

func (d *WebhookData) UnmarshalJSON(b []byte) error {
	d.raw = append(d.raw[:0], b...)

	var inner struct {
		Transaction WebhookTransaction `json:"transaction"`
	}
	if err := json.Unmarshal(b, &inner); err != nil {
		return err
	}
	d.Transaction = inner.Transaction
	return nil
}

func (d WebhookData) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	return json.Marshal(struct {
		Transaction WebhookTransaction `json:"transaction"`
	}{Transaction: d.Transaction})
}

// Raw returns the full data object as received, for metadata storage.
func (d *WebhookData) Raw() json.RawMessage {
	return d.raw
}

type WebhookTransaction struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	AmountInCents     int64  `json:"amount_in_cents"`
	Reference         string `json:"reference"`
	PaymentMethodType string `json:"payment_method_type,omitempty"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	Currency          string `json:"currency,omitempty"`
}

type WebhookSignature struct {
	Checksum   string   `json:"checksum"`
	Properties []string `json:"properties,omitempty"`
}

func (w *Webhook) Validate() error {
	validator := validation.NewValidator()

	validator.Field("event", w.Event).Required()
	validator.Field("timestamp", w.Timestamp).Required()
	validator.Field("data.transaction.id", w.Data.Transaction.ID).Required()
	validator.Field("data.transaction.status", w.Data.Transaction.Status).Required()
	validator.Field("data.transaction.reference", w.Data.Transaction.Reference).Required()
	validator.Field("signature.checksum", w.Signature.Checksum).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ReconcileResult mirrors what the transport reports back to the gateway.
// The webhook endpoint acknowledges 200 regardless of Success.
type ReconcileResult struct {
	Success bool             `json:"success"`
	Status  string           `json:"status,omitempty"`
	Reason  errors.ErrorCode `json:"reason,omitempty"`
}
