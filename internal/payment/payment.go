package payment

import (
	"context"
	"encoding/json"

	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
)

// RepositoryAPI is the narrow store contract the payment core depends on.
// Create fails with a DUPLICATE_REFERENCE error when the reference exists;
// per-reference write serialization is the reconciler's job, not the store's.
type RepositoryAPI interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByReference(ctx context.Context, reference string) (*payment.Payment, error)
	UpdateFromWebhook(ctx context.Context, reference string, update WebhookUpdate) error
}

// WebhookUpdate carries the fields a verified webhook may change.
// TransactionID is only populated on the first accepted webhook.
type WebhookUpdate struct {
	Status            string
	TransactionID     *string
	PaymentMethodType *string
	Metadata          json.RawMessage
}

// ServiceAPI is what the HTTP handlers consume.
type ServiceAPI interface {
	CreateIntent(ctx context.Context, deviceID string) (*IntentResponse, error)
	GetPaymentByReference(ctx context.Context, reference string) (*payment.Payment, error)
}

// ReconcilerAPI is what the webhook handler consumes.
type ReconcilerAPI interface {
	Process(ctx context.Context, w *Webhook) ReconcileResult
}
