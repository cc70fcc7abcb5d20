package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
	"github.com/frahmantamala/payments-service/internal/core/events"
)

const (
	storeTimeout    = 5 * time.Second
	storeMaxRetries = 4
	storeRetryBase  = 50 * time.Millisecond
)

// Reconciler turns verified gateway webhooks into record updates. Deliveries
// for the same reference are serialized through a keyed lock; duplicates are
// safe because the update writes the same end state. Invalid signatures are
// rejected outright, uniformly for every event type.
type Reconciler struct {
	repository RepositoryAPI
	verifier   *SignatureVerifier
	eventBus   *events.EventBus
	locks      *KeyedMutex
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconciler(repository RepositoryAPI, verifier *SignatureVerifier, eventBus *events.EventBus, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repository: repository,
		verifier:   verifier,
		eventBus:   eventBus,
		locks:      NewKeyedMutex(),
		logger:     logger,
		now:        time.Now,
	}
}

// Process applies one webhook delivery. The returned result never carries a
// transport decision: the HTTP layer acknowledges 200 either way.
func (r *Reconciler) Process(ctx context.Context, w *Webhook) ReconcileResult {
	if err := w.Validate(); err != nil {
		r.logger.Error("malformed webhook payload", "error", err, "event", w.Event)
		return ReconcileResult{Success: false, Reason: errors.ErrCodeValidationFailed}
	}

	if !IsSupportedEvent(w.Event) {
		// forward compatible: future gateway event types are a no-op
		r.logger.Info("ignoring unsupported event type", "event", w.Event)
		return ReconcileResult{Success: true}
	}

	tx := w.Data.Transaction

	if appErr := r.verifier.Verify(w, r.now()); appErr != nil {
		r.logger.Warn("rejecting webhook with invalid signature",
			"reason", appErr.Code,
			"reference", tx.Reference,
			"transaction_id", tx.ID)
		return ReconcileResult{Success: false, Reason: appErr.Code}
	}

	r.locks.Lock(tx.Reference)
	defer r.locks.Unlock(tx.Reference)

	record, err := r.getWithRetry(ctx, tx.Reference)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodePaymentNotFound {
			// a reference we never issued; may indicate cross-environment leakage
			r.logger.Warn("webhook for unknown reference",
				"reference", tx.Reference,
				"transaction_id", tx.ID)
			return ReconcileResult{Success: false, Reason: errors.ErrCodeUnknownReference}
		}
		r.logger.Error("store unavailable while loading payment",
			"error", err,
			"reference", tx.Reference)
		return ReconcileResult{Success: false, Reason: errors.ErrCodeStoreUnavailable}
	}

	if record.WompiTransactionID != nil && *record.WompiTransactionID != tx.ID {
		r.logger.Error("conflicting transaction id for reference",
			"reference", tx.Reference,
			"recorded_transaction_id", *record.WompiTransactionID,
			"incoming_transaction_id", tx.ID)
		return ReconcileResult{Success: false, Reason: errors.ErrCodeConflictingTransaction}
	}

	update := WebhookUpdate{
		Status:   tx.Status,
		Metadata: mergeMetadata(record.Metadata, w.Data.Raw()),
	}
	if record.WompiTransactionID == nil {
		transactionID := tx.ID
		update.TransactionID = &transactionID
	}
	if tx.PaymentMethodType != "" {
		methodType := tx.PaymentMethodType
		update.PaymentMethodType = &methodType
	}

	if err := r.updateWithRetry(ctx, tx.Reference, update); err != nil {
		r.logger.Error("store unavailable while updating payment",
			"error", err,
			"reference", tx.Reference,
			"status", tx.Status)
		return ReconcileResult{Success: false, Reason: errors.ErrCodeStoreUnavailable}
	}

	r.logger.Info("payment reconciled",
		"reference", tx.Reference,
		"old_status", record.Status,
		"new_status", tx.Status,
		"transaction_id", tx.ID,
		"event", w.Event)

	if payment.IsFinal(tx.Status) {
		event := events.NewPaymentStatusChangedEvent(tx.Reference, tx.Status, tx.ID)
		r.eventBus.Publish(ctx, event)
	}

	return ReconcileResult{Success: true, Status: tx.Status}
}

func (r *Reconciler) getWithRetry(ctx context.Context, reference string) (*payment.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var record *payment.Payment
	backoff := retry.WithMaxRetries(storeMaxRetries, retry.NewExponential(storeRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := r.repository.GetByReference(ctx, reference)
		if err != nil {
			if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodePaymentNotFound {
				return err
			}
			return retry.RetryableError(err)
		}
		record = rec
		return nil
	})
	return record, err
}

func (r *Reconciler) updateWithRetry(ctx context.Context, reference string, update WebhookUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(storeMaxRetries, retry.NewExponential(storeRetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.repository.UpdateFromWebhook(ctx, reference, update); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// mergeMetadata shallow-merges the incoming webhook data over what the record
// already holds, last write winning per key.
func mergeMetadata(existing, incoming json.RawMessage) json.RawMessage {
	if len(incoming) == 0 {
		return existing
	}
	if len(existing) == 0 {
		return incoming
	}

	var base, overlay map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return incoming
	}
	if err := json.Unmarshal(incoming, &overlay); err != nil {
		return existing
	}

	for k, v := range overlay {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return incoming
	}
	return merged
}
