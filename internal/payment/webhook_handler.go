package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payments-service/internal/transport"
)

// WebhookHandler receives gateway notifications. It always responds 200:
// the gateway retries on non-2xx, and retry-storming a payload that will
// never parse helps nobody. Failures stay in the structured result and logs.
type WebhookHandler struct {
	*transport.BaseHandler
	reconciler ReconcilerAPI
	logger     *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, reconciler ReconcilerAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		reconciler:  reconciler,
		logger:      logger,
	}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var webhook Webhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		h.logger.Error("webhook body is not valid JSON", "error", err)
		h.WriteJSON(w, http.StatusOK, ReconcileResult{Success: false})
		return
	}

	h.logger.Info("webhook received",
		"event", webhook.Event,
		"reference", webhook.Data.Transaction.Reference,
		"transaction_id", webhook.Data.Transaction.ID)

	result := h.reconciler.Process(r.Context(), &webhook)
	if !result.Success {
		h.logger.Warn("webhook processing failed",
			"reason", result.Reason,
			"event", webhook.Event,
			"reference", webhook.Data.Transaction.Reference)
	}

	h.WriteJSON(w, http.StatusOK, result)
}
