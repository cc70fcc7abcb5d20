package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
	}
}

// CreateIntent handles POST /api/v1/payments. Unlike the webhook path this is
// a synchronous client call, so real errors surface as 4xx/5xx.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateIntent: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.Logger.Error("CreateIntent: validation error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	intent, err := h.PaymentService.CreateIntent(r.Context(), req.DeviceID)
	if err != nil {
		h.Logger.Error("CreateIntent: failed to create intent", "error", err, "device_id", req.DeviceID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, intent)
}

// GetPayment handles GET /api/v1/payments/{reference}. This is the polling
// fallback for clients that missed a websocket delivery.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeValidationFailed))
		return
	}

	record, err := h.PaymentService.GetPaymentByReference(r.Context(), reference)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(record))
}
