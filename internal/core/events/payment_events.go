package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentStatusChanged = "payment.status_changed"
)

// PaymentStatusChangedEvent is emitted after a verified webhook moves a
// payment into a terminal-ish status (APPROVED or DECLINED).
type PaymentStatusChangedEvent struct {
	BaseEvent
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func NewPaymentStatusChangedEvent(reference, status, transactionID string) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentStatusChanged,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference":      reference,
				"status":         status,
				"transaction_id": transactionID,
			},
		},
		Reference:     reference,
		Status:        status,
		TransactionID: transactionID,
	}
}
