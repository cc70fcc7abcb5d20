package payment

import (
	"encoding/json"
	"time"
)

// Payment lifecycle statuses as reported by the gateway. The set is open:
// unknown statuses from a verified webhook are stored as-is.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusVoided   = "VOIDED"
	StatusError    = "ERROR"
)

type Payment struct {
	ID                 int64           `gorm:"primaryKey"`
	Reference          string          `gorm:"column:reference;not null;uniqueIndex"`
	Status             string          `gorm:"column:status;default:PENDING"`
	AmountInCents      int64           `gorm:"column:amount_in_cents;not null"`
	Currency           string          `gorm:"column:currency;not null"`
	DeviceID           string          `gorm:"column:device_id"`
	WompiTransactionID *string         `gorm:"column:wompi_transaction_id"`
	PaymentMethodType  *string         `gorm:"column:payment_method_type"`
	Metadata           json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;default:now()"`
}

// IsFinal reports whether subscribers get notified for this status.
func IsFinal(status string) bool {
	return status == StatusApproved || status == StatusDeclined
}
