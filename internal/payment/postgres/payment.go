package postgres

import (
	"context"
	goerrors "errors"
	"strings"
	"time"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payments-service/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil && isDuplicateKey(err) {
		return errors.NewConflictError("payment reference already exists", errors.ErrCodeDuplicateReference).WithCause(err)
	}
	return err
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateFromWebhook(ctx context.Context, reference string, update paymentpkg.WebhookUpdate) error {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}

	if update.TransactionID != nil {
		updates["wompi_transaction_id"] = *update.TransactionID
	}

	if update.PaymentMethodType != nil {
		updates["payment_method_type"] = *update.PaymentMethodType
	}

	if update.Metadata != nil {
		updates["metadata"] = update.Metadata
	}

	return r.db.WithContext(ctx).Model(&payment.Payment{}).Where("reference = ?", reference).Updates(updates).Error
}

// isDuplicateKey matches unique violations across postgres and sqlite, which
// gorm does not always normalize to ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
	if goerrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
