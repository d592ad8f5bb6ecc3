package repository

import (
	"context"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) LockPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetPaymentByEnrollment(ctx context.Context, enrollmentID uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) SetPaymentInvoice(ctx context.Context, id uint, providerInvoiceID, invoiceURL string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"provider_invoice_id":  providerInvoiceID,
			"provider_invoice_url": invoiceURL,
			"expires_at":           expiresAt,
		}).Error
}

func (r *PaymentRepository) TransitionPayment(ctx context.Context, id uint, from domain.PaymentStatus, patch PaymentPatch) (bool, error) {
	updates := map[string]interface{}{
		"status":     patch.Status,
		"updated_at": time.Now(),
	}
	if patch.PaidAt != nil {
		updates["paid_at"] = *patch.PaidAt
	}
	if patch.PaidAmount != nil {
		updates["paid_amount"] = *patch.PaidAmount
	}
	if patch.FailedAt != nil {
		updates["failed_at"] = *patch.FailedAt
	}
	if patch.ExpiredAt != nil {
		updates["expired_at"] = *patch.ExpiredAt
	}
	if patch.RefundedAt != nil {
		updates["refunded_at"] = *patch.RefundedAt
	}
	if patch.RefundAmount != nil {
		updates["refund_amount"] = *patch.RefundAmount
	}
	if patch.RefundReason != nil {
		updates["refund_reason"] = *patch.RefundReason
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeletePayment hard-deletes a failed or expired payment so a retry can take its enrollment slot.
func (r *PaymentRepository) DeletePayment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Payment{}, id).Error
}

func (r *PaymentRepository) ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", domain.PaymentPending, now).
		Order("expires_at").
		Limit(limit).
		Find(&list).Error
	return list, err
}
