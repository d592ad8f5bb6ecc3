package repository

import (
	"context"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// NextEnrollmentSequence must run inside a transaction: the day row stays locked
// until commit so numbers for the same day are handed out one at a time.
func (r *EnrollmentRepository) NextEnrollmentSequence(ctx context.Context, day string) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.EnrollmentSequence{Day: day}).Error; err != nil {
		return 0, err
	}
	var seq models.EnrollmentSequence
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("day = ?", day).First(&seq).Error; err != nil {
		return 0, translate(err)
	}
	next := seq.LastValue + 1
	if err := db.Model(&models.EnrollmentSequence{}).
		Where("day = ?", day).
		Update("last_value", next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return translate(r.db.WithContext(ctx).Create(e).Error)
}

func (r *EnrollmentRepository) GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *EnrollmentRepository) LockEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&e, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *EnrollmentRepository) HasActiveEnrollment(ctx context.Context, userID, classID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("user_id = ? AND class_id = ? AND status IN ?", userID, classID,
			[]domain.EnrollmentStatus{domain.EnrollmentPending, domain.EnrollmentConfirmed}).
		Count(&count).Error
	return count > 0, err
}

func (r *EnrollmentRepository) ListEnrollmentsByUser(ctx context.Context, userID uint) ([]models.Enrollment, error) {
	var list []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *EnrollmentRepository) ListEnrollmentsByClass(ctx context.Context, classID uint, status domain.EnrollmentStatus) ([]models.Enrollment, error) {
	var list []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND status = ?", classID, status).
		Order("id").
		Find(&list).Error
	return list, err
}

func (r *EnrollmentRepository) TransitionEnrollment(ctx context.Context, id uint, from domain.EnrollmentStatus, patch EnrollmentPatch) (bool, error) {
	updates := map[string]interface{}{
		"status":     patch.Status,
		"updated_at": time.Now(),
	}
	if patch.ConfirmedAt != nil {
		updates["confirmed_at"] = *patch.ConfirmedAt
	}
	if patch.CancelledAt != nil {
		updates["cancelled_at"] = *patch.CancelledAt
	}
	if patch.CancellationReason != nil {
		updates["cancellation_reason"] = *patch.CancellationReason
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = *patch.CompletedAt
	}
	res := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
