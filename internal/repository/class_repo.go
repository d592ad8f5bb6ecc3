package repository

import (
	"context"
	"time"

	"eduhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClassRepository struct {
	db *gorm.DB
}

func NewClassRepository(db *gorm.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) CreateClass(ctx context.Context, c *models.ClassOffering) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *ClassRepository) GetClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	var c models.ClassOffering
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ClassRepository) LockClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	var c models.ClassOffering
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *ClassRepository) LockSlot(ctx context.Context, id uint) (*models.ScheduleSlot, error) {
	var s models.ScheduleSlot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&s, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *ClassRepository) ListSlots(ctx context.Context, classID uint) ([]models.ScheduleSlot, error) {
	var list []models.ScheduleSlot
	err := r.db.WithContext(ctx).Where("class_id = ?", classID).Order("day_of_week, start_time").Find(&list).Error
	return list, err
}

func (r *ClassRepository) AdjustClassCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error {
	updates := counterUpdates(enrolledDelta, confirmedDelta)
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ClassOffering{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ClassRepository) AdjustSlotCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error {
	updates := counterUpdates(enrolledDelta, confirmedDelta)
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ScheduleSlot{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func counterUpdates(enrolledDelta, confirmedDelta int) map[string]interface{} {
	updates := map[string]interface{}{}
	if enrolledDelta != 0 {
		updates["enrolled_count"] = gorm.Expr("GREATEST(enrolled_count + ?, 0)", enrolledDelta)
	}
	if confirmedDelta != 0 {
		updates["confirmed_count"] = gorm.Expr("GREATEST(confirmed_count + ?, 0)", confirmedDelta)
	}
	return updates
}

func (r *ClassRepository) MarkClassCompleted(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ClassOffering{}).
		Where("id = ?", id).
		Update("completed_at", at).Error
}

func (r *ClassRepository) GetTestResult(ctx context.Context, id uint) (*models.TestResult, error) {
	var t models.TestResult
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}
