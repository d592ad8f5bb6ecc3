package models

import (
	"time"

	"eduhub/internal/domain"
)

type Enrollment struct {
	ID                 uint                    `gorm:"primaryKey" json:"id"`
	EnrollmentNumber   string                  `gorm:"size:32;uniqueIndex;not null" json:"enrollment_number"`
	UserID             uint                    `gorm:"not null;index:idx_enrollment_user_class" json:"user_id"`
	ClassID            uint                    `gorm:"not null;index:idx_enrollment_user_class;index" json:"class_id"`
	ScheduleID         *uint                   `gorm:"index" json:"schedule_id"`
	TestResultID       *uint                   `json:"test_result_id"`
	StudentName        string                  `gorm:"size:255;not null" json:"student_name"`
	StudentEmail       string                  `gorm:"size:255;not null" json:"student_email"`
	StudentPhone       string                  `gorm:"size:20;not null" json:"student_phone"`
	StudentAge         int                     `gorm:"not null" json:"student_age"`
	ParentName         string                  `gorm:"size:255" json:"parent_name"`
	ParentPhone        string                  `gorm:"size:20" json:"parent_phone"`
	ParentEmail        string                  `gorm:"size:255" json:"parent_email"`
	Notes              string                  `gorm:"type:text" json:"notes"`
	Status             domain.EnrollmentStatus `gorm:"size:20;not null;index:idx_enrollment_user_class" json:"status"`
	ConfirmedAt        *time.Time              `json:"confirmed_at"`
	CancelledAt        *time.Time              `json:"cancelled_at"`
	CancellationReason string                  `gorm:"size:500" json:"cancellation_reason"`
	CompletedAt        *time.Time              `json:"completed_at"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// EnrollmentSequence holds the last number handed out for a day (YYYYMMDD).
type EnrollmentSequence struct {
	Day       string `gorm:"primaryKey;size:8"`
	LastValue int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (EnrollmentSequence) TableName() string {
	return "enrollment_sequences"
}
