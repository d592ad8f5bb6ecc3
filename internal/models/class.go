package models

import "time"

// ClassOffering is a class students enroll in. Prices are in minor currency units.
// Capacity <= 0 means the class has no seat limit.
type ClassOffering struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Description    string     `gorm:"type:text" json:"description"`
	Price          int64      `gorm:"not null" json:"price"`
	Currency       string     `gorm:"size:3;not null;default:'IDR'" json:"currency"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	MinAge         int        `gorm:"not null;default:0" json:"min_age"`
	MaxAge         int        `gorm:"not null;default:0" json:"max_age"`
	MinScore       int        `gorm:"not null;default:0" json:"min_score"`
	Capacity       int        `gorm:"not null;default:0" json:"capacity"`
	EnrolledCount  int        `gorm:"not null;default:0" json:"enrolled_count"`
	ConfirmedCount int        `gorm:"not null;default:0" json:"confirmed_count"`
	StartsAt       *time.Time `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Schedules []ScheduleSlot `gorm:"foreignKey:ClassID" json:"schedules,omitempty"`
}

func (ClassOffering) TableName() string {
	return "class_offerings"
}

// HasSeat reports whether one more active enrollment fits.
func (c *ClassOffering) HasSeat() bool {
	return c.Capacity <= 0 || c.EnrolledCount < c.Capacity
}

type ScheduleSlot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ClassID        uint      `gorm:"not null;index" json:"class_id"`
	Label          string    `gorm:"size:100" json:"label"`
	DayOfWeek      int       `gorm:"not null" json:"day_of_week"` // 0 = Sunday
	StartTime      string    `gorm:"size:5" json:"start_time"`    // HH:MM
	EndTime        string    `gorm:"size:5" json:"end_time"`
	Capacity       int       `gorm:"not null;default:0" json:"capacity"`
	EnrolledCount  int       `gorm:"not null;default:0" json:"enrolled_count"`
	ConfirmedCount int       `gorm:"not null;default:0" json:"confirmed_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ScheduleSlot) TableName() string {
	return "schedule_slots"
}

func (s *ScheduleSlot) HasSeat() bool {
	return s.Capacity <= 0 || s.EnrolledCount < s.Capacity
}

// TestResult is written by the placement test; enrollment only reads Score.
type TestResult struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Score     int       `gorm:"not null" json:"score"`
	Level     string    `gorm:"size:50" json:"level"`
	TakenAt   time.Time `json:"taken_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (TestResult) TableName() string {
	return "test_results"
}
