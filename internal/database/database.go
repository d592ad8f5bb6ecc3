package database

import (
	"errors"
	"time"

	"eduhub/config"
	"eduhub/internal/domain"
	"eduhub/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ClassOffering{},
		&models.ScheduleSlot{},
		&models.TestResult{},
		&models.Enrollment{},
		&models.EnrollmentSequence{},
		&models.Payment{},
		&models.WebhookLog{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

// SeedAdmin creates the back-office admin when a password is configured and the
// account does not exist yet.
func SeedAdmin(db *gorm.DB, cfg config.SeedConfig, log logrus.FieldLogger) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	var existing models.User
	err := db.Where("email = ?", cfg.AdminEmail).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := db.Create(&models.User{
		Email:        cfg.AdminEmail,
		FullName:     "Administrator",
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
	}).Error; err != nil {
		return err
	}
	log.WithField("email", cfg.AdminEmail).Info("[Seed] admin account created")
	return nil
}

// SeedSampleClass gives a fresh development database one open class with two slots.
func SeedSampleClass(db *gorm.DB, log logrus.FieldLogger) error {
	var n int64
	if err := db.Model(&models.ClassOffering{}).Count(&n).Error; err != nil || n > 0 {
		return err
	}
	class := models.ClassOffering{
		Name:        "General English A2",
		Description: "Twelve-week evening course for adult beginners.",
		Price:       1_500_000,
		Currency:    "IDR",
		IsActive:    true,
		MinAge:      15,
		Capacity:    24,
		Schedules: []models.ScheduleSlot{
			{Label: "Mon/Wed evening", DayOfWeek: 1, StartTime: "18:30", EndTime: "20:00", Capacity: 12},
			{Label: "Sat morning", DayOfWeek: 6, StartTime: "09:00", EndTime: "12:00", Capacity: 12},
		},
	}
	if err := db.Create(&class).Error; err != nil {
		return err
	}
	log.WithField("class_id", class.ID).Info("[Seed] sample class created")
	return nil
}
