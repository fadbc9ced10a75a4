package db

import (
	"fmt"
	"time"

	"murmur/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres and migrates the schema.
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(20)

	logger.Info("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("Database migration completed")

	return db, nil
}

// Migrate creates or updates the tables, unique indexes and foreign keys.
func Migrate(db *gorm.DB) error {
	// Order matters: votes reference comments, comments reference threads and authors.
	err := db.AutoMigrate(
		&models.Thread{},
		&models.Author{},
		&models.Comment{},
		&models.Vote{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
