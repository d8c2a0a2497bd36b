package database

import (
	"fmt"

	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate 自动迁移全部表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.WorkModel{},
		&model.OracleModel{},
		&model.RevenueReportModel{},
		&model.PeriodModel{},
		&model.HolderSnapshotModel{},
		&model.HolderBalanceModel{},
		&model.PayoutPlanModel{},
		&model.PayoutLineModel{},
		&model.PayoutBatchModel{},
		&model.ReceiptModel{},
		&model.EventModel{},
		&model.AttemptLockModel{},
		&model.SignerLeaseModel{},
		&model.SettlementControlModel{},
		&model.HolderIndexModel{},
		&model.ChainCursorModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
