package psql

import (
	"context"
	"fmt"

	"oraculo/oraculo/config"
	"oraculo/oraculo/sources/psql/models"
	"oraculo/oraculo/utils/logging"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func dialector(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "postgres", "":
		connStr := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBSSLMode,
		)
		return postgres.Open(connStr), nil
	case "sqlite":
		return sqlite.Open(cfg.DBPath), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	logging.AppLogger.Info("connecting to database",
		zap.String("driver", cfg.DBDriver), zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return Open(ctx, db)
}

// Open migrates the schema on an existing gorm handle.
func Open(ctx context.Context, db *gorm.DB) (*Database, error) {
	err := db.WithContext(ctx).
		AutoMigrate(
			&models.Conversation{},
			&models.ConversationTurn{},
		)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return &Database{DB: db}, nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
