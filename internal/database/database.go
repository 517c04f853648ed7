package database

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/proprep-api/internal/models"
)

const sqliteMemoryDSN = "file:proprep?mode=memory&cache=shared"

// Connect opens the session store. A postgres:// DSN selects PostgreSQL, any other
// non-empty DSN is treated as a SQLite path, and an empty DSN uses an in-memory
// SQLite database.
func Connect(dsn string, logger zerolog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info().Msg("connected to postgres session store")
	default:
		if dsn == "" {
			dsn = sqliteMemoryDSN
			logger.Warn().Msg("database.url not set, sessions are kept in memory")
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
	}

	return db, nil
}

// Migrate creates or updates the session table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.InterviewSession{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
