package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// connectAttempts bounds how long startup waits for postgres to accept connections.
const connectAttempts = 5

// Database wraps the shared gorm handle. Repositories take DB directly.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase opens the postgres pool described by cfg and waits until it
// answers a ping. Statements are logged through log at cfg.LogLevel.
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	return Open(context.Background(), postgres.Open(cfg.DSN()), cfg, log)
}

// Open is NewDatabase for an arbitrary dialector.
func Open(ctx context.Context, dialector gorm.Dialector, cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if log != nil {
		gormLog = logger.NewGormLogger(log, logger.ParseGormLevel(cfg.LogLevel),
			logger.WithSlowThreshold(cfg.SlowQueryThreshold))
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	configurePool(sqlDB, cfg)

	db := &Database{DB: gdb, sql: sqlDB}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts-1), ctx)
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			if log != nil {
				log.Warn("Database not reachable yet", zap.Int("attempt", attempt), zap.Error(err))
			}
			return err
		}
		return nil
	}, policy)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
	}
	return db, nil
}

func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

// Ping reports whether the pool can reach the server.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.sql.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.sql.Close()
}

// AllModels lists every persistence model, in dependency order.
// Migrations own the production schema; tests use this with AutoMigrate.
func AllModels() []any {
	return []any{
		&models.SKUModel{},
		&models.SKUMappingModel{},
		&models.InventoryHistoryModel{},
		&models.OrderModel{},
		&models.ExternalOrderMappingModel{},
		&models.SyncRunModel{},
		&models.SyncStateModel{},
		&models.QuarantineRecordModel{},
		&models.AccessTokenModel{},
	}
}
