package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marketsync/backend/internal/infrastructure/config"
)

// newMockGorm returns a postgres-dialect gorm handle backed by sqlmock, for
// asserting the exact SQL a repository emits.
func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gdb, mock, conn
}

// newSQLiteDB opens a private in-memory database with every table migrated
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

func TestOpen(t *testing.T) {
	cfg := &config.DatabaseConfig{MaxOpenConns: 1, LogLevel: "silent"}

	db, err := Open(context.Background(), sqlite.Open("file::memory:"), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, 1, db.sql.Stats().MaxOpenConnections)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestOpen_GivesUpWhenCancelled(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Open(ctx, postgres.New(postgres.Config{Conn: conn}), &config.DatabaseConfig{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAllModels_Migrate(t *testing.T) {
	db := newSQLiteDB(t)
	for _, table := range []string{
		"listing_skus", "sku_mappings", "inventory_history", "orders",
		"external_order_mappings", "sync_runs", "sync_state", "quarantine_records", "access_tokens",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
