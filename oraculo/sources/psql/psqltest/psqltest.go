// Package psqltest opens throwaway in-memory databases for tests.
package psqltest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"oraculo/oraculo/sources/psql"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var counter atomic.Int64

// NewDatabase returns a migrated sqlite database private to the test.
func NewDatabase(t testing.TB) *psql.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:oraculo_test_%d?mode=memory&cache=shared", counter.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// one connection keeps sqlite writers from tripping over table locks
	sqlDB.SetMaxOpenConns(1)
	db, err := psql.Open(context.Background(), gdb)
	if err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}
