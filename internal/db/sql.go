package db

import (
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Parley/internal/model"
)

// OpenDirectory opens the relational user directory. The chat service only
// ever reads this database; writes belong to the account service.
func OpenDirectory(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	gdb.Exec("PRAGMA journal_mode=WAL;")
	gdb.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := gdb.AutoMigrate(&model.User{}); err != nil {
		return nil, err
	}

	return gdb, nil
}
