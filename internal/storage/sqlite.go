package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartdevs17/ticket-gateway/pkg/utils"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	*sqlStorage
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStorage: newSQLStorage(config, dialect{
			name:        "sqlite",
			driver:      "sqlite",
			migrations:  GetSQLiteMigrations(),
			isDuplicate: isSQLiteDuplicate,
			connectExtras: func(db *sql.DB) error {
				// Enable WAL mode for better concurrency
				if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
					return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
				}
				return nil
			},
		}),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	path := s.config.ConnectionString

	// Ensure directory exists
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	// Every pooled connection waits on a locked database instead of failing
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return s.open(path + sep + "_pragma=busy_timeout(5000)")
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Connections without extended result codes only report the base code
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
