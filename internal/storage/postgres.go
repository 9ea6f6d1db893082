package storage

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys
const uniqueViolation = pq.ErrorCode("23505")

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	*sqlStorage
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStorage: newSQLStorage(config, dialect{
			name:        "postgres",
			driver:      "postgres",
			numbered:    true,
			migrations:  GetPostgresMigrations(),
			isDuplicate: isPostgresDuplicate,
		}),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	return p.open(p.config.ConnectionString)
}

func isPostgresDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
