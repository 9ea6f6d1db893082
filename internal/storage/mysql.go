package storage

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// duplicateEntry is the MySQL error number for duplicate keys
const duplicateEntry = 1062

// MySQLStorage implements Storage using MySQL
type MySQLStorage struct {
	*sqlStorage
}

// NewMySQLStorage creates a new MySQL storage instance
func NewMySQLStorage(config *StorageConfig) *MySQLStorage {
	return &MySQLStorage{
		sqlStorage: newSQLStorage(config, dialect{
			name:        "mysql",
			driver:      "mysql",
			migrations:  GetMySQLMigrations(),
			isDuplicate: isMySQLDuplicate,
		}),
	}
}

// Connect establishes database connection
func (m *MySQLStorage) Connect() error {
	dsn, err := normalizeMySQLDSN(m.config.ConnectionString)
	if err != nil {
		return err
	}
	return m.open(dsn)
}

// normalizeMySQLDSN validates the DSN and fills in a dial timeout
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeConfiguration, "Invalid MySQL connection string", err.Error())
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg.FormatDSN(), nil
}

func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntry
}
