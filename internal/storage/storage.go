// Package storage keeps a journal of submitted transactions and ticket check-ins.
// The journal is an audit trail only; ticket ownership is always read from the ledger.
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/ticket-gateway/internal/models"
)

// Storage defines the journal operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Transaction journal
	SaveTransaction(ctx context.Context, record *models.TransactionRecord) error
	UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error
	GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error)
	GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.TransactionRecord, error)

	// Check-in log
	SaveCheckIn(ctx context.Context, checkIn *models.CheckIn) error
	GetCheckIns(ctx context.Context, contractAddress string, tokenID uint64) ([]*models.CheckIn, error)

	// Statistics and monitoring
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats summarizes the journal
type StorageStats struct {
	TotalTransactions     int64      `json:"total_transactions"`
	PendingTransactions   int64      `json:"pending_transactions"`
	ConfirmedTransactions int64      `json:"confirmed_transactions"`
	FailedTransactions    int64      `json:"failed_transactions"`
	TotalCheckIns         int64      `json:"total_checkins"`
	ValidCheckIns         int64      `json:"valid_checkins"`
	LatestTransaction     *time.Time `json:"latest_transaction,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
