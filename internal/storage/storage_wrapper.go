package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
)

// pooled is implemented by storages backed by a connection pool
type pooled interface {
	OpenConnections() int
}

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metrics *metrics.PrometheusMetrics
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, m *metrics.PrometheusMetrics) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage: storage,
		metrics: m,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDatabaseOperation(operation, table, status, time.Since(start))
	if pool, ok := s.Storage.(pooled); ok {
		s.metrics.UpdateDatabaseConnections(pool.OpenConnections())
	}
}

// SaveTransaction saves a journal entry and records metrics
func (s *StorageWithMetrics) SaveTransaction(ctx context.Context, record *models.TransactionRecord) error {
	start := time.Now()
	err := s.Storage.SaveTransaction(ctx, record)
	s.record("insert", "transactions", start, err)
	return err
}

// UpdateTransaction updates a journal entry and records metrics
func (s *StorageWithMetrics) UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	start := time.Now()
	err := s.Storage.UpdateTransaction(ctx, record)
	s.record("update", "transactions", start, err)
	return err
}

// GetTransaction retrieves a journal entry and records metrics
func (s *StorageWithMetrics) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	start := time.Now()
	record, err := s.Storage.GetTransaction(ctx, id)
	s.record("select", "transactions", start, err)
	return record, err
}

// GetTransactions lists journal entries and records metrics
func (s *StorageWithMetrics) GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.TransactionRecord, error) {
	start := time.Now()
	records, err := s.Storage.GetTransactions(ctx, filter)
	s.record("select", "transactions", start, err)
	return records, err
}

// SaveCheckIn saves a check-in and records metrics
func (s *StorageWithMetrics) SaveCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	start := time.Now()
	err := s.Storage.SaveCheckIn(ctx, checkIn)
	s.record("insert", "checkins", start, err)
	return err
}

// GetCheckIns lists check-ins and records metrics
func (s *StorageWithMetrics) GetCheckIns(ctx context.Context, contractAddress string, tokenID uint64) ([]*models.CheckIn, error) {
	start := time.Now()
	checkIns, err := s.Storage.GetCheckIns(ctx, contractAddress, tokenID)
	s.record("select", "checkins", start, err)
	return checkIns, err
}
