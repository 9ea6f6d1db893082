// File: internal/monitor/reconciler.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/notification"
	"github.com/smartdevs17/ticket-gateway/internal/storage"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// Notifier receives journal entries the reconciler settled
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// ReconcilerConfig holds reconciler configuration
type ReconcilerConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	// MinAge skips pending entries a live request may still be confirming
	MinAge    time.Duration `json:"min_age"`
	BatchSize int           `json:"batch_size"`
}

// ReconcilerStats provides reconciliation statistics
type ReconcilerStats struct {
	StartTime      time.Time  `json:"start_time"`
	IsRunning      bool       `json:"is_running"`
	Passes         uint64     `json:"passes"`
	TotalConfirmed uint64     `json:"total_confirmed"`
	TotalFailed    uint64     `json:"total_failed"`
	ErrorCount     uint64     `json:"error_count"`
	LastPass       *time.Time `json:"last_pass,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// Reconciler settles journal entries left pending when the process stopped
// waiting for them, by polling the ledger for their receipts
type Reconciler struct {
	connection *connection.ReadHandle
	journal    storage.Storage
	notifier   Notifier
	metrics    *metrics.PrometheusMetrics
	config     ReconcilerConfig
	logger     *logrus.Entry

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    ReconcilerStats
}

// NewReconciler creates a reconciler. notifier and m may be nil.
func NewReconciler(conn *connection.ReadHandle, journal storage.Storage, notifier Notifier, m *metrics.PrometheusMetrics, cfg ReconcilerConfig) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{
		connection: conn,
		journal:    journal,
		notifier:   notifier,
		metrics:    m,
		config:     cfg,
		logger:     utils.ComponentLogger("reconciler"),
	}
}

// Start runs a pass immediately and then one per poll interval
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Reconciler already running")
	}

	r.running = true
	r.stopChan = make(chan struct{})
	r.stats.StartTime = time.Now()
	r.stats.IsRunning = true

	r.wg.Add(1)
	go r.loop(ctx, r.stopChan)

	r.logger.WithFields(logrus.Fields{
		"poll_interval": r.config.PollInterval,
		"min_age":       r.config.MinAge,
	}).Info("Journal reconciler started")
	return nil
}

// Stop stops the loop and waits for the running pass to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.stats.IsRunning = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Journal reconciler stopped")
}

// IsRunning reports whether the loop is active
func (r *Reconciler) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// GetStats returns a copy of the reconciler statistics
func (r *Reconciler) GetStats() ReconcilerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Reconciler) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.ReconcileOnce(ctx); err != nil {
			r.logger.WithError(err).Error("Journal reconciliation failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// ReconcileOnce settles one batch of stale pending entries and returns how many it settled
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	now := time.Now()
	pending := models.TxStatusPending
	cutoff := now.Add(-r.config.MinAge)
	records, err := r.journal.GetTransactions(ctx, models.TransactionFilter{
		Status:       &pending,
		UpdatedUntil: &cutoff,
		OldestFirst:  true,
		Limit:        r.config.BatchSize,
	})
	if err != nil {
		r.recordError(err)
		return 0, err
	}

	settled := 0
	var errs []error
	for _, record := range records {
		if record.TxHash == "" {
			continue
		}

		done, err := r.settle(ctx, record)
		if err != nil {
			r.logger.WithError(err).WithField("tx_hash", record.TxHash).Warn("Failed to reconcile transaction")
			errs = append(errs, err)
			continue
		}
		if done {
			settled++
		}
	}

	r.mu.Lock()
	r.stats.Passes++
	r.stats.LastPass = &now
	r.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		r.recordError(err)
		return settled, err
	}
	return settled, nil
}

// settle reports false when the transaction has no receipt yet
func (r *Reconciler) settle(ctx context.Context, record *models.TransactionRecord) (bool, error) {
	receipt, err := r.connection.Backend().TransactionReceipt(ctx, common.HexToHash(record.TxHash))
	if errors.Is(err, ethereum.NotFound) {
		// Touch the entry so unmined transactions rotate to the back of the batch order
		if err := r.journal.UpdateTransaction(ctx, record); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, utils.NewRemoteCallError("transaction receipt", err)
	}

	if receipt.BlockNumber != nil {
		record.BlockNumber = receipt.BlockNumber.Uint64()
	}
	status := "confirmed"
	if receipt.Status == types.ReceiptStatusSuccessful {
		record.Status = models.TxStatusConfirmed
	} else {
		status = "failed"
		record.Status = models.TxStatusFailed
		record.Reason = contracts.ErrTransactionReverted.Error()
	}

	if err := r.journal.UpdateTransaction(ctx, record); err != nil {
		return false, err
	}

	r.mu.Lock()
	if record.Status == models.TxStatusConfirmed {
		r.stats.TotalConfirmed++
	} else {
		r.stats.TotalFailed++
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordTransactionConfirmed(string(record.Kind), status, time.Since(record.CreatedAt))
	}
	r.logger.WithFields(logrus.Fields{
		"tx_hash": record.TxHash,
		"kind":    record.Kind,
		"status":  record.Status,
		"block":   record.BlockNumber,
	}).Info("Reconciled pending transaction")

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, notification.TransactionNotification(record)); err != nil {
			r.logger.WithError(err).Warn("Failed to deliver transaction notification")
		}
	}
	return true, nil
}

func (r *Reconciler) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.ErrorCount++
	message := err.Error()
	now := time.Now()
	r.stats.LastError = &message
	r.stats.LastErrorTime = &now
}
