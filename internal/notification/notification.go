// Package notification announces confirmed and failed transactions on the
// configured channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// Notifier delivers notifications on one channel
type Notifier interface {
	Type() models.NotificationType
	Send(ctx context.Context, notification *models.Notification) error
	Close() error
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64     `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64     `json:"total_notifications_failed"`
	ActiveChannels           int        `json:"active_channels"`
	LastError                *string    `json:"last_error,omitempty"`
	LastErrorTime            *time.Time `json:"last_error_time,omitempty"`
}

// NotificationManager fans a notification out to every channel
type NotificationManager struct {
	logger   *NotificationLogger
	metrics  *metrics.PrometheusMetrics
	timeout  time.Duration
	channels []Notifier

	mu    sync.Mutex
	stats NotificationStats
}

// NewNotificationManager creates a manager over the given channels
func NewNotificationManager(m *metrics.PrometheusMetrics, channels ...Notifier) *NotificationManager {
	return &NotificationManager{
		logger:   NewNotificationLogger(),
		metrics:  m,
		timeout:  30 * time.Second,
		channels: channels,
	}
}

// NewFromConfig builds the channels enabled in cfg. A disabled
// configuration yields a manager with no channels.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig, m *metrics.PrometheusMetrics) (*NotificationManager, error) {
	if !cfg.Enabled {
		return NewNotificationManager(m), nil
	}

	var channels []Notifier
	if cfg.Log {
		channels = append(channels, NewLogNotifier())
	}
	if cfg.Webhook.URL != "" {
		webhook, err := NewWebhookSender(cfg.Webhook)
		if err != nil {
			return nil, err
		}
		channels = append(channels, webhook)
	}
	if cfg.AMQP.URL != "" {
		publisher, err := NewAMQPNotifier(ctx, cfg.AMQP)
		if err != nil {
			for _, ch := range channels {
				ch.Close()
			}
			return nil, err
		}
		channels = append(channels, publisher)
	}
	return NewNotificationManager(m, channels...), nil
}

// Notify delivers n on every channel. Channel failures are logged and
// joined into the returned error; they never stop the other channels.
func (nm *NotificationManager) Notify(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var errs []error
	for _, channel := range nm.channels {
		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, nm.timeout)
		err := channel.Send(sendCtx, n)
		cancel()

		nm.record(channel.Type(), n, start, err)
		if err != nil {
			nm.logger.LogNotificationFailure(n.ID, string(channel.Type()), err, time.Since(start))
			errs = append(errs, fmt.Errorf("%s: %w", channel.Type(), err))
			continue
		}
		nm.logger.LogNotificationSuccess(n.ID, string(channel.Type()), time.Since(start))
	}
	return errors.Join(errs...)
}

func (nm *NotificationManager) record(channel models.NotificationType, n *models.Notification, start time.Time, err error) {
	nm.mu.Lock()
	if err != nil {
		nm.stats.TotalNotificationsFailed++
		msg := err.Error()
		now := time.Now()
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
	} else {
		nm.stats.TotalNotificationsSent++
	}
	nm.mu.Unlock()

	if nm.metrics == nil {
		return
	}
	if err != nil {
		nm.metrics.RecordNotificationFailure(string(channel), string(n.Kind), "send_error")
		return
	}
	nm.metrics.RecordNotificationSent(string(channel), string(n.Kind), time.Since(start))
}

// Channels returns the configured channel types
func (nm *NotificationManager) Channels() []models.NotificationType {
	types := make([]models.NotificationType, 0, len(nm.channels))
	for _, ch := range nm.channels {
		types = append(types, ch.Type())
	}
	return types
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() NotificationStats {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	stats := nm.stats
	stats.ActiveChannels = len(nm.channels)
	return stats
}

// Close releases every channel
func (nm *NotificationManager) Close() error {
	var errs []error
	for _, ch := range nm.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to close notification channels", errors.Join(errs...).Error())
	}
	return nil
}

// TransactionNotification builds the announcement for a settled journal entry
func TransactionNotification(record *models.TransactionRecord) *models.Notification {
	title := fmt.Sprintf("%s %s", record.Kind, record.Status)

	data := map[string]interface{}{
		"transaction_id":   record.ID,
		"contract_address": record.ContractAddress,
		"from":             record.From,
		"status":           string(record.Status),
		"tx_hash":          record.TxHash,
		"block_number":     record.BlockNumber,
	}
	if record.TokenID != nil {
		data["token_id"] = *record.TokenID
	}
	if record.To != "" {
		data["to"] = record.To
	}

	message := record.TxHash
	if record.Status == models.TxStatusFailed {
		message = record.Reason
		data["reason"] = record.Reason
	}

	return &models.Notification{
		Kind:    record.Kind,
		Title:   title,
		Message: message,
		Data:    data,
	}
}
