package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// NotificationLogger handles logging for notification operations
type NotificationLogger struct {
	entry *logrus.Entry
}

// NewNotificationLogger creates a new notification logger
func NewNotificationLogger() *NotificationLogger {
	return &NotificationLogger{entry: utils.ComponentLogger("notification")}
}

// WithField adds a single field to the logger context
func (nl *NotificationLogger) WithField(key string, value interface{}) *NotificationLogger {
	return &NotificationLogger{entry: nl.entry.WithField(key, value)}
}

// LogNotificationSuccess logs a successful notification
func (nl *NotificationLogger) LogNotificationSuccess(notificationID, channel string, duration time.Duration) {
	nl.entry.WithFields(logrus.Fields{
		"notification_id": notificationID,
		"channel":         channel,
		"duration_ms":     duration.Milliseconds(),
	}).Debug("Notification sent successfully")
}

// LogNotificationFailure logs a failed notification
func (nl *NotificationLogger) LogNotificationFailure(notificationID, channel string, err error, duration time.Duration) {
	nl.entry.WithFields(logrus.Fields{
		"notification_id": notificationID,
		"channel":         channel,
		"error":           err.Error(),
		"duration_ms":     duration.Milliseconds(),
	}).Error("Notification failed")
}

// LogWebhookAttempt logs a webhook attempt
func (nl *NotificationLogger) LogWebhookAttempt(url string, attempt int) {
	nl.entry.WithFields(logrus.Fields{
		"url":     url,
		"attempt": attempt,
	}).Debug("Webhook attempt started")
}

// LogWebhookResponse logs a webhook response
func (nl *NotificationLogger) LogWebhookResponse(url string, statusCode int, duration time.Duration, err error) {
	entry := nl.entry.WithFields(logrus.Fields{
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Webhook failed")
		return
	}
	entry.Debug("Webhook completed")
}

// LogRetryAttempt logs a retry attempt
func (nl *NotificationLogger) LogRetryAttempt(operation string, attempt, maxAttempts int, delay time.Duration) {
	nl.entry.WithFields(logrus.Fields{
		"operation":    operation,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"retry_delay":  delay.String(),
	}).Warn("Retrying operation")
}

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log channel
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: utils.ComponentLogger("notification").WithField("channel", "log")}
}

// Type returns the channel type
func (l *LogNotifier) Type() models.NotificationType {
	return models.NotificationTypeLog
}

// Send logs the notification
func (l *LogNotifier) Send(_ context.Context, n *models.Notification) error {
	l.logger.WithFields(logrus.Fields(n.Data)).WithFields(logrus.Fields{
		"notification_id": n.ID,
		"kind":            n.Kind,
		"title":           n.Title,
	}).Info(n.Message)
	return nil
}

// Close is a no-op
func (l *LogNotifier) Close() error {
	return nil
}
