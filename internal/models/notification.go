package models

import (
	"time"
)

// NotificationType defines the channel a notification is delivered through
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeLog     NotificationType = "log"
	NotificationTypeAMQP    NotificationType = "amqp"
)

// Notification announces a confirmed or failed transaction
type Notification struct {
	ID        string                 `json:"id"`
	Kind      TransactionKind        `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
