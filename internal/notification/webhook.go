package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// WebhookSender posts notifications to an HTTP endpoint
type WebhookSender struct {
	config     config.WebhookConfig
	logger     *NotificationLogger
	httpClient *http.Client
	maxDelay   time.Duration
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Version   string                 `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int
	ResponseTime time.Duration
	Success      bool
	Error        error
	Body         string
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg config.WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, utils.NewConfigurationError("notifications.webhook.url", "Webhook URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}

	return &WebhookSender{
		config: cfg,
		logger: NewNotificationLogger().WithField("channel", "webhook"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		maxDelay: 30 * time.Second,
	}, nil
}

// Type returns the channel type
func (ws *WebhookSender) Type() models.NotificationType {
	return models.NotificationTypeWebhook
}

// Send posts the notification, retrying with exponential backoff
func (ws *WebhookSender) Send(ctx context.Context, n *models.Notification) error {
	payload := &WebhookPayload{
		ID:        n.ID,
		Timestamp: n.CreatedAt,
		Source:    "ticket-gateway",
		Type:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Version:   "1.0",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var last *WebhookResponse
	for attempt := 1; attempt <= ws.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := ws.retryDelay(attempt)
			ws.logger.LogRetryAttempt("webhook", attempt, ws.config.RetryAttempts, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		ws.logger.LogWebhookAttempt(ws.config.URL, attempt)
		last = ws.sendOnce(ctx, body)
		ws.logger.LogWebhookResponse(ws.config.URL, last.StatusCode, last.ResponseTime, last.Error)
		if last.Success {
			return nil
		}
	}
	return last.Error
}

// sendOnce sends a single webhook request
func (ws *WebhookSender) sendOnce(ctx context.Context, body []byte) *WebhookResponse {
	start := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.config.URL, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
		return response
	}
	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(start)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeConnection, "Failed to send webhook", err.Error())
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	// Limit the body read to keep failing endpoints from flooding logs
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.Body = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
		return response
	}
	response.Error = utils.NewAppError(utils.ErrCodeConnection,
		"Webhook returned non-success status",
		fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	return response
}

// setRequestHeaders sets HTTP request headers
func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.config.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "Ticket-Gateway/1.0")
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// retryDelay is base_delay * 2^(attempt-2), capped
func (ws *WebhookSender) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(ws.config.RetryDelay) << uint(attempt-2))
	if delay > ws.maxDelay || delay < 0 {
		delay = ws.maxDelay
	}
	return delay
}

// Close releases idle connections
func (ws *WebhookSender) Close() error {
	ws.httpClient.CloseIdleConnections()
	return nil
}
