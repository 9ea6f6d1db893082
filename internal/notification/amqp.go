package notification

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	defaultAMQPQueue = "ticket-gateway.transactions"
	amqpDialTimeout  = 30 * time.Second
	amqpHeartbeat    = 10 * time.Second
)

// AMQPNotifier publishes notifications to a RabbitMQ exchange or queue
type AMQPNotifier struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// dialContext dials with ctx and bounds the AMQP handshake by its deadline
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		dialer := net.Dialer{Timeout: amqpDialTimeout}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(amqpDialTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// NewAMQPNotifier dials the broker and declares the target queue
func NewAMQPNotifier(ctx context.Context, cfg config.AMQPConfig) (*AMQPNotifier, error) {
	if cfg.URL == "" {
		return nil, utils.NewConfigurationError("notifications.amqp.url", "AMQP URL is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultAMQPQueue
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: amqpHeartbeat,
		Locale:    "en_US",
		Dial:      dialContext(ctx),
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to AMQP broker", err.Error())
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to open AMQP channel", err.Error())
	}

	// Publishing to a named exchange leaves queue topology to the operator
	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to declare AMQP queue", err.Error())
		}
	}

	utils.ComponentLogger("notification").WithFields(map[string]interface{}{
		"channel":  "amqp",
		"exchange": cfg.Exchange,
		"queue":    queue,
	}).Info("AMQP publisher ready")

	return &AMQPNotifier{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: queue,
	}, nil
}

// Type returns the channel type
func (a *AMQPNotifier) Type() models.NotificationType {
	return models.NotificationTypeAMQP
}

// Send publishes the notification as JSON
func (a *AMQPNotifier) Send(ctx context.Context, n *models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal notification", err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return utils.NewAppError(utils.ErrCodeConnection, "AMQP channel closed")
	}

	err = a.ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to publish notification", err.Error())
	}
	return nil
}

// Close closes the channel and connection
func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}
