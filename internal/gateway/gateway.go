// Package gateway orchestrates the ticketing flows on top of the ledger
// connection and the contract proxies. Every view is request-scoped; failures
// are logged and turned into user-facing messages inside the view.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/locks"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/storage"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// DefaultMaxConcurrentReads bounds parallel contract reads per gateway
const DefaultMaxConcurrentReads = 16

// Notifier announces settled transactions
type Notifier interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

// Gateway is the orchestration layer in front of the ledger
type Gateway struct {
	conn     *connection.ReadHandle
	registry *contracts.Registry
	wallet   connection.Wallet
	journal  storage.Storage
	notifier Notifier
	guard    locks.Guard
	metrics  *metrics.PrometheusMetrics

	probeTimeout  time.Duration
	pollInterval  time.Duration
	logsFromBlock uint64
	slots         chan struct{}

	logger *logrus.Entry
}

// Option configures a Gateway
type Option func(*Gateway)

// WithWallet sets the wallet used for mutating flows
func WithWallet(wallet connection.Wallet) Option {
	return func(g *Gateway) { g.wallet = wallet }
}

// WithJournal records transactions and check-ins in storage
func WithJournal(journal storage.Storage) Option {
	return func(g *Gateway) { g.journal = journal }
}

// WithNotifier announces settled transactions
func WithNotifier(notifier Notifier) Option {
	return func(g *Gateway) { g.notifier = notifier }
}

// WithGuard replaces the in-memory in-flight guard
func WithGuard(guard locks.Guard) Option {
	return func(g *Gateway) { g.guard = guard }
}

// WithMetrics records gateway metrics
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithProbeTimeout bounds the wallet probe
func WithProbeTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.probeTimeout = d
		}
	}
}

// WithPollInterval sets how often confirmations are polled
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithLogsFromBlock sets the first block scanned for ticket transfers
func WithLogsFromBlock(block uint64) Option {
	return func(g *Gateway) { g.logsFromBlock = block }
}

// WithMaxConcurrentReads bounds parallel contract reads
func WithMaxConcurrentReads(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.slots = make(chan struct{}, n)
		}
	}
}

// New creates a gateway over an open read connection
func New(conn *connection.ReadHandle, opts ...Option) *Gateway {
	g := &Gateway{
		conn:         conn,
		guard:        locks.NewMemoryGuard(),
		probeTimeout: connection.DefaultProbeTimeout,
		pollInterval: contracts.DefaultPollInterval,
		slots:        make(chan struct{}, DefaultMaxConcurrentReads),
		logger:       utils.ComponentLogger("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.registry = contracts.NewRegistry(conn.Config().RegistryAddress, conn.Backend(), contracts.WithPollInterval(g.pollInterval))
	return g
}

// Network returns the resolved network configuration
func (g *Gateway) Network() models.NetworkConfig {
	return g.conn.Config()
}

// Connection returns the read handle
func (g *Gateway) Connection() *connection.ReadHandle {
	return g.conn
}

// Journal returns the configured journal, or nil
func (g *Gateway) Journal() storage.Storage {
	return g.journal
}

// HasWallet reports whether mutating flows can be attempted
func (g *Gateway) HasWallet() bool {
	return g.wallet != nil
}

func (g *Gateway) ticket(address common.Address) *contracts.Ticket {
	return contracts.NewTicket(address, g.conn.Backend(), contracts.WithPollInterval(g.pollInterval))
}

// signer re-acquires the signing handle; it is never cached
func (g *Gateway) signer(ctx context.Context) (*connection.SigningHandle, error) {
	return connection.OpenSigningHandle(ctx, g.wallet, g.conn)
}

// limited runs fn while holding one read slot
func (g *Gateway) limited(ctx context.Context, fn func() error) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.slots }()
	return fn()
}

// fanOut runs fn for every index concurrently and waits for all of them
func fanOut(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// userMessage converts err into the text shown to the user: the remote
// reason when there is one, the message of a local error, else fallback.
func userMessage(err error, fallback string) string {
	if reason := utils.RemoteReason(err); reason != "" {
		return reason
	}
	for _, code := range []string{
		utils.ErrCodeWalletUnavailable,
		utils.ErrCodeValidation,
		utils.ErrCodeInFlight,
	} {
		if utils.HasCode(err, code) {
			return appMessage(err)
		}
	}
	return fallback
}

func appMessage(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func errorCode(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return utils.ErrCodeInternal
}
