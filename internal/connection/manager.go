// Package connection builds read-only and signing connections to the ledger.
package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	// DefaultDialTimeout bounds dialing and the initial chain id check
	DefaultDialTimeout = 10 * time.Second
	// DefaultProbeTimeout bounds the wallet probe on page load
	DefaultProbeTimeout = 2 * time.Second
)

// Backend is the ledger surface shared by reads, writes and confirmations
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options tune OpenReadConnection
type Options struct {
	DialTimeout time.Duration
	Metrics     *metrics.PrometheusMetrics
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	URL             string    `json:"url"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
}

// ReadHandle is a wallet-free connection used by every browse view
type ReadHandle struct {
	config  models.NetworkConfig
	backend Backend
	client  *ethclient.Client
	logger  *logrus.Entry

	mu    sync.RWMutex
	stats ConnectionStats
}

// OpenReadConnection dials cfg.RPCURL and verifies the node serves cfg.ChainID.
// It never touches a wallet.
func OpenReadConnection(ctx context.Context, cfg models.NetworkConfig, opts Options) (*ReadHandle, error) {
	logger := utils.ComponentLogger("connection")
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	logger.WithFields(logrus.Fields{
		"url":      cfg.RPCURL,
		"network":  cfg.Name,
		"chain_id": cfg.ChainID,
	}).Info("Opening read connection")

	client, err := dialWithTimeout(ctx, cfg.RPCURL, opts.DialTimeout)
	if err != nil {
		if opts.Metrics != nil {
			opts.Metrics.RecordConnectionError(cfg.RPCURL, "dial_failed")
		}
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to ledger node", err.Error()).WithCause(err)
	}

	var backend Backend = client
	if opts.Metrics != nil {
		backend = NewInstrumentedBackend(client, cfg.RPCURL, opts.Metrics)
	}

	handle := &ReadHandle{
		config:  cfg,
		backend: backend,
		client:  client,
		logger:  logger,
		stats: ConnectionStats{
			URL:         cfg.RPCURL,
			ConnectedAt: time.Now(),
		},
	}

	checkCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := handle.verifyChain(checkCtx); err != nil {
		client.Close()
		return nil, err
	}

	logger.WithField("url", cfg.RPCURL).Info("Connected to ledger node")
	return handle, nil
}

// NewReadHandle wraps an existing backend, e.g. an in-process chain
func NewReadHandle(cfg models.NetworkConfig, backend Backend) *ReadHandle {
	return &ReadHandle{
		config:  cfg,
		backend: backend,
		logger:  utils.ComponentLogger("connection"),
		stats: ConnectionStats{
			URL:         cfg.RPCURL,
			ChainID:     cfg.ChainID,
			ConnectedAt: time.Now(),
			IsHealthy:   true,
		},
	}
}

// dialWithTimeout creates a connection with timeout
func dialWithTimeout(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// verifyChain checks the node's chain id against the resolved network
func (h *ReadHandle) verifyChain(ctx context.Context) error {
	chainID, err := h.backend.ChainID(ctx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get chain ID", err.Error()).WithCause(err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != h.config.ChainID {
		return utils.NewAppError(utils.ErrCodeConnection,
			"Chain ID mismatch",
			fmt.Sprintf("expected %d, got %s", h.config.ChainID, chainID))
	}

	h.mu.Lock()
	h.stats.ChainID = chainID.Uint64()
	h.stats.IsHealthy = true
	h.mu.Unlock()
	return nil
}

// Config returns the network the handle is bound to
func (h *ReadHandle) Config() models.NetworkConfig {
	return h.config
}

// Backend returns the ledger backend
func (h *ReadHandle) Backend() Backend {
	return h.backend
}

// ChainID returns the bound chain id as a big integer
func (h *ReadHandle) ChainID() *big.Int {
	return new(big.Int).SetUint64(h.config.ChainID)
}

// HealthCheck verifies the chain id and refreshes the latest block
func (h *ReadHandle) HealthCheck(ctx context.Context) error {
	if err := h.verifyChain(ctx); err != nil {
		h.markUnhealthy()
		return err
	}

	blockNumber, err := h.backend.BlockNumber(ctx)
	if err != nil {
		h.markUnhealthy()
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error()).WithCause(err)
	}

	h.mu.Lock()
	h.stats.LatestBlock = blockNumber
	h.stats.LastHealthCheck = time.Now()
	h.stats.IsHealthy = true
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"chain_id":     h.config.ChainID,
		"latest_block": blockNumber,
		"url":          h.config.RPCURL,
	}).Debug("Health check passed")
	return nil
}

func (h *ReadHandle) markUnhealthy() {
	h.mu.Lock()
	h.stats.IsHealthy = false
	h.stats.LastHealthCheck = time.Now()
	h.mu.Unlock()
}

// Stats returns connection statistics
func (h *ReadHandle) Stats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// Close releases the underlying client, if the handle owns one
func (h *ReadHandle) Close() {
	if h.client != nil {
		h.client.Close()
	}
}
