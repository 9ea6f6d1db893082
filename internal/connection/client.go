package connection

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
)

// InstrumentedBackend records request counts and latency for every ledger call
type InstrumentedBackend struct {
	next     Backend
	endpoint string
	metrics  *metrics.PrometheusMetrics
}

// NewInstrumentedBackend decorates next with RPC metrics labelled by endpoint
func NewInstrumentedBackend(next Backend, endpoint string, m *metrics.PrometheusMetrics) *InstrumentedBackend {
	return &InstrumentedBackend{next: next, endpoint: endpoint, metrics: m}
}

func (b *InstrumentedBackend) observe(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		// Reverts and missing receipts are answers, not connection failures
		var dataErr rpc.DataError
		if !errors.As(err, &dataErr) && !errors.Is(err, ethereum.NotFound) {
			b.metrics.RecordConnectionError(b.endpoint, "rpc_call_failed")
		}
	}
	b.metrics.RecordRPCRequest(b.endpoint, method, status, time.Since(start))
}

// CodeAt implements bind.ContractCaller
func (b *InstrumentedBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	code, err := b.next.CodeAt(ctx, contract, blockNumber)
	b.observe("eth_getCode", start, err)
	return code, err
}

// CallContract implements bind.ContractCaller
func (b *InstrumentedBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	out, err := b.next.CallContract(ctx, call, blockNumber)
	b.observe("eth_call", start, err)
	return out, err
}

// HeaderByNumber implements bind.ContractTransactor
func (b *InstrumentedBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	start := time.Now()
	header, err := b.next.HeaderByNumber(ctx, number)
	b.observe("eth_getBlockByNumber", start, err)
	return header, err
}

// PendingCodeAt implements bind.ContractTransactor
func (b *InstrumentedBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	start := time.Now()
	code, err := b.next.PendingCodeAt(ctx, account)
	b.observe("eth_getCode", start, err)
	return code, err
}

// PendingNonceAt implements bind.ContractTransactor
func (b *InstrumentedBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	start := time.Now()
	nonce, err := b.next.PendingNonceAt(ctx, account)
	b.observe("eth_getTransactionCount", start, err)
	return nonce, err
}

// SuggestGasPrice implements bind.ContractTransactor
func (b *InstrumentedBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	price, err := b.next.SuggestGasPrice(ctx)
	b.observe("eth_gasPrice", start, err)
	return price, err
}

// SuggestGasTipCap implements bind.ContractTransactor
func (b *InstrumentedBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	tip, err := b.next.SuggestGasTipCap(ctx)
	b.observe("eth_maxPriorityFeePerGas", start, err)
	return tip, err
}

// EstimateGas implements bind.ContractTransactor
func (b *InstrumentedBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	start := time.Now()
	gas, err := b.next.EstimateGas(ctx, call)
	b.observe("eth_estimateGas", start, err)
	return gas, err
}

// SendTransaction implements bind.ContractTransactor
func (b *InstrumentedBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	start := time.Now()
	err := b.next.SendTransaction(ctx, tx)
	b.observe("eth_sendRawTransaction", start, err)
	return err
}

// FilterLogs implements bind.ContractFilterer
func (b *InstrumentedBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	logs, err := b.next.FilterLogs(ctx, query)
	b.observe("eth_getLogs", start, err)
	return logs, err
}

// SubscribeFilterLogs implements bind.ContractFilterer
func (b *InstrumentedBackend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	start := time.Now()
	sub, err := b.next.SubscribeFilterLogs(ctx, query, ch)
	b.observe("eth_subscribe", start, err)
	return sub, err
}

// TransactionReceipt returns the receipt of a mined transaction
func (b *InstrumentedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := b.next.TransactionReceipt(ctx, txHash)
	b.observe("eth_getTransactionReceipt", start, err)
	return receipt, err
}

// BlockNumber returns the latest block number
func (b *InstrumentedBackend) BlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	number, err := b.next.BlockNumber(ctx)
	b.observe("eth_blockNumber", start, err)
	return number, err
}

// ChainID returns the node's chain id
func (b *InstrumentedBackend) ChainID(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	id, err := b.next.ChainID(ctx)
	b.observe("eth_chainId", start, err)
	return id, err
}
