package contracts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// DefaultPollInterval is how often a pending transaction's receipt is requested
const DefaultPollInterval = time.Second

// Backend is the ledger surface the proxies need
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer authorizes write calls. Implementations must derive fresh options per call.
type Signer interface {
	TransactOpts(ctx context.Context) *bind.TransactOpts
}

// Option configures a proxy
type Option func(*options)

type options struct {
	pollInterval time.Duration
}

// WithPollInterval sets the receipt polling interval of returned transaction handles
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// call runs a read-only method and returns its raw outputs
func call(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, utils.NewRemoteCallError(method, err)
	}
	return out, nil
}

// transact estimates gas against the backend directly so a revert keeps its
// error data, then signs and sends through the bound contract.
func transact(ctx context.Context, backend Backend, contract *bind.BoundContract, parsed abi.ABI, address common.Address, signer Signer, method string, params ...interface{}) (*types.Transaction, *bind.TransactOpts, error) {
	if signer == nil {
		return nil, nil, utils.NewRemoteCallError(method, ErrNoSigner)
	}
	opts := signer.TransactOpts(ctx)
	if opts == nil {
		return nil, nil, utils.NewRemoteCallError(method, ErrNoSigner)
	}

	input, err := parsed.Pack(method, params...)
	if err != nil {
		return nil, nil, utils.NewRemoteCallError(method, err)
	}

	if opts.GasLimit == 0 {
		gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  opts.From,
			To:    &address,
			Value: opts.Value,
			Data:  input,
		})
		if err != nil {
			return nil, nil, utils.NewRemoteCallError(method, err)
		}
		opts.GasLimit = gas
	}

	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		return nil, nil, utils.NewRemoteCallError(method, err)
	}
	return tx, opts, nil
}

func unpackString(method string, out []interface{}) (string, error) {
	if len(out) == 0 {
		return "", utils.NewRemoteCallError(method, errEmptyResult)
	}
	value, ok := out[0].(string)
	if !ok {
		return "", utils.NewRemoteCallError(method, errUnexpectedType)
	}
	return value, nil
}

// unpackUint decodes a uint256 result into a uint64; larger values are a decoding failure
func unpackUint(method string, out []interface{}) (uint64, error) {
	if len(out) == 0 {
		return 0, utils.NewRemoteCallError(method, errEmptyResult)
	}
	value := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if value == nil || value.Sign() < 0 || !value.IsUint64() {
		return 0, utils.NewRemoteCallError(method, errOutOfRange)
	}
	return value.Uint64(), nil
}

func unpackAddress(method string, out []interface{}) (common.Address, error) {
	if len(out) == 0 {
		return common.Address{}, utils.NewRemoteCallError(method, errEmptyResult)
	}
	value, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, utils.NewRemoteCallError(method, errUnexpectedType)
	}
	return value, nil
}
