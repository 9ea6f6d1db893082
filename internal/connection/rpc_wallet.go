package connection

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// RPCWallet delegates to an external signer speaking the wallet JSON-RPC methods
// eth_accounts, eth_requestAccounts and eth_signTransaction.
type RPCWallet struct {
	client *rpc.Client
}

// DialRPCWallet connects to an external signer
func DialRPCWallet(ctx context.Context, url string) (*RPCWallet, error) {
	if url == "" {
		return nil, utils.NewConfigurationError("wallet.rpc_url", "Wallet RPC URL is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, utils.NewWalletUnavailableError(fmt.Sprintf("Failed to reach wallet at %s", url)).WithCause(err)
	}
	return NewRPCWallet(client), nil
}

// NewRPCWallet wraps an existing RPC client
func NewRPCWallet(client *rpc.Client) *RPCWallet {
	return &RPCWallet{client: client}
}

// Name implements Wallet
func (w *RPCWallet) Name() string { return "rpc" }

// Accounts implements Wallet
func (w *RPCWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// RequestAccounts implements Wallet
func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	return accounts, nil
}

// SignTransactionArgs is the eth_signTransaction request object
type SignTransactionArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Input                hexutil.Bytes   `json:"input"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

// SignTransactionResult is the eth_signTransaction response object
type SignTransactionResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

// SignTx implements Wallet
func (w *RPCWallet) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	args := SignTransactionArgs{
		From:    account,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Input:   tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.LegacyTxType {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	} else {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	}

	var result SignTransactionResult
	if err := w.client.CallContext(ctx, &result, "eth_signTransaction", args); err != nil {
		return nil, fmt.Errorf("eth_signTransaction: %w", err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(result.Raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	if signed.Hash() == tx.Hash() {
		return nil, fmt.Errorf("wallet returned an unsigned transaction")
	}
	return signed, nil
}

// Close releases the RPC connection
func (w *RPCWallet) Close() {
	w.client.Close()
}
