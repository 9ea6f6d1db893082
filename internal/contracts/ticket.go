package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// TransferLog is one Transfer event read from a ticket contract
type TransferLog struct {
	From        common.Address
	To          common.Address
	TokenID     uint64
	BlockNumber uint64
	TxHash      common.Hash
}

// Ticket is the proxy for one event's ticket contract
type Ticket struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	opts     options
}

// NewTicket binds the ticket contract at address
func NewTicket(address common.Address, backend Backend, opts ...Option) *Ticket {
	return &Ticket{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, TicketABI, backend, backend, backend),
		opts:     buildOptions(opts),
	}
}

// Address returns the ticket contract address
func (t *Ticket) Address() common.Address {
	return t.address
}

// Name returns the event name
func (t *Ticket) Name(ctx context.Context) (string, error) {
	out, err := call(ctx, t.contract, "name")
	if err != nil {
		return "", err
	}
	return unpackString("name", out)
}

// Symbol returns the token symbol
func (t *Ticket) Symbol(ctx context.Context) (string, error) {
	out, err := call(ctx, t.contract, "symbol")
	if err != nil {
		return "", err
	}
	return unpackString("symbol", out)
}

// MaxSupply returns the maximum number of tickets
func (t *Ticket) MaxSupply(ctx context.Context) (uint64, error) {
	out, err := call(ctx, t.contract, "maxSupply")
	if err != nil {
		return 0, err
	}
	return unpackUint("maxSupply", out)
}

// NextTokenID returns the id the next mint will receive
func (t *Ticket) NextTokenID(ctx context.Context) (uint64, error) {
	out, err := call(ctx, t.contract, "nextTokenId")
	if err != nil {
		return 0, err
	}
	return unpackUint("nextTokenId", out)
}

// OwnerOf returns the current holder of tokenID
func (t *Ticket) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := call(ctx, t.contract, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return unpackAddress("ownerOf", out)
}

// BalanceOf returns how many tickets owner holds
func (t *Ticket) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	out, err := call(ctx, t.contract, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	return unpackUint("balanceOf", out)
}

// TransfersTo returns Transfer logs whose destination is to, in block order.
// A nil toBlock means the latest block.
func (t *Ticket) TransfersTo(ctx context.Context, to common.Address, fromBlock uint64, toBlock *uint64) ([]TransferLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{t.address},
		Topics: [][]common.Hash{
			{TransferEventID},
			nil,
			{common.BytesToHash(to.Bytes())},
		},
	}
	if toBlock != nil {
		query.ToBlock = new(big.Int).SetUint64(*toBlock)
	}

	logs, err := t.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, utils.NewRemoteCallError("Transfer log query", err)
	}

	transfers := make([]TransferLog, 0, len(logs))
	for _, log := range logs {
		transfer, err := parseTransferLog(log)
		if err != nil {
			return nil, utils.NewRemoteCallError("Transfer log decode", err)
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// MintTicket mints one ticket to the signer
func (t *Ticket) MintTicket(ctx context.Context, signer Signer) (*TransactionHandle, error) {
	tx, opts, err := transact(ctx, t.backend, t.contract, TicketABI, t.address, signer, "mintTicket")
	if err != nil {
		return nil, err
	}
	return newTransactionHandle(models.TxKindMint, t.address, opts.From, tx, t.backend, t.opts), nil
}

// SafeTransferFrom moves tokenID from one holder to another
func (t *Ticket) SafeTransferFrom(ctx context.Context, signer Signer, from, to common.Address, tokenID uint64) (*TransactionHandle, error) {
	tx, opts, err := transact(ctx, t.backend, t.contract, TicketABI, t.address, signer, "safeTransferFrom", from, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return newTransactionHandle(models.TxKindTransfer, t.address, opts.From, tx, t.backend, t.opts), nil
}

// parseTransferLog decodes the indexed Transfer topics
func parseTransferLog(log types.Log) (TransferLog, error) {
	if len(log.Topics) != 4 || log.Topics[0] != TransferEventID {
		return TransferLog{}, errUnexpectedType
	}
	tokenID := new(big.Int).SetBytes(log.Topics[3].Bytes())
	if !tokenID.IsUint64() {
		return TransferLog{}, errOutOfRange
	}
	return TransferLog{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		TokenID:     tokenID.Uint64(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}
