// Package testutil provides an in-memory ledger that speaks the go-ethereum
// contract backend interfaces, plus helpers for building signed test accounts.
package testutil

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
)

const defaultGasEstimate = 150000

var (
	revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	contractCode   = []byte{0x60, 0x80, 0x60, 0x40}
	baseFee        = big.NewInt(1_000_000_000)
	stringType, _  = abi.NewType("string", "", nil)
)

// RevertError mimics the JSON-RPC error a node returns for a reverted call
type RevertError struct {
	Reason string
	data   string
}

func newRevertError(reason string) *RevertError {
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	return &RevertError{
		Reason: reason,
		data:   hexutil.Encode(append(append([]byte{}, revertSelector...), packed...)),
	}
}

func (e *RevertError) Error() string          { return "execution reverted: " + e.Reason }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return e.data }

// TicketState is the storage of one ticket contract
type TicketState struct {
	Name        string
	Symbol      string
	MaxSupply   uint64
	NextTokenID uint64
	Owners      map[uint64]common.Address
}

// Ledger is a single-node in-memory chain hosting one registry and its ticket contracts.
// Every transaction is mined into its own block immediately.
type Ledger struct {
	mu sync.Mutex

	chainID  *big.Int
	registry common.Address
	head     uint64

	events           []common.Address
	tickets          map[common.Address]*TicketState
	whitelist        map[common.Address]bool
	requireWhitelist bool

	nonces   map[common.Address]uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt

	failing       map[common.Address]error
	listEventsErr error
	sendErr       error
	withhold      bool
	calls         int
}

// NewLedger creates an empty ledger with a deployed registry
func NewLedger(chainID int64) *Ledger {
	return &Ledger{
		chainID:   big.NewInt(chainID),
		registry:  common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		tickets:   make(map[common.Address]*TicketState),
		whitelist: make(map[common.Address]bool),
		nonces:    make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*types.Receipt),
		failing:   make(map[common.Address]error),
	}
}

// Registry returns the registry contract address
func (l *Ledger) Registry() common.Address {
	return l.registry
}

// ChainIDValue returns the configured chain id
func (l *Ledger) ChainIDValue() uint64 {
	return l.chainID.Uint64()
}

// AddEvent deploys a ticket contract and lists it in the registry
func (l *Ledger) AddEvent(name, symbol string, maxSupply uint64) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deployEvent(name, symbol, maxSupply)
}

// AddBrokenEvent lists an address that has no contract code behind it
func (l *Ledger) AddBrokenEvent() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	address := crypto.CreateAddress(l.registry, uint64(len(l.events))+1000)
	l.events = append(l.events, address)
	return address
}

// SetNextTokenID overrides a ticket contract's counter
func (l *Ledger) SetNextTokenID(contract common.Address, next uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tickets[contract].NextTokenID = next
}

// MintTo mints the next token of contract directly to owner and returns its id
func (l *Ledger) MintTo(contract, owner common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.tickets[contract]
	tokenID := state.NextTokenID
	state.Owners[tokenID] = owner
	state.NextTokenID++
	l.head++
	l.appendTransferLog(contract, common.Address{}, owner, tokenID, common.Hash{})
	return tokenID
}

// Whitelist allows account to create events
func (l *Ledger) Whitelist(account common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.whitelist[account] = true
}

// RequireWhitelist makes createEvent revert for accounts that are not whitelisted
func (l *Ledger) RequireWhitelist(required bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requireWhitelist = required
}

// FailCalls makes every call to contract fail with err
func (l *Ledger) FailCalls(contract common.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing[contract] = err
}

// FailListEvents makes getAllEvents fail with err
func (l *Ledger) FailListEvents(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listEventsErr = err
}

// FailSend makes SendTransaction fail with err
func (l *Ledger) FailSend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// WithholdReceipts makes TransactionReceipt report every transaction as not yet mined
func (l *Ledger) WithholdReceipts(withhold bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withhold = withhold
}

// Ticket returns a copy of a ticket contract's state
func (l *Ledger) Ticket(contract common.Address) (TicketState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.tickets[contract]
	if !ok {
		return TicketState{}, false
	}
	cp := *state
	cp.Owners = make(map[uint64]common.Address, len(state.Owners))
	for id, owner := range state.Owners {
		cp.Owners[id] = owner
	}
	return cp, true
}

// Events returns the listed event addresses
func (l *Ledger) Events() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]common.Address(nil), l.events...)
}

// Calls returns how many backend methods have been invoked
func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// CodeAt implements bind.ContractCaller
func (l *Ledger) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.codeAt(contract), nil
}

// CallContract implements bind.ContractCaller
func (l *Ledger) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if msg.To == nil {
		return nil, errors.New("contract creation is not supported")
	}
	out, _, err := l.execute(msg.From, *msg.To, msg.Data, false, common.Hash{})
	return out, err
}

// PendingCodeAt implements bind.ContractTransactor
func (l *Ledger) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return l.CodeAt(ctx, account, nil)
}

// PendingNonceAt implements bind.ContractTransactor
func (l *Ledger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.nonces[account], nil
}

// SuggestGasPrice implements bind.ContractTransactor
func (l *Ledger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return new(big.Int).Set(baseFee), nil
}

// SuggestGasTipCap implements bind.ContractTransactor
func (l *Ledger) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return big.NewInt(1_000_000), nil
}

// EstimateGas implements bind.ContractTransactor. Reverting calls fail estimation
// the way a node does.
func (l *Ledger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if msg.To == nil {
		return 0, errors.New("contract creation is not supported")
	}
	if _, _, err := l.execute(msg.From, *msg.To, msg.Data, false, common.Hash{}); err != nil {
		return 0, err
	}
	return defaultGasEstimate, nil
}

// HeaderByNumber implements bind.ContractTransactor
func (l *Ledger) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	n := l.head
	if number != nil && number.Sign() >= 0 {
		n = number.Uint64()
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(n),
		GasLimit:   30_000_000,
		BaseFee:    new(big.Int).Set(baseFee),
		Difficulty: big.NewInt(0),
	}, nil
}

// SendTransaction implements bind.ContractTransactor. The transaction is mined
// into a new block; a revert produces a failed receipt.
func (l *Ledger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++

	if l.sendErr != nil {
		return l.sendErr
	}
	if tx.To() == nil {
		return errors.New("contract creation is not supported")
	}
	if tx.ChainId().Cmp(l.chainID) != 0 {
		return fmt.Errorf("invalid chain id: have %s want %s", tx.ChainId(), l.chainID)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(l.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != l.nonces[sender] {
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", sender.Hex(), tx.Nonce(), l.nonces[sender])
	}
	l.nonces[sender]++
	l.head++

	status := types.ReceiptStatusSuccessful
	_, logs, execErr := l.execute(sender, *tx.To(), tx.Data(), true, tx.Hash())
	if execErr != nil {
		status = types.ReceiptStatusFailed
		logs = nil
	}

	receiptLogs := make([]*types.Log, len(logs))
	for i := range logs {
		receiptLogs[i] = &logs[i]
	}
	l.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: defaultGasEstimate,
		GasUsed:           defaultGasEstimate,
		Logs:              receiptLogs,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(l.head),
	}
	return nil
}

// FilterLogs implements bind.ContractFilterer
func (l *Ledger) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++

	from, to := uint64(0), l.head
	if query.FromBlock != nil {
		from = query.FromBlock.Uint64()
	}
	if query.ToBlock != nil && query.ToBlock.Sign() >= 0 {
		to = query.ToBlock.Uint64()
	}

	var matched []types.Log
	for _, log := range l.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(query.Addresses) > 0 && !containsAddress(query.Addresses, log.Address) {
			continue
		}
		if !matchTopics(query.Topics, log.Topics) {
			continue
		}
		matched = append(matched, log)
	}
	return matched, nil
}

// SubscribeFilterLogs implements bind.ContractFilterer
func (l *Ledger) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

// TransactionReceipt returns the receipt of a mined transaction
func (l *Ledger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	receipt, ok := l.receipts[txHash]
	if !ok || l.withhold {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// BlockNumber returns the head block number
func (l *Ledger) BlockNumber(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.head, nil
}

// ChainID returns the ledger's chain id
func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return new(big.Int).Set(l.chainID), nil
}

func (l *Ledger) codeAt(address common.Address) []byte {
	if address == l.registry {
		return contractCode
	}
	if _, ok := l.tickets[address]; ok {
		return contractCode
	}
	return nil
}

func (l *Ledger) deployEvent(name, symbol string, maxSupply uint64) common.Address {
	address := crypto.CreateAddress(l.registry, uint64(len(l.events)))
	l.tickets[address] = &TicketState{
		Name:        name,
		Symbol:      symbol,
		MaxSupply:   maxSupply,
		NextTokenID: 1,
		Owners:      make(map[uint64]common.Address),
	}
	l.events = append(l.events, address)
	return address
}

func (l *Ledger) appendTransferLog(contract, from, to common.Address, tokenID uint64, txHash common.Hash) types.Log {
	log := types.Log{
		Address: contract,
		Topics: []common.Hash{
			contracts.TransferEventID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(new(big.Int).SetUint64(tokenID)),
		},
		BlockNumber: l.head,
		TxHash:      txHash,
		Index:       uint(len(l.logs)),
	}
	l.logs = append(l.logs, log)
	return log
}

// execute dispatches a call by selector. State changes and logs are applied
// only when commit is set.
func (l *Ledger) execute(sender, to common.Address, data []byte, commit bool, txHash common.Hash) ([]byte, []types.Log, error) {
	if err, ok := l.failing[to]; ok {
		return nil, nil, err
	}
	if len(data) < 4 {
		return nil, nil, newRevertError("missing selector")
	}

	if to == l.registry {
		return l.executeRegistry(sender, data, commit)
	}
	if state, ok := l.tickets[to]; ok {
		return l.executeTicket(to, state, sender, data, commit, txHash)
	}
	// Calls to an address without code succeed with empty output
	return nil, nil, nil
}

func (l *Ledger) executeRegistry(sender common.Address, data []byte, commit bool) ([]byte, []types.Log, error) {
	method, err := contracts.RegistryABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, newRevertError("unknown registry method")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, newRevertError("invalid arguments")
	}

	switch method.Name {
	case "getAllEvents":
		if l.listEventsErr != nil {
			return nil, nil, l.listEventsErr
		}
		out, err := method.Outputs.Pack(append([]common.Address{}, l.events...))
		return out, nil, err
	case "isWhitelisted":
		out, err := method.Outputs.Pack(l.whitelist[args[0].(common.Address)])
		return out, nil, err
	case "createEvent":
		if l.requireWhitelist && !l.whitelist[sender] {
			return nil, nil, newRevertError("Not whitelisted")
		}
		maxSupply := args[2].(*big.Int)
		if maxSupply.Sign() <= 0 || !maxSupply.IsUint64() {
			return nil, nil, newRevertError("Max supply must be positive")
		}
		if commit {
			l.deployEvent(args[0].(string), args[1].(string), maxSupply.Uint64())
		}
		return nil, nil, nil
	}
	return nil, nil, newRevertError("unsupported registry method")
}

func (l *Ledger) executeTicket(address common.Address, state *TicketState, sender common.Address, data []byte, commit bool, txHash common.Hash) ([]byte, []types.Log, error) {
	method, err := contracts.TicketABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, newRevertError("unknown ticket method")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, newRevertError("invalid arguments")
	}

	switch method.Name {
	case "name":
		out, err := method.Outputs.Pack(state.Name)
		return out, nil, err
	case "symbol":
		out, err := method.Outputs.Pack(state.Symbol)
		return out, nil, err
	case "maxSupply":
		out, err := method.Outputs.Pack(new(big.Int).SetUint64(state.MaxSupply))
		return out, nil, err
	case "nextTokenId":
		out, err := method.Outputs.Pack(new(big.Int).SetUint64(state.NextTokenID))
		return out, nil, err
	case "ownerOf":
		owner, ok := state.Owners[args[0].(*big.Int).Uint64()]
		if !ok {
			return nil, nil, newRevertError("ERC721: invalid token ID")
		}
		out, err := method.Outputs.Pack(owner)
		return out, nil, err
	case "balanceOf":
		holder := args[0].(common.Address)
		var balance uint64
		for _, owner := range state.Owners {
			if owner == holder {
				balance++
			}
		}
		out, err := method.Outputs.Pack(new(big.Int).SetUint64(balance))
		return out, nil, err
	case "mintTicket":
		if state.NextTokenID-1 >= state.MaxSupply {
			return nil, nil, newRevertError("All tickets have been minted")
		}
		if !commit {
			return nil, nil, nil
		}
		tokenID := state.NextTokenID
		state.Owners[tokenID] = sender
		state.NextTokenID++
		log := l.appendTransferLog(address, common.Address{}, sender, tokenID, txHash)
		return nil, []types.Log{log}, nil
	case "safeTransferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		tokenID := args[2].(*big.Int).Uint64()
		owner, ok := state.Owners[tokenID]
		if !ok {
			return nil, nil, newRevertError("ERC721: invalid token ID")
		}
		if owner != from || sender != from {
			return nil, nil, newRevertError("ERC721: caller is not token owner or approved")
		}
		if to == (common.Address{}) {
			return nil, nil, newRevertError("ERC721: transfer to the zero address")
		}
		if !commit {
			return nil, nil, nil
		}
		state.Owners[tokenID] = to
		log := l.appendTransferLog(address, from, to, tokenID, txHash)
		return nil, []types.Log{log}, nil
	}
	return nil, nil, newRevertError("unsupported ticket method")
}

func containsAddress(list []common.Address, address common.Address) bool {
	for _, candidate := range list {
		if candidate == address {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, want := range alternatives {
			if topics[i] == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// NewAccount generates a fresh key and its address
func NewAccount() (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}
