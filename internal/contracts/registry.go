package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// Registry is the proxy for the event registry contract
type Registry struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	opts     options
}

// NewRegistry binds the registry contract at address
func NewRegistry(address common.Address, backend Backend, opts ...Option) *Registry {
	return &Registry{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, RegistryABI, backend, backend, backend),
		opts:     buildOptions(opts),
	}
}

// Address returns the registry contract address
func (r *Registry) Address() common.Address {
	return r.address
}

// ListEvents returns every event contract in registry order
func (r *Registry) ListEvents(ctx context.Context) ([]common.Address, error) {
	out, err := call(ctx, r.contract, "getAllEvents")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, utils.NewRemoteCallError("getAllEvents", errEmptyResult)
	}
	events, ok := out[0].([]common.Address)
	if !ok {
		return nil, utils.NewRemoteCallError("getAllEvents", errUnexpectedType)
	}
	return events, nil
}

// IsWhitelisted reports whether account may create events
func (r *Registry) IsWhitelisted(ctx context.Context, account common.Address) (bool, error) {
	out, err := call(ctx, r.contract, "isWhitelisted", account)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, utils.NewRemoteCallError("isWhitelisted", errEmptyResult)
	}
	allowed, ok := out[0].(bool)
	if !ok {
		return false, utils.NewRemoteCallError("isWhitelisted", errUnexpectedType)
	}
	return allowed, nil
}

// CreateEvent submits a new event. The arguments are passed through unchecked;
// the contract is the authority on what it accepts.
func (r *Registry) CreateEvent(ctx context.Context, signer Signer, name, symbol string, maxSupply *big.Int) (*TransactionHandle, error) {
	tx, opts, err := transact(ctx, r.backend, r.contract, RegistryABI, r.address, signer, "createEvent", name, symbol, maxSupply)
	if err != nil {
		return nil, err
	}
	return newTransactionHandle(models.TxKindCreateEvent, r.address, opts.From, tx, r.backend, r.opts), nil
}
