package gateway

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	eventLoadErrorMessage = "Could not load the event information. Check the contract address."
	mintErrorMessage      = "An error occurred while minting the ticket."
	createErrorMessage    = "An error occurred while creating the event."
)

// ActionResult is the outcome of a mutating action as shown to the user
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	Block   uint64 `json:"block_number,omitempty"`
}

// EventView is the detail page of one event
type EventView struct {
	State   ViewState           `json:"state"`
	Event   models.EventSummary `json:"event"`
	Message string              `json:"message,omitempty"`

	gateway *Gateway
	address common.Address
	mu      sync.Mutex
	minting bool
}

// LoadEvent reads the detail of one event. A bad address or a failed read
// yields an error state.
func (g *Gateway) LoadEvent(ctx context.Context, address string) *EventView {
	view := &EventView{gateway: g}

	parsed, ok := utils.ParseAddress(address)
	if !ok {
		view.State = StateError
		view.Message = eventLoadErrorMessage
		return view
	}
	view.address = parsed

	if err := view.refresh(ctx); err != nil {
		g.logger.WithError(err).WithField("contract", address).Error("Could not load event")
		view.State = StateError
		view.Message = eventLoadErrorMessage
		return view
	}
	view.State = StateReady
	return view
}

func (v *EventView) refresh(ctx context.Context) error {
	g := v.gateway
	ticket := g.ticket(v.address)

	var (
		name, symbol    string
		maxSupply, next uint64
		errs            [4]error
	)
	fanOut(4, func(i int) {
		errs[i] = g.limited(ctx, func() error {
			var err error
			switch i {
			case 0:
				name, err = ticket.Name(ctx)
			case 1:
				symbol, err = ticket.Symbol(ctx)
			case 2:
				maxSupply, err = ticket.MaxSupply(ctx)
			case 3:
				next, err = ticket.NextTokenID(ctx)
			}
			return err
		})
	})
	if err := errors.Join(errs[:]...); err != nil {
		return err
	}

	v.mu.Lock()
	v.Event = models.EventSummary{
		ContractAddress: v.address.Hex(),
		Name:            name,
		Symbol:          symbol,
		MaxSupply:       maxSupply,
		TicketsMinted:   models.TicketsMintedFromNext(next),
	}
	v.mu.Unlock()
	return nil
}

// MintEnabled reports whether the mint action should be offered. It is
// advisory: Mint submits regardless and surfaces the contract's verdict.
func (v *EventView) MintEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.State == StateReady && !v.minting && !v.Event.SoldOut()
}

// Mint mints one ticket to the signing account, waits for confirmation and
// re-reads the minted count.
func (v *EventView) Mint(ctx context.Context) ActionResult {
	g := v.gateway

	v.mu.Lock()
	if v.State != StateReady {
		v.mu.Unlock()
		return ActionResult{Message: eventLoadErrorMessage, Code: utils.ErrCodeValidation}
	}
	if v.minting {
		v.mu.Unlock()
		return ActionResult{Message: inFlightError(v.address.Hex()).Message, Code: utils.ErrCodeInFlight}
	}
	v.minting = true
	v.Message = ""
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.minting = false
		v.mu.Unlock()
	}()

	record := &models.TransactionRecord{
		Kind:            models.TxKindMint,
		ContractAddress: v.address.Hex(),
	}
	ticket := g.ticket(v.address)
	receipt, err := g.execute(ctx, record, func(ctx context.Context, signer *connection.SigningHandle) (*contracts.TransactionHandle, error) {
		return ticket.MintTicket(ctx, signer)
	})

	result := ActionResult{TxHash: record.TxHash}
	if receipt != nil {
		result.Block = receipt.BlockNumber
	}
	if err != nil {
		result.Message = userMessage(err, mintErrorMessage)
		result.Code = errorCode(err)
	} else {
		result.Success = true
		result.Message = "Ticket minted successfully! Hash: " + record.TxHash

		if err := v.refresh(ctx); err != nil {
			g.logger.WithError(err).WithField("contract", v.address.Hex()).Warn("Could not refresh event after mint")
		}
	}

	v.mu.Lock()
	v.Message = result.Message
	v.mu.Unlock()
	return result
}

// Snapshot returns a copy of the view's event and message for rendering
func (v *EventView) Snapshot() (models.EventSummary, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Event, v.Message
}

// CreateEventInput holds the create-event form
type CreateEventInput struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	MaxSupply int64  `json:"max_supply"`
}

// Validate checks the form locally, before any remote call
func (in CreateEventInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return utils.NewValidationError("Event name is required", "name")
	}
	if strings.TrimSpace(in.Symbol) == "" {
		return utils.NewValidationError("Event symbol is required", "symbol")
	}
	if in.MaxSupply <= 0 {
		return utils.NewValidationError("Maximum number of tickets must be a positive number", "max_supply")
	}
	return nil
}

// CreateEvent registers a new event through the registry and waits for
// confirmation. The registry enforces its whitelist.
func (g *Gateway) CreateEvent(ctx context.Context, in CreateEventInput) ActionResult {
	if err := in.Validate(); err != nil {
		return ActionResult{Message: appMessage(err), Code: utils.ErrCodeValidation}
	}

	name := strings.TrimSpace(in.Name)
	symbol := strings.TrimSpace(in.Symbol)
	record := &models.TransactionRecord{
		Kind:            models.TxKindCreateEvent,
		ContractAddress: g.registry.Address().Hex(),
	}
	receipt, err := g.execute(ctx, record, func(ctx context.Context, signer *connection.SigningHandle) (*contracts.TransactionHandle, error) {
		return g.registry.CreateEvent(ctx, signer, name, symbol, big.NewInt(in.MaxSupply))
	})

	result := ActionResult{TxHash: record.TxHash}
	if receipt != nil {
		result.Block = receipt.BlockNumber
	}
	if err != nil {
		result.Message = userMessage(err, createErrorMessage)
		result.Code = errorCode(err)
		return result
	}
	result.Success = true
	result.Message = "Event created successfully! Hash: " + record.TxHash
	return result
}
