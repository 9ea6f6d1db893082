package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/locks"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/qr"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	ticketsErrorMessage     = "Could not load your tickets. Try refreshing the page."
	invalidRecipientMessage = "Please enter a valid address."
	transferErrorMessage    = "The transfer failed."
	ticketNotInViewMessage  = "This ticket is not held by the account being viewed."
	notSignerMessage        = "Only tickets held by the connected wallet can be transferred."
	invalidOwnerMessage     = "The owner address is not valid."
)

// TicketsView lists the tickets an address currently holds and tracks the
// transfer state of each of them
type TicketsView struct {
	State   ViewState            `json:"state"`
	Owner   string               `json:"owner,omitempty"`
	Tickets []models.OwnedTicket `json:"tickets"`
	Message string               `json:"message,omitempty"`

	gateway   *Gateway
	mu        sync.Mutex
	transfers map[models.TicketKey]models.TransferRequest
}

func (g *Gateway) newTicketsView(owner string) *TicketsView {
	return &TicketsView{
		Owner:     owner,
		Tickets:   []models.OwnedTicket{},
		gateway:   g,
		transfers: make(map[models.TicketKey]models.TransferRequest),
	}
}

// LoadOwnedTickets discovers the tickets owner holds: for every event the
// Transfer logs into owner are scanned and each distinct token is kept only
// if owner still holds it. Nothing is cached between loads.
func (g *Gateway) LoadOwnedTickets(ctx context.Context, owner string) *TicketsView {
	view := g.newTicketsView(owner)
	ownerAddr, ok := utils.ParseAddress(owner)
	if !ok {
		view.State = StateError
		view.Message = invalidOwnerMessage
		return view
	}
	view.Owner = ownerAddr.Hex()

	start := time.Now()
	tickets, err := g.discoverTickets(ctx, ownerAddr)
	if g.metrics != nil {
		g.metrics.RecordTicketDiscovery(time.Since(start))
	}
	if err != nil {
		g.logger.WithError(err).WithField("owner", view.Owner).Error("Could not load tickets")
		view.State = StateError
		view.Message = ticketsErrorMessage
		return view
	}

	view.State = StateReady
	view.Tickets = tickets
	g.logger.WithFields(logrus.Fields{
		"owner":   view.Owner,
		"tickets": len(tickets),
	}).Debug("Tickets loaded")
	return view
}

// LoadMyTickets loads the tickets of the signing account
func (g *Gateway) LoadMyTickets(ctx context.Context) *TicketsView {
	signer, err := g.signer(ctx)
	if err != nil {
		view := g.newTicketsView("")
		view.State = StateError
		view.Message = userMessage(err, ticketsErrorMessage)
		return view
	}
	return g.LoadOwnedTickets(ctx, signer.Address().Hex())
}

// discoverTickets fails as a whole when any per-event read fails
func (g *Gateway) discoverTickets(ctx context.Context, owner common.Address) ([]models.OwnedTicket, error) {
	events, err := g.registry.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	perEvent := make([][]models.OwnedTicket, len(events))
	errs := make([]error, len(events))
	fanOut(len(events), func(i int) {
		perEvent[i], errs[i] = g.ticketsForEvent(ctx, events[i], owner)
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	tickets := []models.OwnedTicket{}
	for _, owned := range perEvent {
		tickets = append(tickets, owned...)
	}
	return tickets, nil
}

func (g *Gateway) ticketsForEvent(ctx context.Context, event common.Address, owner common.Address) ([]models.OwnedTicket, error) {
	ticket := g.ticket(event)

	var (
		name string
		logs []contracts.TransferLog
		errs [2]error
	)
	fanOut(2, func(i int) {
		errs[i] = g.limited(ctx, func() error {
			var err error
			if i == 0 {
				name, err = ticket.Name(ctx)
			} else {
				logs, err = ticket.TransfersTo(ctx, owner, g.logsFromBlock, nil)
			}
			return err
		})
	})
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}

	// A token can arrive several times; check each one once
	seen := make(map[uint64]bool, len(logs))
	var candidates []uint64
	for _, log := range logs {
		if !seen[log.TokenID] {
			seen[log.TokenID] = true
			candidates = append(candidates, log.TokenID)
		}
	}

	holders := make([]common.Address, len(candidates))
	ownerErrs := make([]error, len(candidates))
	fanOut(len(candidates), func(i int) {
		ownerErrs[i] = g.limited(ctx, func() error {
			var err error
			holders[i], err = ticket.OwnerOf(ctx, candidates[i])
			return err
		})
	})
	if err := errors.Join(ownerErrs...); err != nil {
		return nil, err
	}

	var owned []models.OwnedTicket
	for i, tokenID := range candidates {
		if !strings.EqualFold(holders[i].Hex(), owner.Hex()) {
			continue
		}
		owned = append(owned, models.OwnedTicket{
			ContractAddress: event.Hex(),
			TokenID:         tokenID,
			EventName:       name,
			Owner:           holders[i].Hex(),
		})
	}
	return owned, nil
}

// Snapshot returns a copy of the current tickets
func (v *TicketsView) Snapshot() []models.OwnedTicket {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.OwnedTicket(nil), v.Tickets...)
}

// TransferState returns the last transfer state of a ticket
func (v *TicketsView) TransferState(contractAddress string, tokenID uint64) models.TransferRequest {
	key := models.NewTicketKey(contractAddress, tokenID)
	v.mu.Lock()
	defer v.mu.Unlock()
	if state, ok := v.transfers[key]; ok {
		return state
	}
	return models.TransferRequest{
		ContractAddress: contractAddress,
		TokenID:         tokenID,
		Status:          models.TransferIdle,
	}
}

// Transfer moves one ticket of the view to recipient. The recipient is
// validated before any remote call; only one transfer per ticket may be in
// flight. On success the ticket leaves the view.
func (v *TicketsView) Transfer(ctx context.Context, contractAddress string, tokenID uint64, recipient string) models.TransferRequest {
	g := v.gateway
	request := models.TransferRequest{
		ContractAddress: contractAddress,
		TokenID:         tokenID,
		Recipient:       recipient,
	}

	to, ok := utils.ParseAddress(recipient)
	if !ok {
		request.Status = models.TransferFailed
		request.Message = invalidRecipientMessage
		request.Code = utils.ErrCodeValidation
		g.recordRejected("invalid_recipient")
		v.setTransfer(models.NewTicketKey(contractAddress, tokenID), request)
		return request
	}
	request.Recipient = to.Hex()

	contract, ok := utils.ParseAddress(contractAddress)
	key := models.NewTicketKey(contract.Hex(), tokenID)
	if !ok || !v.holds(key) {
		request.Status = models.TransferFailed
		request.Message = ticketNotInViewMessage
		request.Code = utils.ErrCodeValidation
		g.recordRejected("not_in_view")
		v.setTransfer(models.NewTicketKey(contractAddress, tokenID), request)
		return request
	}
	request.ContractAddress = contract.Hex()

	release, err := g.guard.TryAcquire(ctx, string(key))
	if err != nil {
		// The pending row of the running transfer stays as it is
		request.Status = models.TransferFailed
		request.Code = utils.ErrCodeInFlight
		request.Message = inFlightError(string(key)).Message
		if !errors.Is(err, locks.ErrHeld) {
			request.Code = errorCode(err)
			request.Message = transferErrorMessage
			g.logger.WithError(err).Warn("In-flight guard unavailable")
		}
		g.recordRejected("in_flight")
		return request
	}
	defer release()

	request.Status = models.TransferPending
	v.setTransfer(key, request)

	owner := common.HexToAddress(v.Owner)
	record := &models.TransactionRecord{
		Kind:            models.TxKindTransfer,
		ContractAddress: contract.Hex(),
		TokenID:         &tokenID,
		To:              to.Hex(),
	}
	ticket := g.ticket(contract)
	_, err = g.execute(ctx, record, func(ctx context.Context, signer *connection.SigningHandle) (*contracts.TransactionHandle, error) {
		if signer.Address() != owner {
			g.recordRejected("not_signer")
			return nil, utils.NewValidationError(notSignerMessage, v.Owner)
		}
		return ticket.SafeTransferFrom(ctx, signer, owner, to, tokenID)
	})

	request.TxHash = record.TxHash
	if err != nil {
		request.Status = models.TransferFailed
		request.Message = userMessage(err, transferErrorMessage)
		request.Code = errorCode(err)
		v.setTransfer(key, request)
		return request
	}

	request.Status = models.TransferSuccess
	request.Message = "Transferred successfully to " + request.Recipient[:6] + "...!"
	v.mu.Lock()
	v.transfers[key] = request
	v.removeLocked(key)
	v.mu.Unlock()
	return request
}

func (v *TicketsView) holds(key models.TicketKey) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range v.Tickets {
		if t.Key() == key {
			return true
		}
	}
	return false
}

func (v *TicketsView) setTransfer(key models.TicketKey, request models.TransferRequest) {
	v.mu.Lock()
	v.transfers[key] = request
	v.mu.Unlock()
}

func (v *TicketsView) removeLocked(key models.TicketKey) {
	kept := v.Tickets[:0]
	for _, t := range v.Tickets {
		if t.Key() != key {
			kept = append(kept, t)
		}
	}
	v.Tickets = kept
}

func (g *Gateway) recordRejected(reason string) {
	if g.metrics != nil {
		g.metrics.RecordTransferRejected(reason)
	}
}

// LoadTicket reads one ticket with its scannable payloads
func (g *Gateway) LoadTicket(ctx context.Context, contractAddress string, tokenID uint64) (*models.TicketView, error) {
	contract, ok := utils.ParseAddress(contractAddress)
	if !ok {
		return nil, utils.NewValidationError("Invalid contract address", contractAddress)
	}
	ticket := g.ticket(contract)

	var (
		owner common.Address
		name  string
		errs  [2]error
	)
	fanOut(2, func(i int) {
		errs[i] = g.limited(ctx, func() error {
			var err error
			if i == 0 {
				owner, err = ticket.OwnerOf(ctx, tokenID)
			} else {
				name, err = ticket.Name(ctx)
			}
			return err
		})
	})
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}

	payload, err := qr.EncodeJSON(contract.Hex(), tokenID, owner.Hex())
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode ticket payload", err.Error())
	}

	return &models.TicketView{
		ContractAddress: contract.Hex(),
		TokenID:         tokenID,
		EventName:       name,
		Owner:           owner.Hex(),
		QRPayload:       payload,
		QRTicketString:  qr.EncodeTicket(owner.Hex(), tokenID),
	}, nil
}
