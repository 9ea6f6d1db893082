package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/models"
)

// ViewState is the load state of a view
type ViewState string

const (
	StateReady ViewState = "ready"
	StateError ViewState = "error"
)

const catalogErrorMessage = "Could not load events from the ledger. Please try again."

// CatalogView is the event listing
type CatalogView struct {
	State    ViewState             `json:"state"`
	Events   []models.EventSummary `json:"events"`
	Message  string                `json:"message,omitempty"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// LoadCatalog lists every registered event. Details are read concurrently and
// a failed read degrades only its own entry to a placeholder; the order
// follows the registry.
func (g *Gateway) LoadCatalog(ctx context.Context) *CatalogView {
	view := &CatalogView{LoadedAt: time.Now().UTC()}

	addresses, err := g.registry.ListEvents(ctx)
	if err != nil {
		g.logger.WithError(err).Error("Could not fetch events from the registry")
		view.State = StateError
		view.Message = catalogErrorMessage
		view.Events = []models.EventSummary{}
		g.recordCatalog("error", 0, 0)
		return view
	}

	view.Events = make([]models.EventSummary, len(addresses))
	fanOut(len(addresses), func(i int) {
		summary, err := g.eventSummary(ctx, addresses[i])
		if err != nil {
			g.logger.WithError(err).WithField("contract", addresses[i].Hex()).
				Warn("Error fetching event details, using placeholder")
			summary = models.PlaceholderEvent(addresses[i].Hex())
		}
		view.Events[i] = summary
	})

	placeholders := 0
	for _, event := range view.Events {
		if event.Placeholder {
			placeholders++
		}
	}
	view.State = StateReady
	g.recordCatalog("success", len(view.Events), placeholders)
	g.logger.WithFields(logrus.Fields{
		"events":       len(view.Events),
		"placeholders": placeholders,
	}).Debug("Catalog loaded")
	return view
}

// eventSummary reads name, supply and mint counter concurrently
func (g *Gateway) eventSummary(ctx context.Context, address common.Address) (models.EventSummary, error) {
	ticket := g.ticket(address)

	var (
		name      string
		maxSupply uint64
		next      uint64
		errs      [3]error
	)
	fanOut(3, func(i int) {
		errs[i] = g.limited(ctx, func() error {
			var err error
			switch i {
			case 0:
				name, err = ticket.Name(ctx)
			case 1:
				maxSupply, err = ticket.MaxSupply(ctx)
			case 2:
				next, err = ticket.NextTokenID(ctx)
			}
			return err
		})
	})
	if err := errors.Join(errs[:]...); err != nil {
		return models.EventSummary{}, err
	}

	return models.EventSummary{
		ContractAddress: address.Hex(),
		Name:            name,
		MaxSupply:       maxSupply,
		TicketsMinted:   models.TicketsMintedFromNext(next),
	}, nil
}

func (g *Gateway) recordCatalog(status string, events, placeholders int) {
	if g.metrics != nil {
		g.metrics.RecordCatalogLoad(status, events, placeholders)
	}
}

// ProbeWallet reports the wallet's authorized account and whitelist status.
// It never prompts the user and gives up after the probe timeout.
func (g *Gateway) ProbeWallet(ctx context.Context) models.WalletStatus {
	if g.wallet == nil {
		g.recordProbe("no_wallet")
		return models.WalletStatus{}
	}
	status := models.WalletStatus{Wallet: g.wallet.Name()}

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	type probeResult struct {
		status models.WalletStatus
		err    error
	}
	done := make(chan probeResult, 1)

	// The wallet may ignore ctx; the select below still returns on time
	go func() {
		accounts, err := g.wallet.Accounts(probeCtx)
		if err != nil || len(accounts) == 0 {
			done <- probeResult{status: status, err: err}
			return
		}
		whitelisted, err := g.registry.IsWhitelisted(probeCtx, accounts[0])
		if err != nil {
			done <- probeResult{status: status, err: err}
			return
		}
		result := status
		result.Connected = true
		result.Address = accounts[0].Hex()
		result.Whitelisted = whitelisted
		done <- probeResult{status: result}
	}()

	select {
	case res := <-done:
		switch {
		case res.err != nil:
			g.logger.WithError(res.err).Info("Wallet not connected or the user declined the connection")
			g.recordProbe("error")
		case !res.status.Connected:
			g.recordProbe("not_connected")
		default:
			g.recordProbe("connected")
		}
		return res.status
	case <-probeCtx.Done():
		g.logger.WithField("timeout", g.probeTimeout).Info("Wallet probe timed out")
		g.recordProbe("timeout")
		return status
	}
}

func (g *Gateway) recordProbe(result string) {
	if g.metrics != nil {
		g.metrics.RecordWalletProbe(result)
	}
}
