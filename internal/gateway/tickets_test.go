package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/qr"
	"github.com/smartdevs17/ticket-gateway/internal/testutil"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketIDs(tickets []models.OwnedTicket) []models.TicketKey {
	keys := make([]models.TicketKey, 0, len(tickets))
	for _, t := range tickets {
		keys = append(keys, t.Key())
	}
	return keys
}

func TestLoadOwnedTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, other := testutil.NewAccount()

	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	jazz := f.ledger.AddEvent("Jazz Night", "JAZZ", 50)
	f.ledger.AddEvent("Empty Hall", "EMPTY", 10)

	first := f.ledger.MintTo(rock, f.account)
	f.ledger.MintTo(rock, other)
	third := f.ledger.MintTo(rock, f.account)
	jazzTicket := f.ledger.MintTo(jazz, f.account)

	view := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	require.Equal(t, StateReady, view.State, view.Message)
	assert.Equal(t, []models.TicketKey{
		models.NewTicketKey(rock.Hex(), first),
		models.NewTicketKey(rock.Hex(), third),
		models.NewTicketKey(jazz.Hex(), jazzTicket),
	}, ticketIDs(view.Tickets))
	assert.Equal(t, "Rock Fest", view.Tickets[0].EventName)
	assert.Equal(t, "Jazz Night", view.Tickets[2].EventName)
	assert.Equal(t, f.account.Hex(), view.Tickets[0].Owner)

	// Lowercase input finds the same tickets
	again := f.gateway.LoadOwnedTickets(ctx, strings.ToLower(f.account.Hex()))
	assert.Equal(t, ticketIDs(view.Tickets), ticketIDs(again.Tickets))
}

func TestLoadOwnedTicketsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	f.ledger.MintTo(rock, f.account)
	f.ledger.MintTo(rock, f.account)

	first := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	second := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	assert.Equal(t, first.Tickets, second.Tickets)
	assert.Len(t, second.Tickets, 2)
}

func TestTransferAwayAndBack(t *testing.T) {
	ledger := testutil.NewLedger(31337)
	alice := newFixtureOn(t, ledger)
	bob := newFixtureOn(t, ledger)
	ctx := context.Background()

	rock := ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := ledger.MintTo(rock, alice.account)
	kept := ledger.MintTo(rock, alice.account)

	view := alice.gateway.LoadOwnedTickets(ctx, alice.account.Hex())
	require.Len(t, view.Tickets, 2)
	assert.Equal(t, models.TransferIdle, view.TransferState(rock.Hex(), tokenID).Status)

	request := view.Transfer(ctx, rock.Hex(), tokenID, bob.account.Hex())
	require.Equal(t, models.TransferSuccess, request.Status, request.Message)
	assert.Equal(t, "Transferred successfully to "+bob.account.Hex()[:6]+"...!", request.Message)
	assert.NotEmpty(t, request.TxHash)
	assert.Equal(t, []models.TicketKey{models.NewTicketKey(rock.Hex(), kept)}, ticketIDs(view.Snapshot()))
	assert.Equal(t, models.TransferSuccess, view.TransferState(rock.Hex(), tokenID).Status)

	// The transferred ticket is gone after a fresh discovery
	reloaded := alice.gateway.LoadOwnedTickets(ctx, alice.account.Hex())
	assert.Equal(t, []models.TicketKey{models.NewTicketKey(rock.Hex(), kept)}, ticketIDs(reloaded.Tickets))

	bobView := bob.gateway.LoadMyTickets(ctx)
	require.Equal(t, StateReady, bobView.State)
	assert.Equal(t, []models.TicketKey{models.NewTicketKey(rock.Hex(), tokenID)}, ticketIDs(bobView.Tickets))

	// Receiving the same token twice still lists it once
	back := bobView.Transfer(ctx, rock.Hex(), tokenID, alice.account.Hex())
	require.Equal(t, models.TransferSuccess, back.Status, back.Message)

	reloaded = alice.gateway.LoadOwnedTickets(ctx, alice.account.Hex())
	assert.ElementsMatch(t, []models.TicketKey{
		models.NewTicketKey(rock.Hex(), tokenID),
		models.NewTicketKey(rock.Hex(), kept),
	}, ticketIDs(reloaded.Tickets))

	records := alice.transactions(t, models.TxKindTransfer)
	require.Len(t, records, 1)
	assert.Equal(t, models.TxStatusConfirmed, records[0].Status)
	require.NotNil(t, records[0].TokenID)
	assert.Equal(t, tokenID, *records[0].TokenID)
}

func TestTransferToPaddedRecipient(t *testing.T) {
	ledger := testutil.NewLedger(31337)
	alice := newFixtureOn(t, ledger)
	_, bob := testutil.NewAccount()
	ctx := context.Background()

	rock := ledger.AddEvent("Rock Fest", "ROCK", 500)
	first := ledger.MintTo(rock, alice.account)
	second := ledger.MintTo(rock, alice.account)

	view := alice.gateway.LoadOwnedTickets(ctx, " "+alice.account.Hex()+"\n")
	require.Equal(t, StateReady, view.State, view.Message)
	assert.Equal(t, alice.account.Hex(), view.Owner)
	require.Len(t, view.Tickets, 2)

	request := view.Transfer(ctx, rock.Hex()+" ", first, bob.Hex()+" ")
	require.Equal(t, models.TransferSuccess, request.Status, request.Message)
	assert.Equal(t, bob.Hex(), request.Recipient)

	request = view.Transfer(ctx, rock.Hex(), second, "\t"+strings.ToLower(bob.Hex()))
	require.Equal(t, models.TransferSuccess, request.Status, request.Message)

	state, ok := ledger.Ticket(rock)
	require.True(t, ok)
	assert.Equal(t, bob, state.Owners[first])
	assert.Equal(t, bob, state.Owners[second])

	records := alice.transactions(t, models.TxKindTransfer)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, bob.Hex(), record.To)
	}
}

func TestTransferFromAnotherOwnersView(t *testing.T) {
	ledger := testutil.NewLedger(31337)
	alice := newFixtureOn(t, ledger)
	_, bob := testutil.NewAccount()
	_, carol := testutil.NewAccount()
	ctx := context.Background()

	rock := ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := ledger.MintTo(rock, bob)

	view := alice.gateway.LoadOwnedTickets(ctx, bob.Hex())
	require.Len(t, view.Tickets, 1)

	request := view.Transfer(ctx, rock.Hex(), tokenID, carol.Hex())
	assert.Equal(t, models.TransferFailed, request.Status)
	assert.Equal(t, notSignerMessage, request.Message)
	assert.Equal(t, utils.ErrCodeValidation, request.Code)
	assert.Empty(t, request.TxHash)
	assert.Len(t, view.Snapshot(), 1)
	assert.Empty(t, alice.transactions(t, models.TxKindTransfer))

	state, _ := ledger.Ticket(rock)
	assert.Equal(t, bob, state.Owners[tokenID])
}

func TestTransferInvalidRecipientMakesNoRemoteCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := f.ledger.MintTo(rock, f.account)

	view := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	require.Len(t, view.Tickets, 1)

	calls := f.ledger.Calls()
	request := view.Transfer(ctx, rock.Hex(), tokenID, "not-an-address")
	assert.Equal(t, calls, f.ledger.Calls())

	assert.Equal(t, models.TransferFailed, request.Status)
	assert.Equal(t, invalidRecipientMessage, request.Message)
	assert.Equal(t, utils.ErrCodeValidation, request.Code)
	assert.Equal(t, models.TransferFailed, view.TransferState(rock.Hex(), tokenID).Status)
	assert.Len(t, view.Snapshot(), 1)
	assert.Empty(t, f.transactions(t, models.TxKindTransfer))
}

func TestTransferRejectsSecondInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := f.ledger.MintTo(rock, f.account)
	_, recipient := testutil.NewAccount()

	view := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())

	release, err := f.guard.TryAcquire(ctx, string(models.NewTicketKey(rock.Hex(), tokenID)))
	require.NoError(t, err)

	calls := f.ledger.Calls()
	request := view.Transfer(ctx, rock.Hex(), tokenID, recipient.Hex())
	assert.Equal(t, calls, f.ledger.Calls())
	assert.Equal(t, models.TransferFailed, request.Status)
	assert.Equal(t, utils.ErrCodeInFlight, request.Code)
	assert.Len(t, view.Snapshot(), 1)

	release()
	request = view.Transfer(ctx, rock.Hex(), tokenID, recipient.Hex())
	assert.Equal(t, models.TransferSuccess, request.Status, request.Message)
	assert.False(t, f.guard.Held(string(models.NewTicketKey(rock.Hex(), tokenID))))
}

func TestTransferTicketNotInView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	_, recipient := testutil.NewAccount()

	view := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	request := view.Transfer(ctx, rock.Hex(), 7, recipient.Hex())
	assert.Equal(t, models.TransferFailed, request.Status)
	assert.Equal(t, ticketNotInViewMessage, request.Message)
}

func TestLoadOwnedTicketsFailsAsAWhole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	jazz := f.ledger.AddEvent("Jazz Night", "JAZZ", 50)
	f.ledger.MintTo(rock, f.account)
	f.ledger.FailCalls(jazz, errors.New("missing trie node"))

	view := f.gateway.LoadOwnedTickets(ctx, f.account.Hex())
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, ticketsErrorMessage, view.Message)
	assert.Empty(t, view.Tickets)

	view = f.gateway.LoadOwnedTickets(ctx, "0xnope")
	assert.Equal(t, StateError, view.State)
	assert.Equal(t, invalidOwnerMessage, view.Message)
}

func TestLoadMyTicketsWithoutWallet(t *testing.T) {
	f := newFixture(t)
	view := New(f.conn).LoadMyTickets(context.Background())
	assert.Equal(t, StateError, view.State)
	assert.Contains(t, view.Message, "No wallet is configured")
}

func TestLoadTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := f.ledger.MintTo(rock, f.account)

	ticket, err := f.gateway.LoadTicket(ctx, rock.Hex(), tokenID)
	require.NoError(t, err)
	assert.Equal(t, "Rock Fest", ticket.EventName)
	assert.Equal(t, f.account.Hex(), ticket.Owner)
	assert.Equal(t, qr.EncodeTicket(f.account.Hex(), tokenID), ticket.QRTicketString)

	doc, ok := qr.Classify(ticket.QRPayload).TicketDocument()
	require.True(t, ok)
	assert.Equal(t, rock.Hex(), doc.ContractAddress)
	assert.Equal(t, "1", doc.TokenID)

	padded, err := f.gateway.LoadTicket(ctx, rock.Hex()+" ", tokenID)
	require.NoError(t, err)
	assert.Equal(t, ticket.QRPayload, padded.QRPayload)

	_, err = f.gateway.LoadTicket(ctx, rock.Hex(), 99)
	require.Error(t, err)
	assert.Equal(t, "ERC721: invalid token ID", utils.RemoteReason(err))

	_, err = f.gateway.LoadTicket(ctx, "0x12", 1)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))
}
