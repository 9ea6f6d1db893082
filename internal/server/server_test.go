package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/gateway"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/storage"
	"github.com/smartdevs17/ticket-gateway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	ledger  *testutil.Ledger
	account common.Address
	server  *HTTPServer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ledger := testutil.NewLedger(31337)

	conn := connection.NewReadHandle(models.NetworkConfig{
		Name:            "localhost",
		ChainID:         ledger.ChainIDValue(),
		RPCURL:          "memory://ledger",
		RegistryAddress: ledger.Registry(),
	}, ledger)

	journal, err := storage.NewStorage(config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal.db"),
		MaxConnections:   2,
	})
	require.NoError(t, err)
	require.NoError(t, journal.Connect())
	require.NoError(t, journal.Migrate())
	t.Cleanup(func() { journal.Close() })

	key, account := testutil.NewAccount()
	manager := metrics.NewManager()

	gw := gateway.New(conn,
		gateway.WithWallet(connection.NewKeyWallet(key)),
		gateway.WithJournal(journal),
		gateway.WithMetrics(manager.GetPrometheusMetrics()),
		gateway.WithPollInterval(5*time.Millisecond),
	)

	srv := NewHTTPServer(config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		EnableMetrics: true,
		EnableHealth:  true,
	}, gw, nil, manager, "test")

	return &apiFixture{ledger: ledger, account: account, server: srv}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestHealthAndNetwork(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["version"])

	rec = f.do(t, http.MethodGet, "/api/v1/network", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var network map[string]interface{}
	decode(t, rec, &network)
	assert.Equal(t, "localhost", network["name"])
	assert.Equal(t, float64(31337), network["chain_id"])
	assert.Equal(t, f.ledger.Registry().Hex(), network["registry_address"])
	assert.Equal(t, true, network["wallet"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/network", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	f.ledger.MintTo(rock, f.account)
	f.ledger.AddBrokenEvent()

	rec := f.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view gateway.CatalogView
	decode(t, rec, &view)
	require.Len(t, view.Events, 2)
	assert.Equal(t, "Rock Fest", view.Events[0].Name)
	assert.Equal(t, uint64(500), view.Events[0].MaxSupply)
	assert.Equal(t, uint64(1), view.Events[0].TicketsMinted)
	assert.True(t, view.Events[1].Placeholder)
}

func TestGetEvent(t *testing.T) {
	f := newAPIFixture(t)
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)

	rec := f.do(t, http.MethodGet, "/api/v1/events/"+rock.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State       gateway.ViewState   `json:"state"`
		Event       models.EventSummary `json:"event"`
		MintEnabled bool                `json:"mint_enabled"`
	}
	decode(t, rec, &body)
	assert.Equal(t, gateway.StateReady, body.State)
	assert.Equal(t, "ROCK", body.Event.Symbol)
	assert.True(t, body.MintEnabled)

	rec = f.do(t, http.MethodGet, "/api/v1/events/not-an-address", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMintScanAndJournal(t *testing.T) {
	f := newAPIFixture(t)
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)

	rec := f.do(t, http.MethodPost, "/api/v1/events/"+rock.Hex()+"/mint", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var minted gateway.ActionResult
	decode(t, rec, &minted)
	assert.True(t, minted.Success)
	assert.NotEmpty(t, minted.TxHash)

	rec = f.do(t, http.MethodGet, "/api/v1/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine struct {
		Tickets []models.OwnedTicket `json:"tickets"`
	}
	decode(t, rec, &mine)
	require.Len(t, mine.Tickets, 1)
	tokenID := mine.Tickets[0].TokenID

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tickets/%s/%d", rock.Hex(), tokenID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket models.TicketView
	decode(t, rec, &ticket)
	assert.Equal(t, f.account.Hex(), ticket.Owner)

	rec = f.do(t, http.MethodPost, "/api/v1/scan", scanBody{Payload: ticket.QRPayload})
	require.Equal(t, http.StatusOK, rec.Code)
	var verification models.Verification
	decode(t, rec, &verification)
	assert.True(t, verification.Valid, verification.Message)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions?kind=mint_ticket", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var journal struct {
		Transactions []models.TransactionRecord `json:"transactions"`
		Count        int                        `json:"count"`
	}
	decode(t, rec, &journal)
	require.Equal(t, 1, journal.Count)
	assert.Equal(t, models.TxStatusConfirmed, journal.Transactions[0].Status)

	rec = f.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_checkins":1`)
}

func TestMintSoldOut(t *testing.T) {
	f := newAPIFixture(t)
	gig := f.ledger.AddEvent("Tiny Gig", "TINY", 1)
	_, other := testutil.NewAccount()
	f.ledger.MintTo(gig, other)

	rec := f.do(t, http.MethodPost, "/api/v1/events/"+gig.Hex()+"/mint", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var result gateway.ActionResult
	decode(t, rec, &result)
	assert.False(t, result.Success)
	assert.Equal(t, "All tickets have been minted", result.Message)
}

func TestCreateEventValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/events", gateway.CreateEventInput{Name: "Jazz", Symbol: "JZ"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var result gateway.ActionResult
	decode(t, rec, &result)
	assert.Equal(t, "Maximum number of tickets must be a positive number", result.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestTransferEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	rock := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	tokenID := f.ledger.MintTo(rock, f.account)

	path := fmt.Sprintf("/api/v1/tickets/%s/%d/transfer", rock.Hex(), tokenID)

	rec := f.do(t, http.MethodPost, path, transferBody{Recipient: "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var rejected models.TransferRequest
	decode(t, rec, &rejected)
	assert.Equal(t, models.TransferFailed, rejected.Status)
	assert.Equal(t, "Please enter a valid address.", rejected.Message)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tickets/%s/abc/transfer", rock.Hex()), transferBody{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, bob := testutil.NewAccount()
	rec = f.do(t, http.MethodPost, path, transferBody{Recipient: " " + bob.Hex() + "\n"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done models.TransferRequest
	decode(t, rec, &done)
	assert.Equal(t, models.TransferSuccess, done.Status)
	assert.Equal(t, bob.Hex(), done.Recipient)

	rec = f.do(t, http.MethodGet, "/api/v1/accounts/"+bob.Hex()+"/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bobs struct {
		Tickets []models.OwnedTicket `json:"tickets"`
	}
	decode(t, rec, &bobs)
	require.Len(t, bobs.Tickets, 1)
	assert.Equal(t, tokenID, bobs.Tickets[0].TokenID)

	rec = f.do(t, http.MethodGet, "/api/v1/accounts/0x123/tickets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionsQueryValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/transactions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions?contract=0x1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/api/v1/network", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticket_gateway_http_requests_total")
}
