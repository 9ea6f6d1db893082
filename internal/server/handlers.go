// File: internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartdevs17/ticket-gateway/internal/gateway"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const defaultTransactionLimit = 50

func appCode(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// statusForCode maps an error code to the HTTP status reported for it
func statusForCode(code string) int {
	switch code {
	case utils.ErrCodeValidation:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeInFlight:
		return http.StatusConflict
	case utils.ErrCodeWalletUnavailable:
		return http.StatusServiceUnavailable
	case utils.ErrCodeRemoteCall, utils.ErrCodeConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func viewStatus(state gateway.ViewState) int {
	if state == gateway.StateError {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func actionStatus(result gateway.ActionResult) int {
	if result.Success {
		return http.StatusOK
	}
	return statusForCode(result.Code)
}

func parseTokenID(w http.ResponseWriter, r *http.Request, s *HTTPServer) (uint64, bool) {
	tokenID, err := strconv.ParseUint(mux.Vars(r)["tokenId"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid token id", err)
		return 0, false
	}
	return tokenID, true
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ledgerErr := s.gateway.Connection().HealthCheck(r.Context())

	status := "healthy"
	code := http.StatusOK
	if ledgerErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	components := map[string]interface{}{
		"ledger": s.gateway.Connection().Stats(),
	}
	if journal := s.gateway.Journal(); journal != nil {
		components["storage"] = journal.Ping() == nil
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    s.version,
		"components": components,
	})
}

// statsHandler returns journal and notification statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"metrics_enabled": s.config.EnableMetrics,
	}

	if journal := s.gateway.Journal(); journal != nil {
		storageStats, err := journal.GetStorageStats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}
	if s.metricsManager != nil {
		stats["uptime_seconds"] = s.metricsManager.Uptime().Seconds()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) networkHandler(w http.ResponseWriter, r *http.Request) {
	network := s.gateway.Network()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":             network.Name,
		"chain_id":         network.ChainID,
		"registry_address": network.RegistryAddress.Hex(),
		"wallet":           s.gateway.HasWallet(),
	})
}

func (s *HTTPServer) walletHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gateway.ProbeWallet(r.Context()))
}

// Event handlers

func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	view := s.gateway.LoadCatalog(r.Context())
	s.writeJSON(w, viewStatus(view.State), view)
}

func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	view := s.gateway.LoadEvent(r.Context(), mux.Vars(r)["address"])
	event, message := view.Snapshot()
	s.writeJSON(w, viewStatus(view.State), map[string]interface{}{
		"state":        view.State,
		"event":        event,
		"message":      message,
		"mint_enabled": view.MintEnabled(),
	})
}

func (s *HTTPServer) createEventHandler(w http.ResponseWriter, r *http.Request) {
	var in gateway.CreateEventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result := s.gateway.CreateEvent(r.Context(), in)
	s.writeJSON(w, actionStatus(result), result)
}

func (s *HTTPServer) mintHandler(w http.ResponseWriter, r *http.Request) {
	view := s.gateway.LoadEvent(r.Context(), mux.Vars(r)["address"])
	if view.State == gateway.StateError {
		_, message := view.Snapshot()
		s.writeJSON(w, http.StatusNotFound, gateway.ActionResult{Message: message})
		return
	}

	result := view.Mint(r.Context())
	s.writeJSON(w, actionStatus(result), result)
}

// Ticket handlers

func (s *HTTPServer) accountTicketsHandler(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["address"]
	if !utils.IsValidAddress(owner) {
		s.writeError(w, http.StatusBadRequest, "Invalid account address", nil)
		return
	}

	view := s.gateway.LoadOwnedTickets(r.Context(), owner)
	s.writeJSON(w, viewStatus(view.State), view)
}

func (s *HTTPServer) myTicketsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.gateway.HasWallet() {
		s.writeError(w, http.StatusServiceUnavailable, "No wallet configured", nil)
		return
	}

	view := s.gateway.LoadMyTickets(r.Context())
	s.writeJSON(w, viewStatus(view.State), view)
}

func (s *HTTPServer) getTicketHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r, s)
	if !ok {
		return
	}

	ticket, err := s.gateway.LoadTicket(r.Context(), mux.Vars(r)["contract"], tokenID)
	if err != nil {
		message := "Failed to load ticket"
		if reason := utils.RemoteReason(err); reason != "" {
			message = reason
		}
		s.writeError(w, statusForCode(appCode(err)), message, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ticket)
}

type transferBody struct {
	Recipient string `json:"recipient"`
}

func (s *HTTPServer) transferHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r, s)
	if !ok {
		return
	}

	var body transferBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	view := s.gateway.LoadMyTickets(r.Context())
	if view.State == gateway.StateError {
		s.writeJSON(w, http.StatusServiceUnavailable, view)
		return
	}

	result := view.Transfer(r.Context(), mux.Vars(r)["contract"], tokenID, body.Recipient)
	status := http.StatusOK
	if result.Status != models.TransferSuccess {
		status = statusForCode(result.Code)
	}
	s.writeJSON(w, status, result)
}

// Check-in and journal handlers

type scanBody struct {
	Payload  string `json:"payload"`
	Contract string `json:"contract,omitempty"`
}

func (s *HTTPServer) scanHandler(w http.ResponseWriter, r *http.Request) {
	var body scanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.gateway.VerifyScan(r.Context(), body.Payload, body.Contract))
}

func (s *HTTPServer) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	journal := s.gateway.Journal()
	if journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Transaction journal is disabled", nil)
		return
	}

	query := r.URL.Query()
	filter := models.TransactionFilter{Limit: defaultTransactionLimit}

	if kind := query.Get("kind"); kind != "" {
		k := models.TransactionKind(kind)
		filter.Kind = &k
	}
	if status := query.Get("status"); status != "" {
		st := models.TransactionStatus(status)
		filter.Status = &st
	}
	if contract := query.Get("contract"); contract != "" {
		if !utils.IsValidAddress(contract) {
			s.writeError(w, http.StatusBadRequest, "Invalid contract address", nil)
			return
		}
		filter.ContractAddress = &contract
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	if offset := query.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = n
	}

	records, err := journal.GetTransactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve transactions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}
