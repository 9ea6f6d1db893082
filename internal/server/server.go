// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/gateway"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/notification"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// HTTPServer exposes the gateway over a JSON API
type HTTPServer struct {
	config         config.ServerConfig
	server         *http.Server
	router         *mux.Router
	gateway        *gateway.Gateway
	notification   *notification.NotificationManager
	metricsManager *metrics.Manager
	version        string
	logger         *logrus.Entry
	done           chan struct{}
}

// NewHTTPServer creates a new HTTP server. notifications and metricsManager may be nil.
func NewHTTPServer(
	cfg config.ServerConfig,
	gw *gateway.Gateway,
	notifications *notification.NotificationManager,
	metricsManager *metrics.Manager,
	version string,
) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		gateway:        gw,
		notification:   notifications,
		metricsManager: metricsManager,
		version:        version,
		logger:         utils.ComponentLogger("http"),
		done:           make(chan struct{}),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}
	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")

	api.HandleFunc("/network", s.networkHandler).Methods("GET")
	api.HandleFunc("/wallet", s.walletHandler).Methods("GET")

	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/events", s.createEventHandler).Methods("POST")
	api.HandleFunc("/events/{address}", s.getEventHandler).Methods("GET")
	api.HandleFunc("/events/{address}/mint", s.mintHandler).Methods("POST")

	api.HandleFunc("/accounts/{address}/tickets", s.accountTicketsHandler).Methods("GET")
	api.HandleFunc("/tickets", s.myTicketsHandler).Methods("GET")
	api.HandleFunc("/tickets/{contract}/{tokenId}", s.getTicketHandler).Methods("GET")
	api.HandleFunc("/tickets/{contract}/{tokenId}/transfer", s.transferHandler).Methods("POST")

	api.HandleFunc("/scan", s.scanHandler).Methods("POST")
	api.HandleFunc("/transactions", s.listTransactionsHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Surface immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateComponentHealth()
		case <-s.done:
			return
		}
	}
}

func (s *HTTPServer) updateComponentHealth() {
	s.metricsManager.UpdateSystemMetrics()
	m := s.metricsManager.GetPrometheusMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.UpdateComponentHealth("ledger", s.gateway.Connection().HealthCheck(ctx) == nil)
	if journal := s.gateway.Journal(); journal != nil {
		m.UpdateComponentHealth("storage", journal.Ping() == nil)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		if code := appCode(err); code != "" {
			errorResponse["code"] = code
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Warn("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
