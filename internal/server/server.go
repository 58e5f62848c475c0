// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/chaindata"
	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/monitor"
	"github.com/smartdevs17/fil-e-rug/internal/notification"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/internal/votes"
	"github.com/smartdevs17/fil-e-rug/internal/wallet"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// ProposalReader reads proposal vote state
type ProposalReader interface {
	HasVoted(ctx context.Context, proposalID, voter string) (bool, error)
	GetVoteCount(ctx context.Context, proposalID string) (*models.ProposalVoteCount, error)
}

// ReceiptReader reads receipts anchored in the VoteStorage contract
type ReceiptReader interface {
	GetVote(ctx context.Context, index uint64) (*governance.StoredVote, error)
	GetVoteCount(ctx context.Context) (uint64, error)
}

// WalletReader reads account balances
type WalletReader interface {
	Status(ctx context.Context, address string) (*wallet.Status, error)
}

// RPCHealth checks the chain RPC endpoint
type RPCHealth interface {
	HealthCheckWithContext(ctx context.Context) error
}

// Dependencies are the services the HTTP API exposes. Proposals, Receipts,
// Wallet, RPC and Notification may be nil.
type Dependencies struct {
	Storage      storage.Storage
	Chains       *chaindata.Service
	Votes        *votes.Service
	Proposals    ProposalReader
	Receipts     ReceiptReader
	Wallet       WalletReader
	RPC          RPCHealth
	Notification *notification.NotificationManager
	Monitor      *monitor.ReceiptMonitor
	Metrics      *metrics.Manager
	Version      string
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	chains         *chaindata.Service
	votes          *votes.Service
	proposals      ProposalReader
	receipts       ReceiptReader
	wallet         WalletReader
	rpc            RPCHealth
	notification   *notification.NotificationManager
	monitor        *monitor.ReceiptMonitor
	hub            *Hub
	metricsManager *metrics.Manager
	version        string
	logger         *logrus.Entry
	stopOnce       sync.Once
	done           chan struct{}
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) (*HTTPServer, error) {
	if deps.Storage == nil || deps.Chains == nil || deps.Votes == nil {
		return nil, fmt.Errorf("storage, chain and vote services are required")
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	server := &HTTPServer{
		config:         cfg,
		storage:        deps.Storage,
		chains:         deps.Chains,
		votes:          deps.Votes,
		proposals:      deps.Proposals,
		receipts:       deps.Receipts,
		wallet:         deps.Wallet,
		rpc:            deps.RPC,
		notification:   deps.Notification,
		monitor:        deps.Monitor,
		metricsManager: deps.Metrics,
		version:        deps.Version,
		logger:         utils.ComponentLogger("http"),
		done:           make(chan struct{}),
	}

	if cfg.EnableStream {
		server.hub = NewHub(cfg.AllowedOrigin, deps.Metrics)
		if deps.Notification != nil {
			deps.Notification.AddChannel(server.hub)
		}
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Handler exposes the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub, nil when streaming is disabled
func (s *HTTPServer) Hub() *Hub {
	return s.hub
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Chain records
	api.HandleFunc("/chains", s.storeChainHandler).Methods("POST")
	api.HandleFunc("/chains", s.listChainsHandler).Methods("GET")
	api.HandleFunc("/chains/{id}", s.getChainHandler).Methods("GET")
	api.HandleFunc("/chains/{id}/verify", s.verifyChainHandler).Methods("POST")
	api.HandleFunc("/storage/stats", s.storageStatsHandler).Methods("GET")
	api.HandleFunc("/storage/index", s.categoryIndexHandler).Methods("GET")

	// Uploads and receipts
	api.HandleFunc("/uploads/text", s.uploadTextHandler).Methods("POST")
	api.HandleFunc("/votes/upload", s.uploadVoteHandler).Methods("POST")
	api.HandleFunc("/votes/cast", s.castVoteHandler).Methods("POST")
	api.HandleFunc("/votes/records", s.voteRecordsHandler).Methods("GET")

	// Pending vote queue
	api.HandleFunc("/votes/pending", s.listPendingHandler).Methods("GET")
	api.HandleFunc("/votes/pending", s.addPendingHandler).Methods("POST")
	api.HandleFunc("/votes/pending/{proposalId}/{user}", s.updatePendingHandler).Methods("PUT")
	api.HandleFunc("/votes/pending/{proposalId}/{user}", s.removePendingHandler).Methods("DELETE")
	api.HandleFunc("/votes/pending/{proposalId}/{user}/submit", s.submitPendingHandler).Methods("POST")

	// Proposal contract reads
	api.HandleFunc("/proposals/{id}/count", s.proposalCountHandler).Methods("GET")
	api.HandleFunc("/proposals/{id}/voted/{address}", s.proposalVotedHandler).Methods("GET")

	// On-chain receipts
	api.HandleFunc("/receipts/count", s.receiptCountHandler).Methods("GET")
	api.HandleFunc("/receipts/{index}", s.receiptHandler).Methods("GET")

	api.HandleFunc("/wallet/{address}", s.walletHandler).Methods("GET")
	api.HandleFunc("/audit", s.auditHandler).Methods("GET")

	if s.hub != nil {
		api.HandleFunc("/ws", s.hub.ServeWS).Methods("GET")
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
		"stream_enabled":  s.hub != nil,
	}).Info("Starting HTTP server")

	// Populate gauges before the first scrape
	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateComponentMetrics()
		case <-s.done:
			return
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.GetPrometheusMetrics()

	prom.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	if s.notification != nil {
		prom.UpdateComponentHealth("notification", s.notification.IsHealthy())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if count, err := s.storage.CountPendingVotes(ctx); err == nil {
		prom.UpdatePendingVotes(int(count))
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.done) })

	if s.hub != nil {
		s.hub.Close()
	}

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

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeError renders err as {"error":{code,message,details}} with a status
// derived from its code
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Code:    utils.ErrorCode(err),
		Message: "Internal server error",
		Details: err.Error(),
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Details = appErr.Details
	}

	status := utils.HTTPStatus(body.Code)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("status", status).Error("HTTP error")
	}

	s.writeJSON(w, status, map[string]interface{}{"error": body})
}

// decodeJSON reads a JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(v); err != nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error())
	}
	return nil
}
