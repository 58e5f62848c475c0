// File: internal/server/handlers.go
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/votes"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.version,
		"metrics_enabled": s.config.EnableMetrics,
	})
}

// detailedHealthHandler checks each dependency
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]interface{}{}

	check := func(name string, err error) {
		entry := map[string]interface{}{"healthy": err == nil}
		if err != nil {
			entry["error"] = err.Error()
			status = "degraded"
		}
		components[name] = entry
	}

	check("storage", s.storage.Ping())
	if s.rpc != nil {
		check("filecoin_rpc", s.rpc.HealthCheckWithContext(r.Context()))
	}
	if s.notification != nil {
		components["notification"] = s.notification.GetHealth()
		if !s.notification.IsHealthy() {
			status = "degraded"
		}
	}
	if s.hub != nil {
		components["stream"] = map[string]interface{}{"healthy": true, "clients": s.hub.ClientCount()}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    s.version,
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"storage":   storageStats,
		"chains":    s.chains.GetStorageStats(r.Context()),
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}
	if s.monitor != nil {
		stats["monitor"] = s.monitor.GetStats()
	}
	if s.metricsManager != nil {
		stats["uptime_seconds"] = int64(s.metricsManager.Uptime().Seconds())
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// Chain Handlers

// storeChainHandler classifies, uploads and indexes a chain record
func (s *HTTPServer) storeChainHandler(w http.ResponseWriter, r *http.Request) {
	var chain models.ChainData
	if err := decodeJSON(w, r, &chain); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.chains.StoreChainData(r.Context(), chain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

// listChainsHandler lists one bucket, or all three when no category is given
func (s *HTTPServer) listChainsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	category := r.URL.Query().Get("category")

	if category == "" {
		all := map[models.Decision][]*models.ChainData{}
		for _, decision := range []models.Decision{models.DecisionRugged, models.DecisionSafe, models.DecisionPending} {
			chains, err := s.chains.GetChainsByCategory(r.Context(), decision, limit)
			if err != nil {
				s.writeError(w, err)
				return
			}
			all[decision] = chains
		}
		s.writeJSON(w, http.StatusOK, all)
		return
	}

	decision := models.Decision(category)
	if models.ParseDecision(category) != decision {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation,
			"Category must be rugged, safe or pending", category))
		return
	}

	chains, err := s.chains.GetChainsByCategory(r.Context(), decision, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": decision,
		"chains":   chains,
		"total":    len(chains),
	})
}

// getChainHandler returns one chain record
func (s *HTTPServer) getChainHandler(w http.ResponseWriter, r *http.Request) {
	chain, err := s.chains.GetChain(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chain)
}

// verifyChainHandler re-checks the storage proof of an indexed record
func (s *HTTPServer) verifyChainHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chain, err := s.chains.GetChain(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"id":    id,
		"valid": s.chains.VerifyStorageProof(r.Context(), *chain),
	}
	if chain.StorageProof != nil {
		response["cid"] = chain.StorageProof.CID
		response["hash"] = chain.StorageProof.Hash
	}
	s.writeJSON(w, http.StatusOK, response)
}

// storageStatsHandler returns bucket counts and the storage estimate
func (s *HTTPServer) storageStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chains.GetStorageStats(r.Context()))
}

func (s *HTTPServer) categoryIndexHandler(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.storage.GetCategoryIndexes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"indexes": indexes,
		"total":   len(indexes),
	})
}

// Upload Handlers

type uploadTextRequest struct {
	Text string `json:"text"`
	Name string `json:"name"`
}

func (s *HTTPServer) uploadTextHandler(w http.ResponseWriter, r *http.Request) {
	var req uploadTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Text == "" {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Text is required"))
		return
	}

	result, err := s.chains.UploadText(r.Context(), req.Text, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

type uploadVoteRequest struct {
	VoteData map[string]interface{} `json:"voteData"`
	WalletID string                 `json:"walletId"`
}

func (s *HTTPServer) uploadVoteHandler(w http.ResponseWriter, r *http.Request) {
	var req uploadVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.chains.UploadVote(r.Context(), req.VoteData, req.WalletID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

// Vote Handlers

func (s *HTTPServer) castVoteHandler(w http.ResponseWriter, r *http.Request) {
	var req votes.CastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.votes.CastVote(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) voteRecordsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.votes.Records(r.Context(), r.URL.Query().Get("coin"), queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   len(records),
	})
}

func (s *HTTPServer) listPendingHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := s.votes.List(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pendingVotes": pending,
		"total":        len(pending),
	})
}

type pendingVoteRequest struct {
	ProposalID  string              `json:"proposalId"`
	Vote        models.ProposalVote `json:"vote"`
	UserAddress string              `json:"userAddress"`
	Version     int64               `json:"version"`
}

func (s *HTTPServer) addPendingHandler(w http.ResponseWriter, r *http.Request) {
	var req pendingVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	vote, err := s.votes.Add(r.Context(), req.ProposalID, req.Vote, req.UserAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, vote)
}

func (s *HTTPServer) updatePendingHandler(w http.ResponseWriter, r *http.Request) {
	var req pendingVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	vars := mux.Vars(r)
	vote := &models.PendingVote{
		ProposalID:  vars["proposalId"],
		UserAddress: vars["user"],
		Vote:        req.Vote,
	}
	if err := s.votes.Update(r.Context(), vote, req.Version); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vote)
}

func (s *HTTPServer) removePendingHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.votes.Remove(r.Context(), vars["proposalId"], vars["user"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) submitPendingHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.votes.Submit(r.Context(), vars["proposalId"], vars["user"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// Proposal Handlers

func (s *HTTPServer) proposalCountHandler(w http.ResponseWriter, r *http.Request) {
	if s.proposals == nil {
		s.writeError(w, notConfigured("Proposal voting"))
		return
	}
	count, err := s.proposals.GetVoteCount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, count)
}

func (s *HTTPServer) proposalVotedHandler(w http.ResponseWriter, r *http.Request) {
	if s.proposals == nil {
		s.writeError(w, notConfigured("Proposal voting"))
		return
	}
	vars := mux.Vars(r)
	voted, err := s.proposals.HasVoted(r.Context(), vars["id"], vars["address"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposalId": vars["id"],
		"address":    utils.NormalizeAddress(vars["address"]),
		"hasVoted":   voted,
	})
}

func (s *HTTPServer) receiptCountHandler(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		s.writeError(w, notConfigured("Receipt lookups"))
		return
	}
	count, err := s.receipts.GetVoteCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (s *HTTPServer) receiptHandler(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		s.writeError(w, notConfigured("Receipt lookups"))
		return
	}
	raw := mux.Vars(r)["index"]
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Receipt index must be a non-negative integer", raw))
		return
	}
	vote, err := s.receipts.GetVote(r.Context(), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vote)
}

func (s *HTTPServer) walletHandler(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		s.writeError(w, notConfigured("Wallet lookups"))
		return
	}
	status, err := s.wallet.Status(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) auditHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries, err := s.votes.AuditTrail(r.Context(), models.AuditFilter{
		User:   query.Get("user"),
		Action: models.AuditAction(query.Get("action")),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

func notConfigured(feature string) error {
	return utils.NewAppError(utils.ErrCodeConfiguration, feature+" is not configured")
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
