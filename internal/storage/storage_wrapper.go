package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		table,
		status,
		time.Since(start),
	)
}

// SaveChain saves a chain record and records metrics
func (s *StorageWithMetrics) SaveChain(ctx context.Context, chain *models.ChainData) error {
	start := time.Now()
	err := s.Storage.SaveChain(ctx, chain)
	s.record("upsert", "chains", start, err)
	return err
}

// GetChainsByDecision lists a bucket and records metrics
func (s *StorageWithMetrics) GetChainsByDecision(ctx context.Context, decision models.Decision, limit int) ([]*models.ChainData, error) {
	start := time.Now()
	chains, err := s.Storage.GetChainsByDecision(ctx, decision, limit)
	s.record("select", "chains", start, err)
	return chains, err
}

// RefreshCategoryIndex updates a bucket index row and publishes the bucket size
func (s *StorageWithMetrics) RefreshCategoryIndex(ctx context.Context, decision models.Decision, lastCID string) (*models.CategoryIndex, error) {
	start := time.Now()
	index, err := s.Storage.RefreshCategoryIndex(ctx, decision, lastCID)
	s.record("upsert", "category_index", start, err)
	if err == nil && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().UpdateChainsByDecision(string(index.Category), index.Count)
	}
	return index, err
}

// UpsertPendingVote queues a vote and records metrics
func (s *StorageWithMetrics) UpsertPendingVote(ctx context.Context, vote *models.PendingVote) error {
	start := time.Now()
	err := s.Storage.UpsertPendingVote(ctx, vote)
	s.record("upsert", "pending_votes", start, err)
	s.refreshPending(ctx, err)
	return err
}

// UpdatePendingVote updates a queued vote and counts version conflicts
func (s *StorageWithMetrics) UpdatePendingVote(ctx context.Context, vote *models.PendingVote, expectedVersion int64) error {
	start := time.Now()
	err := s.Storage.UpdatePendingVote(ctx, vote, expectedVersion)
	s.record("update", "pending_votes", start, err)
	if errors.Is(err, ErrVersionConflict) && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordVersionConflict()
	}
	return err
}

// DeletePendingVote removes a queued vote and records metrics
func (s *StorageWithMetrics) DeletePendingVote(ctx context.Context, proposalID, userAddress string) error {
	start := time.Now()
	err := s.Storage.DeletePendingVote(ctx, proposalID, userAddress)
	s.record("delete", "pending_votes", start, err)
	s.refreshPending(ctx, err)
	return err
}

func (s *StorageWithMetrics) refreshPending(ctx context.Context, err error) {
	if err != nil || s.metricsManager == nil {
		return
	}
	if count, err := s.Storage.CountPendingVotes(ctx); err == nil {
		s.metricsManager.GetPrometheusMetrics().UpdatePendingVotes(int(count))
	}
}

// SaveVoteRecord stores a receipt and records metrics
func (s *StorageWithMetrics) SaveVoteRecord(ctx context.Context, record *models.VoteRecord) error {
	start := time.Now()
	err := s.Storage.SaveVoteRecord(ctx, record)
	s.record("insert", "vote_records", start, err)
	return err
}

// SaveAuditEntry appends to the audit trail and records metrics
func (s *StorageWithMetrics) SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	start := time.Now()
	err := s.Storage.SaveAuditEntry(ctx, entry)
	s.record("insert", "audit_log", start, err)
	return err
}

// SaveBlob stores content and records metrics
func (s *StorageWithMetrics) SaveBlob(ctx context.Context, cid string, data []byte) error {
	start := time.Now()
	err := s.Storage.SaveBlob(ctx, cid, data)
	s.record("insert", "blobs", start, err)
	return err
}
