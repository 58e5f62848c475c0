// File: internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smartdevs17/fil-e-rug/internal/models"
)

// ErrVersionConflict is returned when a pending vote was changed since it was read
var ErrVersionConflict = errors.New("pending vote version conflict")

// Storage defines the durable index behind chain records and votes
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Chain records
	SaveChain(ctx context.Context, chain *models.ChainData) error
	GetChain(ctx context.Context, id string) (*models.ChainData, error)
	GetChainsByDecision(ctx context.Context, decision models.Decision, limit int) ([]*models.ChainData, error)
	CountChainsByDecision(ctx context.Context, decision models.Decision) (int64, error)

	// Category index
	RefreshCategoryIndex(ctx context.Context, decision models.Decision, lastCID string) (*models.CategoryIndex, error)
	GetCategoryIndexes(ctx context.Context) ([]*models.CategoryIndex, error)

	// Pending vote queue
	UpsertPendingVote(ctx context.Context, vote *models.PendingVote) error
	UpdatePendingVote(ctx context.Context, vote *models.PendingVote, expectedVersion int64) error
	GetPendingVote(ctx context.Context, proposalID, userAddress string) (*models.PendingVote, error)
	ListPendingVotes(ctx context.Context, userAddress string) ([]*models.PendingVote, error)
	ListProposalVotes(ctx context.Context, proposalID string) ([]*models.PendingVote, error)
	DeletePendingVote(ctx context.Context, proposalID, userAddress string) error
	CountPendingVotes(ctx context.Context) (int64, error)

	// Vote receipts
	SaveVoteRecord(ctx context.Context, record *models.VoteRecord) error
	GetVoteRecords(ctx context.Context, coinID string, limit int) ([]*models.VoteRecord, error)

	// Audit trail
	SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	GetAuditEntries(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error)

	// Content blobs held by the local provider
	SaveBlob(ctx context.Context, cid string, data []byte) error
	GetBlob(ctx context.Context, cid string) ([]byte, error)

	// Monitor progress
	GetMonitorState(ctx context.Context, name string) (nextBlock uint64, found bool, err error)
	SaveMonitorState(ctx context.Context, name string, nextBlock uint64) error

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides row counts per table
type StorageStats struct {
	TotalChains       int64                     `json:"total_chains"`
	ChainsByDecision  map[models.Decision]int64 `json:"chains_by_decision"`
	TotalPendingVotes int64                     `json:"total_pending_votes"`
	TotalVoteRecords  int64                     `json:"total_vote_records"`
	TotalAuditEntries int64                     `json:"total_audit_entries"`
	LatestChainAt     *time.Time                `json:"latest_chain_at,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	DefaultLimit     int           `json:"default_limit"`
}
