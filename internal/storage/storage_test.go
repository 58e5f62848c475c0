package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

func newSQLiteStore(t *testing.T) Storage {
	t.Helper()

	store, err := Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "filerug.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleChain(id string, decision models.Decision) *models.ChainData {
	return &models.ChainData{
		ID:            id,
		Name:          "Chain " + id,
		Blockchain:    "Ethereum",
		RiskFactors:   []string{"Anonymous team", "Unlocked liquidity"},
		VoteResults:   models.VoteResults{RugVotes: 70, NoRugVotes: 30, TotalVotes: 100},
		FinalDecision: decision,
		Timestamp:     time.Now().UnixMilli(),
		Metadata: models.ChainMetadata{
			Description: "test record",
			Category:    "DeFi",
			TimeLeft:    "2 days",
		},
	}
}

func TestSQLiteStorage(t *testing.T) {
	runStoreSuite(t, newSQLiteStore(t))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Migrate())
}

func runStoreSuite(t *testing.T, store Storage) {
	ctx := context.Background()

	t.Run("chains round trip", func(t *testing.T) {
		chain := sampleChain("CHAIN-1", models.DecisionRugged)
		chain.StorageProof = &models.StorageProof{CID: "bafkqaaa", Timestamp: 42, Hash: "abc"}
		require.NoError(t, store.SaveChain(ctx, chain))

		got, err := store.GetChain(ctx, "CHAIN-1")
		require.NoError(t, err)
		assert.Equal(t, chain, got)

		_, err = store.GetChain(ctx, "missing")
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})

	t.Run("chains by decision newest first", func(t *testing.T) {
		require.NoError(t, store.SaveChain(ctx, sampleChain("SAFE-1", models.DecisionSafe)))
		require.NoError(t, store.SaveChain(ctx, sampleChain("SAFE-2", models.DecisionSafe)))

		chains, err := store.GetChainsByDecision(ctx, models.DecisionSafe, 10)
		require.NoError(t, err)
		require.Len(t, chains, 2)
		assert.Equal(t, "SAFE-2", chains[0].ID)
		assert.Nil(t, chains[0].StorageProof)

		empty, err := store.GetChainsByDecision(ctx, models.DecisionPending, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("category index", func(t *testing.T) {
		index, err := store.RefreshCategoryIndex(ctx, models.DecisionSafe, "bafkqbbb")
		require.NoError(t, err)
		assert.Equal(t, int64(2), index.Count)
		assert.Equal(t, "safe-chains", index.Key)

		indexes, err := store.GetCategoryIndexes(ctx)
		require.NoError(t, err)
		require.Len(t, indexes, 1)
		assert.Equal(t, "bafkqbbb", indexes[0].LastCID)
	})

	t.Run("pending votes", func(t *testing.T) {
		vote := &models.PendingVote{ProposalID: "P-1", Vote: models.ProposalVoteRug, UserAddress: "0xaaa", Timestamp: 1}
		require.NoError(t, store.UpsertPendingVote(ctx, vote))
		assert.Equal(t, int64(1), vote.Version)

		replaced := &models.PendingVote{ProposalID: "P-1", Vote: models.ProposalVoteNoRug, UserAddress: "0xaaa", Timestamp: 2}
		require.NoError(t, store.UpsertPendingVote(ctx, replaced))
		assert.Equal(t, int64(2), replaced.Version)

		count, err := store.CountPendingVotes(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		stale := &models.PendingVote{ProposalID: "P-1", Vote: models.ProposalVoteRug, UserAddress: "0xaaa", Timestamp: 3}
		err = store.UpdatePendingVote(ctx, stale, 1)
		assert.True(t, errors.Is(err, ErrVersionConflict))

		require.NoError(t, store.UpdatePendingVote(ctx, stale, 2))
		assert.Equal(t, int64(3), stale.Version)

		got, err := store.GetPendingVote(ctx, "P-1", "0xaaa")
		require.NoError(t, err)
		assert.Equal(t, models.ProposalVoteRug, got.Vote)

		require.NoError(t, store.UpsertPendingVote(ctx,
			&models.PendingVote{ProposalID: "P-2", Vote: models.ProposalVoteRug, UserAddress: "0xbbb", Timestamp: 4}))

		mine, err := store.ListPendingVotes(ctx, "0xaaa")
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		all, err := store.ListPendingVotes(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, store.DeletePendingVote(ctx, "P-1", "0xaaa"))
		err = store.DeletePendingVote(ctx, "P-1", "0xaaa")
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

		err = store.UpdatePendingVote(ctx, stale, 3)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})

	t.Run("vote records", func(t *testing.T) {
		record := &models.VoteRecord{
			VoteReceipt: models.VoteReceipt{
				CoinID: "pepe", CoinSymbol: "PEPE", CoinName: "Pepe", Voter: "0xaaa",
				Vote: models.CoinVoteRug, Confidence: 7, Reasoning: "honeypot", Timestamp: 10,
				MarketData: models.MarketData{Price: 0.0001, MarketCap: 1000},
			},
			CID:      "bafkqccc",
			Provider: "local",
		}
		require.NoError(t, store.SaveVoteRecord(ctx, record))
		assert.NotEmpty(t, record.ID)

		require.NoError(t, store.SaveVoteRecord(ctx, &models.VoteRecord{
			VoteReceipt: models.VoteReceipt{CoinID: "doge", Voter: "0xbbb", Vote: models.CoinVoteSafe, Confidence: 5, Timestamp: 11},
			CID:         "bafkqddd",
			Provider:    "local",
		}))

		records, err := store.GetVoteRecords(ctx, "pepe", 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, record, records[0])

		all, err := store.GetVoteRecords(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "doge", all[0].CoinID)
	})

	t.Run("audit log", func(t *testing.T) {
		require.NoError(t, store.SaveAuditEntry(ctx, &models.AuditEntry{
			Action: models.AuditVoteCast, User: "0xaaa", Timestamp: 1,
			Details: map[string]interface{}{"coin": "pepe"}, CID: "bafkqccc",
		}))
		require.NoError(t, store.SaveAuditEntry(ctx, &models.AuditEntry{
			Action: models.AuditVoteSubmitted, User: "0xaaa", Timestamp: 2,
			BlockNumber: 99, TransactionHash: "0xdead",
		}))

		entries, err := store.GetAuditEntries(ctx, models.AuditFilter{User: "0xaaa"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.AuditVoteSubmitted, entries[0].Action)
		assert.Equal(t, uint64(99), entries[0].BlockNumber)

		cast, err := store.GetAuditEntries(ctx, models.AuditFilter{Action: models.AuditVoteCast, Limit: 1})
		require.NoError(t, err)
		require.Len(t, cast, 1)
		assert.Equal(t, "pepe", cast[0].Details["coin"])
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.GetStorageStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalChains)
		assert.Equal(t, int64(1), stats.ChainsByDecision[models.DecisionRugged])
		assert.Equal(t, int64(2), stats.ChainsByDecision[models.DecisionSafe])
		assert.Equal(t, int64(2), stats.TotalVoteRecords)
		assert.Equal(t, int64(2), stats.TotalAuditEntries)
		assert.NotNil(t, stats.LatestChainAt)
	})

	t.Run("recount keeps last cid", func(t *testing.T) {
		index, err := store.RefreshCategoryIndex(ctx, models.DecisionSafe, "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), index.Count)
		assert.Equal(t, "bafkqbbb", index.LastCID)

		empty, err := store.RefreshCategoryIndex(ctx, models.DecisionPending, "")
		require.NoError(t, err)
		assert.Equal(t, int64(0), empty.Count)
		assert.Empty(t, empty.LastCID)
	})

	t.Run("proposal votes", func(t *testing.T) {
		require.NoError(t, store.UpsertPendingVote(ctx,
			&models.PendingVote{ProposalID: "P-9", Vote: models.ProposalVoteRug, UserAddress: "0xccc", Timestamp: 5}))

		votes, err := store.ListProposalVotes(ctx, "P-9")
		require.NoError(t, err)
		require.Len(t, votes, 1)
		assert.Equal(t, "0xccc", votes[0].UserAddress)

		none, err := store.ListProposalVotes(ctx, "P-404")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("audit entries at a log position are written once", func(t *testing.T) {
		logIndex := uint(3)
		for i := 0; i < 2; i++ {
			require.NoError(t, store.SaveAuditEntry(ctx, &models.AuditEntry{
				Action: models.AuditReceiptIndexed, User: "0xaaa", CID: "bafkqeee",
				BlockNumber: 120, TransactionHash: "0xbeef", LogIndex: &logIndex,
			}))
		}
		other := uint(4)
		require.NoError(t, store.SaveAuditEntry(ctx, &models.AuditEntry{
			Action: models.AuditReceiptIndexed, User: "0xaaa", CID: "bafkqfff",
			BlockNumber: 120, TransactionHash: "0xbeef", LogIndex: &other,
		}))

		entries, err := store.GetAuditEntries(ctx, models.AuditFilter{Action: models.AuditReceiptIndexed})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.NotNil(t, entries[0].LogIndex)
		assert.ElementsMatch(t, []uint{3, 4}, []uint{*entries[0].LogIndex, *entries[1].LogIndex})
	})

	t.Run("blobs", func(t *testing.T) {
		require.NoError(t, store.SaveBlob(ctx, "bafkqblob", []byte("payload")))
		require.NoError(t, store.SaveBlob(ctx, "bafkqblob", []byte("payload")))

		data, err := store.GetBlob(ctx, "bafkqblob")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)

		_, err = store.GetBlob(ctx, "bafkqmissing")
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})

	t.Run("monitor state", func(t *testing.T) {
		_, found, err := store.GetMonitorState(ctx, "receipts:0xabc")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, store.SaveMonitorState(ctx, "receipts:0xabc", 100))
		require.NoError(t, store.SaveMonitorState(ctx, "receipts:0xabc", 151))

		next, found, err := store.GetMonitorState(ctx, "receipts:0xabc")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(151), next)
	})
}

func TestStorageWithMetrics(t *testing.T) {
	ctx := context.Background()
	manager := metrics.NewManagerWith(prometheus.NewRegistry())
	store := NewStorageWithMetrics(newSQLiteStore(t), manager)
	m := manager.GetPrometheusMetrics()

	require.NoError(t, store.SaveChain(ctx, sampleChain("R-1", models.DecisionRugged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperationsTotal.WithLabelValues("upsert", "chains", "success")))

	_, err := store.RefreshCategoryIndex(ctx, models.DecisionRugged, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChainsByDecision.WithLabelValues("rugged")))

	vote := &models.PendingVote{ProposalID: "P", Vote: models.ProposalVoteRug, UserAddress: "0xaaa", Timestamp: 1}
	require.NoError(t, store.UpsertPendingVote(ctx, vote))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingVotes))

	err = store.UpdatePendingVote(ctx, vote, 7)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionConflicts))
}

func TestValidateStorageConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"sqlite", config.StorageConfig{Type: "sqlite", ConnectionString: "x.db"}, false},
		{"postgres", config.StorageConfig{Type: "postgres", ConnectionString: "postgres://"}, false},
		{"missing type", config.StorageConfig{ConnectionString: "x.db"}, true},
		{"missing dsn", config.StorageConfig{Type: "sqlite"}, true},
		{"unknown", config.StorageConfig{Type: "mysql", ConnectionString: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStorageConfig(&tt.cfg)
			if tt.wantErr {
				assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	s := &sqlStore{}
	assert.Equal(t, "SELECT ?1, ?2, ?1", s.rebind("SELECT $1, $2, $1"))

	s.numbered = true
	assert.Equal(t, "SELECT $1", s.rebind("SELECT $1"))
}
