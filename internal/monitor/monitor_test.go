package monitor

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
)

var voteStored = func() abi.Event {
	parsed, err := abi.JSON(strings.NewReader(governance.VoteStorageABI))
	if err != nil {
		panic(err)
	}
	return parsed.Events["VoteStored"]
}()

type fakeSource struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	err     error
}

func (f *fakeSource) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func voteLog(t *testing.T, block uint64, cid string, voter common.Address) types.Log {
	t.Helper()
	data, err := voteStored.Inputs.NonIndexed().Pack(cid, big.NewInt(1700000000))
	require.NoError(t, err)
	return types.Log{
		Address:     common.HexToAddress(governance.DefaultVoteStorageAddress),
		Topics:      []common.Hash{voteStored.ID, common.BytesToHash(voter.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

func openStore(t *testing.T, path string) storage.Storage {
	t.Helper()
	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: path,
		MaxConnections:   4,
	})
	require.NoError(t, err)
	return store
}

func newTestMonitor(t *testing.T, src *fakeSource, cfg MonitorConfig) (*ReceiptMonitor, storage.Storage) {
	t.Helper()
	store := openStore(t, filepath.Join(t.TempDir(), "monitor.db"))
	t.Cleanup(func() { store.Close() })

	rm, err := NewReceiptMonitor(func(ctx context.Context) (LogSource, error) { return src, nil }, store, nil, nil, cfg)
	require.NoError(t, err)
	return rm, store
}

func TestPollIndexesReceipts(t *testing.T) {
	voter := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	src := &fakeSource{head: 120}
	src.logs = []types.Log{
		voteLog(t, 101, "bafkreione", voter),
		voteLog(t, 110, "bafkreitwo", voter),
		{BlockNumber: 105, Topics: []common.Hash{common.HexToHash("0x01")}},
	}

	rm, store := newTestMonitor(t, src, MonitorConfig{StartBlock: 100, BatchSize: 50, ConfirmationBlocks: 5})
	ctx := context.Background()

	result, err := rm.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, uint64(100), result.FromBlock)
	assert.Equal(t, uint64(115), result.ToBlock)
	require.Len(t, result.Receipts, 2)
	assert.Equal(t, "bafkreione", result.Receipts[0].CID)

	entries, err := store.GetAuditEntries(ctx, models.AuditFilter{Action: models.AuditReceiptIndexed})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", e.User)
	}

	// Nothing new until the head moves
	result, err = rm.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, result)

	stats := rm.GetStats()
	assert.Equal(t, uint64(115), stats.LatestProcessedBlock)
	assert.Equal(t, uint64(2), stats.TotalReceiptsIndexed)
}

func TestPollRespectsBatchSize(t *testing.T) {
	src := &fakeSource{head: 1000}
	rm, _ := newTestMonitor(t, src, MonitorConfig{StartBlock: 1, BatchSize: 10})

	result, err := rm.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.FromBlock)
	assert.Equal(t, uint64(10), result.ToBlock)

	result, err = rm.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(11), result.FromBlock)
}

func TestPollWithoutStartBlockBeginsNearHead(t *testing.T) {
	src := &fakeSource{head: 1000}
	rm, _ := newTestMonitor(t, src, MonitorConfig{BatchSize: 100})

	result, err := rm.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(901), result.FromBlock)
	assert.Equal(t, uint64(1000), result.ToBlock)
}

func TestPollErrorIsRecorded(t *testing.T) {
	src := &fakeSource{head: 50, err: errors.New("rpc down")}
	rm, _ := newTestMonitor(t, src, MonitorConfig{StartBlock: 1})

	_, err := rm.Poll(context.Background())
	require.Error(t, err)

	stats := rm.GetStats()
	assert.Equal(t, uint64(1), stats.ErrorCount)
	require.NotNil(t, stats.LastError)

	// The failed range is retried on the next poll
	src.err = nil
	result, err := rm.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.FromBlock)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{head: 10}
	rm, _ := newTestMonitor(t, src, MonitorConfig{StartBlock: 1})

	require.NoError(t, rm.Start(context.Background()))
	assert.True(t, rm.IsRunning())
	assert.Error(t, rm.Start(context.Background()))

	require.NoError(t, rm.Stop())
	assert.False(t, rm.IsRunning())
	require.NoError(t, rm.Stop())
}

func TestNewReceiptMonitorRejectsBadAddress(t *testing.T) {
	_, err := NewReceiptMonitor(nil, nil, nil, nil, MonitorConfig{Contract: "0xnope"})
	assert.Error(t, err)
}

func TestPollResumesAfterRestart(t *testing.T) {
	voter := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	src := &fakeSource{head: 120, logs: []types.Log{voteLog(t, 101, "bafkreione", voter)}}
	source := func(ctx context.Context) (LogSource, error) { return src, nil }
	cfg := MonitorConfig{StartBlock: 100, BatchSize: 50, ConfirmationBlocks: 5}
	path := filepath.Join(t.TempDir(), "monitor.db")
	ctx := context.Background()

	store := openStore(t, path)
	first, err := NewReceiptMonitor(source, store, nil, nil, cfg)
	require.NoError(t, err)
	result, err := first.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, result.Receipts, 1)
	require.NoError(t, store.Close())

	store = openStore(t, path)
	t.Cleanup(func() { store.Close() })
	second, err := NewReceiptMonitor(source, store, nil, nil, cfg)
	require.NoError(t, err)

	// Same head: the stored position is already past the confirmed block
	result, err = second.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, result)

	src.head = 130
	result, err = second.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, uint64(116), result.FromBlock)
	assert.Empty(t, result.Receipts)

	entries, err := store.GetAuditEntries(ctx, models.AuditFilter{Action: models.AuditReceiptIndexed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].LogIndex)
	assert.Equal(t, "bafkreione", entries[0].CID)

	next, found, err := store.GetMonitorState(ctx, second.stateKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(126), next)
}

func TestProcessRangeIsIdempotent(t *testing.T) {
	voter := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	first := voteLog(t, 101, "bafkreione", voter)
	second := voteLog(t, 101, "bafkreitwo", voter)
	second.Index = 1
	src := &fakeSource{head: 200, logs: []types.Log{first, second}}
	rm, store := newTestMonitor(t, src, MonitorConfig{StartBlock: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := rm.ProcessRange(ctx, src, 100, 110)
		require.NoError(t, err)
		assert.Len(t, result.Receipts, 2)
	}

	entries, err := store.GetAuditEntries(ctx, models.AuditFilter{Action: models.AuditReceiptIndexed})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
