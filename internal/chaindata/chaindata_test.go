package chaindata

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		results models.VoteResults
		want    models.Decision
	}{
		{"mostly rug", models.VoteResults{RugVotes: 70, NoRugVotes: 30, TotalVotes: 100}, models.DecisionRugged},
		{"mostly safe", models.VoteResults{RugVotes: 20, NoRugVotes: 80, TotalVotes: 100}, models.DecisionSafe},
		{"split", models.VoteResults{RugVotes: 45, NoRugVotes: 55, TotalVotes: 100}, models.DecisionPending},
		{"rug at threshold", models.VoteResults{RugVotes: 60, NoRugVotes: 40, TotalVotes: 100}, models.DecisionRugged},
		{"safe at threshold", models.VoteResults{RugVotes: 40, NoRugVotes: 60, TotalVotes: 100}, models.DecisionSafe},
		{"no votes", models.VoteResults{}, models.DecisionPending},
		{"negative total", models.VoteResults{RugVotes: 5, TotalVotes: -1}, models.DecisionPending},
		{"inconsistent counters prefer rug", models.VoteResults{RugVotes: 70, NoRugVotes: 70, TotalVotes: 100}, models.DecisionRugged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.results))
		})
	}
}

func TestClassifyExhaustive(t *testing.T) {
	for total := int64(1); total <= 40; total++ {
		for rug := int64(0); rug <= total; rug++ {
			noRug := total - rug
			got := Classify(models.VoteResults{RugVotes: rug, NoRugVotes: noRug, TotalVotes: total})

			rugShare := float64(rug) / float64(total)
			safeShare := float64(noRug) / float64(total)
			switch {
			case rugShare >= 0.6:
				assert.Equal(t, models.DecisionRugged, got, "rug=%d total=%d", rug, total)
			case safeShare >= 0.6:
				assert.Equal(t, models.DecisionSafe, got, "rug=%d total=%d", rug, total)
			default:
				assert.Equal(t, models.DecisionPending, got, "rug=%d total=%d", rug, total)
			}
		}
	}
}

func TestHashers(t *testing.T) {
	data := []byte(`{"id":"DEMO-001"}`)

	sha := SHA256Hasher{}
	assert.Equal(t, sha.Hash(data), sha.Hash(data))
	assert.Len(t, sha.Hash(data), 64)

	rolling := RollingHasher{}
	assert.Equal(t, "0", rolling.Hash(nil))
	assert.Equal(t, "61", rolling.Hash([]byte("a")))
	assert.Equal(t, "c21", rolling.Hash([]byte("ab")))
	assert.Equal(t, rolling.Hash(data), rolling.Hash(data))

	// long inputs wrap into negative 32-bit values
	long := rolling.Hash([]byte(strings.Repeat("fil-e-rug", 20)))
	assert.NotEmpty(t, long)

	_, err := NewHasher("md5")
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}

func TestRollingHashMatchesSignedHex(t *testing.T) {
	// "hello world" overflows into a negative value in 32-bit arithmetic
	var h int32
	for _, c := range "hello world" {
		h = h*31 + c
	}
	got := RollingHasher{}.Hash([]byte("hello world"))
	assert.Equal(t, strconv.FormatInt(int64(h), 16), got)
	assert.Equal(t, h < 0, strings.HasPrefix(got, "-"))
}

func TestHashRecordIgnoresProof(t *testing.T) {
	chain := DemoChains(time.UnixMilli(1700000000000))[0]
	without, err := HashRecord(SHA256Hasher{}, chain)
	require.NoError(t, err)

	chain.StorageProof = &models.StorageProof{CID: "bafy", Hash: "x", Timestamp: 1}
	with, err := HashRecord(SHA256Hasher{}, chain)
	require.NoError(t, err)
	assert.Equal(t, without, with)
}

func TestFormatTotalStorage(t *testing.T) {
	assert.Equal(t, "0 KB", FormatTotalStorage(0))
	assert.Equal(t, "5 KB", FormatTotalStorage(2))
	assert.Equal(t, "7.5 KB", FormatTotalStorage(3))
}

type capturePublisher struct {
	mu   sync.Mutex
	seen []*models.Notification
}

func (c *capturePublisher) Publish(n *models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, n)
}

func newTestService(t *testing.T, hasher Hasher) (*Service, *provider.LocalProvider, *capturePublisher) {
	t.Helper()

	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "chains.db"),
		MaxConnections:   4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	local := provider.NewLocalProvider()
	pub := &capturePublisher{}
	return NewService(store, local, Options{Hasher: hasher, Publisher: pub}), local, pub
}

func TestStoreChainData(t *testing.T) {
	ctx := context.Background()
	svc, local, pub := newTestService(t, SHA256Hasher{})

	chain := DemoChains(time.Now())[0]
	chain.FinalDecision = models.DecisionSafe // overwritten by classification

	result, err := svc.StoreChainData(ctx, chain)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.CID)
	assert.NotEmpty(t, result.Hash)
	assert.NoError(t, provider.ValidateCID(result.CID))

	stored, err := svc.GetChain(ctx, chain.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRugged, stored.FinalDecision)
	require.NotNil(t, stored.StorageProof)
	assert.Equal(t, result.CID, stored.StorageProof.CID)
	assert.Equal(t, result.Hash, stored.StorageProof.Hash)

	// the uploaded document carries the proof skeleton without a CID
	raw, err := local.Fetch(ctx, result.CID)
	require.NoError(t, err)
	var doc models.ChainData
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "", doc.StorageProof.CID)
	assert.Equal(t, result.Hash, doc.StorageProof.Hash)

	rugged, err := svc.GetChainsByCategory(ctx, models.DecisionRugged, 0)
	require.NoError(t, err)
	require.Len(t, rugged, 1)
	assert.Equal(t, chain.ID, rugged[0].ID)

	require.Len(t, pub.seen, 1)
	assert.Equal(t, models.VariantDefault, pub.seen[0].Variant)
}

func TestStoreChainDataValidation(t *testing.T) {
	svc, _, pub := newTestService(t, SHA256Hasher{})

	result, err := svc.StoreChainData(context.Background(), models.ChainData{Name: "no id"})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Chain id is required", result.Error)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	require.Len(t, pub.seen, 1)
	assert.Equal(t, models.VariantDestructive, pub.seen[0].Variant)
}

type failingProvider struct{ provider.Provider }

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Upload(context.Context, string, []byte) (*provider.UploadResult, error) {
	return nil, errors.New("upload refused")
}

func TestStoreChainDataUploadFailure(t *testing.T) {
	svc, _, _ := newTestService(t, SHA256Hasher{})
	svc.provider = failingProvider{}

	result, err := svc.StoreChainData(context.Background(), DemoChains(time.Now())[1])
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "upload refused", result.Error)

	stats := svc.GetStorageStats(context.Background())
	assert.Equal(t, int64(0), stats.SafeCount)
}

func TestVerifyStorageProof(t *testing.T) {
	for _, hasher := range []Hasher{SHA256Hasher{}, RollingHasher{}} {
		t.Run(hasher.Name(), func(t *testing.T) {
			ctx := context.Background()
			svc, local, _ := newTestService(t, hasher)

			_, err := svc.StoreChainData(ctx, DemoChains(time.Now())[1])
			require.NoError(t, err)

			stored, err := svc.GetChain(ctx, "DEMO-002")
			require.NoError(t, err)
			assert.True(t, svc.VerifyStorageProof(ctx, *stored))

			tampered := *stored
			proof := *stored.StorageProof
			proof.Hash = "deadbeef"
			tampered.StorageProof = &proof
			assert.False(t, svc.VerifyStorageProof(ctx, tampered))

			assert.False(t, svc.VerifyStorageProof(ctx, stored.WithoutProof()))

			other, err := local.Upload(ctx, "other", []byte(`{"id":"OTHER"}`))
			require.NoError(t, err)
			foreign := *stored
			foreign.StorageProof = &models.StorageProof{CID: other.CID, Hash: proof.Hash}
			assert.False(t, svc.VerifyStorageProof(ctx, foreign))

			missing := *stored
			missing.StorageProof = &models.StorageProof{CID: "bafkqaaa", Hash: proof.Hash}
			assert.False(t, svc.VerifyStorageProof(ctx, missing))
		})
	}
}

func TestGetStorageStatsAndSeedDemo(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t, SHA256Hasher{})

	stats := svc.GetStorageStats(ctx)
	assert.Equal(t, models.StorageStats{TotalStorage: "0 KB"}, stats)

	seeded, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)
	assert.Empty(t, pub.seen)

	stats = svc.GetStorageStats(ctx)
	assert.Equal(t, int64(1), stats.RuggedCount)
	assert.Equal(t, int64(1), stats.SafeCount)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, "5 KB", stats.TotalStorage)

	again, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestUploadTextAndVote(t *testing.T) {
	ctx := context.Background()
	svc, local, _ := newTestService(t, SHA256Hasher{})
	fixed := time.UnixMilli(1700000000000)
	svc.now = func() time.Time { return fixed }

	result, err := svc.UploadText(ctx, "hello", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "5", result.Size)

	vote, err := svc.UploadVote(ctx, map[string]interface{}{"vote": "rug", "timestamp": 1}, "")
	require.NoError(t, err)

	raw, err := local.Fetch(ctx, vote.CID)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "rug", doc["vote"])
	assert.Equal(t, "anonymous", doc["walletId"])
	assert.Equal(t, float64(1700000000000), doc["timestamp"])
}

func TestStoreChainDataMovesBucket(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, SHA256Hasher{})

	chain := DemoChains(time.Now())[0]
	chain.VoteResults = models.VoteResults{RugVotes: 45, NoRugVotes: 55, TotalVotes: 100}
	first, err := svc.StoreChainData(ctx, chain)
	require.NoError(t, err)

	chain.VoteResults = models.VoteResults{RugVotes: 70, NoRugVotes: 30, TotalVotes: 100}
	second, err := svc.StoreChainData(ctx, chain)
	require.NoError(t, err)

	indexes, err := svc.store.GetCategoryIndexes(ctx)
	require.NoError(t, err)
	byDecision := map[models.Decision]*models.CategoryIndex{}
	for _, index := range indexes {
		byDecision[index.Category] = index
	}

	require.Contains(t, byDecision, models.DecisionPending)
	assert.Equal(t, int64(0), byDecision[models.DecisionPending].Count)
	assert.Equal(t, first.CID, byDecision[models.DecisionPending].LastCID)

	require.Contains(t, byDecision, models.DecisionRugged)
	assert.Equal(t, int64(1), byDecision[models.DecisionRugged].Count)
	assert.Equal(t, second.CID, byDecision[models.DecisionRugged].LastCID)

	stats := svc.GetStorageStats(ctx)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(1), stats.RuggedCount)
}

func TestVerifyStorageProofAfterRestart(t *testing.T) {
	ctx := context.Background()
	cfg := &config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "restart.db"),
		MaxConnections:   4,
	}

	store, err := storage.Open(cfg)
	require.NoError(t, err)
	svc := NewService(store, provider.NewPersistentLocalProvider(store), Options{})
	seeded, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, seeded)
	require.NoError(t, store.Close())

	reopened, err := storage.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	restarted := NewService(reopened, provider.NewPersistentLocalProvider(reopened), Options{})

	again, err := restarted.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	for _, id := range []string{"DEMO-001", "DEMO-002"} {
		stored, err := restarted.GetChain(ctx, id)
		require.NoError(t, err)
		assert.True(t, restarted.VerifyStorageProof(ctx, *stored), id)
	}
}

type brokenCountStore struct{ storage.Storage }

func (brokenCountStore) CountChainsByDecision(context.Context, models.Decision) (int64, error) {
	return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count chains", "disk I/O error")
}

func TestSeedDemoReportsStoreErrors(t *testing.T) {
	svc, local, _ := newTestService(t, SHA256Hasher{})
	svc.store = brokenCountStore{svc.store}

	seeded, err := svc.SeedDemo(context.Background())
	assert.True(t, utils.IsCode(err, utils.ErrCodeDatabase))
	assert.Equal(t, 0, seeded)
	assert.Equal(t, 0, local.Len())
}

type badCIDProvider struct{ provider.Provider }

func (badCIDProvider) Name() string { return "bad-cid" }

func (badCIDProvider) Upload(_ context.Context, name string, data []byte) (*provider.UploadResult, error) {
	return &provider.UploadResult{Name: name, CID: "not-a-cid", Size: int64(len(data))}, nil
}

func TestCIDValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, SHA256Hasher{})

	chain := DemoChains(time.Now())[1]
	_, err := svc.StoreChainData(ctx, chain)
	require.NoError(t, err)
	stored, err := svc.GetChain(ctx, chain.ID)
	require.NoError(t, err)

	invalid := *stored
	invalid.StorageProof = &models.StorageProof{CID: "not-a-cid", Hash: stored.StorageProof.Hash}
	assert.False(t, svc.VerifyStorageProof(ctx, invalid))

	svc.provider = badCIDProvider{}
	chain.ID = "DEMO-BAD"
	result, err := svc.StoreChainData(ctx, chain)
	assert.True(t, utils.IsCode(err, utils.ErrCodeProvider))
	assert.False(t, result.Success)

	_, err = svc.GetChain(ctx, "DEMO-BAD")
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}
