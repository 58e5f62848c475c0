package votes

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

type fakeProposals struct {
	mu       sync.Mutex
	calls    []bool
	voted    map[string]bool
	err      error
	votedErr error
	blockNo  uint64
}

func (f *fakeProposals) Vote(ctx context.Context, proposalID string, support bool) (*governance.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, support)
	if f.err != nil {
		return nil, f.err
	}
	if f.voted == nil {
		f.voted = map[string]bool{}
	}
	f.voted[proposalID] = true
	return &governance.TxResult{Hash: "0xfeed", BlockNumber: f.blockNo}, nil
}

func (f *fakeProposals) SignerVoted(ctx context.Context, proposalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votedErr != nil {
		return false, f.votedErr
	}
	return f.voted[proposalID], nil
}

type fakeReceipts struct {
	cids []string
	err  error
}

func (f *fakeReceipts) SubmitVote(ctx context.Context, cid string) (*governance.TxResult, *governance.VoteStoredEvent, error) {
	f.cids = append(f.cids, cid)
	if f.err != nil {
		return nil, nil, f.err
	}
	return &governance.TxResult{Hash: "0xbeef", BlockNumber: 12}, nil, nil
}

type fixture struct {
	svc       *Service
	store     storage.Storage
	local     *provider.LocalProvider
	proposals *fakeProposals
	metrics   *metrics.Manager
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "votes.db"),
		MaxConnections:   4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:     store,
		local:     provider.NewLocalProvider(),
		proposals: &fakeProposals{blockNo: 77},
		metrics:   metrics.NewManagerWith(prometheus.NewRegistry()),
	}
	opts := Options{Proposals: f.proposals, Metrics: f.metrics}
	if mutate != nil {
		mutate(&opts)
	}
	f.svc = NewService(store, f.local, opts)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f
}

func TestAddNormalizesAndReplaces(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, strings.ToUpper(alice[2:]))
	require.NoError(t, err)
	assert.Equal(t, alice, first.UserAddress)

	second, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteNoRug, alice)
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	queued, err := f.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, models.ProposalVoteNoRug, queued[0].Vote)
}

func TestAddValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "", models.ProposalVoteRug, alice)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	_, err = f.svc.Add(ctx, "prop-1", models.ProposalVote("maybe"), alice)
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	_, err = f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, "not-an-address")
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
}

func TestAddOneQueuedVotePerProposal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, alice)
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, "prop-1", models.ProposalVoteNoRug, bob)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConflict))
	assert.Contains(t, err.Error(), "another user")

	// The owner of the queued vote can still change it
	_, err = f.svc.Add(ctx, "prop-1", models.ProposalVoteNoRug, alice)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "prop-1", alice)
	require.NoError(t, err)

	// The queue is empty but the service account has voted
	_, err = f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, bob)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConflict))
	assert.Contains(t, err.Error(), "already submitted")

	queued, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Equal(t, []bool{true}, f.proposals.calls)

	// Other proposals are unaffected
	_, err = f.svc.Add(ctx, "prop-2", models.ProposalVoteRug, bob)
	require.NoError(t, err)
}

func TestAddAllowedWhenVoteStatusUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.proposals.votedErr = errors.New("rpc down")

	queued, err := f.svc.Add(context.Background(), "prop-1", models.ProposalVoteRug, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, queued.UserAddress)
}

func TestListAllAndRemove(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, alice)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, "prop-2", models.ProposalVoteNoRug, bob)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, f.svc.Remove(ctx, "prop-1", alice))
	err = f.svc.Remove(ctx, "prop-1", alice)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	all, err = f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateVersionConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	queued, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, alice)
	require.NoError(t, err)
	version := queued.Version

	update := *queued
	update.Vote = models.ProposalVoteNoRug
	require.NoError(t, f.svc.Update(ctx, &update, version))

	stale := *queued
	stale.Vote = models.ProposalVoteRug
	err = f.svc.Update(ctx, &stale, version)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConflict))

	current, err := f.store.GetPendingVote(ctx, "prop-1", alice)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalVoteNoRug, current.Vote)
}

func TestSubmitSuccessDequeuesAndAudits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteNoRug, alice)
	require.NoError(t, err)

	result, err := f.svc.Submit(ctx, "prop-1", alice)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", result.Hash)
	assert.Equal(t, []bool{true}, f.proposals.calls)

	_, err = f.store.GetPendingVote(ctx, "prop-1", alice)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	entries, err := f.svc.AuditTrail(ctx, models.AuditFilter{User: alice, Action: models.AuditVoteSubmitted})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(77), entries[0].BlockNumber)
	assert.Equal(t, "0xfeed", entries[0].TransactionHash)

	submissions := f.metrics.GetPrometheusMetrics().VoteSubmissions
	assert.Equal(t, float64(1), testutil.ToFloat64(submissions.WithLabelValues("success")))
}

func TestSubmitFailureKeepsQueue(t *testing.T) {
	f := newFixture(t, nil)
	f.proposals.err = utils.NewAppError(utils.ErrCodeConflict, "You have already voted on this proposal")
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "prop-1", models.ProposalVoteRug, alice)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "prop-1", alice)
	require.Error(t, err)
	assert.Equal(t, []bool{false}, f.proposals.calls)

	still, err := f.store.GetPendingVote(ctx, "prop-1", alice)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalVoteRug, still.Vote)
}

func TestSubmitMissingVote(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), "prop-9", alice)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	assert.Empty(t, f.proposals.calls)
}

func TestCastVoteStoresReceipt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.CastVote(ctx, CastRequest{
		CoinID:     "pepe",
		CoinSymbol: "PEPE",
		Voter:      alice,
		Vote:       models.CoinVoteRug,
		Reasoning:  "liquidity unlocked",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	assert.Equal(t, 5, result.Record.Confidence)
	assert.Equal(t, "local", result.Record.Provider)
	assert.Nil(t, result.Transaction)

	raw, err := f.local.Fetch(ctx, result.Record.CID)
	require.NoError(t, err)
	var receipt models.VoteReceipt
	require.NoError(t, json.Unmarshal(raw, &receipt))
	assert.Equal(t, "pepe", receipt.CoinID)
	assert.Equal(t, models.CoinVoteRug, receipt.Vote)
	assert.Equal(t, int64(1700000000000), receipt.Timestamp)

	records, err := f.svc.Records(ctx, "pepe", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.Record.CID, records[0].CID)

	entries, err := f.svc.AuditTrail(ctx, models.AuditFilter{Action: models.AuditVoteCast})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.Record.CID, entries[0].CID)
}

func TestCastVoteValidation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxReasoningBytes = 8 })
	ctx := context.Background()

	tests := []struct {
		name string
		req  CastRequest
	}{
		{"missing coin", CastRequest{Voter: alice, Vote: models.CoinVoteSafe}},
		{"bad vote", CastRequest{CoinID: "pepe", Voter: alice, Vote: "moon"}},
		{"bad voter", CastRequest{CoinID: "pepe", Voter: "anon", Vote: models.CoinVoteSafe}},
		{"confidence too high", CastRequest{CoinID: "pepe", Voter: alice, Vote: models.CoinVoteSafe, Confidence: 11}},
		{"confidence negative", CastRequest{CoinID: "pepe", Voter: alice, Vote: models.CoinVoteSafe, Confidence: -1}},
		{"reasoning too long", CastRequest{CoinID: "pepe", Voter: alice, Vote: models.CoinVoteSafe, Reasoning: "far too long"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CastVote(ctx, tt.req)
			assert.True(t, utils.IsCode(err, utils.ErrCodeValidation), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.local.Len())
}

func TestCastVoteAnchorsReceipt(t *testing.T) {
	receipts := &fakeReceipts{}
	f := newFixture(t, func(o *Options) { o.Receipts = receipts })

	result, err := f.svc.CastVote(context.Background(), CastRequest{
		CoinID: "doge", Voter: bob, Vote: models.CoinVoteSafe, Confidence: 9,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, "0xbeef", result.Transaction.Hash)
	assert.Equal(t, []string{result.Record.CID}, receipts.cids)
}

func TestCastVoteAnchorFailureStillStores(t *testing.T) {
	receipts := &fakeReceipts{err: errors.New("insufficient funds")}
	f := newFixture(t, func(o *Options) { o.Receipts = receipts })

	result, err := f.svc.CastVote(context.Background(), CastRequest{
		CoinID: "doge", Voter: bob, Vote: models.CoinVoteNeutral,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Transaction)
	assert.Equal(t, "insufficient funds", result.ChainError)

	records, err := f.svc.Records(context.Background(), "doge", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
