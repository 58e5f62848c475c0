// File: internal/votes/votes.go
package votes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/notification"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// ProposalVoter casts a vote on a governance proposal from the service account
type ProposalVoter interface {
	Vote(ctx context.Context, proposalID string, support bool) (*governance.TxResult, error)
	SignerVoted(ctx context.Context, proposalID string) (bool, error)
}

// ReceiptRecorder anchors a receipt CID on chain
type ReceiptRecorder interface {
	SubmitVote(ctx context.Context, cid string) (*governance.TxResult, *governance.VoteStoredEvent, error)
}

// Options configures the vote service
type Options struct {
	Proposals         ProposalVoter
	Receipts          ReceiptRecorder
	DefaultConfidence int
	MaxReasoningBytes int
	ListLimit         int
	Metrics           *metrics.Manager
	Publisher         notification.Publisher
}

// Service manages the pending vote queue and vote receipts
type Service struct {
	store             storage.Storage
	provider          provider.Provider
	proposals         ProposalVoter
	receipts          ReceiptRecorder
	defaultConfidence int
	maxReasoning      int
	listLimit         int
	metrics           *metrics.Manager
	publisher         notification.Publisher
	logger            *logrus.Entry
	now               func() time.Time
}

// NewService creates a vote service
func NewService(store storage.Storage, p provider.Provider, opts Options) *Service {
	if opts.DefaultConfidence < 1 || opts.DefaultConfidence > 10 {
		opts.DefaultConfidence = 5
	}
	if opts.MaxReasoningBytes <= 0 {
		opts.MaxReasoningBytes = 4096
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if opts.Publisher == nil {
		opts.Publisher = notification.Nop{}
	}
	return &Service{
		store:             store,
		provider:          p,
		proposals:         opts.Proposals,
		receipts:          opts.Receipts,
		defaultConfidence: opts.DefaultConfidence,
		maxReasoning:      opts.MaxReasoningBytes,
		listLimit:         opts.ListLimit,
		metrics:           opts.Metrics,
		publisher:         opts.Publisher,
		logger:            utils.ComponentLogger("votes"),
		now:               time.Now,
	}
}

func normalizeUser(user string) (string, error) {
	user = utils.NormalizeAddress(user)
	if !utils.IsValidAddress(user) {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Invalid user address", user)
	}
	return user, nil
}

// Add queues a vote, replacing any earlier vote by the same user on the proposal.
// Votes are relayed from one service account, so a proposal takes a single
// queued vote and none once the account has voted on it.
func (s *Service) Add(ctx context.Context, proposalID string, vote models.ProposalVote, user string) (*models.PendingVote, error) {
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Proposal ID is required")
	}
	if !vote.Valid() {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Vote must be rug or no-rug", string(vote))
	}
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	if err := s.checkRelayable(ctx, proposalID, user); err != nil {
		return nil, err
	}

	pending := &models.PendingVote{
		ProposalID:  proposalID,
		Vote:        vote,
		UserAddress: user,
		Timestamp:   s.now().UnixMilli(),
	}
	if err := s.store.UpsertPendingVote(ctx, pending); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"proposal_id": proposalID,
		"user":        utils.ShortAddress(user),
		"vote":        vote,
		"version":     pending.Version,
	}).Info("Vote queued")
	return pending, nil
}

func (s *Service) checkRelayable(ctx context.Context, proposalID, user string) error {
	queued, err := s.store.ListProposalVotes(ctx, proposalID)
	if err != nil {
		return err
	}
	for _, q := range queued {
		if q.UserAddress != user {
			return utils.NewAppError(utils.ErrCodeConflict, "Proposal already has a queued vote from another user", proposalID)
		}
	}

	if s.proposals == nil {
		return nil
	}
	voted, err := s.proposals.SignerVoted(ctx, proposalID)
	if err != nil {
		// Submit checks again before sending
		s.logger.WithError(err).WithField("proposal_id", proposalID).Warn("Could not check proposal vote status")
		return nil
	}
	if voted {
		return utils.NewAppError(utils.ErrCodeConflict, "A vote on this proposal was already submitted", proposalID)
	}
	return nil
}

// List returns queued votes, for one user when user is set
func (s *Service) List(ctx context.Context, user string) ([]*models.PendingVote, error) {
	if user != "" {
		var err error
		if user, err = normalizeUser(user); err != nil {
			return nil, err
		}
	}
	return s.store.ListPendingVotes(ctx, user)
}

// Remove drops a queued vote
func (s *Service) Remove(ctx context.Context, proposalID, user string) error {
	user, err := normalizeUser(user)
	if err != nil {
		return err
	}
	return s.store.DeletePendingVote(ctx, proposalID, user)
}

// Update changes a queued vote if it is still at expectedVersion
func (s *Service) Update(ctx context.Context, vote *models.PendingVote, expectedVersion int64) error {
	if !vote.Vote.Valid() {
		return utils.NewAppError(utils.ErrCodeValidation, "Vote must be rug or no-rug", string(vote.Vote))
	}
	user, err := normalizeUser(vote.UserAddress)
	if err != nil {
		return err
	}
	vote.UserAddress = user
	vote.Timestamp = s.now().UnixMilli()

	err = s.store.UpdatePendingVote(ctx, vote, expectedVersion)
	if errors.Is(err, storage.ErrVersionConflict) {
		return utils.NewAppError(utils.ErrCodeConflict, "Pending vote was modified concurrently", vote.ProposalID)
	}
	return err
}

// Submit sends a queued vote to the proposal contract and dequeues it on success
func (s *Service) Submit(ctx context.Context, proposalID, user string) (*governance.TxResult, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	if s.proposals == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Proposal voting is not configured")
	}

	pending, err := s.store.GetPendingVote(ctx, proposalID, user)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"proposal_id": proposalID,
		"user":        utils.ShortAddress(user),
		"vote":        pending.Vote,
	})

	result, err := s.proposals.Vote(ctx, proposalID, pending.Vote.Support())
	if err != nil {
		logger.WithError(err).Error("Failed to submit vote")
		s.recordSubmission("error")
		s.publisher.Publish(notification.NewNotification("Vote Failed",
			fmt.Sprintf("Could not submit vote on %s: %s", proposalID, errorMessage(err)),
			models.VariantDestructive, nil))
		return nil, err
	}
	s.recordSubmission("success")

	if err := s.store.DeletePendingVote(ctx, proposalID, user); err != nil && !utils.IsCode(err, utils.ErrCodeNotFound) {
		logger.WithError(err).Warn("Vote submitted but could not be dequeued")
	}

	s.audit(ctx, &models.AuditEntry{
		Action: models.AuditVoteSubmitted,
		User:   user,
		Details: map[string]interface{}{
			"proposalId": proposalID,
			"vote":       string(pending.Vote),
		},
		BlockNumber:     result.BlockNumber,
		TransactionHash: result.Hash,
	})

	logger.WithField("tx_hash", result.Hash).Info("Vote submitted")
	s.publisher.Publish(notification.NewNotification("Vote Submitted",
		fmt.Sprintf("Your %s vote on %s was recorded on chain", pending.Vote, proposalID),
		models.VariantDefault, map[string]interface{}{"transactionHash": result.Hash}))
	return result, nil
}

// CastRequest is a coin vote to be recorded as a receipt
type CastRequest struct {
	CoinID        string            `json:"coinId"`
	CoinSymbol    string            `json:"coinSymbol"`
	CoinName      string            `json:"coinName"`
	Voter         string            `json:"voter"`
	Vote          models.CoinVote   `json:"vote"`
	Confidence    int               `json:"confidence"`
	Reasoning     string            `json:"reasoning"`
	MarketData    models.MarketData `json:"marketData"`
	ProofContract string            `json:"proofContract"`
}

// CastResult is the stored receipt and, when anchored, its transaction
type CastResult struct {
	Record      *models.VoteRecord   `json:"record"`
	Transaction *governance.TxResult `json:"transaction,omitempty"`
	ChainError  string               `json:"chainError,omitempty"`
}

// CastVote validates a coin vote, uploads its receipt and records it
func (s *Service) CastVote(ctx context.Context, req CastRequest) (*CastResult, error) {
	receipt, err := s.buildReceipt(req)
	if err != nil {
		s.recordCast(req.Vote, "invalid")
		return nil, err
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode vote receipt", err.Error())
	}

	name := fmt.Sprintf("vote-receipt-%s-%s-%d.json", receipt.CoinID, receipt.Voter, receipt.Timestamp)
	uploaded, err := s.provider.Upload(ctx, name, body)
	if err != nil {
		s.recordCast(receipt.Vote, "error")
		s.publisher.Publish(notification.NewNotification("Vote Failed",
			"Could not store vote receipt: "+errorMessage(err), models.VariantDestructive, nil))
		return nil, err
	}

	record := &models.VoteRecord{
		VoteReceipt: *receipt,
		CID:         uploaded.CID,
		Provider:    s.provider.Name(),
	}
	if err := s.store.SaveVoteRecord(ctx, record); err != nil {
		s.recordCast(receipt.Vote, "error")
		return nil, err
	}

	s.audit(ctx, &models.AuditEntry{
		Action: models.AuditVoteCast,
		User:   receipt.Voter,
		Details: map[string]interface{}{
			"coinId":     receipt.CoinID,
			"vote":       string(receipt.Vote),
			"confidence": receipt.Confidence,
		},
		CID: uploaded.CID,
	})

	result := &CastResult{Record: record}
	if s.receipts != nil {
		tx, _, err := s.receipts.SubmitVote(ctx, uploaded.CID)
		if err != nil {
			s.logger.WithError(err).WithField("cid", uploaded.CID).Warn("Receipt stored but not anchored on chain")
			result.ChainError = errorMessage(err)
		} else {
			result.Transaction = tx
			s.audit(ctx, &models.AuditEntry{
				Action:          models.AuditProofGenerated,
				User:            receipt.Voter,
				Details:         map[string]interface{}{"coinId": receipt.CoinID},
				CID:             uploaded.CID,
				BlockNumber:     tx.BlockNumber,
				TransactionHash: tx.Hash,
			})
		}
	}

	s.recordCast(receipt.Vote, "success")
	s.logger.WithFields(logrus.Fields{
		"coin_id": receipt.CoinID,
		"voter":   utils.ShortAddress(receipt.Voter),
		"vote":    receipt.Vote,
		"cid":     uploaded.CID,
	}).Info("Vote receipt stored")
	s.publisher.Publish(notification.NewNotification("Vote Stored",
		fmt.Sprintf("Your %s vote on %s has been stored on IPFS/Filecoin", receipt.Vote, coinLabel(receipt)),
		models.VariantDefault, map[string]interface{}{"cid": uploaded.CID}))
	return result, nil
}

func (s *Service) buildReceipt(req CastRequest) (*models.VoteReceipt, error) {
	coinID := strings.TrimSpace(req.CoinID)
	if coinID == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Coin ID is required")
	}
	if !req.Vote.Valid() {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Vote must be safe, rug or neutral", string(req.Vote))
	}
	voter, err := normalizeUser(req.Voter)
	if err != nil {
		return nil, err
	}

	confidence := req.Confidence
	if confidence == 0 {
		confidence = s.defaultConfidence
	}
	if confidence < 1 || confidence > 10 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Confidence must be between 1 and 10", fmt.Sprint(confidence))
	}
	if len(req.Reasoning) > s.maxReasoning {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Reasoning is too long",
			fmt.Sprintf("%d bytes, limit %d", len(req.Reasoning), s.maxReasoning))
	}

	return &models.VoteReceipt{
		CoinID:        coinID,
		CoinSymbol:    req.CoinSymbol,
		CoinName:      req.CoinName,
		Voter:         voter,
		Vote:          req.Vote,
		Confidence:    confidence,
		Reasoning:     req.Reasoning,
		Timestamp:     s.now().UnixMilli(),
		MarketData:    req.MarketData,
		ProofContract: req.ProofContract,
	}, nil
}

// Records returns stored receipts, for one coin when coinID is set
func (s *Service) Records(ctx context.Context, coinID string, limit int) ([]*models.VoteRecord, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	return s.store.GetVoteRecords(ctx, coinID, limit)
}

// AuditTrail returns audit entries matching filter
func (s *Service) AuditTrail(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	if filter.User != "" {
		filter.User = utils.NormalizeAddress(filter.User)
	}
	if filter.Limit <= 0 || filter.Limit > s.listLimit {
		filter.Limit = s.listLimit
	}
	return s.store.GetAuditEntries(ctx, filter)
}

func (s *Service) audit(ctx context.Context, entry *models.AuditEntry) {
	if err := s.store.SaveAuditEntry(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", entry.Action).Warn("Failed to write audit entry")
	}
}

func (s *Service) recordCast(vote models.CoinVote, status string) {
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordVoteCast(string(vote), status)
	}
}

func (s *Service) recordSubmission(status string) {
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordVoteSubmission(status)
	}
}

func coinLabel(r *models.VoteReceipt) string {
	if r.CoinSymbol != "" {
		return r.CoinSymbol
	}
	return r.CoinID
}

func errorMessage(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
