// File: internal/chaindata/service.go
package chaindata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/notification"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// KBPerRecord is the nominal footprint used for the storage estimate
const KBPerRecord = 2.5

// Options configures a Service
type Options struct {
	Hasher     Hasher
	UploadName string
	Metrics    *metrics.Manager
	Publisher  notification.Publisher
}

// Service stores rated chain records on a content-addressed provider and
// keeps them categorized in the durable index.
type Service struct {
	store      storage.Storage
	provider   provider.Provider
	hasher     Hasher
	uploadName string
	metrics    *metrics.Manager
	publisher  notification.Publisher
	logger     *logrus.Entry
	now        func() time.Time
}

// NewService creates a chain data service
func NewService(store storage.Storage, p provider.Provider, opts Options) *Service {
	if opts.Hasher == nil {
		opts.Hasher = SHA256Hasher{}
	}
	if opts.Publisher == nil {
		opts.Publisher = notification.Nop{}
	}
	return &Service{
		store:      store,
		provider:   p,
		hasher:     opts.Hasher,
		uploadName: opts.UploadName,
		metrics:    opts.Metrics,
		publisher:  opts.Publisher,
		logger:     utils.ComponentLogger("chaindata"),
		now:        time.Now,
	}
}

// Hasher returns the configured hasher
func (s *Service) Hasher() Hasher { return s.hasher }

// Provider returns the storage backend
func (s *Service) Provider() provider.Provider { return s.provider }

// StoreChainData classifies, uploads and indexes a chain record. The returned
// result always describes the outcome; err carries the structured cause.
func (s *Service) StoreChainData(ctx context.Context, chain models.ChainData) (models.StorageResult, error) {
	start := s.now()

	record, err := s.storeChain(ctx, chain)
	if err != nil {
		s.recordStored(Classify(chain.VoteResults), "error", start)
		s.logger.WithError(err).WithField("chain_id", chain.ID).Error("Failed to store chain data")
		s.publisher.Publish(notification.NewNotification("Storage Failed",
			fmt.Sprintf("Could not store %s: %s", displayName(chain), errorMessage(err)),
			models.VariantDestructive, map[string]interface{}{"chainId": chain.ID}))
		return models.StorageResult{Success: false, Error: errorMessage(err)}, err
	}

	s.recordStored(record.chain.FinalDecision, "success", start)
	s.logger.WithFields(logrus.Fields{
		"chain_id": record.chain.ID,
		"decision": record.chain.FinalDecision,
		"cid":      record.chain.StorageProof.CID,
	}).Info("Chain data stored")

	s.publisher.Publish(notification.NewNotification("Chain Data Stored",
		fmt.Sprintf("%s stored as %s (CID %s)", displayName(chain), record.chain.FinalDecision, record.chain.StorageProof.CID),
		models.VariantDefault, map[string]interface{}{
			"chainId":  record.chain.ID,
			"decision": record.chain.FinalDecision,
			"cid":      record.chain.StorageProof.CID,
		}))

	return models.StorageResult{
		Success: true,
		CID:     record.chain.StorageProof.CID,
		Hash:    record.chain.StorageProof.Hash,
		Size:    strconv.FormatInt(record.size, 10),
	}, nil
}

type storedChain struct {
	chain *models.ChainData
	size  int64
}

func (s *Service) storeChain(ctx context.Context, chain models.ChainData) (*storedChain, error) {
	if strings.TrimSpace(chain.ID) == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Chain id is required", "")
	}
	if strings.TrimSpace(chain.Name) == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Chain name is required", chain.ID)
	}

	now := s.now()
	record := chain.WithoutProof()
	record.FinalDecision = Classify(record.VoteResults)
	if record.Timestamp == 0 {
		record.Timestamp = now.UnixMilli()
	}

	hash, err := HashRecord(s.hasher, record)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to hash chain data", err.Error())
	}

	// The uploaded document carries the proof skeleton; the CID is only known afterwards.
	record.StorageProof = &models.StorageProof{Timestamp: now.UnixMilli(), Hash: hash}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode chain data", err.Error())
	}

	previous, err := s.previousDecision(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("chain-%s-%d", record.ID, now.UnixMilli())
	uploaded, err := s.provider.Upload(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidateCID(uploaded.CID); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Provider returned an invalid CID", uploaded.CID)
	}
	record.StorageProof.CID = uploaded.CID

	if err := s.store.SaveChain(ctx, &record); err != nil {
		return nil, err
	}
	if _, err := s.store.RefreshCategoryIndex(ctx, record.FinalDecision, uploaded.CID); err != nil {
		return nil, err
	}
	// A record that changed bucket leaves its old bucket one smaller
	if previous != "" && previous != record.FinalDecision {
		if _, err := s.store.RefreshCategoryIndex(ctx, previous, ""); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveAuditEntry(ctx, &models.AuditEntry{
		Action:    models.AuditAnalysisUploaded,
		User:      "system",
		Timestamp: now.UnixMilli(),
		CID:       uploaded.CID,
		Details: map[string]interface{}{
			"chainId":  record.ID,
			"decision": string(record.FinalDecision),
			"provider": s.provider.Name(),
		},
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to record audit entry")
	}

	return &storedChain{chain: &record, size: uploaded.Size}, nil
}

// previousDecision returns the bucket a stored record currently sits in, or
// "" when the record is new.
func (s *Service) previousDecision(ctx context.Context, id string) (models.Decision, error) {
	existing, err := s.store.GetChain(ctx, id)
	if utils.IsCode(err, utils.ErrCodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return existing.FinalDecision, nil
}

func (s *Service) recordStored(decision models.Decision, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordChainStored(string(decision), status, time.Since(start))
	}
}

// GetChainsByCategory lists a bucket, newest first
func (s *Service) GetChainsByCategory(ctx context.Context, decision models.Decision, limit int) ([]*models.ChainData, error) {
	return s.store.GetChainsByDecision(ctx, models.ParseDecision(string(decision)), limit)
}

// GetChain returns a single record
func (s *Service) GetChain(ctx context.Context, id string) (*models.ChainData, error) {
	return s.store.GetChain(ctx, id)
}

// VerifyStorageProof fetches the stored document and checks it still hashes
// to the recorded proof. Any failure along the way reports false.
func (s *Service) VerifyStorageProof(ctx context.Context, chain models.ChainData) bool {
	valid := s.verify(ctx, chain)
	if s.metrics != nil {
		s.metrics.GetPrometheusMetrics().RecordVerification(valid)
	}
	return valid
}

func (s *Service) verify(ctx context.Context, chain models.ChainData) bool {
	if chain.StorageProof == nil || chain.StorageProof.CID == "" {
		return false
	}
	logger := s.logger.WithFields(logrus.Fields{"chain_id": chain.ID, "cid": chain.StorageProof.CID})

	if err := provider.ValidateCID(chain.StorageProof.CID); err != nil {
		logger.Warn("Storage proof carries an invalid CID")
		return false
	}

	data, err := s.provider.Fetch(ctx, chain.StorageProof.CID)
	if err != nil {
		logger.WithError(err).Warn("Storage proof fetch failed")
		return false
	}

	var stored models.ChainData
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.WithError(err).Warn("Stored document is not chain data")
		return false
	}
	if stored.ID != chain.ID {
		logger.WithField("stored_id", stored.ID).Warn("Stored document belongs to another chain")
		return false
	}

	hash, err := HashRecord(s.hasher, stored)
	if err != nil {
		return false
	}
	return hash == chain.StorageProof.Hash
}

// GetStorageStats counts every bucket. Failures degrade to an empty summary.
func (s *Service) GetStorageStats(ctx context.Context) models.StorageStats {
	var rugged, safe, pending int64

	g, gctx := errgroup.WithContext(ctx)
	counters := map[models.Decision]*int64{
		models.DecisionRugged:  &rugged,
		models.DecisionSafe:    &safe,
		models.DecisionPending: &pending,
	}
	for decision, dest := range counters {
		decision, dest := decision, dest
		g.Go(func() error {
			count, err := s.store.CountChainsByDecision(gctx, decision)
			if err != nil {
				return err
			}
			*dest = count
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Error("Failed to compute storage stats")
		return models.StorageStats{TotalStorage: "0 KB"}
	}

	return models.StorageStats{
		RuggedCount:  rugged,
		SafeCount:    safe,
		PendingCount: pending,
		TotalStorage: FormatTotalStorage(rugged + safe + pending),
	}
}

// FormatTotalStorage renders the nominal footprint of n records
func FormatTotalStorage(n int64) string {
	return strconv.FormatFloat(float64(n)*KBPerRecord, 'f', -1, 64) + " KB"
}

// UploadText stores free text. The name falls back to the configured upload
// name and then to vote-<unixms>.
func (s *Service) UploadText(ctx context.Context, text, name string) (models.StorageResult, error) {
	if name == "" {
		name = s.uploadName
	}
	if name == "" {
		name = fmt.Sprintf("vote-%d", s.now().UnixMilli())
	}

	uploaded, err := s.provider.Upload(ctx, name, []byte(text))
	if err != nil {
		s.logger.WithError(err).WithField("name", name).Error("Failed to upload text")
		return models.StorageResult{Success: false, Error: errorMessage(err)}, err
	}

	return models.StorageResult{
		Success: true,
		CID:     uploaded.CID,
		Size:    strconv.FormatInt(uploaded.Size, 10),
	}, nil
}

// UploadVote stamps vote data with the time and wallet and uploads it
func (s *Service) UploadVote(ctx context.Context, voteData map[string]interface{}, walletID string) (models.StorageResult, error) {
	now := s.now().UnixMilli()

	doc := make(map[string]interface{}, len(voteData)+2)
	for k, v := range voteData {
		doc[k] = v
	}
	doc["timestamp"] = now
	if walletID != "" {
		doc["walletId"] = walletID
	} else {
		doc["walletId"] = "anonymous"
	}

	text, err := json.Marshal(doc)
	if err != nil {
		return models.StorageResult{Success: false, Error: err.Error()},
			utils.NewAppError(utils.ErrCodeValidation, "Vote data is not serializable", err.Error())
	}

	name := fmt.Sprintf("vote-%d", now)
	if walletID != "" {
		name = fmt.Sprintf("vote-%s-%d", walletID, now)
	}

	result, err := s.UploadText(ctx, string(text), name)
	if err == nil {
		s.publisher.Publish(notification.NewNotification("Vote Stored",
			"Your vote has been stored on IPFS/Filecoin",
			models.VariantDefault, map[string]interface{}{"cid": result.CID}))
	}
	return result, err
}

func displayName(chain models.ChainData) string {
	if chain.Name != "" {
		return chain.Name
	}
	if chain.ID != "" {
		return chain.ID
	}
	return "chain data"
}

func errorMessage(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
