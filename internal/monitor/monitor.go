// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/connection"
	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/notification"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// LogSource is the subset of an RPC client the monitor polls
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// SourceFunc yields a ready LogSource
type SourceFunc func(ctx context.Context) (LogSource, error)

// FromConnection adapts a connection manager into a SourceFunc
func FromConnection(m connection.Manager) SourceFunc {
	return func(ctx context.Context) (LogSource, error) {
		client, err := m.GetClientWithContext(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// MonitorConfig holds monitor configuration
type MonitorConfig struct {
	Contract           string        `json:"contract"`
	PollInterval       time.Duration `json:"poll_interval"`
	BatchSize          uint64        `json:"batch_size"`
	ConfirmationBlocks uint64        `json:"confirmation_blocks"`
	StartBlock         uint64        `json:"start_block"`
}

// MonitorStats provides monitoring statistics
type MonitorStats struct {
	StartTime            time.Time  `json:"start_time"`
	IsRunning            bool       `json:"is_running"`
	LatestProcessedBlock uint64     `json:"latest_processed_block"`
	TotalPolls           uint64     `json:"total_polls"`
	TotalReceiptsIndexed uint64     `json:"total_receipts_indexed"`
	ErrorCount           uint64     `json:"error_count"`
	LastError            *string    `json:"last_error,omitempty"`
	LastErrorTime        *time.Time `json:"last_error_time,omitempty"`
}

// RangeResult is the outcome of scanning one block range
type RangeResult struct {
	FromBlock uint64                        `json:"from_block"`
	ToBlock   uint64                        `json:"to_block"`
	Receipts  []*governance.VoteStoredEvent `json:"receipts"`
}

// ReceiptMonitor follows VoteStored events and indexes them in the audit log
type ReceiptMonitor struct {
	source    SourceFunc
	storage   storage.Storage
	publisher notification.Publisher
	metrics   *metrics.Manager
	config    MonitorConfig
	address   common.Address
	stateKey  string
	logger    *logrus.Entry

	mu       sync.RWMutex
	running  bool
	loaded   bool
	next     uint64
	stats    MonitorStats
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReceiptMonitor creates a monitor for the VoteStorage contract
func NewReceiptMonitor(source SourceFunc, store storage.Storage, publisher notification.Publisher,
	metricsManager *metrics.Manager, cfg MonitorConfig) (*ReceiptMonitor, error) {

	if cfg.Contract == "" {
		cfg.Contract = governance.DefaultVoteStorageAddress
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid VoteStorage address", cfg.Contract)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if publisher == nil {
		publisher = notification.Nop{}
	}

	return &ReceiptMonitor{
		source:    source,
		storage:   store,
		publisher: publisher,
		metrics:   metricsManager,
		config:    cfg,
		address:   common.HexToAddress(cfg.Contract),
		stateKey:  "receipts:" + utils.NormalizeAddress(cfg.Contract),
		logger:    utils.ComponentLogger("monitor"),
		next:      cfg.StartBlock,
	}, nil
}

// Start launches the polling loop
func (rm *ReceiptMonitor) Start(ctx context.Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.running {
		return utils.NewAppError(utils.ErrCodeConflict, "Monitor already running")
	}

	rm.running = true
	rm.stopChan = make(chan struct{})
	rm.stats.StartTime = time.Now()
	rm.stats.IsRunning = true

	rm.wg.Add(1)
	go rm.monitoringLoop(ctx, rm.stopChan)

	rm.logger.WithFields(logrus.Fields{
		"contract":      rm.address.Hex(),
		"poll_interval": rm.config.PollInterval.String(),
		"start_block":   rm.next,
	}).Info("Receipt monitor started")
	return nil
}

// Stop stops the polling loop and waits for it to exit
func (rm *ReceiptMonitor) Stop() error {
	rm.mu.Lock()
	if !rm.running {
		rm.mu.Unlock()
		return nil
	}
	rm.running = false
	rm.stats.IsRunning = false
	close(rm.stopChan)
	rm.mu.Unlock()

	rm.wg.Wait()
	rm.logger.Info("Receipt monitor stopped")
	return nil
}

// IsRunning returns whether the monitor is running
func (rm *ReceiptMonitor) IsRunning() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.running
}

// GetStats returns a snapshot of the monitor statistics
func (rm *ReceiptMonitor) GetStats() MonitorStats {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.stats
}

func (rm *ReceiptMonitor) monitoringLoop(ctx context.Context, stop <-chan struct{}) {
	defer rm.wg.Done()

	ticker := time.NewTicker(rm.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := rm.Poll(ctx); err != nil {
			rm.logger.WithError(err).Warn("Receipt poll failed")
		}

		select {
		case <-ticker.C:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll scans the next confirmed block range, at most BatchSize blocks
func (rm *ReceiptMonitor) Poll(ctx context.Context) (*RangeResult, error) {
	rm.mu.Lock()
	rm.stats.TotalPolls++
	rm.mu.Unlock()

	src, err := rm.source(ctx)
	if err != nil {
		return nil, rm.recordError(err)
	}

	head, err := src.BlockNumber(ctx)
	if err != nil {
		return nil, rm.recordError(utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get block number", err.Error()))
	}
	if head < rm.config.ConfirmationBlocks {
		return nil, nil
	}
	confirmed := head - rm.config.ConfirmationBlocks

	if err := rm.loadState(ctx); err != nil {
		return nil, rm.recordError(err)
	}

	rm.mu.Lock()
	from := rm.next
	if from == 0 {
		// Without a start block, begin one batch behind the head
		if confirmed >= rm.config.BatchSize {
			from = confirmed - rm.config.BatchSize + 1
		}
	}
	rm.mu.Unlock()

	if from > confirmed {
		return nil, nil
	}
	to := confirmed
	if to-from+1 > rm.config.BatchSize {
		to = from + rm.config.BatchSize - 1
	}

	result, err := rm.ProcessRange(ctx, src, from, to)
	if err != nil {
		return nil, rm.recordError(err)
	}
	if err := rm.storage.SaveMonitorState(ctx, rm.stateKey, to+1); err != nil {
		return nil, rm.recordError(err)
	}

	rm.mu.Lock()
	rm.next = to + 1
	rm.stats.LatestProcessedBlock = to
	rm.stats.TotalReceiptsIndexed += uint64(len(result.Receipts))
	rm.mu.Unlock()
	return result, nil
}

// loadState resumes from the stored position once per monitor. A configured
// start block beyond the stored position wins.
func (rm *ReceiptMonitor) loadState(ctx context.Context) error {
	rm.mu.RLock()
	loaded := rm.loaded
	rm.mu.RUnlock()
	if loaded {
		return nil
	}

	next, found, err := rm.storage.GetMonitorState(ctx, rm.stateKey)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if found && next > rm.next {
		rm.next = next
		rm.logger.WithField("next_block", next).Info("Resuming receipt monitor")
	}
	rm.loaded = true
	return nil
}

// ProcessRange indexes every VoteStored log between from and to inclusive.
// Receipts already indexed at the same log position are not duplicated.
func (rm *ReceiptMonitor) ProcessRange(ctx context.Context, src LogSource, from, to uint64) (*RangeResult, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{rm.address},
	}

	logs, err := src.FilterLogs(ctx, query)
	rm.recordCall(err)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to filter logs", err.Error())
	}

	result := &RangeResult{FromBlock: from, ToBlock: to}
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := governance.ParseVoteStored(log)
		if err != nil {
			rm.logger.WithError(err).WithField("tx_hash", log.TxHash.Hex()).Debug("Skipping unrelated log")
			continue
		}

		logIndex := log.Index
		if err := rm.storage.SaveAuditEntry(ctx, &models.AuditEntry{
			Action:          models.AuditReceiptIndexed,
			User:            utils.NormalizeAddress(event.Voter),
			Details:         map[string]interface{}{"timestamp": event.Timestamp},
			CID:             event.CID,
			BlockNumber:     event.BlockNumber,
			TransactionHash: event.TxHash,
			LogIndex:        &logIndex,
		}); err != nil {
			return nil, err
		}
		result.Receipts = append(result.Receipts, event)

		rm.publisher.Publish(notification.NewNotification("Vote Receipt On Chain",
			fmt.Sprintf("%s anchored receipt %s in block %d", utils.ShortAddress(event.Voter), event.CID, event.BlockNumber),
			models.VariantDefault, map[string]interface{}{"cid": event.CID, "transactionHash": event.TxHash}))
	}

	if len(result.Receipts) > 0 {
		rm.logger.WithFields(logrus.Fields{
			"from_block": from,
			"to_block":   to,
			"receipts":   len(result.Receipts),
		}).Info("Indexed vote receipts")
	}
	return result, nil
}

func (rm *ReceiptMonitor) recordCall(err error) {
	if rm.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	rm.metrics.GetPrometheusMetrics().RecordContractCall("VoteStorage", "FilterLogs", status)
}

func (rm *ReceiptMonitor) recordError(err error) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	msg := err.Error()
	now := time.Now()
	rm.stats.ErrorCount++
	rm.stats.LastError = &msg
	rm.stats.LastErrorTime = &now
	return err
}
