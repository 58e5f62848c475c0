// File: internal/notification/notification.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Publisher accepts operation outcomes for delivery
type Publisher interface {
	Publish(n *models.Notification)
}

// Nop discards notifications
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(*models.Notification) {}

// Channel delivers notifications to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, n *models.Notification) error
}

// NewNotification builds a notification stamped with an id and the current time
func NewNotification(title, message string, variant models.Variant, data map[string]interface{}) *models.Notification {
	if variant == "" {
		variant = models.VariantDefault
	}
	return &models.Notification{
		ID:        utils.GenerateID(),
		Title:     title,
		Message:   message,
		Variant:   variant,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// NotificationManagerConfig holds notification manager configuration
type NotificationManagerConfig struct {
	NotificationTimeout time.Duration     `json:"notification_timeout"`
	RetryAttempts       int               `json:"retry_attempts"`
	RetryDelay          time.Duration     `json:"retry_delay"`
	MaxRetryDelay       time.Duration     `json:"max_retry_delay"`
	QueueSize           int               `json:"queue_size"`
	WebhookURL          string            `json:"webhook_url"`
	WebhookHeaders      map[string]string `json:"webhook_headers"`
}

// NewManagerConfig maps application configuration onto the manager
func NewManagerConfig(cfg *config.NotificationConfig) *NotificationManagerConfig {
	return &NotificationManagerConfig{
		NotificationTimeout: cfg.NotificationTimeout,
		RetryAttempts:       cfg.RetryAttempts,
		RetryDelay:          cfg.RetryDelay,
		MaxRetryDelay:       30 * time.Second,
		QueueSize:           cfg.QueueSize,
		WebhookURL:          cfg.WebhookURL,
		WebhookHeaders:      cfg.WebhookHeaders,
	}
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64     `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64     `json:"total_notifications_failed"`
	TotalDropped             uint64     `json:"total_dropped"`
	ActiveChannels           int        `json:"active_channels"`
	QueueLength              int        `json:"queue_length"`
	LastError                *string    `json:"last_error,omitempty"`
	LastErrorTime            *time.Time `json:"last_error_time,omitempty"`
}

// NotificationHealth summarizes the manager state
type NotificationHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// NotificationManager fans notifications out to its channels from a queue
type NotificationManager struct {
	config  *NotificationManagerConfig
	logger  *logrus.Entry
	metrics *metrics.Manager

	mu       sync.RWMutex
	running  bool
	channels []Channel
	queue    chan *models.Notification
	cancel   context.CancelFunc
	done     chan struct{}

	statsMu sync.Mutex
	stats   NotificationStats
}

// NewNotificationManager creates a manager with the log channel and, when a
// URL is configured, the webhook channel
func NewNotificationManager(cfg *NotificationManagerConfig, metricsManager *metrics.Manager) *NotificationManager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	nm := &NotificationManager{
		config:  cfg,
		logger:  utils.ComponentLogger("notification"),
		metrics: metricsManager,
		queue:   make(chan *models.Notification, cfg.QueueSize),
	}

	nm.channels = append(nm.channels, NewLogChannel())
	if cfg.WebhookURL != "" {
		nm.channels = append(nm.channels, NewWebhookSender(cfg))
	}
	return nm
}

// AddChannel registers another delivery channel
func (nm *NotificationManager) AddChannel(channel Channel) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.channels = append(nm.channels, channel)
	nm.logger.WithField("channel", channel.Name()).Info("Notification channel added")
}

// Channels returns the names of the registered channels
func (nm *NotificationManager) Channels() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	names := make([]string, 0, len(nm.channels))
	for _, ch := range nm.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Start launches the delivery worker
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	nm.cancel = cancel
	nm.done = make(chan struct{})
	nm.running = true

	go nm.worker(workerCtx, nm.done)

	nm.logger.WithField("channels", len(nm.channels)).Info("Notification manager started")
	return nil
}

// Stop drains the queue and stops the worker
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	if !nm.running {
		nm.mu.Unlock()
		return nil
	}
	nm.running = false
	cancel, done := nm.cancel, nm.done
	nm.mu.Unlock()

	cancel()
	<-done

	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the manager is running
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Publish queues n for delivery. Without a running worker it is delivered
// inline; a full queue drops it.
func (nm *NotificationManager) Publish(n *models.Notification) {
	if n == nil {
		return
	}

	nm.mu.RLock()
	if !nm.running {
		nm.mu.RUnlock()
		nm.dispatch(context.Background(), n)
		return
	}
	select {
	case nm.queue <- n:
		nm.mu.RUnlock()
	default:
		nm.mu.RUnlock()
		nm.statsMu.Lock()
		nm.stats.TotalDropped++
		nm.statsMu.Unlock()
		nm.logger.WithField("title", n.Title).Warn("Notification queue full, dropping notification")
	}
}

func (nm *NotificationManager) worker(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case n := <-nm.queue:
			nm.dispatch(ctx, n)
		case <-ctx.Done():
			// Deliver what was queued before the stop with a fresh deadline
			for {
				select {
				case n := <-nm.queue:
					nm.dispatch(context.Background(), n)
				default:
					return
				}
			}
		}
	}
}

func (nm *NotificationManager) dispatch(ctx context.Context, n *models.Notification) {
	nm.mu.RLock()
	channels := make([]Channel, len(nm.channels))
	copy(channels, nm.channels)
	nm.mu.RUnlock()

	for _, ch := range channels {
		sendCtx := ctx
		var cancel context.CancelFunc
		if nm.config.NotificationTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, nm.config.NotificationTimeout)
		}
		err := ch.Send(sendCtx, n)
		if cancel != nil {
			cancel()
		}
		nm.record(ch.Name(), n, err)
	}
}

func (nm *NotificationManager) record(channel string, n *models.Notification, err error) {
	nm.statsMu.Lock()
	if err != nil {
		nm.stats.TotalNotificationsFailed++
		msg := err.Error()
		now := time.Now()
		nm.stats.LastError = &msg
		nm.stats.LastErrorTime = &now
	} else {
		nm.stats.TotalNotificationsSent++
	}
	nm.statsMu.Unlock()

	if err != nil {
		nm.logger.WithError(err).WithFields(logrus.Fields{
			"channel":         channel,
			"notification_id": n.ID,
		}).Error("Failed to deliver notification")
	}

	if nm.metrics == nil {
		return
	}
	if err != nil {
		nm.metrics.GetPrometheusMetrics().RecordNotificationFailure(channel)
	} else {
		nm.metrics.GetPrometheusMetrics().RecordNotificationSent(channel, string(n.Variant))
	}
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() NotificationStats {
	nm.statsMu.Lock()
	stats := nm.stats
	nm.statsMu.Unlock()

	nm.mu.RLock()
	stats.ActiveChannels = len(nm.channels)
	nm.mu.RUnlock()
	stats.QueueLength = len(nm.queue)
	return stats
}

// GetHealth reports whether the worker runs and the last delivery error
func (nm *NotificationManager) GetHealth() *NotificationHealth {
	stats := nm.GetStats()
	health := &NotificationHealth{Healthy: nm.IsHealthy()}
	if stats.LastError != nil {
		health.Error = *stats.LastError
	}
	return health
}
