package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/models"
)

type recordingChannel struct {
	mu   sync.Mutex
	seen []*models.Notification
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	return nil
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestNewNotification(t *testing.T) {
	n := NewNotification("Stored", "ok", "", nil)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.VariantDefault, n.Variant)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestManagerDeliversInlineWhenStopped(t *testing.T) {
	nm := NewNotificationManager(&NotificationManagerConfig{}, nil)
	rec := &recordingChannel{}
	nm.AddChannel(rec)

	nm.Publish(NewNotification("Stored", "ok", models.VariantDefault, nil))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"log", "recording"}, nm.Channels())
}

func TestManagerQueueDrainsOnStop(t *testing.T) {
	manager := metrics.NewManagerWith(prometheus.NewRegistry())
	nm := NewNotificationManager(&NotificationManagerConfig{QueueSize: 10}, manager)
	rec := &recordingChannel{}
	nm.AddChannel(rec)

	require.NoError(t, nm.Start(context.Background()))
	assert.Error(t, nm.Start(context.Background()))

	for i := 0; i < 5; i++ {
		nm.Publish(NewNotification("Vote", "cast", models.VariantDestructive, nil))
	}
	require.NoError(t, nm.Stop())

	assert.Equal(t, 5, rec.count())
	stats := nm.GetStats()
	assert.Equal(t, uint64(10), stats.TotalNotificationsSent)
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 5.0, testutil.ToFloat64(
		manager.GetPrometheusMetrics().NotificationsSentTotal.WithLabelValues("recording", "destructive")))
}

func TestWebhookSenderRetries(t *testing.T) {
	var calls int32
	var received WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(&NotificationManagerConfig{
		WebhookURL:     srv.URL,
		WebhookHeaders: map[string]string{"X-Token": "secret"},
		RetryAttempts:  3,
		RetryDelay:     time.Millisecond,
	})

	n := NewNotification("Chain Data Stored", "stored", models.VariantDefault, map[string]interface{}{"cid": "bafy"})
	require.NoError(t, sender.Send(context.Background(), n))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "fil-e-rug", received.Source)
	assert.Equal(t, n.ID, received.Notification.ID)
}

func TestWebhookSenderGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(&NotificationManagerConfig{WebhookURL: srv.URL, RetryAttempts: 2, RetryDelay: time.Millisecond})
	err := sender.Send(context.Background(), NewNotification("x", "y", models.VariantDefault, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCalculateRetryDelay(t *testing.T) {
	cfg := &WebhookRetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, calculateRetryDelay(cfg, 2))
	assert.Equal(t, 2*time.Second, calculateRetryDelay(cfg, 3))
	assert.Equal(t, 4*time.Second, calculateRetryDelay(cfg, 4))
	assert.Equal(t, 5*time.Second, calculateRetryDelay(cfg, 5))
}
