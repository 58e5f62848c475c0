package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a metrics manager on the default registry
func NewManager() *Manager {
	return NewManagerWith(prometheus.DefaultRegisterer)
}

// NewManagerWith creates a metrics manager on reg. Tests pass a fresh registry.
func NewManagerWith(reg prometheus.Registerer) *Manager {
	return &Manager{
		prometheus: NewPrometheusMetricsWith(reg),
		logger:     logrus.WithField("component", "metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// Uptime returns how long the manager has existed
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// UpdateSystemMetrics updates memory, goroutine and uptime gauges
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.MemoryUsage.Set(float64(memStats.Alloc))
	m.prometheus.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
