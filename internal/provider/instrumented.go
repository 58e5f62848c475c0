// File: internal/provider/instrumented.go
package provider

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// RetryPolicy controls how failed provider calls are repeated
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// backoff returns the exponential delay before the given attempt (2, 3, ...)
func (r RetryPolicy) backoff(attempt int) time.Duration {
	delay := r.Delay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

// Instrumented decorates a Provider with metrics and retries
type Instrumented struct {
	Provider
	retry          RetryPolicy
	metricsManager *metrics.Manager
	logger         *logrus.Entry
}

// NewInstrumented wraps backend
func NewInstrumented(backend Provider, retry RetryPolicy, metricsManager *metrics.Manager) *Instrumented {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Instrumented{
		Provider:       backend,
		retry:          retry,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("provider").WithField("provider", backend.Name()),
	}
}

// Upload stores data, retrying transient failures
func (p *Instrumented) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	var result *UploadResult
	err := p.do(ctx, "upload", func() error {
		var err error
		result, err = p.Provider.Upload(ctx, name, data)
		return err
	})
	if err != nil {
		return nil, err
	}

	if p.metricsManager != nil {
		p.metricsManager.GetPrometheusMetrics().RecordBytesUploaded(p.Name(), len(data))
	}
	p.logger.WithFields(logrus.Fields{
		"name": name,
		"cid":  result.CID,
		"size": result.Size,
	}).Debug("Uploaded content")
	return result, nil
}

// Fetch reads content, retrying transient failures
func (p *Instrumented) Fetch(ctx context.Context, cid string) ([]byte, error) {
	var data []byte
	err := p.do(ctx, "fetch", func() error {
		var err error
		data, err = p.Provider.Fetch(ctx, cid)
		return err
	})
	return data, err
}

func (p *Instrumented) do(ctx context.Context, operation string, call func() error) error {
	var err error
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		if attempt > 1 {
			delay := p.retry.backoff(attempt)
			p.logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
			}).Warn("Retrying provider call")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		err = call()
		p.observe(operation, start, err)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (p *Instrumented) observe(operation string, start time.Time, err error) {
	if p.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metricsManager.GetPrometheusMetrics().RecordProviderRequest(p.Name(), operation, status, time.Since(start))
}

// retryable is false for errors a second attempt cannot fix
func retryable(err error) bool {
	switch utils.ErrorCode(err) {
	case utils.ErrCodeValidation, utils.ErrCodeNotFound, utils.ErrCodeConfiguration:
		return false
	}
	return true
}
