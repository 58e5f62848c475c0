// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// WebhookSender posts notifications as JSON to a configured URL
type WebhookSender struct {
	config     *NotificationManagerConfig
	logger     *logrus.Entry
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Notification *models.Notification `json:"notification"`
	Timestamp    time.Time            `json:"timestamp"`
	Source       string               `json:"source"`
	Type         string               `json:"type"`
	Version      string               `json:"version"`
}

// WebhookRetryConfig defines retry configuration for webhooks
type WebhookRetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Error        error         `json:"error,omitempty"`
	Body         string        `json:"body,omitempty"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(config *NotificationManagerConfig) *WebhookSender {
	timeout := config.NotificationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		config: config,
		logger: utils.ComponentLogger("webhook_sender"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Name implements Channel
func (ws *WebhookSender) Name() string { return string(models.NotificationTypeWebhook) }

// Send implements Channel
func (ws *WebhookSender) Send(ctx context.Context, n *models.Notification) error {
	if ws.config.WebhookURL == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook URL is required", "")
	}

	payload := &WebhookPayload{
		Notification: n,
		Timestamp:    time.Now().UTC(),
		Source:       "fil-e-rug",
		Type:         "notification",
		Version:      "1.0",
	}

	response := ws.sendWithRetry(ctx, payload)
	ws.logger.WithFields(logrus.Fields{
		"url":           ws.config.WebhookURL,
		"status_code":   response.StatusCode,
		"response_time": response.ResponseTime,
		"success":       response.Success,
	}).Debug("Webhook delivered")

	return response.Error
}

// sendWithRetry sends a webhook with exponential backoff
func (ws *WebhookSender) sendWithRetry(ctx context.Context, payload *WebhookPayload) *WebhookResponse {
	retryConfig := &WebhookRetryConfig{
		MaxAttempts: ws.config.RetryAttempts,
		BaseDelay:   ws.config.RetryDelay,
		MaxDelay:    ws.config.MaxRetryDelay,
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}
	if retryConfig.MaxDelay <= 0 {
		retryConfig.MaxDelay = 30 * time.Second
	}

	var lastResponse *WebhookResponse

	for attempt := 1; attempt <= retryConfig.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := calculateRetryDelay(retryConfig, attempt)
			ws.logger.WithFields(logrus.Fields{
				"attempt":      attempt,
				"max_attempts": retryConfig.MaxAttempts,
				"delay":        delay,
			}).Warn("Retrying webhook")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &WebhookResponse{
					Success: false,
					Error:   ctx.Err(),
				}
			}
		}

		response := ws.sendSingleWebhook(ctx, payload)
		lastResponse = response

		if response.Success {
			return response
		}
	}

	return lastResponse
}

// sendSingleWebhook sends a single webhook request
func (ws *WebhookSender) sendSingleWebhook(ctx context.Context, payload *WebhookPayload) *WebhookResponse {
	startTime := time.Now()

	response := &WebhookResponse{
		Success: false,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
		return response
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
		return response
	}
	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(startTime)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeConnection, "Failed to send webhook", err.Error())
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.Body = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
	} else {
		response.Error = utils.NewAppError(utils.ErrCodeConnection,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	}

	return response
}

// setRequestHeaders sets HTTP request headers
func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.config.WebhookHeaders {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "Fil-E-Rug/1.0")
	}

	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", utils.GenerateID())
}

// calculateRetryDelay doubles the base delay per attempt, capped at MaxDelay
func calculateRetryDelay(config *WebhookRetryConfig, attempt int) time.Duration {
	delay := time.Duration(int64(config.BaseDelay) << uint(attempt-2))
	if delay > config.MaxDelay || delay < 0 {
		delay = config.MaxDelay
	}
	return delay
}
