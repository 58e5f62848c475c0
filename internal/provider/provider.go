// File: internal/provider/provider.go
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Provider is a content-addressed storage backend
type Provider interface {
	Name() string
	Upload(ctx context.Context, name string, data []byte) (*UploadResult, error)
	Fetch(ctx context.Context, cid string) ([]byte, error)
}

// UploadResult is what a backend reports after storing a blob
type UploadResult struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

// New builds the configured backend wrapped with metrics and retries. The
// local backend persists its content in blobs when it is set.
func New(cfg *config.ProvidersConfig, blobs BlobStore, metricsManager *metrics.Manager) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var backend Provider
	switch strings.ToLower(cfg.Default) {
	case "", "local":
		if blobs != nil {
			backend = NewPersistentLocalProvider(blobs)
		} else {
			backend = NewLocalProvider()
		}
	case "ipfs":
		if cfg.IPFS.APIURL == "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "IPFS api url is required", "")
		}
		backend = NewIPFSProvider(cfg.IPFS, timeout)
	case "lighthouse":
		if cfg.Lighthouse.APIKey == "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Lighthouse api key is required", "")
		}
		backend = NewLighthouseProvider(cfg.Lighthouse, timeout)
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported storage provider", cfg.Default)
	}

	return NewInstrumented(backend, RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		MaxDelay: cfg.Retry.MaxDelay,
	}, metricsManager), nil
}

// ValidateCID reports whether s parses as a CID
func ValidateCID(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid CID", err.Error())
	}
	return nil
}
