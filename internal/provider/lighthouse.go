// File: internal/provider/lighthouse.go
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartdevs17/fil-e-rug/internal/config"
)

// LighthouseProvider uploads to Lighthouse and reads through its gateway
type LighthouseProvider struct {
	nodeURL    string
	gatewayURL string
	apiKey     string
	httpClient *http.Client
}

// NewLighthouseProvider creates a Lighthouse provider
func NewLighthouseProvider(cfg config.LighthouseConfig, timeout time.Duration) *LighthouseProvider {
	return &LighthouseProvider{
		nodeURL:    strings.TrimRight(cfg.NodeURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: newHTTPClient(timeout),
	}
}

// Name implements Provider
func (p *LighthouseProvider) Name() string { return "lighthouse" }

// Upload sends data to the Lighthouse node
func (p *LighthouseProvider) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	return postMultipart(ctx, p.httpClient, p.nodeURL+"/api/v0/add", name, data, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	})
}

// Fetch reads content from the public gateway
func (p *LighthouseProvider) Fetch(ctx context.Context, cid string) ([]byte, error) {
	return readBody(ctx, p.httpClient, http.MethodGet, p.gatewayURL+"/ipfs/"+url.PathEscape(cid), nil)
}
