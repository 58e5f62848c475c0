// File: internal/provider/ipfs.go
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartdevs17/fil-e-rug/internal/config"
)

// IPFSProvider talks to an IPFS HTTP API node (Kubo, Infura and compatibles)
type IPFSProvider struct {
	apiURL     string
	projectID  string
	secret     string
	httpClient *http.Client
}

// NewIPFSProvider creates an IPFS HTTP API provider
func NewIPFSProvider(cfg config.IPFSConfig, timeout time.Duration) *IPFSProvider {
	return &IPFSProvider{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		projectID:  cfg.ProjectID,
		secret:     cfg.Secret,
		httpClient: newHTTPClient(timeout),
	}
}

// Name implements Provider
func (p *IPFSProvider) Name() string { return "ipfs" }

func (p *IPFSProvider) authorize(req *http.Request) {
	if p.projectID != "" {
		req.SetBasicAuth(p.projectID, p.secret)
	}
}

// Upload adds and pins data
func (p *IPFSProvider) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	return postMultipart(ctx, p.httpClient, p.apiURL+"/api/v0/add?pin=true", name, data, p.authorize)
}

// Fetch reads content back through /api/v0/cat
func (p *IPFSProvider) Fetch(ctx context.Context, cid string) ([]byte, error) {
	endpoint := p.apiURL + "/api/v0/cat?arg=" + url.QueryEscape(cid)
	return readBody(ctx, p.httpClient, http.MethodPost, endpoint, p.authorize)
}
