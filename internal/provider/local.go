// File: internal/provider/local.go
package provider

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// BlobStore keeps content durably under its CID
type BlobStore interface {
	SaveBlob(ctx context.Context, cid string, data []byte) error
	GetBlob(ctx context.Context, cid string) ([]byte, error)
}

// LocalProvider addresses content by real CIDv1 identifiers without a
// network. Blobs are cached in memory and, when a BlobStore is set, written
// through to it so they survive restarts. Used for demo and offline mode.
type LocalProvider struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	store BlobStore
}

// NewLocalProvider creates an empty in-memory provider
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{blobs: make(map[string][]byte)}
}

// NewPersistentLocalProvider creates a provider backed by store
func NewPersistentLocalProvider(store BlobStore) *LocalProvider {
	p := NewLocalProvider()
	p.store = store
	return p
}

// Name implements Provider
func (p *LocalProvider) Name() string { return "local" }

// ComputeCID returns the raw-codec sha2-256 CIDv1 of data
func ComputeCID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Upload stores a copy of data
func (p *LocalProvider) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := ComputeCID(data)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to compute CID", err.Error())
	}

	blob := make([]byte, len(data))
	copy(blob, data)

	key := c.String()
	if p.store != nil {
		if err := p.store.SaveBlob(ctx, key, blob); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeProvider, "Failed to persist content", err.Error())
		}
	}

	p.mu.Lock()
	p.blobs[key] = blob
	p.mu.Unlock()

	return &UploadResult{Name: name, CID: key, Size: int64(len(data))}, nil
}

// Fetch returns stored content
func (p *LocalProvider) Fetch(ctx context.Context, cidStr string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := cid.Decode(cidStr)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid CID", err.Error())
	}
	key := c.String()

	p.mu.RLock()
	blob, ok := p.blobs[key]
	p.mu.RUnlock()

	if !ok && p.store != nil {
		stored, err := p.store.GetBlob(ctx, key)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.blobs[key] = stored
		p.mu.Unlock()
		blob, ok = stored, true
	}
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Content not found", cidStr)
	}

	data := make([]byte, len(blob))
	copy(data, blob)
	return data, nil
}

// Len reports how many blobs are cached in memory
func (p *LocalProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blobs)
}
