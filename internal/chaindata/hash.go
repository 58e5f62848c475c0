// File: internal/chaindata/hash.go
package chaindata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Hasher fingerprints a serialized record
type Hasher interface {
	Name() string
	Hash(data []byte) string
}

// SHA256Hasher renders the hex SHA-256 digest
type SHA256Hasher struct{}

// Name implements Hasher
func (SHA256Hasher) Name() string { return "sha256" }

// Hash implements Hasher
func (SHA256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RollingHasher is the 32-bit h = h*31 + c hash over UTF-16 code units,
// printed in signed hex the way browsers print it.
type RollingHasher struct{}

// Name implements Hasher
func (RollingHasher) Name() string { return "rolling" }

// Hash implements Hasher
func (RollingHasher) Hash(data []byte) string {
	var h int32
	for _, c := range utf16.Encode([]rune(string(data))) {
		h = (h << 5) - h + int32(c)
	}
	return strconv.FormatInt(int64(h), 16)
}

// NewHasher returns the hasher registered under name
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "rolling":
		return RollingHasher{}, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported hasher", name)
	}
}

// HashRecord hashes the JSON encoding of the record without its storage proof
func HashRecord(h Hasher, chain models.ChainData) (string, error) {
	data, err := json.Marshal(chain.WithoutProof())
	if err != nil {
		return "", err
	}
	return h.Hash(data), nil
}
