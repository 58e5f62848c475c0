// File: internal/governance/signer.go
package governance

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Signer signs transactions with the service key
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewSigner parses a hex private key, with or without 0x prefix
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid private key", err.Error())
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// Address is the account transactions are sent from
func (s *Signer) Address() common.Address {
	return s.address
}

// TransactOpts returns fresh transaction options bound to ctx
func (s *Signer) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to create transactor", err.Error())
	}
	opts.Context = ctx
	return opts, nil
}
