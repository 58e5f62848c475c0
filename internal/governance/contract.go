// File: internal/governance/contract.go
package governance

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/connection"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Backend is what contract calls and receipts need from an RPC client
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Dialer yields a ready backend
type Dialer func(ctx context.Context) (Backend, error)

// FromConnection adapts a connection manager into a Dialer
func FromConnection(m connection.Manager) Dialer {
	return func(ctx context.Context) (Backend, error) {
		client, err := m.GetClientWithContext(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// TxResult summarizes a mined transaction
type TxResult struct {
	Hash        string `json:"transactionHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	From        string `json:"from"`
}

// Options configures a contract caller
type Options struct {
	Signer    *Signer
	TxTimeout time.Duration
	Metrics   *metrics.Manager
}

// contract is the shared call/transact plumbing for bound contracts
type contract struct {
	name      string
	address   common.Address
	abi       abi.ABI
	dial      Dialer
	signer    *Signer
	txTimeout time.Duration
	metrics   *metrics.Manager
	logger    *logrus.Entry
}

func newContract(name, address string, parsed abi.ABI, dial Dialer, opts Options) (*contract, error) {
	if !common.IsHexAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid contract address", address)
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 3 * time.Minute
	}
	return &contract{
		name:      name,
		address:   common.HexToAddress(address),
		abi:       parsed,
		dial:      dial,
		signer:    opts.Signer,
		txTimeout: opts.TxTimeout,
		metrics:   opts.Metrics,
		logger:    utils.ComponentLogger("governance").WithField("contract", name),
	}, nil
}

func (c *contract) bound(ctx context.Context) (Backend, *bind.BoundContract, error) {
	backend, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	return backend, bind.NewBoundContract(c.address, c.abi, backend, backend, backend), nil
}

func (c *contract) record(method string, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.GetPrometheusMetrics().RecordContractCall(c.name, method, status)
}

// call runs a read-only method
func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	_, bound, err := c.bound(ctx)
	if err != nil {
		c.record(method, err)
		return nil, err
	}

	var out []interface{}
	err = bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	c.record(method, err)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Contract call "+method+" failed", err.Error())
	}
	return out, nil
}

// transact sends a state-changing method and waits for it to be mined
func (c *contract) transact(ctx context.Context, method string, args ...interface{}) (*TxResult, *types.Receipt, error) {
	if c.signer == nil {
		return nil, nil, utils.NewAppError(utils.ErrCodeConfiguration, "No signing key configured", c.name+"."+method)
	}

	backend, bound, err := c.bound(ctx)
	if err != nil {
		c.record(method, err)
		return nil, nil, err
	}

	opts, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, nil, err
	}

	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		c.record(method, err)
		return nil, nil, utils.NewAppError(utils.ErrCodeBlockchain, "Transaction "+method+" failed", err.Error())
	}

	logger := c.logger.WithFields(logrus.Fields{"method": method, "tx_hash": tx.Hash().Hex()})
	logger.Info("Transaction sent, waiting to be mined")

	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, backend, tx)
	if err != nil {
		c.record(method, err)
		return nil, nil, utils.NewAppError(utils.ErrCodeBlockchain, "Transaction was not mined", err.Error())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := utils.NewAppError(utils.ErrCodeBlockchain, "Transaction reverted", tx.Hash().Hex())
		c.record(method, err)
		return nil, receipt, err
	}
	c.record(method, nil)

	logger.WithField("block", receipt.BlockNumber.Uint64()).Info("Transaction mined")
	return &TxResult{
		Hash:        tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		From:        c.signer.Address().Hex(),
	}, receipt, nil
}
