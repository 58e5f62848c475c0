// File: internal/wallet/wallet.go
package wallet

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/connection"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// Filecoin EVM chain ids
const (
	CalibrationChainID int64 = 314159
	MainnetChainID     int64 = 314
)

// DefaultUSDFCToken is the USDFC stablecoin on Calibration
const DefaultUSDFCToken = "0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0"

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Reader is the subset of an RPC client used for wallet lookups
type Reader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderSource yields a ready Reader
type ReaderSource func(ctx context.Context) (Reader, error)

// FromConnection adapts a connection manager into a ReaderSource
func FromConnection(m connection.Manager) ReaderSource {
	return func(ctx context.Context) (Reader, error) {
		client, err := m.GetClientWithContext(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Status is a read-only snapshot of an account
type Status struct {
	Address          string `json:"address"`
	ChainID          int64  `json:"chainId"`
	Network          string `json:"network"`
	IsCalibnet       bool   `json:"isCalibnet"`
	FILBalance       string `json:"tFilBalance"`
	USDFCBalance     string `json:"tUsdfcBalance"`
	HasEnoughBalance bool   `json:"hasEnoughBalance"`
}

// Service reads balances for wallet addresses
type Service struct {
	source   ReaderSource
	token    common.Address
	minFIL   decimal.Decimal
	minUSDFC decimal.Decimal
	logger   *logrus.Entry
}

// NewService creates a wallet service from Filecoin settings
func NewService(cfg *config.FilecoinConfig, source ReaderSource) (*Service, error) {
	token := cfg.USDFCToken
	if token == "" {
		token = DefaultUSDFCToken
	}
	if !common.IsHexAddress(token) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid USDFC token address", token)
	}

	minFIL, err := parseThreshold(cfg.MinFILBalance, "0.01")
	if err != nil {
		return nil, err
	}
	minUSDFC, err := parseThreshold(cfg.MinUSDFCBalance, "0.1")
	if err != nil {
		return nil, err
	}

	return &Service{
		source:   source,
		token:    common.HexToAddress(token),
		minFIL:   minFIL,
		minUSDFC: minUSDFC,
		logger:   utils.ComponentLogger("wallet"),
	}, nil
}

func parseThreshold(value, fallback string) (decimal.Decimal, error) {
	if value == "" {
		value = fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid balance threshold", value)
	}
	return d, nil
}

// Network names a Filecoin EVM chain id
func Network(chainID int64) string {
	switch chainID {
	case CalibrationChainID:
		return "calibration"
	case MainnetChainID:
		return "mainnet"
	default:
		return "unknown"
	}
}

// Status reads chain id and balances for address
func (s *Service) Status(ctx context.Context, address string) (*Status, error) {
	if !utils.IsValidAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid wallet address", address)
	}
	account := common.HexToAddress(address)

	reader, err := s.source(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := reader.ChainID(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to read chain id", err.Error())
	}

	wei, err := reader.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to read FIL balance", err.Error())
	}
	fil := decimal.NewFromBigInt(wei, -18)

	usdfc, err := s.tokenBalance(ctx, reader, account)
	if err != nil {
		// Token lookups fail on chains without the contract; report zero
		s.logger.WithError(err).WithField("address", utils.ShortAddress(address)).Warn("USDFC balance unavailable")
		usdfc = decimal.Zero
	}

	return &Status{
		Address:          utils.NormalizeAddress(address),
		ChainID:          chainID.Int64(),
		Network:          Network(chainID.Int64()),
		IsCalibnet:       chainID.Int64() == CalibrationChainID,
		FILBalance:       fil.String(),
		USDFCBalance:     usdfc.String(),
		HasEnoughBalance: s.HasEnoughBalance(fil, usdfc),
	}, nil
}

// HasEnoughBalance reports whether both balances exceed the configured minimums
func (s *Service) HasEnoughBalance(fil, usdfc decimal.Decimal) bool {
	return fil.GreaterThan(s.minFIL) && usdfc.GreaterThan(s.minUSDFC)
}

func (s *Service) tokenBalance(ctx context.Context, reader Reader, account common.Address) (decimal.Decimal, error) {
	raw, err := s.callToken(ctx, reader, "balanceOf", account)
	if err != nil {
		return decimal.Zero, err
	}
	balance, ok := raw[0].(*big.Int)
	if !ok {
		return decimal.Zero, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected balanceOf output")
	}

	raw, err = s.callToken(ctx, reader, "decimals")
	if err != nil {
		return decimal.Zero, err
	}
	decimals, ok := raw[0].(uint8)
	if !ok {
		return decimal.Zero, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected decimals output")
	}

	return decimal.NewFromBigInt(balance, -int32(decimals)), nil
}

func (s *Service) callToken(ctx context.Context, reader Reader, method string, args ...interface{}) ([]interface{}, error) {
	input, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	output, err := reader.CallContract(ctx, ethereum.CallMsg{To: &s.token, Data: input}, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Token call "+method+" failed", err.Error())
	}
	return erc20.Unpack(method, output)
}
