// File: internal/governance/votestorage.go
package governance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// StoredVote is one entry of the VoteStorage contract
type StoredVote struct {
	Index     uint64 `json:"index"`
	CID       string `json:"cid"`
	Voter     string `json:"voter"`
	Timestamp int64  `json:"timestamp"`
}

// VoteStoredEvent is the decoded VoteStored log
type VoteStoredEvent struct {
	CID         string `json:"cid"`
	Voter       string `json:"voter"`
	Timestamp   int64  `json:"timestamp"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// VoteStorage records receipt CIDs on chain
type VoteStorage struct {
	*contract
}

// NewVoteStorage binds the VoteStorage contract at address
func NewVoteStorage(address string, dial Dialer, opts Options) (*VoteStorage, error) {
	if address == "" {
		address = DefaultVoteStorageAddress
	}
	c, err := newContract("VoteStorage", address, voteStorageABI, dial, opts)
	if err != nil {
		return nil, err
	}
	return &VoteStorage{contract: c}, nil
}

// SubmitVote stores cid on chain and returns the mined transaction
func (v *VoteStorage) SubmitVote(ctx context.Context, cid string) (*TxResult, *VoteStoredEvent, error) {
	if cid == "" {
		return nil, nil, utils.NewAppError(utils.ErrCodeValidation, "CID is required")
	}

	result, receipt, err := v.transact(ctx, "submitVote", cid)
	if err != nil {
		return nil, nil, err
	}

	var event *VoteStoredEvent
	for _, log := range receipt.Logs {
		if ev, err := ParseVoteStored(*log); err == nil {
			event = ev
			break
		}
	}
	return result, event, nil
}

// GetVote reads the vote at index
func (v *VoteStorage) GetVote(ctx context.Context, index uint64) (*StoredVote, error) {
	out, err := v.call(ctx, "getVote", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected getVote output")
	}

	cid, _ := out[0].(string)
	voter, _ := out[1].(common.Address)
	ts, _ := out[2].(*big.Int)

	vote := &StoredVote{Index: index, CID: cid, Voter: voter.Hex()}
	if ts != nil {
		vote.Timestamp = ts.Int64()
	}
	return vote, nil
}

// GetVoteCount returns how many votes the contract holds
func (v *VoteStorage) GetVoteCount(ctx context.Context) (uint64, error) {
	out, err := v.call(ctx, "getVoteCount")
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok || count == nil {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected getVoteCount output")
	}
	return count.Uint64(), nil
}

// ParseVoteStored decodes a VoteStored log
func ParseVoteStored(log types.Log) (*VoteStoredEvent, error) {
	event := voteStorageABI.Events["VoteStored"]
	if len(log.Topics) < 2 || log.Topics[0] != event.ID {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Not a VoteStored log")
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Failed to unpack VoteStored", err.Error())
	}
	if len(values) != 2 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Unexpected VoteStored payload")
	}

	cid, _ := values[0].(string)
	ts, _ := values[1].(*big.Int)

	parsed := &VoteStoredEvent{
		CID:         cid,
		Voter:       common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}
	if ts != nil {
		parsed.Timestamp = ts.Int64()
	}
	return parsed, nil
}
