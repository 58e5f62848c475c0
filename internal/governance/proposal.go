// File: internal/governance/proposal.go
package governance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// ProposalVoting casts rug/safe votes on proposals
type ProposalVoting struct {
	*contract
}

// NewProposalVoting binds the proposal voting contract at address
func NewProposalVoting(address string, dial Dialer, opts Options) (*ProposalVoting, error) {
	if address == "" {
		address = DefaultProposalVoteAddress
	}
	c, err := newContract("ProposalVote", address, proposalVoteABI, dial, opts)
	if err != nil {
		return nil, err
	}
	return &ProposalVoting{contract: c}, nil
}

// Vote casts support (true means no-rug) for proposalID from the signer account
func (p *ProposalVoting) Vote(ctx context.Context, proposalID string, support bool) (*TxResult, error) {
	if proposalID == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Proposal ID is required")
	}
	if p.signer == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No signing key configured", "ProposalVote.vote")
	}

	voted, err := p.SignerVoted(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, utils.NewAppError(utils.ErrCodeConflict, "You have already voted on this proposal", proposalID)
	}

	p.logger.WithFields(logrus.Fields{
		"proposal_id": proposalID,
		"support":     support,
	}).Info("Submitting proposal vote")

	result, _, err := p.transact(ctx, "vote", proposalID, support)
	return result, err
}

// HasVoted reports whether voter already voted on proposalID
func (p *ProposalVoting) HasVoted(ctx context.Context, proposalID, voter string) (bool, error) {
	if !common.IsHexAddress(voter) {
		return false, utils.NewAppError(utils.ErrCodeValidation, "Invalid voter address", voter)
	}
	out, err := p.call(ctx, "hasVoted", proposalID, common.HexToAddress(voter))
	if err != nil {
		return false, err
	}
	voted, ok := out[0].(bool)
	if !ok {
		return false, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected hasVoted output")
	}
	return voted, nil
}

// SignerVoted reports whether the signing account already voted on proposalID.
// Without a signer nothing can have been cast, so it reports false.
func (p *ProposalVoting) SignerVoted(ctx context.Context, proposalID string) (bool, error) {
	if p.signer == nil {
		return false, nil
	}
	return p.HasVoted(ctx, proposalID, p.signer.Address().Hex())
}

// GetVoteCount returns the on-chain tally for proposalID as decimal strings
func (p *ProposalVoting) GetVoteCount(ctx context.Context, proposalID string) (*models.ProposalVoteCount, error) {
	out, err := p.call(ctx, "getVoteCount", proposalID)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected getVoteCount output")
	}

	str := func(v interface{}) string {
		if n, ok := v.(*big.Int); ok && n != nil {
			return n.String()
		}
		return "0"
	}
	return &models.ProposalVoteCount{
		RugVotes:   str(out[0]),
		SafeVotes:  str(out[1]),
		TotalVotes: str(out[2]),
	}, nil
}
