package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecision(t *testing.T) {
	assert.Equal(t, DecisionRugged, ParseDecision("rugged"))
	assert.Equal(t, DecisionSafe, ParseDecision(" SAFE "))
	assert.Equal(t, DecisionPending, ParseDecision("pending"))
	assert.Equal(t, DecisionPending, ParseDecision("whatever"))
}

func TestCategoryKey(t *testing.T) {
	assert.Equal(t, "rugged-chains", DecisionRugged.CategoryKey())
	assert.Equal(t, "safe-chains", DecisionSafe.CategoryKey())
	assert.Equal(t, "pending-chains", Decision("bogus").CategoryKey())
}

func TestProposalVoteSupport(t *testing.T) {
	assert.True(t, ProposalVoteNoRug.Support())
	assert.False(t, ProposalVoteRug.Support())
	assert.False(t, ProposalVote("maybe").Valid())
}

func TestWithoutProof(t *testing.T) {
	c := ChainData{ID: "x", StorageProof: &StorageProof{CID: "bafy"}}
	stripped := c.WithoutProof()

	assert.Nil(t, stripped.StorageProof)
	assert.NotNil(t, c.StorageProof)
}
