package models

// ProposalVote is the choice on a governance proposal
type ProposalVote string

const (
	ProposalVoteRug   ProposalVote = "rug"
	ProposalVoteNoRug ProposalVote = "no-rug"
)

// Valid reports whether the vote is one of the known choices
func (v ProposalVote) Valid() bool {
	return v == ProposalVoteRug || v == ProposalVoteNoRug
}

// Support is the boolean the proposal contract expects (true = safe)
func (v ProposalVote) Support() bool {
	return v == ProposalVoteNoRug
}

// PendingVote is a vote queued by a user but not yet submitted on-chain
type PendingVote struct {
	ProposalID  string       `json:"proposalId"`
	Vote        ProposalVote `json:"vote"`
	UserAddress string       `json:"userAddress"`
	Timestamp   int64        `json:"timestamp"`
	Version     int64        `json:"version"`
}

// CoinVote is the choice on a memecoin
type CoinVote string

const (
	CoinVoteSafe    CoinVote = "safe"
	CoinVoteRug     CoinVote = "rug"
	CoinVoteNeutral CoinVote = "neutral"
)

// Valid reports whether the vote is one of the known choices
func (v CoinVote) Valid() bool {
	switch v {
	case CoinVoteSafe, CoinVoteRug, CoinVoteNeutral:
		return true
	}
	return false
}

// MarketData is the market snapshot carried by a receipt
type MarketData struct {
	Price          float64 `json:"price"`
	MarketCap      float64 `json:"marketCap"`
	Volume24h      float64 `json:"volume24h"`
	PriceChange24h float64 `json:"priceChange24h"`
}

// VoteReceipt is the JSON document uploaded for a memecoin vote
type VoteReceipt struct {
	CoinID        string     `json:"coinId"`
	CoinSymbol    string     `json:"coinSymbol"`
	CoinName      string     `json:"coinName"`
	Voter         string     `json:"voter"`
	Vote          CoinVote   `json:"vote"`
	Confidence    int        `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	Timestamp     int64      `json:"timestamp"`
	MarketData    MarketData `json:"marketData"`
	ProofContract string     `json:"proofContract"`
}

// VoteRecord is a stored receipt and where it lives
type VoteRecord struct {
	ID string `json:"id"`
	VoteReceipt
	CID      string `json:"cid"`
	Provider string `json:"provider"`
}

// ProposalVoteCount mirrors the proposal contract's tally
type ProposalVoteCount struct {
	RugVotes   string `json:"rugVotes"`
	SafeVotes  string `json:"safeVotes"`
	TotalVotes string `json:"totalVotes"`
}
