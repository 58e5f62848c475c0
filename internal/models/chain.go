package models

import "strings"

// Decision is the community verdict derived from vote ratios
type Decision string

const (
	DecisionRugged  Decision = "rugged"
	DecisionSafe    Decision = "safe"
	DecisionPending Decision = "pending"
)

// Decisions lists every bucket in display order
var Decisions = []Decision{DecisionRugged, DecisionSafe, DecisionPending}

// ParseDecision maps a category name to a Decision. Unknown names fall back to pending.
func ParseDecision(s string) Decision {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionRugged:
		return DecisionRugged
	case DecisionSafe:
		return DecisionSafe
	default:
		return DecisionPending
	}
}

// CategoryKey returns the storage key of the bucket
func (d Decision) CategoryKey() string {
	return string(ParseDecision(string(d))) + "-chains"
}

// VoteResults holds raw community vote counters
type VoteResults struct {
	RugVotes   int64 `json:"rugVotes"`
	NoRugVotes int64 `json:"noRugVotes"`
	TotalVotes int64 `json:"totalVotes"`
}

// ChainMetadata is free-form display data
type ChainMetadata struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	TimeLeft    string `json:"timeLeft"`
}

// StorageProof is attached after an upload
type StorageProof struct {
	CID       string `json:"cid"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// ChainData is a rated project record
type ChainData struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Blockchain      string        `json:"blockchain"`
	ContractAddress string        `json:"contractAddress,omitempty"`
	RiskFactors     []string      `json:"riskFactors"`
	VoteResults     VoteResults   `json:"voteResults"`
	FinalDecision   Decision      `json:"finalDecision"`
	Timestamp       int64         `json:"timestamp"`
	Metadata        ChainMetadata `json:"metadata"`
	StorageProof    *StorageProof `json:"storageProof,omitempty"`
}

// WithoutProof returns a copy of the record with the storage proof removed
func (c ChainData) WithoutProof() ChainData {
	c.StorageProof = nil
	return c
}

// StorageResult reports the outcome of an upload
type StorageResult struct {
	Success bool   `json:"success"`
	CID     string `json:"cid,omitempty"`
	Error   string `json:"error,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Size    string `json:"size,omitempty"`
}

// StorageStats aggregates bucket counts
type StorageStats struct {
	RuggedCount  int64  `json:"ruggedCount"`
	SafeCount    int64  `json:"safeCount"`
	PendingCount int64  `json:"pendingCount"`
	TotalStorage string `json:"totalStorage"`
}

// CategoryIndex tracks the size of a bucket
type CategoryIndex struct {
	Category  Decision `json:"category"`
	Key       string   `json:"key"`
	Count     int64    `json:"count"`
	LastCID   string   `json:"lastCid,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}
