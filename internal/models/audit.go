package models

// AuditAction names an audited operation
type AuditAction string

const (
	AuditVoteCast         AuditAction = "vote_cast"
	AuditAnalysisUploaded AuditAction = "analysis_uploaded"
	AuditProofGenerated   AuditAction = "proof_generated"
	AuditVoteSubmitted    AuditAction = "vote_submitted"
	AuditReceiptIndexed   AuditAction = "receipt_indexed"
)

// AuditEntry is an append-only trail row
type AuditEntry struct {
	ID              string                 `json:"id"`
	Action          AuditAction            `json:"action"`
	User            string                 `json:"user"`
	Timestamp       int64                  `json:"timestamp"`
	Details         map[string]interface{} `json:"details"`
	CID             string                 `json:"cid,omitempty"`
	BlockNumber     uint64                 `json:"blockNumber"`
	TransactionHash string                 `json:"transactionHash,omitempty"`
	LogIndex        *uint                  `json:"logIndex,omitempty"`
}

// AuditFilter narrows audit queries
type AuditFilter struct {
	User   string      `json:"user,omitempty"`
	Action AuditAction `json:"action,omitempty"`
	Limit  int         `json:"limit,omitempty"`
}
