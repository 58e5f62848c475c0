// File: internal/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with $n placeholders and rebound per driver.
type sqlStore struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
	numbered   bool // driver accepts $n natively
}

func (s *sqlStore) rebind(query string) string {
	if s.numbered {
		return query
	}
	// SQLite understands ?NNN, which keeps repeated parameters intact
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) limit(n int) int {
	if n > 0 {
		return n
	}
	if s.config != nil && s.config.DefaultLimit > 0 {
		return s.config.DefaultLimit
	}
	return 100
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("Database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *sqlStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies every migration not yet recorded in schema_migrations
func (s *sqlStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	ctx := context.Background()
	s.logger.Info("Starting database migrations")

	if _, err := s.db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range s.migrations {
		var applied int
		if err := s.queryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`,
			migration.Version).Scan(&applied); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read migrations", err.Error())
		}
		if applied > 0 {
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.ExecContext(ctx, migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}

		if _, err := s.exec(ctx,
			`INSERT INTO schema_migrations (version, description, checksum, applied_at) VALUES ($1, $2, $3, $4)`,
			migration.Version, migration.Description, migration.ComputeChecksum(), time.Now().UnixMilli()); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveChain inserts or replaces a chain record
func (s *sqlStore) SaveChain(ctx context.Context, chain *models.ChainData) error {
	if chain == nil || chain.ID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Chain id is required", "")
	}

	riskFactors := chain.RiskFactors
	if riskFactors == nil {
		riskFactors = []string{}
	}
	riskJSON, err := json.Marshal(riskFactors)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal risk factors", err.Error())
	}

	var proofCID, proofHash, proofTimestamp interface{}
	if chain.StorageProof != nil {
		proofCID = chain.StorageProof.CID
		proofHash = chain.StorageProof.Hash
		proofTimestamp = chain.StorageProof.Timestamp
	}

	query := `
		INSERT INTO chains (id, name, blockchain, contract_address, risk_factors,
			rug_votes, no_rug_votes, total_votes, final_decision, timestamp,
			description, category, time_left, proof_cid, proof_timestamp, proof_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			blockchain = excluded.blockchain,
			contract_address = excluded.contract_address,
			risk_factors = excluded.risk_factors,
			rug_votes = excluded.rug_votes,
			no_rug_votes = excluded.no_rug_votes,
			total_votes = excluded.total_votes,
			final_decision = excluded.final_decision,
			timestamp = excluded.timestamp,
			description = excluded.description,
			category = excluded.category,
			time_left = excluded.time_left,
			proof_cid = excluded.proof_cid,
			proof_timestamp = excluded.proof_timestamp,
			proof_hash = excluded.proof_hash,
			updated_at = excluded.updated_at
	`

	_, err = s.exec(ctx, query,
		chain.ID, chain.Name, chain.Blockchain, chain.ContractAddress, string(riskJSON),
		chain.VoteResults.RugVotes, chain.VoteResults.NoRugVotes, chain.VoteResults.TotalVotes,
		string(chain.FinalDecision), chain.Timestamp,
		chain.Metadata.Description, chain.Metadata.Category, chain.Metadata.TimeLeft,
		proofCID, proofTimestamp, proofHash, time.Now().UnixNano())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save chain", err.Error())
	}
	return nil
}

const chainColumns = `id, name, blockchain, contract_address, risk_factors,
	rug_votes, no_rug_votes, total_votes, final_decision, timestamp,
	description, category, time_left, proof_cid, proof_timestamp, proof_hash`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChain(row rowScanner) (*models.ChainData, error) {
	var chain models.ChainData
	var decision, riskJSON string
	var contractAddress, description, category, timeLeft sql.NullString
	var proofCID, proofHash sql.NullString
	var proofTimestamp sql.NullInt64

	if err := row.Scan(&chain.ID, &chain.Name, &chain.Blockchain, &contractAddress, &riskJSON,
		&chain.VoteResults.RugVotes, &chain.VoteResults.NoRugVotes, &chain.VoteResults.TotalVotes,
		&decision, &chain.Timestamp, &description, &category, &timeLeft,
		&proofCID, &proofTimestamp, &proofHash); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(riskJSON), &chain.RiskFactors); err != nil {
		return nil, fmt.Errorf("unmarshal risk factors: %w", err)
	}

	chain.ContractAddress = contractAddress.String
	chain.FinalDecision = models.ParseDecision(decision)
	chain.Metadata = models.ChainMetadata{
		Description: description.String,
		Category:    category.String,
		TimeLeft:    timeLeft.String,
	}
	if proofCID.Valid && proofCID.String != "" {
		chain.StorageProof = &models.StorageProof{
			CID:       proofCID.String,
			Timestamp: proofTimestamp.Int64,
			Hash:      proofHash.String,
		}
	}
	return &chain, nil
}

// GetChain retrieves a chain record by id
func (s *sqlStore) GetChain(ctx context.Context, id string) (*models.ChainData, error) {
	row := s.queryRow(ctx, `SELECT `+chainColumns+` FROM chains WHERE id = $1`, id)
	chain, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Chain not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get chain", err.Error())
	}
	return chain, nil
}

// GetChainsByDecision lists a bucket, most recently stored first
func (s *sqlStore) GetChainsByDecision(ctx context.Context, decision models.Decision, limit int) ([]*models.ChainData, error) {
	rows, err := s.query(ctx,
		`SELECT `+chainColumns+` FROM chains WHERE final_decision = $1 ORDER BY updated_at DESC, id ASC LIMIT $2`,
		string(models.ParseDecision(string(decision))), s.limit(limit))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query chains", err.Error())
	}
	defer rows.Close()

	chains := []*models.ChainData{}
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan chain", err.Error())
		}
		chains = append(chains, chain)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate chains", err.Error())
	}
	return chains, nil
}

// CountChainsByDecision counts the records in a bucket
func (s *sqlStore) CountChainsByDecision(ctx context.Context, decision models.Decision) (int64, error) {
	var count int64
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM chains WHERE final_decision = $1`,
		string(models.ParseDecision(string(decision)))).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count chains", err.Error())
	}
	return count, nil
}

// RefreshCategoryIndex recounts a bucket and stores its index row
func (s *sqlStore) RefreshCategoryIndex(ctx context.Context, decision models.Decision, lastCID string) (*models.CategoryIndex, error) {
	decision = models.ParseDecision(string(decision))
	count, err := s.CountChainsByDecision(ctx, decision)
	if err != nil {
		return nil, err
	}

	index := &models.CategoryIndex{
		Category:  decision,
		Key:       decision.CategoryKey(),
		Count:     count,
		LastCID:   lastCID,
		UpdatedAt: time.Now().UnixMilli(),
	}

	// An empty lastCID recounts the bucket without moving its last CID
	query := `
		INSERT INTO category_index (category, key, count, last_cid, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category) DO UPDATE SET
			key = excluded.key,
			count = excluded.count,
			last_cid = COALESCE(NULLIF(excluded.last_cid, ''), category_index.last_cid),
			updated_at = excluded.updated_at
		RETURNING last_cid
	`
	var stored sql.NullString
	if err := s.queryRow(ctx, query, string(index.Category), index.Key, index.Count,
		index.LastCID, index.UpdatedAt).Scan(&stored); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to update category index", err.Error())
	}
	index.LastCID = stored.String
	return index, nil
}

// GetCategoryIndexes returns every stored index row
func (s *sqlStore) GetCategoryIndexes(ctx context.Context) ([]*models.CategoryIndex, error) {
	rows, err := s.query(ctx,
		`SELECT category, key, count, last_cid, updated_at FROM category_index ORDER BY category`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query category index", err.Error())
	}
	defer rows.Close()

	indexes := []*models.CategoryIndex{}
	for rows.Next() {
		var index models.CategoryIndex
		var category string
		var lastCID sql.NullString
		if err := rows.Scan(&category, &index.Key, &index.Count, &lastCID, &index.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan category index", err.Error())
		}
		index.Category = models.ParseDecision(category)
		index.LastCID = lastCID.String
		indexes = append(indexes, &index)
	}
	return indexes, rows.Err()
}

// UpsertPendingVote queues a vote, replacing any earlier vote by the same user
// on the same proposal. The stored version is written back into vote.
func (s *sqlStore) UpsertPendingVote(ctx context.Context, vote *models.PendingVote) error {
	query := `
		INSERT INTO pending_votes (proposal_id, user_address, vote, timestamp, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (proposal_id, user_address) DO UPDATE SET
			vote = excluded.vote,
			timestamp = excluded.timestamp,
			version = pending_votes.version + 1
		RETURNING version
	`
	var version int64
	if err := s.queryRow(ctx, query, vote.ProposalID, vote.UserAddress,
		string(vote.Vote), vote.Timestamp).Scan(&version); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save pending vote", err.Error())
	}
	vote.Version = version
	return nil
}

// UpdatePendingVote changes a queued vote only if it is still at expectedVersion
func (s *sqlStore) UpdatePendingVote(ctx context.Context, vote *models.PendingVote, expectedVersion int64) error {
	result, err := s.exec(ctx, `
		UPDATE pending_votes SET vote = $1, timestamp = $2, version = version + 1
		WHERE proposal_id = $3 AND user_address = $4 AND version = $5`,
		string(vote.Vote), vote.Timestamp, vote.ProposalID, vote.UserAddress, expectedVersion)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update pending vote", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update pending vote", err.Error())
	}
	if affected == 0 {
		if _, err := s.GetPendingVote(ctx, vote.ProposalID, vote.UserAddress); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	vote.Version = expectedVersion + 1
	return nil
}

// GetPendingVote returns a queued vote
func (s *sqlStore) GetPendingVote(ctx context.Context, proposalID, userAddress string) (*models.PendingVote, error) {
	var vote models.PendingVote
	var choice string
	err := s.queryRow(ctx, `
		SELECT proposal_id, user_address, vote, timestamp, version
		FROM pending_votes WHERE proposal_id = $1 AND user_address = $2`,
		proposalID, userAddress).Scan(&vote.ProposalID, &vote.UserAddress, &choice, &vote.Timestamp, &vote.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Pending vote not found",
			fmt.Sprintf("proposal=%s user=%s", proposalID, userAddress))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get pending vote", err.Error())
	}
	vote.Vote = models.ProposalVote(choice)
	return &vote, nil
}

// ListPendingVotes lists queued votes, optionally for one user, oldest first
func (s *sqlStore) ListPendingVotes(ctx context.Context, userAddress string) ([]*models.PendingVote, error) {
	query := `SELECT proposal_id, user_address, vote, timestamp, version FROM pending_votes`
	args := []interface{}{}
	if userAddress != "" {
		query += ` WHERE user_address = $1`
		args = append(args, userAddress)
	}
	query += ` ORDER BY timestamp ASC, proposal_id ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query pending votes", err.Error())
	}
	defer rows.Close()
	return scanPendingVotes(rows)
}

// ListProposalVotes lists every queued vote on a proposal, oldest first
func (s *sqlStore) ListProposalVotes(ctx context.Context, proposalID string) ([]*models.PendingVote, error) {
	rows, err := s.query(ctx, `
		SELECT proposal_id, user_address, vote, timestamp, version
		FROM pending_votes WHERE proposal_id = $1
		ORDER BY timestamp ASC, user_address ASC`, proposalID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query pending votes", err.Error())
	}
	defer rows.Close()
	return scanPendingVotes(rows)
}

func scanPendingVotes(rows *sql.Rows) ([]*models.PendingVote, error) {
	votes := []*models.PendingVote{}
	for rows.Next() {
		var vote models.PendingVote
		var choice string
		if err := rows.Scan(&vote.ProposalID, &vote.UserAddress, &choice, &vote.Timestamp, &vote.Version); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan pending vote", err.Error())
		}
		vote.Vote = models.ProposalVote(choice)
		votes = append(votes, &vote)
	}
	return votes, rows.Err()
}

// DeletePendingVote removes a queued vote
func (s *sqlStore) DeletePendingVote(ctx context.Context, proposalID, userAddress string) error {
	result, err := s.exec(ctx,
		`DELETE FROM pending_votes WHERE proposal_id = $1 AND user_address = $2`, proposalID, userAddress)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete pending vote", err.Error())
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Pending vote not found",
			fmt.Sprintf("proposal=%s user=%s", proposalID, userAddress))
	}
	return nil
}

// CountPendingVotes counts the whole queue
func (s *sqlStore) CountPendingVotes(ctx context.Context) (int64, error) {
	var count int64
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM pending_votes`).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count pending votes", err.Error())
	}
	return count, nil
}

// SaveVoteRecord stores an uploaded vote receipt
func (s *sqlStore) SaveVoteRecord(ctx context.Context, record *models.VoteRecord) error {
	if record.ID == "" {
		record.ID = utils.GenerateID()
	}
	marketJSON, err := json.Marshal(record.MarketData)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal market data", err.Error())
	}

	_, err = s.exec(ctx, `
		INSERT INTO vote_records (id, coin_id, coin_symbol, coin_name, voter, vote, confidence,
			reasoning, timestamp, market_data, proof_contract, cid, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID, record.CoinID, record.CoinSymbol, record.CoinName, record.Voter, string(record.Vote),
		record.Confidence, record.Reasoning, record.Timestamp, string(marketJSON),
		record.ProofContract, record.CID, record.Provider)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save vote record", err.Error())
	}
	return nil
}

// GetVoteRecords lists stored receipts, newest first, optionally for one coin
func (s *sqlStore) GetVoteRecords(ctx context.Context, coinID string, limit int) ([]*models.VoteRecord, error) {
	query := `
		SELECT id, coin_id, coin_symbol, coin_name, voter, vote, confidence, reasoning,
			timestamp, market_data, proof_contract, cid, provider
		FROM vote_records`
	args := []interface{}{}
	if coinID != "" {
		query += ` WHERE coin_id = $1`
		args = append(args, coinID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d`, len(args)+1)
	args = append(args, s.limit(limit))

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query vote records", err.Error())
	}
	defer rows.Close()

	records := []*models.VoteRecord{}
	for rows.Next() {
		var record models.VoteRecord
		var vote string
		var symbol, name, reasoning, marketJSON, proofContract sql.NullString
		if err := rows.Scan(&record.ID, &record.CoinID, &symbol, &name, &record.Voter, &vote,
			&record.Confidence, &reasoning, &record.Timestamp, &marketJSON, &proofContract,
			&record.CID, &record.Provider); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan vote record", err.Error())
		}
		record.Vote = models.CoinVote(vote)
		record.CoinSymbol = symbol.String
		record.CoinName = name.String
		record.Reasoning = reasoning.String
		record.ProofContract = proofContract.String
		if marketJSON.Valid && marketJSON.String != "" {
			if err := json.Unmarshal([]byte(marketJSON.String), &record.MarketData); err != nil {
				return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal market data", err.Error())
			}
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// SaveAuditEntry appends to the audit trail
func (s *sqlStore) SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal audit details", err.Error())
	}

	var logIndex interface{}
	if entry.LogIndex != nil {
		logIndex = int64(*entry.LogIndex)
	}

	// Entries tied to a log position are written once
	_, err = s.exec(ctx, `
		INSERT INTO audit_log (id, action, user_address, timestamp, details, cid, block_number, transaction_hash, log_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		entry.ID, string(entry.Action), entry.User, entry.Timestamp, string(detailsJSON),
		entry.CID, int64(entry.BlockNumber), entry.TransactionHash, logIndex)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save audit entry", err.Error())
	}
	return nil
}

// GetAuditEntries queries the audit trail, newest first
func (s *sqlStore) GetAuditEntries(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, action, user_address, timestamp, details, cid, block_number, transaction_hash, log_index
		FROM audit_log WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.User != "" {
		query += fmt.Sprintf(" AND user_address = $%d", argIndex)
		args = append(args, filter.User)
		argIndex++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIndex)
		args = append(args, string(filter.Action))
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", argIndex)
	args = append(args, s.limit(filter.Limit))

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query audit log", err.Error())
	}
	defer rows.Close()

	entries := []*models.AuditEntry{}
	for rows.Next() {
		var entry models.AuditEntry
		var action string
		var detailsJSON, cid, txHash sql.NullString
		var blockNumber int64
		var logIndex sql.NullInt64
		if err := rows.Scan(&entry.ID, &action, &entry.User, &entry.Timestamp, &detailsJSON,
			&cid, &blockNumber, &txHash, &logIndex); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan audit entry", err.Error())
		}
		if logIndex.Valid {
			idx := uint(logIndex.Int64)
			entry.LogIndex = &idx
		}
		entry.Action = models.AuditAction(action)
		entry.CID = cid.String
		entry.TransactionHash = txHash.String
		entry.BlockNumber = uint64(blockNumber)
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
				return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal audit details", err.Error())
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// SaveBlob stores content under its CID. Content is immutable, so a repeated
// CID is left as is.
func (s *sqlStore) SaveBlob(ctx context.Context, cid string, data []byte) error {
	_, err := s.exec(ctx, `
		INSERT INTO blobs (cid, data, size, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (cid) DO NOTHING`,
		cid, data, int64(len(data)), time.Now().UnixMilli())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save blob", err.Error())
	}
	return nil
}

// GetBlob returns content stored under cid
func (s *sqlStore) GetBlob(ctx context.Context, cid string) ([]byte, error) {
	var data []byte
	err := s.queryRow(ctx, `SELECT data FROM blobs WHERE cid = $1`, cid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Content not found", cid)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get blob", err.Error())
	}
	return data, nil
}

// GetMonitorState returns the next block a named monitor should scan
func (s *sqlStore) GetMonitorState(ctx context.Context, name string) (uint64, bool, error) {
	var next int64
	err := s.queryRow(ctx, `SELECT next_block FROM monitor_state WHERE name = $1`, name).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read monitor state", err.Error())
	}
	return uint64(next), true, nil
}

// SaveMonitorState records the next block a named monitor should scan
func (s *sqlStore) SaveMonitorState(ctx context.Context, name string, nextBlock uint64) error {
	_, err := s.exec(ctx, `
		INSERT INTO monitor_state (name, next_block, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			next_block = excluded.next_block,
			updated_at = excluded.updated_at`,
		name, int64(nextBlock), time.Now().UnixMilli())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save monitor state", err.Error())
	}
	return nil
}

// GetStorageStats returns row counts per table
func (s *sqlStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{ChainsByDecision: make(map[models.Decision]int64)}

	for _, decision := range models.Decisions {
		count, err := s.CountChainsByDecision(ctx, decision)
		if err != nil {
			return nil, err
		}
		stats.ChainsByDecision[decision] = count
		stats.TotalChains += count
	}

	counts := []struct {
		table string
		dest  *int64
	}{
		{"pending_votes", &stats.TotalPendingVotes},
		{"vote_records", &stats.TotalVoteRecords},
		{"audit_log", &stats.TotalAuditEntries},
	}
	for _, c := range counts {
		if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count "+c.table, err.Error())
		}
	}

	var latest sql.NullInt64
	if err := s.queryRow(ctx, `SELECT MAX(updated_at) FROM chains`).Scan(&latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read latest chain", err.Error())
	}
	if latest.Valid {
		t := time.Unix(0, latest.Int64)
		stats.LatestChainAt = &t
	}
	return stats, nil
}
