package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// ComputeChecksum fingerprints the migration body
func (m *Migration) ComputeChecksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:8])
}

const schemaMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	);
`

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create chains table",
			SQL: `
				CREATE TABLE IF NOT EXISTS chains (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					blockchain TEXT NOT NULL,
					contract_address TEXT,
					risk_factors TEXT NOT NULL DEFAULT '[]', -- JSON
					rug_votes INTEGER NOT NULL DEFAULT 0,
					no_rug_votes INTEGER NOT NULL DEFAULT 0,
					total_votes INTEGER NOT NULL DEFAULT 0,
					final_decision TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					description TEXT,
					category TEXT,
					time_left TEXT,
					proof_cid TEXT,
					proof_timestamp INTEGER,
					proof_hash TEXT,
					updated_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_chains_decision ON chains(final_decision);
				CREATE INDEX IF NOT EXISTS idx_chains_updated_at ON chains(updated_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create category_index table",
			SQL: `
				CREATE TABLE IF NOT EXISTS category_index (
					category TEXT PRIMARY KEY,
					key TEXT NOT NULL,
					count INTEGER NOT NULL DEFAULT 0,
					last_cid TEXT,
					updated_at INTEGER NOT NULL
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create pending_votes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS pending_votes (
					proposal_id TEXT NOT NULL,
					user_address TEXT NOT NULL,
					vote TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					version INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (proposal_id, user_address)
				);

				CREATE INDEX IF NOT EXISTS idx_pending_votes_user ON pending_votes(user_address);
			`,
		},
		{
			Version:     "004",
			Description: "Create vote_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS vote_records (
					id TEXT PRIMARY KEY,
					coin_id TEXT NOT NULL,
					coin_symbol TEXT,
					coin_name TEXT,
					voter TEXT NOT NULL,
					vote TEXT NOT NULL,
					confidence INTEGER NOT NULL,
					reasoning TEXT,
					timestamp INTEGER NOT NULL,
					market_data TEXT, -- JSON
					proof_contract TEXT,
					cid TEXT NOT NULL,
					provider TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_vote_records_coin ON vote_records(coin_id);
				CREATE INDEX IF NOT EXISTS idx_vote_records_timestamp ON vote_records(timestamp);
			`,
		},
		{
			Version:     "005",
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					user_address TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					details TEXT, -- JSON
					cid TEXT,
					block_number INTEGER NOT NULL DEFAULT 0,
					transaction_hash TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_address);
				CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
			`,
		},
		{
			Version:     "006",
			Description: "Create blobs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS blobs (
					cid TEXT PRIMARY KEY,
					data BLOB NOT NULL,
					size INTEGER NOT NULL,
					created_at INTEGER NOT NULL
				);
			`,
		},
		{
			Version:     "007",
			Description: "Create monitor_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS monitor_state (
					name TEXT PRIMARY KEY,
					next_block INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
			`,
		},
		{
			Version:     "008",
			Description: "Index audit entries by log position",
			SQL: `
				ALTER TABLE audit_log ADD COLUMN log_index INTEGER;

				CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_log_position ON audit_log(transaction_hash, log_index);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create chains table",
			SQL: `
				CREATE TABLE IF NOT EXISTS chains (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					blockchain TEXT NOT NULL,
					contract_address TEXT,
					risk_factors JSONB NOT NULL DEFAULT '[]',
					rug_votes BIGINT NOT NULL DEFAULT 0,
					no_rug_votes BIGINT NOT NULL DEFAULT 0,
					total_votes BIGINT NOT NULL DEFAULT 0,
					final_decision TEXT NOT NULL,
					timestamp BIGINT NOT NULL,
					description TEXT,
					category TEXT,
					time_left TEXT,
					proof_cid TEXT,
					proof_timestamp BIGINT,
					proof_hash TEXT,
					updated_at BIGINT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_chains_decision ON chains(final_decision);
				CREATE INDEX IF NOT EXISTS idx_chains_updated_at ON chains(updated_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create category_index table",
			SQL: `
				CREATE TABLE IF NOT EXISTS category_index (
					category TEXT PRIMARY KEY,
					key TEXT NOT NULL,
					count BIGINT NOT NULL DEFAULT 0,
					last_cid TEXT,
					updated_at BIGINT NOT NULL
				);
			`,
		},
		{
			Version:     "003",
			Description: "Create pending_votes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS pending_votes (
					proposal_id TEXT NOT NULL,
					user_address TEXT NOT NULL,
					vote TEXT NOT NULL,
					timestamp BIGINT NOT NULL,
					version BIGINT NOT NULL DEFAULT 1,
					PRIMARY KEY (proposal_id, user_address)
				);

				CREATE INDEX IF NOT EXISTS idx_pending_votes_user ON pending_votes(user_address);
			`,
		},
		{
			Version:     "004",
			Description: "Create vote_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS vote_records (
					id TEXT PRIMARY KEY,
					coin_id TEXT NOT NULL,
					coin_symbol TEXT,
					coin_name TEXT,
					voter TEXT NOT NULL,
					vote TEXT NOT NULL,
					confidence INTEGER NOT NULL,
					reasoning TEXT,
					timestamp BIGINT NOT NULL,
					market_data JSONB,
					proof_contract TEXT,
					cid TEXT NOT NULL,
					provider TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_vote_records_coin ON vote_records(coin_id);
				CREATE INDEX IF NOT EXISTS idx_vote_records_timestamp ON vote_records(timestamp);
			`,
		},
		{
			Version:     "005",
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					user_address TEXT NOT NULL,
					timestamp BIGINT NOT NULL,
					details JSONB,
					cid TEXT,
					block_number BIGINT NOT NULL DEFAULT 0,
					transaction_hash TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_address);
				CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
			`,
		},
		{
			Version:     "006",
			Description: "Create blobs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS blobs (
					cid TEXT PRIMARY KEY,
					data BYTEA NOT NULL,
					size BIGINT NOT NULL,
					created_at BIGINT NOT NULL
				);
			`,
		},
		{
			Version:     "007",
			Description: "Create monitor_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS monitor_state (
					name TEXT PRIMARY KEY,
					next_block BIGINT NOT NULL,
					updated_at BIGINT NOT NULL
				);
			`,
		},
		{
			Version:     "008",
			Description: "Index audit entries by log position",
			SQL: `
				ALTER TABLE audit_log ADD COLUMN IF NOT EXISTS log_index BIGINT;

				CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_log_position ON audit_log(transaction_hash, log_index);
			`,
		},
	}
}
