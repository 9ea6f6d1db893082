package storage

// Migration represents a database migration. Statements run one at a time so
// drivers without multi-statement support can apply them.
type Migration struct {
	Version     string
	Description string
	Statements  []string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					contract_address TEXT NOT NULL,
					token_id INTEGER,
					from_address TEXT NOT NULL,
					to_address TEXT NOT NULL DEFAULT '',
					tx_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					block_number INTEGER NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_contract ON transactions(contract_address)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
			},
		},
		{
			Version:     "002",
			Description: "Create check-ins table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS checkins (
					id TEXT PRIMARY KEY,
					contract_address TEXT NOT NULL,
					token_id INTEGER NOT NULL,
					claimed_owner TEXT NOT NULL,
					current_owner TEXT NOT NULL DEFAULT '',
					valid BOOLEAN NOT NULL DEFAULT FALSE,
					reason TEXT NOT NULL DEFAULT '',
					scanned_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_checkins_ticket ON checkins(contract_address, token_id)`,
			},
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id VARCHAR(64) PRIMARY KEY,
					kind VARCHAR(32) NOT NULL,
					contract_address VARCHAR(42) NOT NULL,
					token_id BIGINT,
					from_address VARCHAR(42) NOT NULL,
					to_address VARCHAR(42) NOT NULL DEFAULT '',
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					block_number BIGINT NOT NULL DEFAULT 0,
					created_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_contract ON transactions(contract_address)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
			},
		},
		{
			Version:     "002",
			Description: "Create check-ins table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS checkins (
					id VARCHAR(64) PRIMARY KEY,
					contract_address VARCHAR(42) NOT NULL,
					token_id BIGINT NOT NULL,
					claimed_owner VARCHAR(128) NOT NULL,
					current_owner VARCHAR(42) NOT NULL DEFAULT '',
					valid BOOLEAN NOT NULL DEFAULT FALSE,
					reason TEXT NOT NULL DEFAULT '',
					scanned_at BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_checkins_ticket ON checkins(contract_address, token_id)`,
			},
		},
	}
}

// GetMySQLMigrations returns MySQL migration scripts. MySQL has no
// CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
func GetMySQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id VARCHAR(64) PRIMARY KEY,
					kind VARCHAR(32) NOT NULL,
					contract_address VARCHAR(42) NOT NULL,
					token_id BIGINT UNSIGNED NULL,
					from_address VARCHAR(42) NOT NULL,
					to_address VARCHAR(42) NOT NULL DEFAULT '',
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					status VARCHAR(16) NOT NULL,
					reason TEXT NOT NULL,
					block_number BIGINT UNSIGNED NOT NULL DEFAULT 0,
					created_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL,
					INDEX idx_transactions_contract (contract_address),
					INDEX idx_transactions_status (status),
					INDEX idx_transactions_created (created_at)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
		{
			Version:     "002",
			Description: "Create check-ins table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS checkins (
					id VARCHAR(64) PRIMARY KEY,
					contract_address VARCHAR(42) NOT NULL,
					token_id BIGINT UNSIGNED NOT NULL,
					claimed_owner VARCHAR(128) NOT NULL,
					current_owner VARCHAR(42) NOT NULL DEFAULT '',
					valid BOOLEAN NOT NULL DEFAULT FALSE,
					reason TEXT NOT NULL,
					scanned_at BIGINT NOT NULL,
					INDEX idx_checkins_ticket (contract_address, token_id)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
	}
}
