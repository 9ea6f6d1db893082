package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// dialect captures what differs between the supported SQL engines
type dialect struct {
	name          string
	driver        string
	numbered      bool // $1, $2 placeholders instead of ?
	migrations    []*Migration
	isDuplicate   func(error) bool
	connectExtras func(db *sql.DB) error
}

// sqlStorage implements the journal on top of database/sql
type sqlStorage struct {
	db      *sql.DB
	config  *StorageConfig
	dialect dialect
	logger  *logrus.Entry
}

func newSQLStorage(config *StorageConfig, d dialect) *sqlStorage {
	return &sqlStorage{
		config:  config,
		dialect: d,
		logger:  utils.ComponentLogger("storage").WithField("driver", d.name),
	}
}

// open opens the pool for dsn and applies pool settings and dialect pragmas
func (s *sqlStorage) open(dsn string) error {
	db, err := sql.Open(s.dialect.driver, dsn)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open "+s.dialect.name+" database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(max(1, s.config.MaxConnections/2))
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping "+s.dialect.name+" database", err.Error())
	}

	if s.dialect.connectExtras != nil {
		if err := s.dialect.connectExtras(db); err != nil {
			db.Close()
			return err
		}
	}

	s.db = db
	s.logger.Info("Database connected")
	return nil
}

// Close closes the database connection
func (s *sqlStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Info("Database connection closed")
	return err
}

// Ping checks database connectivity
func (s *sqlStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *sqlStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	s.logger.Info("Starting database migrations")
	for _, migration := range s.dialect.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		for _, stmt := range migration.Statements {
			if _, err := s.db.Exec(stmt); err != nil {
				return utils.NewAppError(utils.ErrCodeDatabase,
					"Migration failed", migration.Version+": "+err.Error())
			}
		}
	}
	s.logger.Info("Database migrations completed")
	return nil
}

// rebind rewrites ? placeholders for engines that number them
func (s *sqlStorage) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStorage) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

const transactionColumns = `id, kind, contract_address, token_id, from_address, to_address,
	tx_hash, status, reason, block_number, created_at, updated_at`

// SaveTransaction inserts a new journal entry. An empty ID is filled in.
func (s *sqlStorage) SaveTransaction(ctx context.Context, record *models.TransactionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Kind),
		strings.ToLower(record.ContractAddress),
		nullableTokenID(record.TokenID),
		strings.ToLower(record.From),
		strings.ToLower(record.To),
		record.TxHash,
		string(record.Status),
		record.Reason,
		int64(record.BlockNumber),
		record.CreatedAt.UnixMilli(),
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if s.dialect.isDuplicate != nil && s.dialect.isDuplicate(err) {
			return utils.NewAppError(utils.ErrCodeValidation, "Transaction already journaled", record.ID)
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save transaction", err.Error())
	}
	return nil
}

// UpdateTransaction stores the outcome fields of an existing entry
func (s *sqlStorage) UpdateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	record.UpdatedAt = time.Now().UTC()

	result, err := s.exec(ctx, `UPDATE transactions
		SET tx_hash = ?, status = ?, reason = ?, block_number = ?, token_id = ?, updated_at = ?
		WHERE id = ?`,
		record.TxHash,
		string(record.Status),
		record.Reason,
		int64(record.BlockNumber),
		nullableTokenID(record.TokenID),
		record.UpdatedAt.UnixMilli(),
		record.ID,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update transaction", err.Error())
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", record.ID)
	}
	return nil
}

// GetTransaction retrieves a journal entry by ID
func (s *sqlStorage) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id)

	record, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get transaction", err.Error())
	}
	return record, nil
}

// GetTransactions lists journal entries, newest first unless the filter asks
// for the least recently updated ones
func (s *sqlStorage) GetTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.TransactionRecord, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []interface{}

	if filter.Kind != nil {
		query += " AND kind = ?"
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.ContractAddress != nil {
		query += " AND contract_address = ?"
		args = append(args, strings.ToLower(*filter.ContractAddress))
	}
	if filter.UpdatedUntil != nil {
		query += " AND updated_at <= ?"
		args = append(args, filter.UpdatedUntil.UnixMilli())
	}

	if filter.OldestFirst {
		query += " ORDER BY updated_at ASC, id"
	} else {
		query += " ORDER BY created_at DESC, id"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(0, filter.Offset))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query transactions", err.Error())
	}
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan transaction", err.Error())
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read transactions", err.Error())
	}
	return records, nil
}

// SaveCheckIn appends a check-in to the log. An empty ID is filled in.
func (s *sqlStorage) SaveCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	if checkIn.ID == "" {
		checkIn.ID = uuid.NewString()
	}
	if checkIn.ScannedAt.IsZero() {
		checkIn.ScannedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, `INSERT INTO checkins
		(id, contract_address, token_id, claimed_owner, current_owner, valid, reason, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		checkIn.ID,
		strings.ToLower(checkIn.ContractAddress),
		int64(checkIn.TokenID),
		checkIn.ClaimedOwner,
		strings.ToLower(checkIn.CurrentOwner),
		checkIn.Valid,
		checkIn.Reason,
		checkIn.ScannedAt.UnixMilli(),
	)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save check-in", err.Error())
	}
	return nil
}

// GetCheckIns returns the check-ins recorded for one ticket, oldest first
func (s *sqlStorage) GetCheckIns(ctx context.Context, contractAddress string, tokenID uint64) ([]*models.CheckIn, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT
		id, contract_address, token_id, claimed_owner, current_owner, valid, reason, scanned_at
		FROM checkins WHERE contract_address = ? AND token_id = ?
		ORDER BY scanned_at, id`),
		strings.ToLower(contractAddress), int64(tokenID))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query check-ins", err.Error())
	}
	defer rows.Close()

	var checkIns []*models.CheckIn
	for rows.Next() {
		var (
			c         models.CheckIn
			token     int64
			scannedAt int64
		)
		if err := rows.Scan(&c.ID, &c.ContractAddress, &token, &c.ClaimedOwner,
			&c.CurrentOwner, &c.Valid, &c.Reason, &scannedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan check-in", err.Error())
		}
		c.TokenID = uint64(token)
		c.ScannedAt = time.UnixMilli(scannedAt).UTC()
		checkIns = append(checkIns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read check-ins", err.Error())
	}
	return checkIns, nil
}

// GetStorageStats returns journal counters
func (s *sqlStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	stats := &StorageStats{}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count transactions", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan transaction counts", err.Error())
		}
		stats.TotalTransactions += count
		switch models.TransactionStatus(status) {
		case models.TxStatusPending:
			stats.PendingTransactions = count
		case models.TxStatusConfirmed:
			stats.ConfirmedTransactions = count
		case models.TxStatusFailed:
			stats.FailedTransactions = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read transaction counts", err.Error())
	}

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM transactions`).Scan(&latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest transaction", err.Error())
	}
	if latest.Valid {
		t := time.UnixMilli(latest.Int64).UTC()
		stats.LatestTransaction = &t
	}

	if err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*), COALESCE(SUM(CASE WHEN valid THEN 1 ELSE 0 END), 0) FROM checkins`).
		Scan(&stats.TotalCheckIns, &stats.ValidCheckIns); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count check-ins", err.Error())
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.TransactionRecord, error) {
	var (
		record      models.TransactionRecord
		kind        string
		status      string
		tokenID     sql.NullInt64
		blockNumber int64
		createdAt   int64
		updatedAt   int64
	)

	if err := row.Scan(
		&record.ID,
		&kind,
		&record.ContractAddress,
		&tokenID,
		&record.From,
		&record.To,
		&record.TxHash,
		&status,
		&record.Reason,
		&blockNumber,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	record.Kind = models.TransactionKind(kind)
	record.Status = models.TransactionStatus(status)
	if tokenID.Valid {
		id := uint64(tokenID.Int64)
		record.TokenID = &id
	}
	record.BlockNumber = uint64(blockNumber)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &record, nil
}

func nullableTokenID(tokenID *uint64) sql.NullInt64 {
	if tokenID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*tokenID), Valid: true}
}

// OpenConnections reports the pool's open connections
func (s *sqlStorage) OpenConnections() int {
	if s.db == nil {
		return 0
	}
	return s.db.Stats().OpenConnections
}
