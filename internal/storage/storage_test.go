package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventContract = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	store, err := NewStorage(config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal", "test.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func TestNewStorageValidation(t *testing.T) {
	_, err := NewStorage(config.StorageConfig{Type: "oracle", ConnectionString: "x"})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))

	_, err = NewStorage(config.StorageConfig{Type: "sqlite"})
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))

	for _, kind := range []string{"postgres", "postgresql", "mysql", "SQLite"} {
		store, err := NewStorage(config.StorageConfig{Type: kind, ConnectionString: "dsn"})
		require.NoError(t, err, kind)
		assert.NotNil(t, store)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := newTestStorage(t)
	assert.NoError(t, store.Migrate())
	assert.NoError(t, store.Ping())
}

func TestTransactionJournal(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	record := &models.TransactionRecord{
		Kind:            models.TxKindMint,
		ContractAddress: eventContract,
		From:            "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Status:          models.TxStatusPending,
	}
	require.NoError(t, store.SaveTransaction(ctx, record))
	require.NotEmpty(t, record.ID)

	tokenID := uint64(121)
	record.TxHash = "0x1234"
	record.Status = models.TxStatusConfirmed
	record.BlockNumber = 9
	record.TokenID = &tokenID
	require.NoError(t, store.UpdateTransaction(ctx, record))

	got, err := store.GetTransaction(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxKindMint, got.Kind)
	assert.Equal(t, models.TxStatusConfirmed, got.Status)
	assert.Equal(t, "0x1234", got.TxHash)
	assert.Equal(t, uint64(9), got.BlockNumber)
	require.NotNil(t, got.TokenID)
	assert.Equal(t, uint64(121), *got.TokenID)
	// Addresses are journaled case-folded
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", got.ContractAddress)

	err = store.SaveTransaction(ctx, &models.TransactionRecord{
		ID:     record.ID,
		Kind:   models.TxKindMint,
		Status: models.TxStatusPending,
	})
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))

	_, err = store.GetTransaction(ctx, "missing")
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))

	err = store.UpdateTransaction(ctx, &models.TransactionRecord{ID: "missing", Status: models.TxStatusFailed})
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))
}

func TestGetTransactionsFilter(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	entries := []struct {
		kind   models.TransactionKind
		status models.TransactionStatus
	}{
		{models.TxKindCreateEvent, models.TxStatusConfirmed},
		{models.TxKindMint, models.TxStatusFailed},
		{models.TxKindMint, models.TxStatusConfirmed},
		{models.TxKindTransfer, models.TxStatusPending},
	}
	for i, e := range entries {
		require.NoError(t, store.SaveTransaction(ctx, &models.TransactionRecord{
			Kind:            e.kind,
			ContractAddress: eventContract,
			From:            "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Status:          e.status,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.GetTransactions(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, models.TxKindTransfer, all[0].Kind, "newest first")

	mint := models.TxKindMint
	mints, err := store.GetTransactions(ctx, models.TransactionFilter{Kind: &mint})
	require.NoError(t, err)
	assert.Len(t, mints, 2)

	confirmed := models.TxStatusConfirmed
	contract := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	filtered, err := store.GetTransactions(ctx, models.TransactionFilter{
		Kind:            &mint,
		Status:          &confirmed,
		ContractAddress: &contract,
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	page, err := store.GetTransactions(ctx, models.TransactionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, int64(2), stats.ConfirmedTransactions)
	assert.Equal(t, int64(1), stats.FailedTransactions)
	assert.Equal(t, int64(1), stats.PendingTransactions)
	require.NotNil(t, stats.LatestTransaction)
}

func TestGetTransactionsOldestUpdatedFirst(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	save := func() *models.TransactionRecord {
		record := &models.TransactionRecord{
			Kind:            models.TxKindTransfer,
			ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			Status:          models.TxStatusPending,
		}
		require.NoError(t, store.SaveTransaction(ctx, record))
		time.Sleep(5 * time.Millisecond)
		return record
	}
	first, second := save(), save()
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	third := save()

	stale, err := store.GetTransactions(ctx, models.TransactionFilter{UpdatedUntil: &cutoff, OldestFirst: true})
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, first.ID, stale[0].ID)
	assert.Equal(t, second.ID, stale[1].ID)

	require.NoError(t, store.UpdateTransaction(ctx, first))
	ordered, err := store.GetTransactions(ctx, models.TransactionFilter{OldestFirst: true})
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{second.ID, third.ID, first.ID}, []string{ordered[0].ID, ordered[1].ID, ordered[2].ID})
}

func TestCheckIns(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	checkIns, err := store.GetCheckIns(ctx, eventContract, 42)
	require.NoError(t, err)
	assert.Empty(t, checkIns)

	require.NoError(t, store.SaveCheckIn(ctx, &models.CheckIn{
		ContractAddress: eventContract,
		TokenID:         42,
		ClaimedOwner:    "0xABC123",
		CurrentOwner:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Valid:           false,
		Reason:          "Owner mismatch",
	}))
	require.NoError(t, store.SaveCheckIn(ctx, &models.CheckIn{
		ContractAddress: eventContract,
		TokenID:         42,
		ClaimedOwner:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		CurrentOwner:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Valid:           true,
		ScannedAt:       time.Now().Add(time.Second),
	}))
	require.NoError(t, store.SaveCheckIn(ctx, &models.CheckIn{
		ContractAddress: eventContract,
		TokenID:         43,
		ClaimedOwner:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Valid:           true,
	}))

	checkIns, err = store.GetCheckIns(ctx, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 42)
	require.NoError(t, err)
	require.Len(t, checkIns, 2)
	assert.False(t, checkIns[0].Valid)
	assert.Equal(t, "Owner mismatch", checkIns[0].Reason)
	assert.True(t, checkIns[1].Valid)

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCheckIns)
	assert.Equal(t, int64(2), stats.ValidCheckIns)
}

func TestStorageWithMetrics(t *testing.T) {
	manager := metrics.NewManager()
	m := manager.GetPrometheusMetrics()
	store := NewStorageWithMetrics(newTestStorage(t), m)
	ctx := context.Background()

	require.NoError(t, store.SaveTransaction(ctx, &models.TransactionRecord{
		Kind:   models.TxKindCreateEvent,
		From:   "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Status: models.TxStatusPending,
	}))
	_, err := store.GetTransaction(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatabaseOperationsTotal.WithLabelValues("insert", "transactions", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DatabaseOperationsTotal.WithLabelValues("select", "transactions", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DatabaseConnections), float64(1))
}

func TestNotConnected(t *testing.T) {
	store := NewSQLiteStorage(&StorageConfig{ConnectionString: "unused.db", MaxConnections: 1})
	err := store.Ping()
	assert.True(t, utils.HasCode(err, utils.ErrCodeDatabase))
	_, err = store.GetCheckIns(context.Background(), eventContract, 1)
	assert.True(t, utils.HasCode(err, utils.ErrCodeDatabase))
	assert.NoError(t, store.Close())
	assert.Zero(t, store.OpenConnections())
}

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := normalizeMySQLDSN("gateway:secret@tcp(127.0.0.1:3306)/tickets")
	require.NoError(t, err)
	assert.Contains(t, dsn, "timeout=10s")

	_, err = normalizeMySQLDSN("not a dsn")
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))
}

func TestDuplicateClassifiers(t *testing.T) {
	assert.False(t, isSQLiteDuplicate(errors.New("boom")))
	assert.False(t, isPostgresDuplicate(errors.New("boom")))
	assert.False(t, isMySQLDuplicate(errors.New("boom")))
}

func TestRebind(t *testing.T) {
	pg := NewPostgreSQLStorage(&StorageConfig{})
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := NewSQLiteStorage(&StorageConfig{})
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
