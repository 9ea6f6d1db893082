package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/storage"
	"github.com/smartdevs17/ticket-gateway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification *models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

type reconcileFixture struct {
	ledger  *testutil.Ledger
	conn    *connection.ReadHandle
	journal storage.Storage
	signer  *connection.SigningHandle
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	ledger := testutil.NewLedger(31337)
	conn := connection.NewReadHandle(models.NetworkConfig{
		Name:            "localhost",
		ChainID:         ledger.ChainIDValue(),
		RPCURL:          "memory://ledger",
		RegistryAddress: ledger.Registry(),
	}, ledger)

	journal, err := storage.NewStorage(config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal.db"),
		MaxConnections:   2,
	})
	require.NoError(t, err)
	require.NoError(t, journal.Connect())
	require.NoError(t, journal.Migrate())
	t.Cleanup(func() { journal.Close() })

	key, _ := testutil.NewAccount()
	signer, err := connection.OpenSigningHandle(context.Background(), connection.NewKeyWallet(key), conn)
	require.NoError(t, err)

	return &reconcileFixture{ledger: ledger, conn: conn, journal: journal, signer: signer}
}

// submitMint sends a mint and journals it as pending without waiting for it
func (f *reconcileFixture) submitMint(t *testing.T) *models.TransactionRecord {
	t.Helper()
	event := f.ledger.AddEvent("Rock Fest", "ROCK", 500)
	handle, err := contracts.NewTicket(event, f.conn.Backend()).MintTicket(context.Background(), f.signer)
	require.NoError(t, err)

	record := &models.TransactionRecord{
		Kind:            models.TxKindMint,
		ContractAddress: event.Hex(),
		From:            f.signer.Address().Hex(),
		TxHash:          handle.Hash.Hex(),
		Status:          models.TxStatusPending,
	}
	require.NoError(t, f.journal.SaveTransaction(context.Background(), record))
	return record
}

func TestReconcileOnceSettlesMinedTransactions(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	record := f.submitMint(t)

	unknown := &models.TransactionRecord{
		Kind:            models.TxKindTransfer,
		ContractAddress: record.ContractAddress,
		TxHash:          common.HexToHash("0xdead").Hex(),
		Status:          models.TxStatusPending,
	}
	require.NoError(t, f.journal.SaveTransaction(ctx, unknown))

	notifier := &recordingNotifier{}
	r := NewReconciler(f.conn, f.journal, notifier, nil, ReconcilerConfig{})

	settled, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	stored, err := f.journal.GetTransaction(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusConfirmed, stored.Status)
	assert.NotZero(t, stored.BlockNumber)

	stillPending, err := f.journal.GetTransaction(ctx, unknown.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, stillPending.Status)

	require.Len(t, notifier.sent, 1)
	stats := r.GetStats()
	assert.Equal(t, uint64(1), stats.TotalConfirmed)
	assert.Equal(t, uint64(1), stats.Passes)

	// Settled entries are not picked up again
	settled, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
}

func TestReconcileOnceSkipsRecentEntries(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	record := f.submitMint(t)

	r := NewReconciler(f.conn, f.journal, nil, nil, ReconcilerConfig{MinAge: time.Hour})
	settled, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	stored, err := f.journal.GetTransaction(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, stored.Status)
}

func (f *reconcileFixture) savePending(t *testing.T, hash string) *models.TransactionRecord {
	t.Helper()
	record := &models.TransactionRecord{
		Kind:            models.TxKindTransfer,
		ContractAddress: f.ledger.Registry().Hex(),
		TxHash:          common.HexToHash(hash).Hex(),
		Status:          models.TxStatusPending,
	}
	require.NoError(t, f.journal.SaveTransaction(context.Background(), record))
	return record
}

func TestReconcileOnceReachesStaleEntriesBehindYoungOnes(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	stale := f.submitMint(t)
	time.Sleep(300 * time.Millisecond)

	for _, hash := range []string{"0xa1", "0xa2", "0xa3"} {
		f.savePending(t, hash)
	}

	r := NewReconciler(f.conn, f.journal, nil, nil, ReconcilerConfig{MinAge: 200 * time.Millisecond, BatchSize: 2})
	settled, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	stored, err := f.journal.GetTransaction(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusConfirmed, stored.Status)
}

func TestReconcileOnceRotatesUnminedEntries(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	unmined := f.savePending(t, "0xdead")
	time.Sleep(5 * time.Millisecond)
	mined := f.submitMint(t)
	time.Sleep(5 * time.Millisecond)

	r := NewReconciler(f.conn, f.journal, nil, nil, ReconcilerConfig{BatchSize: 1})
	settled, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled, "the oldest entry is not mined yet")

	time.Sleep(5 * time.Millisecond)
	settled, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	stored, err := f.journal.GetTransaction(ctx, mined.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusConfirmed, stored.Status)

	stored, err = f.journal.GetTransaction(ctx, unmined.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, stored.Status)
}

func TestReconcilerLifecycle(t *testing.T) {
	f := newReconcileFixture(t)
	record := f.submitMint(t)

	r := NewReconciler(f.conn, f.journal, nil, nil, ReconcilerConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		stored, err := f.journal.GetTransaction(context.Background(), record.ID)
		return err == nil && stored.Status == models.TxStatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}
