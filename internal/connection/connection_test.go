package connection

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/testutil"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chainService struct {
	id uint64
}

func (s *chainService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(s.id))
}

func (s *chainService) BlockNumber() hexutil.Uint64 {
	return 42
}

func startNode(t *testing.T, chainID uint64) string {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &chainService{id: chainID}))
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
	})
	return ts.URL
}

func TestOpenReadConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("matching chain id", func(t *testing.T) {
		url := startNode(t, 31337)
		handle, err := OpenReadConnection(ctx, models.NetworkConfig{Name: "localhost", ChainID: 31337, RPCURL: url}, Options{DialTimeout: 5 * time.Second})
		require.NoError(t, err)
		defer handle.Close()

		require.NoError(t, handle.HealthCheck(ctx))
		stats := handle.Stats()
		assert.True(t, stats.IsHealthy)
		assert.Equal(t, uint64(31337), stats.ChainID)
		assert.Equal(t, uint64(42), stats.LatestBlock)
	})

	t.Run("chain id mismatch", func(t *testing.T) {
		url := startNode(t, 1)
		_, err := OpenReadConnection(ctx, models.NetworkConfig{Name: "localhost", ChainID: 31337, RPCURL: url}, Options{})
		require.Error(t, err)
		assert.True(t, utils.HasCode(err, utils.ErrCodeConnection))
		assert.Contains(t, err.Error(), "Chain ID mismatch")
	})

	t.Run("instrumented when metrics are supplied", func(t *testing.T) {
		url := startNode(t, 31337)
		m := metrics.NewPrometheusMetrics()
		handle, err := OpenReadConnection(ctx, models.NetworkConfig{Name: "localhost", ChainID: 31337, RPCURL: url}, Options{Metrics: m})
		require.NoError(t, err)
		defer handle.Close()

		_, ok := handle.Backend().(*InstrumentedBackend)
		assert.True(t, ok)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.RPCRequestsTotal.WithLabelValues(url, "eth_chainId", "success")))
	})
}

func TestInstrumentedBackend(t *testing.T) {
	ledger := testutil.NewLedger(31337)
	m := metrics.NewPrometheusMetrics()
	backend := NewInstrumentedBackend(ledger, "memory", m)
	ctx := context.Background()

	_, err := backend.BlockNumber(ctx)
	require.NoError(t, err)

	_, err = backend.TransactionReceipt(ctx, common.HexToHash("0x01"))
	require.True(t, errors.Is(err, ethereum.NotFound))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.RPCRequestsTotal.WithLabelValues("memory", "eth_blockNumber", "success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RPCRequestsTotal.WithLabelValues("memory", "eth_getTransactionReceipt", "error")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.ConnectionErrorsTotal.WithLabelValues("memory", "rpc_call_failed")))
}

// countingWallet records how often each authorization path is used
type countingWallet struct {
	key        *ecdsa.PrivateKey
	authorized bool
	listed     int
	requested  int
}

func (w *countingWallet) Name() string { return "counting" }

func (w *countingWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.listed++
	if !w.authorized {
		return nil, nil
	}
	return []common.Address{crypto.PubkeyToAddress(w.key.PublicKey)}, nil
}

func (w *countingWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.requested++
	w.authorized = true
	return []common.Address{crypto.PubkeyToAddress(w.key.PublicKey)}, nil
}

func (w *countingWallet) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

func TestOpenSigningHandle(t *testing.T) {
	ctx := context.Background()
	read := NewReadHandle(models.NetworkConfig{Name: "localhost", ChainID: 31337}, testutil.NewLedger(31337))

	t.Run("no wallet", func(t *testing.T) {
		_, err := OpenSigningHandle(ctx, nil, read)
		require.Error(t, err)
		assert.True(t, utils.HasCode(err, utils.ErrCodeWalletUnavailable))
	})

	t.Run("reuses an existing authorization", func(t *testing.T) {
		key, address := testutil.NewAccount()
		wallet := &countingWallet{key: key, authorized: true}

		for i := 0; i < 3; i++ {
			handle, err := OpenSigningHandle(ctx, wallet, read)
			require.NoError(t, err)
			assert.Equal(t, address, handle.Address())
		}
		assert.Equal(t, 3, wallet.listed)
		assert.Equal(t, 0, wallet.requested)
	})

	t.Run("prompts only when nothing is authorized", func(t *testing.T) {
		key, _ := testutil.NewAccount()
		wallet := &countingWallet{key: key}

		_, err := OpenSigningHandle(ctx, wallet, read)
		require.NoError(t, err)
		_, err = OpenSigningHandle(ctx, wallet, read)
		require.NoError(t, err)
		assert.Equal(t, 1, wallet.requested)
	})

	t.Run("transact opts sign for the bound chain", func(t *testing.T) {
		key, address := testutil.NewAccount()
		handle, err := OpenSigningHandle(ctx, NewKeyWallet(key), read)
		require.NoError(t, err)

		opts := handle.TransactOpts(ctx)
		assert.Equal(t, address, opts.From)

		to := common.HexToAddress("0x1234567890123456789012345678901234567890")
		tx := types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(31337), Nonce: 0, Gas: 21000, GasFeeCap: big.NewInt(2), GasTipCap: big.NewInt(1), To: &to, Value: big.NewInt(0)})
		signed, err := opts.Signer(address, tx)
		require.NoError(t, err)
		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), signed)
		require.NoError(t, err)
		assert.Equal(t, address, sender)

		_, err = opts.Signer(to, tx)
		assert.ErrorIs(t, err, ErrAccountMismatch)
	})
}

type walletService struct {
	key      *ecdsa.PrivateKey
	mu       sync.Mutex
	granted  bool
	requests atomic.Int32
}

func (s *walletService) Accounts() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.granted {
		return []common.Address{}
	}
	return []common.Address{crypto.PubkeyToAddress(s.key.PublicKey)}
}

func (s *walletService) RequestAccounts() []common.Address {
	s.requests.Add(1)
	s.mu.Lock()
	s.granted = true
	s.mu.Unlock()
	return []common.Address{crypto.PubkeyToAddress(s.key.PublicKey)}
}

func (s *walletService) SignTransaction(args SignTransactionArgs) (*SignTransactionResult, error) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   args.ChainID.ToInt(),
		Nonce:     uint64(args.Nonce),
		GasTipCap: args.MaxPriorityFeePerGas.ToInt(),
		GasFeeCap: args.MaxFeePerGas.ToInt(),
		Gas:       uint64(args.Gas),
		To:        args.To,
		Value:     args.Value.ToInt(),
		Data:      args.Input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(args.ChainID.ToInt()), s.key)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &SignTransactionResult{Raw: raw}, nil
}

func TestRPCWallet(t *testing.T) {
	ctx := context.Background()
	key, address := testutil.NewAccount()
	service := &walletService{key: key}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	defer server.Stop()

	wallet := NewRPCWallet(rpc.DialInProc(server))
	defer wallet.Close()
	read := NewReadHandle(models.NetworkConfig{Name: "localhost", ChainID: 31337}, testutil.NewLedger(31337))

	accounts, err := wallet.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	handle, err := OpenSigningHandle(ctx, wallet, read)
	require.NoError(t, err)
	assert.Equal(t, address, handle.Address())

	_, err = OpenSigningHandle(ctx, wallet, read)
	require.NoError(t, err)
	assert.Equal(t, int32(1), service.requests.Load())

	to := common.HexToAddress("0x1234567890123456789012345678901234567890")
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(31337), Nonce: 3, Gas: 50000, GasFeeCap: big.NewInt(2_000_000_000), GasTipCap: big.NewInt(1_000_000), To: &to, Value: big.NewInt(0), Data: []byte{0xde, 0xad}})
	signed, err := handle.TransactOpts(ctx).Signer(address, tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), signed)
	require.NoError(t, err)
	assert.Equal(t, address, sender)
	assert.Equal(t, uint64(3), signed.Nonce())
	assert.Equal(t, []byte{0xde, 0xad}, signed.Data())
}

func TestKeystoreWallet(t *testing.T) {
	ctx := context.Background()
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.NewAccount("secret")
	require.NoError(t, err)

	prompts := 0
	wallet := NewKeystoreWalletFrom(ks, "", func(accounts.Account) (string, error) {
		prompts++
		return "secret", nil
	})

	authorized, err := wallet.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, authorized)

	read := NewReadHandle(models.NetworkConfig{Name: "localhost", ChainID: 31337}, testutil.NewLedger(31337))
	handle, err := OpenSigningHandle(ctx, wallet, read)
	require.NoError(t, err)
	assert.Equal(t, account.Address, handle.Address())

	_, err = OpenSigningHandle(ctx, wallet, read)
	require.NoError(t, err)
	assert.Equal(t, 1, prompts)

	t.Run("wrong passphrase", func(t *testing.T) {
		locked := NewKeystoreWalletFrom(ks, account.Address.Hex(), func(accounts.Account) (string, error) {
			return "wrong", nil
		})
		_, err := OpenSigningHandle(ctx, locked, read)
		require.Error(t, err)
		assert.True(t, utils.HasCode(err, utils.ErrCodeWalletUnavailable))
	})
}

func TestNewWallet(t *testing.T) {
	ctx := context.Background()

	wallet, err := NewWallet(ctx, config.WalletConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, wallet)

	key, address := testutil.NewAccount()
	wallet, err = NewWallet(ctx, config.WalletConfig{Type: "key", PrivateKey: hexutil.Encode(crypto.FromECDSA(key))})
	require.NoError(t, err)
	accounts, err := wallet.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{address}, accounts)

	_, err = NewWallet(ctx, config.WalletConfig{Type: "key", PrivateKey: "zz"})
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))

	_, err = NewWallet(ctx, config.WalletConfig{Type: "ledger"})
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))
}
