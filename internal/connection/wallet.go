package connection

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// ErrAccountMismatch is returned when a wallet is asked to sign for an account it does not hold
var ErrAccountMismatch = errors.New("wallet does not hold the requested account")

// Wallet holds credentials and signs transactions on the user's behalf
type Wallet interface {
	// Name identifies the wallet kind for logs and status output
	Name() string
	// Accounts lists accounts that are already authorized. It never prompts.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts runs the interactive authorization flow
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// SignTx signs tx for account on chainID
	SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// NewWallet builds the configured wallet. Type "none" yields a nil wallet, which
// leaves the gateway read-only.
func NewWallet(ctx context.Context, cfg config.WalletConfig) (Wallet, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "key":
		wallet, err := NewKeyWalletFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return wallet, nil
	case "keystore":
		passphrase := cfg.Passphrase
		wallet, err := NewKeystoreWallet(cfg.KeystoreDir, cfg.Account, func(accounts.Account) (string, error) {
			return passphrase, nil
		})
		if err != nil {
			return nil, err
		}
		return wallet, nil
	case "rpc":
		wallet, err := DialRPCWallet(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		return wallet, nil
	default:
		return nil, utils.NewConfigurationError("wallet.type", fmt.Sprintf("Unsupported wallet type %q", cfg.Type))
	}
}

// KeyWallet signs with a raw private key. Its single account is always authorized.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet creates a wallet around key
func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewKeyWalletFromHex parses a hex private key, with or without 0x prefix
func NewKeyWalletFromHex(hexKey string) (*KeyWallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, utils.NewConfigurationError("wallet.private_key", "Wallet private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, utils.NewConfigurationError("wallet.private_key", "Wallet private key is invalid")
	}
	return NewKeyWallet(key), nil
}

// Name implements Wallet
func (w *KeyWallet) Name() string { return "key" }

// Accounts implements Wallet
func (w *KeyWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.address}, nil
}

// RequestAccounts implements Wallet
func (w *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.address}, nil
}

// SignTx implements Wallet
func (w *KeyWallet) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if account != w.address {
		return nil, ErrAccountMismatch
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// PassphrasePrompt supplies the passphrase that unlocks a keystore account
type PassphrasePrompt func(account accounts.Account) (string, error)

// KeystoreWallet signs with an encrypted go-ethereum keystore. An account is
// authorized once it has been unlocked.
type KeystoreWallet struct {
	ks       *keystore.KeyStore
	selected string
	prompt   PassphrasePrompt

	mu       sync.Mutex
	unlocked map[common.Address]bool
}

// NewKeystoreWallet opens the keystore in dir. selected picks an account by
// address; empty means the first account.
func NewKeystoreWallet(dir, selected string, prompt PassphrasePrompt) (*KeystoreWallet, error) {
	if dir == "" {
		return nil, utils.NewConfigurationError("wallet.keystore_dir", "Keystore directory is required")
	}
	if selected != "" && !common.IsHexAddress(selected) {
		return nil, utils.NewConfigurationError("wallet.account", fmt.Sprintf("Keystore account %q is not a valid address", selected))
	}
	return NewKeystoreWalletFrom(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), selected, prompt), nil
}

// NewKeystoreWalletFrom wraps an already opened keystore
func NewKeystoreWalletFrom(ks *keystore.KeyStore, selected string, prompt PassphrasePrompt) *KeystoreWallet {
	return &KeystoreWallet{
		ks:       ks,
		selected: selected,
		prompt:   prompt,
		unlocked: make(map[common.Address]bool),
	}
}

// Name implements Wallet
func (w *KeystoreWallet) Name() string { return "keystore" }

// Accounts implements Wallet
func (w *KeystoreWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var authorized []common.Address
	for _, account := range w.ks.Accounts() {
		if w.unlocked[account.Address] {
			authorized = append(authorized, account.Address)
		}
	}
	return authorized, nil
}

// RequestAccounts implements Wallet by unlocking the selected account
func (w *KeystoreWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	account, err := w.pick()
	if err != nil {
		return nil, err
	}
	if w.prompt == nil {
		return nil, utils.NewWalletUnavailableError("Keystore has no passphrase source")
	}
	passphrase, err := w.prompt(account)
	if err != nil {
		return nil, fmt.Errorf("passphrase prompt: %w", err)
	}
	if err := w.ks.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", account.Address.Hex(), err)
	}

	w.mu.Lock()
	w.unlocked[account.Address] = true
	w.mu.Unlock()
	return []common.Address{account.Address}, nil
}

func (w *KeystoreWallet) pick() (accounts.Account, error) {
	all := w.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, utils.NewWalletUnavailableError("Keystore contains no accounts")
	}
	if w.selected == "" {
		return all[0], nil
	}
	for _, account := range all {
		if utils.SameAddress(account.Address.Hex(), w.selected) {
			return account, nil
		}
	}
	return accounts.Account{}, utils.NewWalletUnavailableError(fmt.Sprintf("Account %s not found in keystore", w.selected))
}

// SignTx implements Wallet
func (w *KeystoreWallet) SignTx(ctx context.Context, account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return w.ks.SignTx(accounts.Account{Address: account}, tx, chainID)
}
