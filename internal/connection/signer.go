package connection

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// SigningHandle authorizes transactions for one wallet account. Handles are
// derived per mutating action and must not be cached.
type SigningHandle struct {
	account common.Address
	wallet  Wallet
	chainID *big.Int
}

// OpenSigningHandle resolves the account to sign with. Existing authorizations
// are reused silently; the wallet's interactive flow runs only when none exist.
func OpenSigningHandle(ctx context.Context, wallet Wallet, read *ReadHandle) (*SigningHandle, error) {
	if wallet == nil {
		return nil, utils.NewWalletUnavailableError("No wallet is configured. Configure a wallet to sign transactions.")
	}
	logger := utils.ComponentLogger("connection").WithField("wallet", wallet.Name())

	accounts, err := wallet.Accounts(ctx)
	if err != nil {
		return nil, utils.NewWalletUnavailableError("Failed to list wallet accounts").WithCause(err)
	}

	if len(accounts) == 0 {
		logger.Info("No authorized account, requesting wallet authorization")
		accounts, err = wallet.RequestAccounts(ctx)
		if err != nil {
			return nil, utils.NewWalletUnavailableError("Wallet authorization was not granted").WithCause(err)
		}
		if len(accounts) == 0 {
			return nil, utils.NewWalletUnavailableError("Wallet returned no authorized account")
		}
	}

	handle := &SigningHandle{
		account: accounts[0],
		wallet:  wallet,
		chainID: read.ChainID(),
	}
	logger.WithFields(logrus.Fields{
		"account":  handle.account.Hex(),
		"chain_id": handle.chainID,
	}).Debug("Signing handle opened")
	return handle, nil
}

// Address returns the signing account
func (h *SigningHandle) Address() common.Address {
	return h.account
}

// TransactOpts builds fresh transaction options bound to ctx
func (h *SigningHandle) TransactOpts(ctx context.Context) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:    h.account,
		Context: ctx,
		Signer: func(address common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if address != h.account {
				return nil, ErrAccountMismatch
			}
			return h.wallet.SignTx(ctx, address, tx, h.chainID)
		},
	}
}
