package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// TransactionHandle references a submitted transaction whose outcome can be awaited
type TransactionHandle struct {
	Hash        common.Hash
	Kind        models.TransactionKind
	Contract    common.Address
	From        common.Address
	SubmittedAt time.Time

	tx           *types.Transaction
	backend      Backend
	pollInterval time.Duration
	logger       *logrus.Entry
}

func newTransactionHandle(kind models.TransactionKind, contract, from common.Address, tx *types.Transaction, backend Backend, o options) *TransactionHandle {
	return &TransactionHandle{
		Hash:         tx.Hash(),
		Kind:         kind,
		Contract:     contract,
		From:         from,
		SubmittedAt:  time.Now(),
		tx:           tx,
		backend:      backend,
		pollInterval: o.pollInterval,
		logger:       utils.ComponentLogger("contracts"),
	}
}

// Transaction returns the signed transaction that was sent
func (h *TransactionHandle) Transaction() *types.Transaction {
	return h.tx
}

// Confirmation waits until the transaction is included. It has no timeout of its
// own; callers bound it through ctx. A reverted transaction yields the receipt and
// a REMOTE_CALL_ERROR whose details hold the revert reason.
func (h *TransactionHandle) Confirmation(ctx context.Context) (*models.Receipt, error) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.backend.TransactionReceipt(ctx, h.Hash)
		if err == nil && receipt != nil {
			return h.settle(ctx, receipt)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			h.logger.WithFields(logrus.Fields{
				"tx_hash": h.Hash.Hex(),
				"error":   err,
			}).Warn("Failed to fetch transaction receipt")
		}

		select {
		case <-ctx.Done():
			return nil, utils.NewRemoteCallError(string(h.Kind)+" confirmation", ctx.Err())
		case <-ticker.C:
			h.logger.WithField("tx_hash", h.Hash.Hex()).Debug("Waiting for transaction inclusion")
		}
	}
}

func (h *TransactionHandle) settle(ctx context.Context, receipt *types.Receipt) (*models.Receipt, error) {
	result := &models.Receipt{
		TxHash:  h.Hash.Hex(),
		Status:  receipt.Status,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		h.logger.WithFields(logrus.Fields{
			"tx_hash": h.Hash.Hex(),
			"kind":    h.Kind,
			"block":   result.BlockNumber,
		}).Info("Transaction confirmed")
		return result, nil
	}

	cause := ErrTransactionReverted
	if replayErr := h.replay(ctx, receipt); replayErr != nil {
		cause = errors.Join(ErrTransactionReverted, replayErr)
	}

	h.logger.WithFields(logrus.Fields{
		"tx_hash": h.Hash.Hex(),
		"kind":    h.Kind,
		"block":   result.BlockNumber,
	}).Warn("Transaction reverted")
	return result, utils.NewRemoteCallError(string(h.Kind), cause)
}

// replay re-executes the reverted call at its inclusion block to recover the reason
func (h *TransactionHandle) replay(ctx context.Context, receipt *types.Receipt) error {
	msg := ethereum.CallMsg{
		From:  h.From,
		To:    h.tx.To(),
		Gas:   h.tx.Gas(),
		Value: h.tx.Value(),
		Data:  h.tx.Data(),
	}
	_, err := h.backend.CallContract(ctx, msg, receipt.BlockNumber)
	return err
}
