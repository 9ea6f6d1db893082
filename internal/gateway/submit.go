package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/contracts"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/notification"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// submitFunc sends one transaction with a freshly acquired signer
type submitFunc func(ctx context.Context, signer *connection.SigningHandle) (*contracts.TransactionHandle, error)

// execute runs the validate-free part of a mutating flow: acquire the signer,
// submit, await confirmation. The journal and notifier see every outcome.
func (g *Gateway) execute(ctx context.Context, record *models.TransactionRecord, submit submitFunc) (*models.Receipt, error) {
	logger := g.logger.WithFields(logrus.Fields{
		"kind":     record.Kind,
		"contract": record.ContractAddress,
	})
	// Bookkeeping must survive a caller that gave up waiting
	bookkeeping := context.WithoutCancel(ctx)

	signer, err := g.signer(ctx)
	if err != nil {
		logger.WithError(err).Warn("Signing handle unavailable")
		return nil, err
	}
	record.From = signer.Address().Hex()
	record.Status = models.TxStatusPending

	handle, err := submit(ctx, signer)
	if err != nil && utils.HasCode(err, utils.ErrCodeValidation) {
		// Rejected before anything was sent; there is nothing to journal
		logger.WithError(err).Warn("Transaction rejected before submission")
		return nil, err
	}
	if err != nil {
		logger.WithError(err).Warn("Transaction submission failed")
		g.recordSubmitted(record.Kind, "error")
		record.Status = models.TxStatusFailed
		record.Reason = userMessage(err, err.Error())
		g.saveRecord(bookkeeping, record)
		g.announce(bookkeeping, record)
		return nil, err
	}

	g.recordSubmitted(record.Kind, "success")
	record.TxHash = handle.Hash.Hex()
	g.saveRecord(bookkeeping, record)
	logger.WithField("tx_hash", record.TxHash).Info("Transaction submitted, awaiting confirmation")

	receipt, err := handle.Confirmation(ctx)
	if receipt != nil {
		record.BlockNumber = receipt.BlockNumber
	}
	if err != nil && receipt == nil && ctx.Err() != nil {
		// The transaction may still be mined; the pending row is left for the reconciler
		logger.WithError(err).WithField("tx_hash", record.TxHash).Warn("Stopped waiting for confirmation")
		return nil, err
	}
	if err != nil {
		record.Status = models.TxStatusFailed
		record.Reason = userMessage(err, err.Error())
		g.recordConfirmed(record.Kind, "failed", handle.SubmittedAt)
		logger.WithError(err).WithField("tx_hash", record.TxHash).Warn("Transaction failed")
	} else {
		record.Status = models.TxStatusConfirmed
		g.recordConfirmed(record.Kind, "confirmed", handle.SubmittedAt)
		logger.WithFields(logrus.Fields{
			"tx_hash": record.TxHash,
			"block":   record.BlockNumber,
		}).Info("Transaction confirmed")
	}

	g.updateRecord(bookkeeping, record)
	g.announce(bookkeeping, record)
	return receipt, err
}

func (g *Gateway) saveRecord(ctx context.Context, record *models.TransactionRecord) {
	if g.journal == nil {
		return
	}
	if err := g.journal.SaveTransaction(ctx, record); err != nil {
		g.logger.WithError(err).Warn("Failed to journal transaction")
	}
}

func (g *Gateway) updateRecord(ctx context.Context, record *models.TransactionRecord) {
	if g.journal == nil {
		return
	}
	if err := g.journal.UpdateTransaction(ctx, record); err != nil {
		g.logger.WithError(err).Warn("Failed to update journaled transaction")
	}
}

func (g *Gateway) announce(ctx context.Context, record *models.TransactionRecord) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, notification.TransactionNotification(record)); err != nil {
		g.logger.WithError(err).Warn("Failed to deliver transaction notification")
	}
}

func (g *Gateway) recordSubmitted(kind models.TransactionKind, status string) {
	if g.metrics != nil {
		g.metrics.RecordTransactionSubmitted(string(kind), status)
	}
}

func (g *Gateway) recordConfirmed(kind models.TransactionKind, status string, submittedAt time.Time) {
	if g.metrics != nil {
		g.metrics.RecordTransactionConfirmed(string(kind), status, time.Since(submittedAt))
	}
}

// inFlightError reports a second mutating operation on the same key
func inFlightError(key string) *utils.AppError {
	return utils.NewAppError(utils.ErrCodeInFlight, "A transaction for this ticket is already in progress", key)
}
