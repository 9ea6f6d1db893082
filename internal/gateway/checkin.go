package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/qr"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

const (
	notATicketMessage      = "The scanned code is not a ticket."
	noContractMessage      = "Select the event contract to verify this ticket."
	invalidTicketMessage   = "The ticket data is not valid."
	ownerMismatchMessage   = "Ticket is held by another account."
	verifyErrorMessage     = "Could not verify the ticket."
	alreadyCheckedInPrefix = "Ticket already checked in. Owner: "
	validTicketPrefix      = "Valid ticket. Owner: "
)

// VerifyScan classifies a scanned payload and, for tickets, checks the
// claimed owner against the ledger. Ticket payloads in the ticket:<owner>:<id>
// format carry no contract, so defaultContract is used for them. Every ticket
// verification is recorded in the journal.
func (g *Gateway) VerifyScan(ctx context.Context, raw string, defaultContract string) models.Verification {
	payload := qr.Classify(raw)
	if g.metrics != nil {
		g.metrics.RecordScan(string(payload.Kind))
	}

	result := models.Verification{
		Kind:        string(payload.Kind),
		DisplayText: payload.DisplayText,
	}

	var contract, claimedOwner, tokenText string
	switch {
	case payload.Kind == qr.KindTicket:
		contract = defaultContract
		claimedOwner = payload.Ticket.Owner
		tokenText = payload.Ticket.TokenID
	default:
		doc, ok := payload.TicketDocument()
		if !ok {
			result.Message = notATicketMessage
			return result
		}
		contract = doc.ContractAddress
		claimedOwner = doc.Owner
		tokenText = doc.TokenID
	}

	result.IsTicket = true
	result.ClaimedOwner = claimedOwner

	if strings.TrimSpace(contract) == "" {
		result.Message = noContractMessage
		return result
	}
	tokenID, err := strconv.ParseUint(strings.TrimSpace(tokenText), 10, 64)
	contractAddr, ok := utils.ParseAddress(contract)
	if err != nil || !ok {
		result.Message = invalidTicketMessage
		return result
	}

	result.ContractAddress = contractAddr.Hex()
	result.TokenID = tokenID

	ticket := g.ticket(contractAddr)
	owner, err := ticket.OwnerOf(ctx, tokenID)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"contract": result.ContractAddress,
			"token_id": tokenID,
		}).Warn("Ticket verification read failed")
		result.Message = userMessage(err, verifyErrorMessage)
		g.recordCheckIn(ctx, &result)
		return result
	}
	result.CurrentOwner = owner.Hex()

	if name, err := ticket.Name(ctx); err == nil {
		result.EventName = name
	}

	if !strings.EqualFold(owner.Hex(), strings.TrimSpace(claimedOwner)) {
		result.Message = ownerMismatchMessage
		g.recordCheckIn(ctx, &result)
		return result
	}

	result.Valid = true
	result.PreviouslyCheckedIn = g.checkedInBefore(ctx, result.ContractAddress, tokenID)
	if result.PreviouslyCheckedIn {
		result.Message = alreadyCheckedInPrefix + utils.ShortAddress(result.CurrentOwner)
	} else {
		result.Message = validTicketPrefix + utils.ShortAddress(result.CurrentOwner)
	}
	g.recordCheckIn(ctx, &result)
	return result
}

// checkedInBefore reports whether an earlier valid check-in exists
func (g *Gateway) checkedInBefore(ctx context.Context, contract string, tokenID uint64) bool {
	if g.journal == nil {
		return false
	}
	checkIns, err := g.journal.GetCheckIns(ctx, contract, tokenID)
	if err != nil {
		g.logger.WithError(err).Warn("Failed to read check-in history")
		return false
	}
	for _, c := range checkIns {
		if c.Valid {
			return true
		}
	}
	return false
}

func (g *Gateway) recordCheckIn(ctx context.Context, result *models.Verification) {
	if g.metrics != nil {
		outcome := "invalid"
		switch {
		case result.Valid && result.PreviouslyCheckedIn:
			outcome = "duplicate"
		case result.Valid:
			outcome = "valid"
		}
		g.metrics.RecordCheckIn(outcome)
	}

	if g.journal == nil {
		return
	}
	checkIn := &models.CheckIn{
		ContractAddress: result.ContractAddress,
		TokenID:         result.TokenID,
		ClaimedOwner:    result.ClaimedOwner,
		CurrentOwner:    result.CurrentOwner,
		Valid:           result.Valid,
	}
	if !result.Valid {
		checkIn.Reason = result.Message
	}
	if err := g.journal.SaveCheckIn(context.WithoutCancel(ctx), checkIn); err != nil {
		g.logger.WithError(err).Warn("Failed to journal check-in")
	}
}
