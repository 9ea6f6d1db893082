package models

import (
	"fmt"
	"strings"
)

// OwnedTicket is a ticket currently held by an address
type OwnedTicket struct {
	ContractAddress string `json:"contract_address"`
	TokenID         uint64 `json:"token_id"`
	EventName       string `json:"event_name"`
	Owner           string `json:"owner"`
}

// Key identifies the ticket across events
func (t OwnedTicket) Key() TicketKey {
	return NewTicketKey(t.ContractAddress, t.TokenID)
}

// TicketKey identifies a ticket by (contract, token id)
type TicketKey string

// NewTicketKey builds the key for a ticket; the contract address is case-folded
func NewTicketKey(contractAddress string, tokenID uint64) TicketKey {
	return TicketKey(fmt.Sprintf("%s-%d", strings.ToLower(contractAddress), tokenID))
}

// TicketView is a single ticket with its scannable payloads
type TicketView struct {
	ContractAddress string `json:"contract_address"`
	TokenID         uint64 `json:"token_id"`
	EventName       string `json:"event_name"`
	Owner           string `json:"owner"`
	QRPayload       string `json:"qr_payload"`
	QRTicketString  string `json:"qr_ticket_string"`
}

// TransferStatus is the lifecycle of a transfer row
type TransferStatus string

const (
	TransferIdle    TransferStatus = "idle"
	TransferPending TransferStatus = "pending"
	TransferSuccess TransferStatus = "success"
	TransferFailed  TransferStatus = "failed"
)

// TransferRequest holds the state of one ticket's transfer
type TransferRequest struct {
	ContractAddress string         `json:"contract_address"`
	TokenID         uint64         `json:"token_id"`
	Recipient       string         `json:"recipient"`
	Status          TransferStatus `json:"status"`
	Message         string         `json:"message,omitempty"`
	Code            string         `json:"code,omitempty"`
	TxHash          string         `json:"tx_hash,omitempty"`
}
