package models

import "time"

// TransactionKind names the mutating operation behind a transaction
type TransactionKind string

const (
	TxKindCreateEvent TransactionKind = "create_event"
	TxKindMint        TransactionKind = "mint_ticket"
	TxKindTransfer    TransactionKind = "transfer_ticket"
)

// TransactionStatus tracks a submitted transaction in the journal
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusConfirmed TransactionStatus = "confirmed"
	TxStatusFailed    TransactionStatus = "failed"
)

// Receipt is the finalized outcome of a submitted transaction
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Status      uint64 `json:"status"`
	GasUsed     uint64 `json:"gas_used"`
}

// TransactionRecord is a journal entry for a mutating operation
type TransactionRecord struct {
	ID              string            `json:"id" db:"id"`
	Kind            TransactionKind   `json:"kind" db:"kind"`
	ContractAddress string            `json:"contract_address" db:"contract_address"`
	TokenID         *uint64           `json:"token_id,omitempty" db:"token_id"`
	From            string            `json:"from" db:"from_address"`
	To              string            `json:"to,omitempty" db:"to_address"`
	TxHash          string            `json:"tx_hash,omitempty" db:"tx_hash"`
	Status          TransactionStatus `json:"status" db:"status"`
	Reason          string            `json:"reason,omitempty" db:"reason"`
	BlockNumber     uint64            `json:"block_number,omitempty" db:"block_number"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// TransactionFilter for querying the journal. UpdatedUntil keeps entries last
// updated at or before that time; OldestFirst orders by least recent update.
type TransactionFilter struct {
	Kind            *TransactionKind   `json:"kind,omitempty"`
	Status          *TransactionStatus `json:"status,omitempty"`
	ContractAddress *string            `json:"contract_address,omitempty"`
	UpdatedUntil    *time.Time         `json:"updated_until,omitempty"`
	OldestFirst     bool               `json:"oldest_first,omitempty"`
	Limit           int                `json:"limit,omitempty"`
	Offset          int                `json:"offset,omitempty"`
}
