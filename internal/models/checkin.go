package models

import "time"

// CheckIn records one verification of a scanned ticket
type CheckIn struct {
	ID              string    `json:"id" db:"id"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	TokenID         uint64    `json:"token_id" db:"token_id"`
	ClaimedOwner    string    `json:"claimed_owner" db:"claimed_owner"`
	CurrentOwner    string    `json:"current_owner,omitempty" db:"current_owner"`
	Valid           bool      `json:"valid" db:"valid"`
	Reason          string    `json:"reason,omitempty" db:"reason"`
	ScannedAt       time.Time `json:"scanned_at" db:"scanned_at"`
}

// Verification is the result of checking a scanned payload against the ledger
type Verification struct {
	Kind                string `json:"kind"`
	DisplayText         string `json:"display_text"`
	IsTicket            bool   `json:"is_ticket"`
	Valid               bool   `json:"valid"`
	ContractAddress     string `json:"contract_address,omitempty"`
	TokenID             uint64 `json:"token_id,omitempty"`
	ClaimedOwner        string `json:"claimed_owner,omitempty"`
	CurrentOwner        string `json:"current_owner,omitempty"`
	EventName           string `json:"event_name,omitempty"`
	PreviouslyCheckedIn bool   `json:"previously_checked_in"`
	Message             string `json:"message"`
}
