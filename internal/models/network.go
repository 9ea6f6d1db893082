package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig describes a resolved ledger network. Immutable once resolved.
type NetworkConfig struct {
	Name            string         `json:"name"`
	ChainID         uint64         `json:"chain_id"`
	RPCURL          string         `json:"rpc_url"`
	RegistryAddress common.Address `json:"registry_address"`
}

// WalletStatus is the outcome of probing the configured wallet
type WalletStatus struct {
	Connected   bool   `json:"connected"`
	Address     string `json:"address,omitempty"`
	Whitelisted bool   `json:"whitelisted"`
	Wallet      string `json:"wallet,omitempty"`
}
