// Package network resolves ledger connection parameters from configuration.
// Resolution is pure: it performs no network I/O.
package network

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// DefaultLocalRPCURL is used for development networks without an explicit endpoint
const DefaultLocalRPCURL = "http://127.0.0.1:7545"

// Settings is the environment-style input to Resolve
type Settings struct {
	Name            string
	ChainID         uint64
	RegistryAddress string
	APIKey          string
	CustomRPCURL    string
	LabRPCURL       string
}

// hostedNetwork describes a named public network
type hostedNetwork struct {
	endpoint    string // may contain %s for the API key
	requiresKey bool
}

var hostedNetworks = map[string]hostedNetwork{
	"sepolia":        {endpoint: "https://sepolia.infura.io/v3/%s", requiresKey: true},
	"mumbai":         {endpoint: "https://rpc-mumbai.maticvigil.com/"},
	"polygon-mumbai": {endpoint: "https://rpc-mumbai.maticvigil.com/"},
}

var localNetworks = map[string]bool{
	"localhost": true,
	"hardhat":   true,
	"ganache":   true,
}

// SettingsFromConfig maps the loaded network section onto resolver settings
func SettingsFromConfig(cfg config.NetworkConfig) Settings {
	return Settings{
		Name:            cfg.Name,
		ChainID:         cfg.ChainID,
		RegistryAddress: cfg.RegistryAddress,
		APIKey:          cfg.APIKey,
		CustomRPCURL:    cfg.CustomRPCURL,
		LabRPCURL:       cfg.LabRPCURL,
	}
}

// Resolve produces a NetworkConfig or a configuration error naming the missing field.
//
// Endpoint precedence: an explicit custom endpoint always wins; a named hosted
// network uses its public endpoint and fails closed when it needs an API key that
// is absent; a local development network falls back to the lab URL or the
// well-known local default.
func Resolve(s Settings) (models.NetworkConfig, error) {
	name := strings.ToLower(strings.TrimSpace(s.Name))
	if name == "" {
		return models.NetworkConfig{}, utils.NewConfigurationError("network_name", "Network name is required")
	}
	if s.ChainID == 0 {
		return models.NetworkConfig{}, utils.NewConfigurationError("chain_id", "Chain id must be a positive integer")
	}

	registry := strings.TrimSpace(s.RegistryAddress)
	if registry == "" {
		return models.NetworkConfig{}, utils.NewConfigurationError("registry_address", "Registry contract address is required")
	}
	if !common.IsHexAddress(registry) {
		return models.NetworkConfig{}, utils.NewConfigurationError("registry_address",
			fmt.Sprintf("Registry contract address %q is not a valid address", registry))
	}

	rpcURL, err := resolveEndpoint(name, s)
	if err != nil {
		return models.NetworkConfig{}, err
	}

	return models.NetworkConfig{
		Name:            name,
		ChainID:         s.ChainID,
		RPCURL:          rpcURL,
		RegistryAddress: common.HexToAddress(registry),
	}, nil
}

func resolveEndpoint(name string, s Settings) (string, error) {
	if custom := strings.TrimSpace(s.CustomRPCURL); custom != "" {
		return custom, nil
	}

	if hosted, ok := hostedNetworks[name]; ok {
		if !hosted.requiresKey {
			return hosted.endpoint, nil
		}
		key := strings.TrimSpace(s.APIKey)
		if key == "" {
			return "", utils.NewConfigurationError("api_key",
				fmt.Sprintf("An RPC API key is required for the %s network", name))
		}
		return fmt.Sprintf(hosted.endpoint, key), nil
	}

	if localNetworks[name] {
		if lab := strings.TrimSpace(s.LabRPCURL); lab != "" {
			return lab, nil
		}
		return DefaultLocalRPCURL, nil
	}

	// Unknown names fail closed instead of falling back to DefaultLocalRPCURL,
	// so a misspelled network never signs against a local node
	return "", utils.NewConfigurationError("custom_rpc_url",
		fmt.Sprintf("Unknown network %q requires a custom RPC URL", name))
}
