// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Network       NetworkConfig      `mapstructure:"network"`
	Wallet        WalletConfig       `mapstructure:"wallet"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Locks         LocksConfig        `mapstructure:"locks"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// NetworkConfig contains the environment-style ledger settings
type NetworkConfig struct {
	Name            string        `mapstructure:"name"`
	ChainID         uint64        `mapstructure:"chain_id"`
	RegistryAddress string        `mapstructure:"registry_address"`
	APIKey          string        `mapstructure:"api_key"`
	CustomRPCURL    string        `mapstructure:"custom_rpc_url"`
	LabRPCURL       string        `mapstructure:"lab_rpc_url"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// WalletConfig selects how transactions are authorized and signed
type WalletConfig struct {
	Type        string `mapstructure:"type"` // none, key, keystore, rpc
	PrivateKey  string `mapstructure:"private_key"`
	KeystoreDir string `mapstructure:"keystore_dir"`
	Account     string `mapstructure:"account"`
	Passphrase  string `mapstructure:"passphrase"`
	RPCURL      string `mapstructure:"rpc_url"`
}

// GatewayConfig tunes the orchestration layer
type GatewayConfig struct {
	ProbeTimeout             time.Duration `mapstructure:"probe_timeout"`
	ConfirmationPollInterval time.Duration `mapstructure:"confirmation_poll_interval"`
	LogsFromBlock            uint64        `mapstructure:"logs_from_block"`
	ScanCooldown             time.Duration `mapstructure:"scan_cooldown"`
	MaxConcurrentReads       int           `mapstructure:"max_concurrent_reads"`
	ReconcileInterval        time.Duration `mapstructure:"reconcile_interval"` // 0 disables
	ReconcileMinAge          time.Duration `mapstructure:"reconcile_min_age"`
	ReconcileBatchSize       int           `mapstructure:"reconcile_batch_size"`
}

// StorageConfig contains journal database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"` // sqlite, postgres, mysql
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// LocksConfig selects where per-ticket in-flight flags live
type LocksConfig struct {
	Type          string        `mapstructure:"type"` // memory, redis
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// NotificationConfig contains notification configuration
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Log     bool          `mapstructure:"log"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
}

// WebhookConfig describes the webhook channel
type WebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
}

// AMQPConfig describes the RabbitMQ channel
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// envAliases maps config keys to the environment names used by deployments
// of the web front-end, so one .env file serves both.
var envAliases = map[string][]string{
	"network.name":              {"NETWORK_NAME", "NEXT_PUBLIC_NETWORK_NAME"},
	"network.chain_id":          {"CHAIN_ID", "NEXT_PUBLIC_CHAIN_ID"},
	"network.registry_address":  {"EVENT_MANAGER_ADDRESS", "NEXT_PUBLIC_EVENT_MANAGER_ADDRESS"},
	"network.api_key":           {"INFURA_PROJECT_ID", "NEXT_PUBLIC_INFURA_PROJECT_ID"},
	"network.custom_rpc_url":    {"CUSTOM_RPC_URL", "NEXT_PUBLIC_CUSTOM_RPC_URL"},
	"network.lab_rpc_url":       {"LAB_GANACHE_URL", "NEXT_PUBLIC_LAB_GANACHE_URL"},
	"wallet.private_key":        {"WALLET_PRIVATE_KEY"},
	"wallet.passphrase":         {"WALLET_PASSPHRASE"},
	"storage.connection_string": {"DATABASE_URL"},
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./internal/config")
	}

	v.SetEnvPrefix("TICKET_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{"TICKET_GATEWAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ticket-gateway")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Local development chain with the registry at its first deployment address
	v.SetDefault("network.name", "localhost")
	v.SetDefault("network.chain_id", 31337)
	v.SetDefault("network.registry_address", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	v.SetDefault("network.api_key", "")
	v.SetDefault("network.custom_rpc_url", "")
	v.SetDefault("network.lab_rpc_url", "")
	v.SetDefault("network.dial_timeout", "10s")

	v.SetDefault("wallet.type", "none")
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.keystore_dir", "./keystore")
	v.SetDefault("wallet.account", "")
	v.SetDefault("wallet.passphrase", "")
	v.SetDefault("wallet.rpc_url", "")

	v.SetDefault("gateway.probe_timeout", "2s")
	v.SetDefault("gateway.confirmation_poll_interval", "1s")
	v.SetDefault("gateway.logs_from_block", 0)
	v.SetDefault("gateway.scan_cooldown", "2s")
	v.SetDefault("gateway.max_concurrent_reads", 16)
	v.SetDefault("gateway.reconcile_interval", "30s")
	v.SetDefault("gateway.reconcile_min_age", "2m")
	v.SetDefault("gateway.reconcile_batch_size", 50)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/journal.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("locks.type", "memory")
	v.SetDefault("locks.redis_address", "")
	v.SetDefault("locks.redis_password", "")
	v.SetDefault("locks.redis_db", 0)
	v.SetDefault("locks.ttl", "10m")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.log", true)
	v.SetDefault("notifications.webhook.timeout", "10s")
	v.SetDefault("notifications.webhook.retry_attempts", 3)
	v.SetDefault("notifications.webhook.retry_delay", "2s")
	v.SetDefault("notifications.amqp.exchange", "")
	v.SetDefault("notifications.amqp.queue", "ticket-gateway.transactions")

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	// Writes wait for on-chain confirmation
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Wallet.Type) {
	case "", "none":
	case "key":
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("wallet private key is required for wallet type key")
		}
	case "keystore":
		if c.Wallet.KeystoreDir == "" {
			return fmt.Errorf("keystore directory is required for wallet type keystore")
		}
	case "rpc":
		if c.Wallet.RPCURL == "" {
			return fmt.Errorf("wallet RPC URL is required for wallet type rpc")
		}
	default:
		return fmt.Errorf("unsupported wallet type %q", c.Wallet.Type)
	}

	if c.Storage.Enabled && c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}

	switch strings.ToLower(c.Locks.Type) {
	case "", "memory":
	case "redis":
		if c.Locks.RedisAddress == "" {
			return fmt.Errorf("redis address is required for lock type redis")
		}
	default:
		return fmt.Errorf("unsupported lock type %q", c.Locks.Type)
	}

	if c.Gateway.ProbeTimeout <= 0 {
		return fmt.Errorf("gateway probe timeout must be positive")
	}
	if c.Gateway.ConfirmationPollInterval <= 0 {
		return fmt.Errorf("gateway confirmation poll interval must be positive")
	}
	if c.Gateway.ReconcileInterval < 0 {
		return fmt.Errorf("gateway reconcile interval must not be negative")
	}
	return nil
}
