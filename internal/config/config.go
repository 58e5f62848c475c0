// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Filecoin     FilecoinConfig     `mapstructure:"filecoin"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Chains       ChainsConfig       `mapstructure:"chains"`
	Votes        VotesConfig        `mapstructure:"votes"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Notification NotificationConfig `mapstructure:"notification"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	DemoMode    bool   `mapstructure:"demo_mode"`
}

// FilecoinConfig contains FEVM RPC and contract configuration
type FilecoinConfig struct {
	NodeURL               string        `mapstructure:"node_url"`
	BackupNodes           []string      `mapstructure:"backup_nodes"`
	ChainID               int64         `mapstructure:"chain_id"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	RetryDelay            time.Duration `mapstructure:"retry_delay"`
	PrivateKey            string        `mapstructure:"private_key"`
	VoteStorageContract   string        `mapstructure:"vote_storage_contract"`
	ProposalVoteContract  string        `mapstructure:"proposal_vote_contract"`
	USDFCToken            string        `mapstructure:"usdfc_token"`
	MinFILBalance         string        `mapstructure:"min_fil_balance"`
	MinUSDFCBalance       string        `mapstructure:"min_usdfc_balance"`
	TransactionTimeout    time.Duration `mapstructure:"transaction_timeout"`
	SubmitReceiptsOnChain bool          `mapstructure:"submit_receipts_on_chain"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ProvidersConfig selects and configures the decentralized storage backend
type ProvidersConfig struct {
	Default    string           `mapstructure:"default"` // ipfs, lighthouse, local
	Timeout    time.Duration    `mapstructure:"timeout"`
	Retry      RetryConfig      `mapstructure:"retry"`
	IPFS       IPFSConfig       `mapstructure:"ipfs"`
	Lighthouse LighthouseConfig `mapstructure:"lighthouse"`
}

// RetryConfig configures provider retries
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// IPFSConfig configures the IPFS HTTP API provider
type IPFSConfig struct {
	APIURL    string `mapstructure:"api_url"`
	ProjectID string `mapstructure:"project_id"`
	Secret    string `mapstructure:"secret"`
}

// LighthouseConfig configures the Lighthouse provider
type LighthouseConfig struct {
	NodeURL    string `mapstructure:"node_url"`
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	Name       string `mapstructure:"name"`
}

// ChainsConfig configures chain record classification and hashing
type ChainsConfig struct {
	Hasher string `mapstructure:"hasher"` // sha256, rolling
}

// VotesConfig configures vote receipts and the pending queue
type VotesConfig struct {
	DefaultConfidence int `mapstructure:"default_confidence"`
	MaxReasoningBytes int `mapstructure:"max_reasoning_bytes"`
	ListLimit         int `mapstructure:"list_limit"`
}

// MonitorConfig configures the on-chain receipt monitor
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	BatchSize          uint64        `mapstructure:"batch_size"`
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
	StartBlock         uint64        `mapstructure:"start_block"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled             bool              `mapstructure:"enabled"`
	QueueSize           int               `mapstructure:"queue_size"`
	WebhookURL          string            `mapstructure:"webhook_url"`
	WebhookHeaders      map[string]string `mapstructure:"webhook_headers"`
	NotificationTimeout time.Duration     `mapstructure:"notification_timeout"`
	RetryAttempts       int               `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration     `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
	EnableStream  bool          `mapstructure:"enable_stream"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// .env is optional; variables injected by the environment win
	_ = godotenv.Load()

	v := viper.GetViper()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FILERUG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func applyEnvOverrides(config *Config) {
	if nodeURL := os.Getenv("FILECOIN_RPC_URL"); nodeURL != "" {
		config.Filecoin.NodeURL = nodeURL
	}
	if key := os.Getenv("FILECOIN_PRIVATE_KEY"); key != "" {
		config.Filecoin.PrivateKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if apiKey := os.Getenv("LIGHTHOUSE_API_KEY"); apiKey != "" {
		config.Providers.Lighthouse.APIKey = apiKey
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fil-e-rug")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.demo_mode", true)

	// Filecoin Calibnet
	v.SetDefault("filecoin.node_url", "https://api.calibration.node.glif.io/rpc/v1")
	v.SetDefault("filecoin.chain_id", 314159)
	v.SetDefault("filecoin.request_timeout", "30s")
	v.SetDefault("filecoin.retry_attempts", 3)
	v.SetDefault("filecoin.retry_delay", "5s")
	v.SetDefault("filecoin.vote_storage_contract", "0x3e0713d099145499df55f0dc083cfdd909162e54")
	v.SetDefault("filecoin.proposal_vote_contract", "0xf49ba5eaCdFD5EE3744efEdf413791935FE4D4c5")
	v.SetDefault("filecoin.min_fil_balance", "0.01")
	v.SetDefault("filecoin.min_usdfc_balance", "0.1")
	v.SetDefault("filecoin.transaction_timeout", "3m")
	v.SetDefault("filecoin.submit_receipts_on_chain", false)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/filerug.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("providers.default", "local")
	v.SetDefault("providers.timeout", "60s")
	v.SetDefault("providers.retry.attempts", 1)
	v.SetDefault("providers.retry.delay", "2s")
	v.SetDefault("providers.retry.max_delay", "30s")
	v.SetDefault("providers.ipfs.api_url", "https://ipfs.infura.io:5001")
	v.SetDefault("providers.lighthouse.node_url", "https://node.lighthouse.storage")
	v.SetDefault("providers.lighthouse.gateway_url", "https://gateway.lighthouse.storage")
	v.SetDefault("providers.lighthouse.name", "fil-e-rug-storage")

	v.SetDefault("chains.hasher", "sha256")

	v.SetDefault("votes.default_confidence", 5)
	v.SetDefault("votes.max_reasoning_bytes", 4096)
	v.SetDefault("votes.list_limit", 100)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.poll_interval", "30s")
	v.SetDefault("monitor.batch_size", 500)
	v.SetDefault("monitor.confirmation_blocks", 5)
	v.SetDefault("monitor.start_block", 0)

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.queue_size", 100)
	v.SetDefault("notification.notification_timeout", "10s")
	v.SetDefault("notification.retry_attempts", 3)
	v.SetDefault("notification.retry_delay", "2s")

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)
	v.SetDefault("server.enable_stream", true)
	v.SetDefault("server.allowed_origin", "*")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Type) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}

	switch strings.ToLower(c.Providers.Default) {
	case "local":
	case "ipfs":
		if c.Providers.IPFS.APIURL == "" {
			return fmt.Errorf("ipfs api url is required")
		}
	case "lighthouse":
		if c.Providers.Lighthouse.APIKey == "" {
			return fmt.Errorf("lighthouse api key is required")
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Providers.Default)
	}

	switch strings.ToLower(c.Chains.Hasher) {
	case "sha256", "rolling":
	default:
		return fmt.Errorf("unsupported hasher %q", c.Chains.Hasher)
	}

	if c.Votes.DefaultConfidence < 1 || c.Votes.DefaultConfidence > 10 {
		return fmt.Errorf("votes default confidence must be between 1 and 10")
	}
	if c.Monitor.Enabled && c.Monitor.BatchSize == 0 {
		return fmt.Errorf("monitor batch size must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	return nil
}
