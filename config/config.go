package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Ledger        LedgerConfig
	Content       ContentConfig
	Watcher       WatcherConfig
	Settlement    SettlementConfig
	HTTP          HTTPConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	AutoMigrate bool
}

// RedisConfig holds Redis settings. An empty Host disables caching.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	CatalogTTL     time.Duration
	LeaderboardTTL time.Duration
}

// LedgerConfig holds the governance contract connection settings.
type LedgerConfig struct {
	// RPCURL is used for reads and transactions (http(s) or ws(s)).
	RPCURL string
	// WSURL is used for the live subscription; defaults to RPCURL.
	WSURL           string
	ContractAddress string
	// PrivateKey is the hex key of the reward-issuing wallet.
	PrivateKey string
	ChainID    int64

	CallTimeout      time.Duration
	RequestsPerSec   float64
	Burst            int
	ConfirmPollEvery time.Duration
}

// ContentBackend selects the content store implementation.
type ContentBackend string

const (
	ContentPinata ContentBackend = "pinata"
	ContentMinio  ContentBackend = "minio"
)

// ContentConfig holds content store settings.
type ContentConfig struct {
	Backend ContentBackend
	Timeout time.Duration

	PinataJWT        string
	PinataAPIURL     string
	PinataGatewayURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// WatcherConfig holds approval watcher settings.
type WatcherConfig struct {
	// CatchUpWindow is the number of recent blocks scanned on each catch-up pass.
	CatchUpWindow   uint64
	CatchUpInterval time.Duration
	CatchUpTimeout  time.Duration
	HandleTimeout   time.Duration
	ReconnectMax    time.Duration
}

// SettlementConfig holds submission settlement settings.
type SettlementConfig struct {
	RewardTimeout   time.Duration
	PurchaseSize    int
	PayoutWorkers   int
	PayoutQueueSize int
	PayoutMaxRetry  time.Duration
}

// HTTPConfig holds request layer settings.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins is space separated in the environment.
	AllowedOrigins []string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	LogFile   string
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads configuration from an optional config.yaml, an optional .env
// file and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vstep-hub")
	v.SetDefault("app.environment", string(EnvDevelopment))
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.catalog_ttl", time.Minute)
	v.SetDefault("redis.leaderboard_ttl", 30*time.Second)

	v.SetDefault("ledger.chain_id", 11155111)
	v.SetDefault("ledger.call_timeout", 15*time.Second)
	v.SetDefault("ledger.requests_per_sec", 5.0)
	v.SetDefault("ledger.burst", 5)
	v.SetDefault("ledger.confirm_poll_every", 2*time.Second)

	v.SetDefault("content.backend", string(ContentPinata))
	v.SetDefault("content.timeout", 20*time.Second)
	v.SetDefault("content.pinata_api_url", "https://api.pinata.cloud")
	v.SetDefault("content.pinata_gateway_url", "https://gateway.pinata.cloud/ipfs")
	v.SetDefault("content.minio_bucket", "exam-content")

	v.SetDefault("watcher.catch_up_window", 10)
	v.SetDefault("watcher.catch_up_interval", 5*time.Minute)
	v.SetDefault("watcher.catch_up_timeout", time.Minute)
	v.SetDefault("watcher.handle_timeout", 30*time.Second)
	v.SetDefault("watcher.reconnect_max", time.Minute)

	v.SetDefault("settlement.reward_timeout", 90*time.Second)
	v.SetDefault("settlement.purchase_size", 5)
	v.SetDefault("settlement.payout_workers", 2)
	v.SetDefault("settlement.payout_queue_size", 256)
	v.SetDefault("settlement.payout_max_retry", 10*time.Minute)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 2*time.Minute)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"app.environment":              "APP_ENV",
	"app.version":                  "APP_VERSION",
	"app.shutdown_timeout":         "APP_SHUTDOWN_TIMEOUT",
	"database.url":                 "DATABASE_URL",
	"database.max_conns":           "DATABASE_MAX_CONNS",
	"database.auto_migrate":        "DATABASE_AUTO_MIGRATE",
	"redis.host":                   "REDIS_HOST",
	"redis.port":                   "REDIS_PORT",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"ledger.rpc_url":               "LEDGER_RPC_URL",
	"ledger.ws_url":                "LEDGER_WS_URL",
	"ledger.contract_address":      "LEDGER_CONTRACT_ADDRESS",
	"ledger.private_key":           "LEDGER_PRIVATE_KEY",
	"ledger.chain_id":              "LEDGER_CHAIN_ID",
	"ledger.call_timeout":          "LEDGER_CALL_TIMEOUT",
	"ledger.requests_per_sec":      "LEDGER_RPS",
	"content.backend":              "CONTENT_BACKEND",
	"content.pinata_jwt":           "PINATA_JWT",
	"content.pinata_gateway_url":   "PINATA_GATEWAY_URL",
	"content.minio_endpoint":       "MINIO_ENDPOINT",
	"content.minio_access_key":     "MINIO_ACCESS_KEY",
	"content.minio_secret_key":     "MINIO_SECRET_KEY",
	"content.minio_bucket":         "MINIO_BUCKET",
	"content.minio_use_ssl":        "MINIO_USE_SSL",
	"watcher.catch_up_window":      "WATCHER_CATCH_UP_WINDOW",
	"watcher.catch_up_interval":    "WATCHER_CATCH_UP_INTERVAL",
	"settlement.reward_timeout":    "SETTLEMENT_REWARD_TIMEOUT",
	"settlement.purchase_size":     "SETTLEMENT_PURCHASE_SIZE",
	"settlement.payout_workers":    "SETTLEMENT_PAYOUT_WORKERS",
	"http.addr":                    "HTTP_ADDR",
	"http.allowed_origins":         "HTTP_ALLOWED_ORIGINS",
	"observability.log_level":      "LOG_LEVEL",
	"observability.log_format":     "LOG_FORMAT",
	"observability.log_file":       "LOG_FILE",
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		App: AppConfig{
			Name:            v.GetString("app.name"),
			Environment:     Environment(v.GetString("app.environment")),
			Version:         v.GetString("app.version"),
			ShutdownTimeout: v.GetDuration("app.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL:         v.GetString("database.url"),
			MaxConns:    v.GetInt32("database.max_conns"),
			MinConns:    v.GetInt32("database.min_conns"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:           v.GetString("redis.host"),
			Port:           v.GetInt("redis.port"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			CatalogTTL:     v.GetDuration("redis.catalog_ttl"),
			LeaderboardTTL: v.GetDuration("redis.leaderboard_ttl"),
		},
		Ledger: LedgerConfig{
			RPCURL:           v.GetString("ledger.rpc_url"),
			WSURL:            v.GetString("ledger.ws_url"),
			ContractAddress:  v.GetString("ledger.contract_address"),
			PrivateKey:       strings.TrimPrefix(v.GetString("ledger.private_key"), "0x"),
			ChainID:          v.GetInt64("ledger.chain_id"),
			CallTimeout:      v.GetDuration("ledger.call_timeout"),
			RequestsPerSec:   v.GetFloat64("ledger.requests_per_sec"),
			Burst:            v.GetInt("ledger.burst"),
			ConfirmPollEvery: v.GetDuration("ledger.confirm_poll_every"),
		},
		Content: ContentConfig{
			Backend:          ContentBackend(v.GetString("content.backend")),
			Timeout:          v.GetDuration("content.timeout"),
			PinataJWT:        v.GetString("content.pinata_jwt"),
			PinataAPIURL:     v.GetString("content.pinata_api_url"),
			PinataGatewayURL: v.GetString("content.pinata_gateway_url"),
			MinioEndpoint:    v.GetString("content.minio_endpoint"),
			MinioAccessKey:   v.GetString("content.minio_access_key"),
			MinioSecretKey:   v.GetString("content.minio_secret_key"),
			MinioBucket:      v.GetString("content.minio_bucket"),
			MinioUseSSL:      v.GetBool("content.minio_use_ssl"),
		},
		Watcher: WatcherConfig{
			CatchUpWindow:   v.GetUint64("watcher.catch_up_window"),
			CatchUpInterval: v.GetDuration("watcher.catch_up_interval"),
			CatchUpTimeout:  v.GetDuration("watcher.catch_up_timeout"),
			HandleTimeout:   v.GetDuration("watcher.handle_timeout"),
			ReconnectMax:    v.GetDuration("watcher.reconnect_max"),
		},
		Settlement: SettlementConfig{
			RewardTimeout:   v.GetDuration("settlement.reward_timeout"),
			PurchaseSize:    v.GetInt("settlement.purchase_size"),
			PayoutWorkers:   v.GetInt("settlement.payout_workers"),
			PayoutQueueSize: v.GetInt("settlement.payout_queue_size"),
			PayoutMaxRetry:  v.GetDuration("settlement.payout_max_retry"),
		},
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  v.GetString("observability.log_level"),
			LogFormat: v.GetString("observability.log_format"),
			LogFile:   v.GetString("observability.log_file"),
		},
	}

	if cfg.Ledger.WSURL == "" {
		cfg.Ledger.WSURL = cfg.Ledger.RPCURL
	}

	return cfg
}

// Validate checks required settings and ranges, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "LEDGER_RPC_URL is required")
	}
	if c.Ledger.ContractAddress == "" {
		errs = append(errs, "LEDGER_CONTRACT_ADDRESS is required")
	}
	if c.Ledger.PrivateKey == "" {
		errs = append(errs, "LEDGER_PRIVATE_KEY is required")
	}
	if c.Ledger.RequestsPerSec <= 0 {
		errs = append(errs, "LEDGER_RPS must be positive")
	}

	switch c.Content.Backend {
	case ContentPinata:
		if c.Content.PinataJWT == "" {
			errs = append(errs, "PINATA_JWT is required for the pinata backend")
		}
	case ContentMinio:
		if c.Content.MinioEndpoint == "" {
			errs = append(errs, "MINIO_ENDPOINT is required for the minio backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("CONTENT_BACKEND %q must be pinata or minio", c.Content.Backend))
	}

	if c.Watcher.CatchUpWindow == 0 {
		errs = append(errs, "WATCHER_CATCH_UP_WINDOW must be at least 1")
	}
	if c.Settlement.PurchaseSize <= 0 {
		errs = append(errs, "SETTLEMENT_PURCHASE_SIZE must be positive")
	}
	if c.Settlement.PayoutWorkers <= 0 {
		errs = append(errs, "SETTLEMENT_PAYOUT_WORKERS must be positive")
	}
	if c.Settlement.RewardTimeout <= 0 {
		errs = append(errs, "SETTLEMENT_REWARD_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// RedisAddr returns host:port, or "" when Redis is disabled.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
