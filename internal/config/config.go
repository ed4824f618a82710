package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"polymirror/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Settings SettingsConfig `mapstructure:"settings"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Market   MarketConfig   `mapstructure:"market"`
	Clob     ClobConfig     `mapstructure:"clob"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LedgerConfig selects where execution outcomes are appended.
type LedgerConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RecordSkipped bool   `mapstructure:"record_skipped"`
}

// SettingsConfig selects the operating parameters document.
type SettingsConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// ChainConfig covers on-chain event ingestion.
type ChainConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	ExchangeAddresses []string      `mapstructure:"exchange_addresses"`
	StartBlock        uint64        `mapstructure:"start_block"`
	Confirmations     uint64        `mapstructure:"confirmations"`
	MaxBlockSpan      uint64        `mapstructure:"max_block_span"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	FilterByTarget    bool          `mapstructure:"filter_by_target"`
}

// PollerConfig governs the worker loop cadence.
type PollerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Backoff         time.Duration `mapstructure:"backoff"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// MarketConfig covers token id resolution through Gamma.
type MarketConfig struct {
	GammaBaseURL   string        `mapstructure:"gamma_base_url"`
	CacheSize      int           `mapstructure:"cache_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSec     float64       `mapstructure:"rate_per_sec"`
	Redis          RedisConfig   `mapstructure:"redis"`
}

// RedisConfig enables the shared market info tier.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ClobConfig captures trading venue connectivity. Secrets are read from the environment.
type ClobConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	ChainID          int64         `mapstructure:"chain_id"`
	OrderType        string        `mapstructure:"order_type"`
	CredentialPolicy string        `mapstructure:"credential_policy"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RatePerSec       float64       `mapstructure:"rate_per_sec"`
	PrivateKey       string        `mapstructure:"private_key"`
	APIKey           string        `mapstructure:"api_key"`
	APISecret        string        `mapstructure:"api_secret"`
	APIPassphrase    string        `mapstructure:"api_passphrase"`
}

// GuardConfig holds the pre-trade checks.
type GuardConfig struct {
	SlippageTolerance float64 `mapstructure:"slippage_tolerance"`
}

// AlertingConfig defines outcome notifications.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	NotifySuccess bool           `mapstructure:"notify_success"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLYMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindSecrets(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("polymirror")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindSecrets maps the conventional credential variables onto config keys.
func bindSecrets(v *viper.Viper) {
	_ = v.BindEnv("clob.private_key", "POLYMIRROR_CLOB_PRIVATE_KEY", "MY_PRIVATE_KEY")
	_ = v.BindEnv("clob.api_key", "POLYMIRROR_CLOB_API_KEY", "POLY_API_KEY")
	_ = v.BindEnv("clob.api_secret", "POLYMIRROR_CLOB_API_SECRET", "POLY_API_SECRET")
	_ = v.BindEnv("clob.api_passphrase", "POLYMIRROR_CLOB_API_PASSPHRASE", "POLY_API_PASSPHRASE")
	_ = v.BindEnv("chain.rpc_url", "POLYMIRROR_CHAIN_RPC_URL", "RPC_URL")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "polymirror")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.sqlite_path", "trades.db")
	v.SetDefault("ledger.record_skipped", true)

	v.SetDefault("settings.source", "file")
	v.SetDefault("settings.path", "config.json")

	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chain.exchange_addresses", []string{
		"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		"0xC5d563A36AE78145C45a50134d48A1215220f80a",
	})
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.confirmations", 0)
	v.SetDefault("chain.max_block_span", 500)
	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.filter_by_target", true)

	v.SetDefault("poller.interval", "2s")
	v.SetDefault("poller.backoff", "5s")
	v.SetDefault("poller.startup_delay", "0s")
	v.SetDefault("poller.advisory_lock_key", int64(0x706d6972))

	v.SetDefault("market.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("market.cache_size", 100)
	v.SetDefault("market.request_timeout", "5s")
	v.SetDefault("market.rate_per_sec", 10.0)
	v.SetDefault("market.redis.enabled", false)
	v.SetDefault("market.redis.addr", "localhost:6379")
	v.SetDefault("market.redis.prefix", "polymirror:market:")

	v.SetDefault("clob.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob.chain_id", int64(137))
	v.SetDefault("clob.order_type", "FOK")
	v.SetDefault("clob.credential_policy", "session")
	v.SetDefault("clob.request_timeout", "10s")
	v.SetDefault("clob.rate_per_sec", 20.0)

	v.SetDefault("guard.slippage_tolerance", 0.05)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_success", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path must be set for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres ledger")
		}
	default:
		return fmt.Errorf("ledger.driver must be sqlite or postgres, got %q", c.Ledger.Driver)
	}

	switch c.Settings.Source {
	case "file":
		if c.Settings.Path == "" {
			return fmt.Errorf("settings.path must be set for the file source")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres settings source")
		}
	default:
		return fmt.Errorf("settings.source must be file or postgres, got %q", c.Settings.Source)
	}

	if len(c.Chain.ExchangeAddresses) == 0 {
		return fmt.Errorf("chain.exchange_addresses cannot be empty")
	}
	for _, addr := range c.Chain.ExchangeAddresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("chain.exchange_addresses: invalid address %q", addr)
		}
	}
	if c.Chain.MaxBlockSpan == 0 {
		return fmt.Errorf("chain.max_block_span must be greater than zero")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.Backoff <= 0 {
		return fmt.Errorf("poller.backoff must be greater than zero")
	}
	if c.Market.CacheSize <= 0 {
		return fmt.Errorf("market.cache_size must be greater than zero")
	}
	if c.Guard.SlippageTolerance < 0 || c.Guard.SlippageTolerance > 1 {
		return fmt.Errorf("guard.slippage_tolerance must be within [0,1]")
	}
	switch strings.ToUpper(c.Clob.OrderType) {
	case "FOK", "FAK", "GTC":
	default:
		return fmt.Errorf("clob.order_type must be FOK, FAK or GTC, got %q", c.Clob.OrderType)
	}
	switch c.Clob.CredentialPolicy {
	case "session", "per_order":
	default:
		return fmt.Errorf("clob.credential_policy must be session or per_order, got %q", c.Clob.CredentialPolicy)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
