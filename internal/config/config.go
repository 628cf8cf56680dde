// Package config loads application configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"token-sentinel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Sources       SourcesConfig       `mapstructure:"sources"`
	Scan          ScanConfig          `mapstructure:"scan"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates persistence. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SourcesConfig enumerates the candidate sources.
type SourcesConfig struct {
	Chain  ChainSourceConfig  `mapstructure:"chain"`
	Market MarketSourceConfig `mapstructure:"market"`
	Social SocialSourceConfig `mapstructure:"social"`

	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	MaxRestartDelay time.Duration `mapstructure:"max_restart_delay"`
}

// ChainSourceConfig covers the chain event stream.
type ChainSourceConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WSEndpoint string `mapstructure:"ws_endpoint"`
}

// MarketSourceConfig covers the market listing poller.
type MarketSourceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SocialSourceConfig covers the social feed poller.
type SocialSourceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ScanConfig governs the metadata scan pool and its collaborators.
type ScanConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RPCEndpoint string        `mapstructure:"rpc_endpoint"`
	MarketAPI   string        `mapstructure:"market_api"`
}

// DedupConfig bounds the duplicate suppression window.
type DedupConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AnalysisConfig governs the scoring backend.
type AnalysisConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	Stub          bool          `mapstructure:"stub"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	CacheCapacity int           `mapstructure:"cache_capacity"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CostCeiling   int64         `mapstructure:"cost_ceiling"`
	CostWindow    time.Duration `mapstructure:"cost_window"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	MinScore        float64        `mapstructure:"min_score"`
	MinLiquidityUSD float64        `mapstructure:"min_liquidity_usd"`
	Cooldown        time.Duration  `mapstructure:"cooldown"`
	HourlyLimit     int            `mapstructure:"hourly_limit"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// PipelineConfig governs coordinator lifecycle behaviour.
type PipelineConfig struct {
	RehydrateWindow time.Duration `mapstructure:"rehydrate_window"`
	DrainGrace      time.Duration `mapstructure:"drain_grace"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// ObservabilityConfig exposes the metrics and health endpoint.
type ObservabilityConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "token-sentinel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sources.chain.enabled", false)
	v.SetDefault("sources.market.enabled", true)
	v.SetDefault("sources.market.endpoint", "https://api.dexscreener.com/token-profiles/latest/v1")
	v.SetDefault("sources.market.poll_interval", "30s")
	v.SetDefault("sources.social.enabled", false)
	v.SetDefault("sources.social.poll_interval", "1m")
	v.SetDefault("sources.restart_delay", "1s")
	v.SetDefault("sources.max_restart_delay", "1m")

	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.queue_depth", 64)
	v.SetDefault("scan.call_timeout", "10s")
	v.SetDefault("scan.max_retries", 2)
	v.SetDefault("scan.rpc_endpoint", "https://eth.llamarpc.com")
	v.SetDefault("scan.market_api", "https://api.dexscreener.com")

	v.SetDefault("dedup.window", "24h")

	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.max_tokens", 600)
	v.SetDefault("analysis.temperature", 0.7)
	v.SetDefault("analysis.max_concurrent", 5)
	v.SetDefault("analysis.call_timeout", "30s")
	v.SetDefault("analysis.cache_capacity", 1000)
	v.SetDefault("analysis.cache_ttl", "1h")
	v.SetDefault("analysis.cost_ceiling", int64(0))
	v.SetDefault("analysis.cost_window", "1h")

	v.SetDefault("alerting.min_score", 7.0)
	v.SetDefault("alerting.min_liquidity_usd", 10000.0)
	v.SetDefault("alerting.cooldown", "60m")
	v.SetDefault("alerting.hourly_limit", 20)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("pipeline.rehydrate_window", "24h")
	v.SetDefault("pipeline.drain_grace", "10s")
	v.SetDefault("pipeline.sweep_interval", "5m")

	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.listen_addr", ":9090")
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
	if c.Dedup.Window <= 0 {
		return fmt.Errorf("dedup.window must be greater than zero")
	}
	if c.Alerting.MinScore < 0 || c.Alerting.MinScore > 10 {
		return fmt.Errorf("alerting.min_score must be within [0, 10]")
	}
	if c.Alerting.MinLiquidityUSD < 0 {
		return fmt.Errorf("alerting.min_liquidity_usd cannot be negative")
	}
	if c.Alerting.Cooldown <= 0 {
		return fmt.Errorf("alerting.cooldown must be greater than zero")
	}
	if c.Alerting.HourlyLimit <= 0 {
		return fmt.Errorf("alerting.hourly_limit must be greater than zero")
	}
	if c.Analysis.CostCeiling < 0 {
		return fmt.Errorf("analysis.cost_ceiling cannot be negative")
	}
	if c.Sources.Chain.Enabled && c.Sources.Chain.WSEndpoint == "" {
		return fmt.Errorf("sources.chain.ws_endpoint must be set when the chain source is enabled")
	}
	if c.Sources.Market.Enabled && c.Sources.Market.Endpoint == "" {
		return fmt.Errorf("sources.market.endpoint must be set when the market source is enabled")
	}
	if c.Sources.Social.Enabled && c.Sources.Social.Endpoint == "" {
		return fmt.Errorf("sources.social.endpoint must be set when the social source is enabled")
	}
	if c.Scan.RPCEndpoint == "" {
		return fmt.Errorf("scan.rpc_endpoint must be set")
	}
	if !c.Analysis.Stub && c.Analysis.APIKey == "" {
		return fmt.Errorf("analysis.api_key must be set unless analysis.stub is enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}
