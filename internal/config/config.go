// Package config loads the gateway configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// Config is the full gateway configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Payment  Payment  `mapstructure:"payment"`
	Upstream Upstream `mapstructure:"upstream"`
	Cache    Cache    `mapstructure:"cache"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Log configures logging.
type Log struct {
	Level string `mapstructure:"level"`
}

// Payment is the paywall policy.
type Payment struct {
	PayTo             string        `mapstructure:"pay_to"`
	Network           string        `mapstructure:"network"`
	Asset             string        `mapstructure:"asset"`
	MinAmount         uint64        `mapstructure:"min_amount"`
	AmountTolerance   uint64        `mapstructure:"amount_tolerance"`
	AccessWindow      time.Duration `mapstructure:"access_window"`
	RequestAllowance  int           `mapstructure:"request_allowance"`
	MaxTimeoutSeconds int           `mapstructure:"max_timeout_seconds"`
	RPCEndpoint       string        `mapstructure:"rpc_endpoint"`
}

// SourceConfig describes one upstream data provider.
type SourceConfig struct {
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	Priority int    `mapstructure:"priority"`
}

// Upstream configures the failover fetch layer.
type Upstream struct {
	Sources          []SourceConfig `mapstructure:"sources"`
	BreakerThreshold int            `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration  `mapstructure:"breaker_timeout"`
	AttemptTimeout   time.Duration  `mapstructure:"attempt_timeout"`
	CacheTTL         time.Duration  `mapstructure:"cache_ttl"`
	StaleAfter       time.Duration  `mapstructure:"stale_after"`
}

// Cache configures the cache backends and sweeping.
type Cache struct {
	// RedisAddr switches the response cache to Redis when set; empty means
	// in-memory.
	RedisAddr     string        `mapstructure:"redis_addr"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load reads configuration from the given file (optional) and environment
// variables prefixed with RISK_AUDITOR_.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RISK_AUDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("payment.network", "solana")
	v.SetDefault("payment.asset", "lamports")
	v.SetDefault("payment.min_amount", 1_000_000)
	v.SetDefault("payment.amount_tolerance", 5_000)
	v.SetDefault("payment.access_window", 10*time.Minute)
	v.SetDefault("payment.request_allowance", 100)
	v.SetDefault("payment.max_timeout_seconds", 60)
	v.SetDefault("payment.rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("upstream.breaker_threshold", 5)
	v.SetDefault("upstream.breaker_timeout", 30*time.Second)
	v.SetDefault("upstream.attempt_timeout", 10*time.Second)
	v.SetDefault("upstream.cache_ttl", time.Minute)
	v.SetDefault("upstream.stale_after", 180*24*time.Hour)
	v.SetDefault("cache.sweep_interval", time.Minute)
}

func (c *Config) validate() error {
	if c.Payment.PayTo == "" {
		return fmt.Errorf("payment.pay_to is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.Payment.PayTo); err != nil {
		return fmt.Errorf("payment.pay_to is not a valid address: %w", err)
	}
	if c.Payment.MinAmount == 0 {
		return fmt.Errorf("payment.min_amount must be positive")
	}
	if c.Payment.AccessWindow <= 0 {
		return fmt.Errorf("payment.access_window must be positive")
	}
	if len(c.Upstream.Sources) == 0 {
		return fmt.Errorf("at least one upstream source is required")
	}
	for i, src := range c.Upstream.Sources {
		if src.Name == "" || src.Endpoint == "" {
			return fmt.Errorf("upstream.sources[%d]: name and endpoint are required", i)
		}
	}
	if c.Upstream.BreakerThreshold <= 0 {
		return fmt.Errorf("upstream.breaker_threshold must be positive")
	}
	return nil
}
