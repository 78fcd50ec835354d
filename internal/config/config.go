// Package config defines the signalledger configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields are decoded from TOML over
// Defaults() and then overridden by SIGLEDGER_* environment variables.
type Config struct {
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
	Extractor   ExtractorConfig   `toml:"extractor"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Providers   ProvidersConfig   `toml:"providers"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Persistence PersistenceConfig `toml:"persistence"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Watcher     WatcherConfig     `toml:"watcher"`
	Notify      NotifyConfig      `toml:"notify"`
}

// ExtractorConfig tunes identifier extraction.
type ExtractorConfig struct {
	// Stoplist replaces the built-in stoplist when set.
	Stoplist     []string `toml:"stoplist"`
	EVMAddresses bool     `toml:"evm_addresses"`
	Cashtags     bool     `toml:"cashtags"`
}

// ResolverConfig controls the provider chain and its cache.
type ResolverConfig struct {
	// Order lists provider names in priority order.
	Order           []string `toml:"order"`
	Cache           string   `toml:"cache"` // "memory", "redis" or "none"
	CacheTTL        duration `toml:"cache_ttl"`
	ProviderTimeout duration `toml:"provider_timeout"`
}

// ProviderConfig holds the settings shared by every market-data provider.
type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	// RPS throttles outgoing requests; 0 disables throttling.
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Pumpfun     ProviderConfig    `toml:"pumpfun"`
	Jupiter     ProviderConfig    `toml:"jupiter"`
	Coingecko   CoingeckoConfig   `toml:"coingecko"`
	Dexscreener DexscreenerConfig `toml:"dexscreener"`
}

// CoingeckoConfig adds the API key and the platform used for contract
// addresses.
type CoingeckoConfig struct {
	ProviderConfig
	APIKey   string `toml:"api_key"`
	Platform string `toml:"platform"`
}

// DexscreenerConfig adds chain filtering and a liquidity floor.
type DexscreenerConfig struct {
	ProviderConfig
	Chain           string  `toml:"chain"`
	MinLiquidityUSD float64 `toml:"min_liquidity_usd"`
}

// LedgerConfig holds ledger accounting parameters.
type LedgerConfig struct {
	DustFraction float64 `toml:"dust_fraction"`
}

// PersistenceConfig selects where ledger snapshots live.
type PersistenceConfig struct {
	Backend  string   `toml:"backend"` // "none", "file", "postgres" or "s3"
	Interval duration `toml:"interval"`
	FilePath string   `toml:"file_path"`
	S3Prefix string   `toml:"s3_prefix"`
	// HistoryKeep bounds the timestamped snapshots kept by the s3 backend.
	HistoryKeep int `toml:"history_keep"`
	// Passphrase seals file and s3 snapshots when set.
	Passphrase    string `toml:"passphrase"`
	KDFIterations int    `toml:"kdf_iterations"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	// Audit writes position events to the audit_log table.
	Audit bool `toml:"audit"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating routes when set.
	APIKey string `toml:"api_key"`
	// RateLimit is the per-client request budget per minute; it needs redis.
	RateLimit int `toml:"rate_limit"`
}

// WatcherConfig configures the alert stream consumer.
type WatcherConfig struct {
	Stream      string   `toml:"stream"`
	BatchSize   int      `toml:"batch_size"`
	Block       duration `toml:"block"`
	AutoOpen    bool     `toml:"auto_open"`
	AccountID   string   `toml:"account_id"`
	InvestedUSD string   `toml:"invested_usd"`
	// DedupWindow drops reposted alerts seen within the window; 0 disables.
	DedupWindow duration `toml:"dedup_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Resolver: ResolverConfig{
			Order:           []string{"pumpfun", "coingecko", "dexscreener", "jupiter"},
			Cache:           "memory",
			CacheTTL:        duration{time.Minute},
			ProviderTimeout: duration{5 * time.Second},
		},
		Providers: ProvidersConfig{
			Pumpfun:   ProviderConfig{BaseURL: "https://frontend-api.pump.fun", RPS: 5, Burst: 5},
			Jupiter:   ProviderConfig{BaseURL: "https://api.jup.ag/price/v2", RPS: 10, Burst: 10},
			Coingecko: CoingeckoConfig{
				ProviderConfig: ProviderConfig{BaseURL: "https://api.coingecko.com/api/v3", RPS: 0.5, Burst: 3},
				Platform:       "solana",
			},
			Dexscreener: DexscreenerConfig{
				ProviderConfig: ProviderConfig{BaseURL: "https://api.dexscreener.com", RPS: 5, Burst: 5},
				Chain:          "solana",
			},
		},
		Ledger: LedgerConfig{DustFraction: 0.001},
		Persistence: PersistenceConfig{
			Backend:       "file",
			Interval:      duration{5 * time.Minute},
			FilePath:      "data/ledger.json",
			S3Prefix:      "ledger/",
			HistoryKeep:   48,
			KDFIterations: 480_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "signalledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "signalledger",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Watcher: WatcherConfig{
			Stream:      "alerts",
			BatchSize:   16,
			Block:       duration{5 * time.Second},
			AccountID:   "default",
			InvestedUSD: "100",
			DedupWindow: duration{10 * time.Minute},
		},
	}
}

var validModes = map[string]bool{
	"server": true,
	"watch":  true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProviders = map[string]bool{
	"pumpfun":     true,
	"coingecko":   true,
	"dexscreener": true,
	"jupiter":     true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, watch, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Resolver
	if len(c.Resolver.Order) == 0 {
		errs = append(errs, "resolver: order must name at least one provider")
	}
	seen := make(map[string]bool, len(c.Resolver.Order))
	for _, name := range c.Resolver.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		if !validProviders[name] {
			errs = append(errs, fmt.Sprintf("resolver: unknown provider %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("resolver: provider %q listed twice", name))
		}
		seen[name] = true
	}
	switch c.Resolver.Cache {
	case "memory", "none":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "resolver: cache \"redis\" needs redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("resolver: unknown cache %q (valid: memory, redis, none)", c.Resolver.Cache))
	}
	if c.Resolver.CacheTTL.Duration <= 0 {
		errs = append(errs, "resolver: cache_ttl must be > 0")
	}
	if c.Resolver.ProviderTimeout.Duration <= 0 {
		errs = append(errs, "resolver: provider_timeout must be > 0")
	}

	// Providers
	for name, p := range map[string]ProviderConfig{
		"pumpfun":     c.Providers.Pumpfun,
		"jupiter":     c.Providers.Jupiter,
		"coingecko":   c.Providers.Coingecko.ProviderConfig,
		"dexscreener": c.Providers.Dexscreener.ProviderConfig,
	} {
		if p.RPS < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s: rps must be >= 0", name))
		}
		if p.RPS > 0 && p.Burst < 1 {
			errs = append(errs, fmt.Sprintf("providers.%s: burst must be >= 1 when rps is set", name))
		}
	}
	if c.Providers.Dexscreener.MinLiquidityUSD < 0 {
		errs = append(errs, "providers.dexscreener: min_liquidity_usd must be >= 0")
	}

	// Ledger
	if c.Ledger.DustFraction <= 0 || c.Ledger.DustFraction >= 1 {
		errs = append(errs, "ledger: dust_fraction must be in (0, 1)")
	}

	// Persistence
	switch c.Persistence.Backend {
	case "none", "postgres":
	case "file":
		if strings.TrimSpace(c.Persistence.FilePath) == "" {
			errs = append(errs, "persistence: file_path must be set for the file backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty for the s3 backend")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty for the s3 backend")
		}
		if c.Persistence.HistoryKeep < 1 {
			errs = append(errs, "persistence: history_keep must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("persistence: unknown backend %q (valid: none, file, postgres, s3)", c.Persistence.Backend))
	}
	if c.Persistence.Backend != "none" && c.Persistence.Interval.Duration <= 0 {
		errs = append(errs, "persistence: interval must be > 0")
	}
	if c.Persistence.Passphrase != "" && c.Persistence.KDFIterations < 1000 {
		errs = append(errs, "persistence: kdf_iterations must be >= 1000")
	}

	// Postgres
	if c.Persistence.Backend == "postgres" || c.Postgres.Audit {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Mode == "server" || c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Watcher
	if c.Mode == "watch" || c.Mode == "full" {
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Sprintf("watcher: mode %s reads the alert stream and needs redis.enabled", c.Mode))
		}
		if c.Watcher.Stream == "" {
			errs = append(errs, "watcher: stream must not be empty")
		}
		if c.Watcher.DedupWindow.Duration < 0 {
			errs = append(errs, "watcher: dedup_window must be >= 0")
		}
		if c.Watcher.AutoOpen {
			if strings.TrimSpace(c.Watcher.AccountID) == "" {
				errs = append(errs, "watcher: account_id is required when auto_open is set")
			}
			if amt, err := decimal.NewFromString(c.Watcher.InvestedUSD); err != nil || !amt.IsPositive() {
				errs = append(errs, fmt.Sprintf("watcher: invested_usd must be a positive number, got %q", c.Watcher.InvestedUSD))
			}
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// WatcherInvestedUSD parses Watcher.InvestedUSD. Validate has already
// rejected bad values when auto_open is set.
func (c *Config) WatcherInvestedUSD() decimal.Decimal {
	amt, err := decimal.NewFromString(c.Watcher.InvestedUSD)
	if err != nil {
		return decimal.Zero
	}
	return amt
}
