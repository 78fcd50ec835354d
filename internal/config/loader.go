package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix prefixes every environment override.
const envPrefix = "SIGLEDGER_"

// Load decodes the TOML file at path over Defaults(), loads .env when
// present and applies SIGLEDGER_* overrides. A missing file is not an error
// when path is empty. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose SIGLEDGER_* variable is set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	// ── Extractor ──
	setStringSlice(&cfg.Extractor.Stoplist, "EXTRACTOR_STOPLIST")
	setBool(&cfg.Extractor.EVMAddresses, "EXTRACTOR_EVM_ADDRESSES")
	setBool(&cfg.Extractor.Cashtags, "EXTRACTOR_CASHTAGS")

	// ── Resolver ──
	setStringSlice(&cfg.Resolver.Order, "RESOLVER_ORDER")
	setStr(&cfg.Resolver.Cache, "RESOLVER_CACHE")
	setDuration(&cfg.Resolver.CacheTTL, "RESOLVER_CACHE_TTL")
	setDuration(&cfg.Resolver.ProviderTimeout, "RESOLVER_PROVIDER_TIMEOUT")

	// ── Providers ──
	setStr(&cfg.Providers.Pumpfun.BaseURL, "PROVIDERS_PUMPFUN_BASE_URL")
	setFloat64(&cfg.Providers.Pumpfun.RPS, "PROVIDERS_PUMPFUN_RPS")
	setStr(&cfg.Providers.Jupiter.BaseURL, "PROVIDERS_JUPITER_BASE_URL")
	setFloat64(&cfg.Providers.Jupiter.RPS, "PROVIDERS_JUPITER_RPS")
	setStr(&cfg.Providers.Coingecko.BaseURL, "PROVIDERS_COINGECKO_BASE_URL")
	setStr(&cfg.Providers.Coingecko.APIKey, "PROVIDERS_COINGECKO_API_KEY")
	setStr(&cfg.Providers.Coingecko.Platform, "PROVIDERS_COINGECKO_PLATFORM")
	setFloat64(&cfg.Providers.Coingecko.RPS, "PROVIDERS_COINGECKO_RPS")
	setStr(&cfg.Providers.Dexscreener.BaseURL, "PROVIDERS_DEXSCREENER_BASE_URL")
	setStr(&cfg.Providers.Dexscreener.Chain, "PROVIDERS_DEXSCREENER_CHAIN")
	setFloat64(&cfg.Providers.Dexscreener.MinLiquidityUSD, "PROVIDERS_DEXSCREENER_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Providers.Dexscreener.RPS, "PROVIDERS_DEXSCREENER_RPS")

	// ── Ledger ──
	setFloat64(&cfg.Ledger.DustFraction, "LEDGER_DUST_FRACTION")

	// ── Persistence ──
	setStr(&cfg.Persistence.Backend, "PERSISTENCE_BACKEND")
	setDuration(&cfg.Persistence.Interval, "PERSISTENCE_INTERVAL")
	setStr(&cfg.Persistence.FilePath, "PERSISTENCE_FILE_PATH")
	setStr(&cfg.Persistence.S3Prefix, "PERSISTENCE_S3_PREFIX")
	setInt(&cfg.Persistence.HistoryKeep, "PERSISTENCE_HISTORY_KEEP")
	setStr(&cfg.Persistence.Passphrase, "PERSISTENCE_PASSPHRASE")
	setInt(&cfg.Persistence.KDFIterations, "PERSISTENCE_KDF_ITERATIONS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.Audit, "POSTGRES_AUDIT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// ── Watcher ──
	setStr(&cfg.Watcher.Stream, "WATCHER_STREAM")
	setInt(&cfg.Watcher.BatchSize, "WATCHER_BATCH_SIZE")
	setDuration(&cfg.Watcher.Block, "WATCHER_BLOCK")
	setBool(&cfg.Watcher.AutoOpen, "WATCHER_AUTO_OPEN")
	setStr(&cfg.Watcher.AccountID, "WATCHER_ACCOUNT_ID")
	setStr(&cfg.Watcher.InvestedUSD, "WATCHER_INVESTED_USD")
	setDuration(&cfg.Watcher.DedupWindow, "WATCHER_DEDUP_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")
}

// Typed env helpers. Each only mutates the target when the variable is set
// and parses.

func getenv(key string) string { return os.Getenv(envPrefix + key) }

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
