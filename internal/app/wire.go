package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/signalledger/internal/blob/s3"
	"github.com/alanyoungcy/signalledger/internal/cache/memory"
	"github.com/alanyoungcy/signalledger/internal/cache/redis"
	"github.com/alanyoungcy/signalledger/internal/config"
	"github.com/alanyoungcy/signalledger/internal/crypto"
	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/extract"
	"github.com/alanyoungcy/signalledger/internal/ledger"
	"github.com/alanyoungcy/signalledger/internal/notify"
	"github.com/alanyoungcy/signalledger/internal/platform/coingecko"
	"github.com/alanyoungcy/signalledger/internal/platform/dexscreener"
	"github.com/alanyoungcy/signalledger/internal/platform/jupiter"
	"github.com/alanyoungcy/signalledger/internal/platform/pumpfun"
	"github.com/alanyoungcy/signalledger/internal/resolver"
	"github.com/alanyoungcy/signalledger/internal/server/handler"
	"github.com/alanyoungcy/signalledger/internal/service"
	"github.com/alanyoungcy/signalledger/internal/store/codec"
	"github.com/alanyoungcy/signalledger/internal/store/file"
	"github.com/alanyoungcy/signalledger/internal/store/postgres"
	"github.com/alanyoungcy/signalledger/internal/valuation"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Resolver *resolver.Resolver
	Ledger   *ledger.Ledger
	Engine   *service.Engine

	// Persistence; Persister is nil when the backend is "none".
	LedgerStore domain.LedgerStore
	Persister   *service.Persister
	AuditStore  domain.AuditStore

	// Redis-backed; all nil when redis is disabled.
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// HealthChecks probes every external dependency that was wired.
	HealthChecks map[string]handler.HealthCheck

	Notifier *notify.Notifier
}

// Wire constructs all concrete implementations from cfg and returns them
// together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: 5 * time.Second,
			TLSEnabled:  cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c

		deps.SignalBus = redis.NewSignalBus(c)
		deps.LockManager = redis.NewLockManager(c)
		deps.RateLimiter = redis.NewRateLimiter(c, 1, time.Second)
		deps.HealthChecks["redis"] = c.Ping
	}

	// --- PostgreSQL (ledger backend or audit log) ---
	backend := strings.ToLower(cfg.Persistence.Backend)
	if backend == "postgres" || cfg.Postgres.Audit {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pg.Pool()
		deps.HealthChecks["postgres"] = pool.Ping
		if backend == "postgres" {
			deps.LedgerStore = postgres.NewLedgerStore(pool)
		}
		if cfg.Postgres.Audit {
			deps.AuditStore = postgres.NewAuditStore(pool)
		}
	}

	// --- Snapshot codec (file and s3 backends) ---
	var sealer *crypto.Sealer
	if cfg.Persistence.Passphrase != "" {
		s, err := crypto.NewSealer(cfg.Persistence.Passphrase, cfg.Persistence.KDFIterations)
		if err != nil {
			return fail(fmt.Errorf("wire: sealer: %w", err))
		}
		sealer = s
	}
	snapCodec := codec.New(sealer)

	switch backend {
	case "file":
		deps.LedgerStore = file.NewSnapshotStore(cfg.Persistence.FilePath, snapCodec)
	case "s3":
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.HealthChecks["s3"] = s3Client.Health

		reader := s3blob.NewReader(s3Client)
		deps.LedgerStore = s3blob.NewSnapshotStore(
			s3blob.NewWriter(s3Client), reader, reader,
			s3blob.SnapshotStoreConfig{
				Prefix:      cfg.Persistence.S3Prefix,
				HistoryKeep: cfg.Persistence.HistoryKeep,
				Codec:       snapCodec,
			}, logger)
	}

	// --- Resolver chain ---
	providers, err := buildProviders(cfg, redisClient)
	if err != nil {
		return fail(err)
	}
	var cache domain.ResolutionCache
	switch cfg.Resolver.Cache {
	case "memory":
		cache = memory.NewResolutionCache()
	case "redis":
		cache = redis.NewResolutionCache(redisClient)
	}
	deps.Resolver = resolver.New(providers, cache, resolver.Options{
		CacheTTL:        cfg.Resolver.CacheTTL.Duration,
		ProviderTimeout: cfg.Resolver.ProviderTimeout.Duration,
	}, logger)

	// --- Ledger and engine ---
	deps.Ledger = ledger.New(deps.Resolver, ledger.Options{
		DustFraction: decimal.NewFromFloat(cfg.Ledger.DustFraction),
	}, logger)

	deps.Notifier = buildNotifier(cfg, logger)
	var notifier service.Notifier
	if deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}

	deps.Engine = service.NewEngine(
		extract.New(extract.Options{
			Stoplist:     cfg.Extractor.Stoplist,
			EVMAddresses: cfg.Extractor.EVMAddresses,
			Cashtags:     cfg.Extractor.Cashtags,
		}),
		deps.Resolver,
		deps.Ledger,
		valuation.New(deps.Resolver, logger),
		deps.SignalBus,
		deps.AuditStore,
		notifier,
		logger,
	)

	if deps.LedgerStore != nil {
		deps.Persister = service.NewPersister(deps.Ledger, deps.LedgerStore, deps.LockManager,
			backend, cfg.Persistence.Interval.Duration, logger)
	}

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.Any("providers", deps.Resolver.Providers()),
		slog.String("cache", cfg.Resolver.Cache),
		slog.Bool("redis", redisClient != nil),
		slog.Bool("audit", deps.AuditStore != nil),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)
	return deps, cleanup, nil
}

// buildProviders creates the adapters named in cfg.Resolver.Order. Each one
// is throttled locally and, with redis, also against a limit shared by every
// replica.
func buildProviders(cfg *config.Config, redisClient *redis.Client) ([]domain.Provider, error) {
	out := make([]domain.Provider, 0, len(cfg.Resolver.Order))
	for _, name := range cfg.Resolver.Order {
		var (
			p  domain.Provider
			pc config.ProviderConfig
		)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "pumpfun":
			pc = cfg.Providers.Pumpfun
			p = pumpfun.New(pc.BaseURL)
		case "jupiter":
			pc = cfg.Providers.Jupiter
			p = jupiter.New(pc.BaseURL)
		case "coingecko":
			pc = cfg.Providers.Coingecko.ProviderConfig
			p = coingecko.New(coingecko.Config{
				BaseURL:  pc.BaseURL,
				APIKey:   cfg.Providers.Coingecko.APIKey,
				Platform: cfg.Providers.Coingecko.Platform,
			})
		case "dexscreener":
			pc = cfg.Providers.Dexscreener.ProviderConfig
			p = dexscreener.New(dexscreener.Config{
				BaseURL:         pc.BaseURL,
				Chain:           cfg.Providers.Dexscreener.Chain,
				MinLiquidityUSD: decimal.NewFromFloat(cfg.Providers.Dexscreener.MinLiquidityUSD),
			})
		default:
			return nil, fmt.Errorf("wire: unknown provider %q", name)
		}

		p = resolver.Throttle(p, pc.RPS, pc.Burst)
		if redisClient != nil && pc.RPS > 0 {
			limit, window := sharedWindow(pc.RPS)
			p = resolver.ShareLimit(p, redis.NewRateLimiter(redisClient, limit, window))
		}
		out = append(out, p)
	}
	return out, nil
}

// sharedWindow expresses rps as a whole number of requests per window.
func sharedWindow(rps float64) (int, time.Duration) {
	if rps >= 1 {
		return int(math.Floor(rps)), time.Second
	}
	return 1, time.Duration(float64(time.Second) / rps)
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
