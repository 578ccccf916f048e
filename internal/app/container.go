// Package app assembles the infrastructure shared by the api and worker
// processes from one loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/config"
	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/external/ethereum"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/external/objectstore"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/external/pinata"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/persistence/postgres"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/persistence/redis"
	"github.com/vstep-dao/vstep-hub/internal/interface/http/handlers"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// Container holds the long-lived dependencies of one process.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB       *postgres.Connection
	Exams    exam.Repository
	Accounts account.Repository

	// Catalog and Leaderboard are nil when Redis is not configured.
	Catalog     exam.CatalogCache
	Leaderboard account.LeaderboardCache

	Ledger  *ethereum.Client
	Content content.Store

	Readiness *handlers.ReadinessChecker

	closers []func() error
}

// New connects to every backing service. ledgerURL selects the RPC endpoint;
// the worker passes the websocket URL so it can subscribe. On error, anything
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, ledgerURL string) (_ *Container, err error) {
	c := &Container{
		Config:    cfg,
		Logger:    log,
		Registry:  prometheus.NewRegistry(),
		Readiness: handlers.NewReadinessChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			if closeErr := c.Close(); closeErr != nil {
				log.Warn("cleanup after failed startup", zap.Error(closeErr))
			}
		}
	}()

	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	// ─────────────────────────────────────────────────────────────────────────
	// Database
	// ─────────────────────────────────────────────────────────────────────────

	c.DB, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error { c.DB.Close(); return nil })
	c.Readiness.AddCheck("database", handlers.PingCheck(c.DB))

	if cfg.Database.AutoMigrate {
		if err = postgres.NewMigrator(c.DB).Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info("database schema is up to date")
	}

	c.Exams = postgres.NewExamRepository(c.DB)
	c.Accounts = postgres.NewAccountRepository(c.DB)

	// ─────────────────────────────────────────────────────────────────────────
	// Cache
	// ─────────────────────────────────────────────────────────────────────────

	if addr := cfg.RedisAddr(); addr != "" {
		redisCfg := redis.DefaultConfig()
		redisCfg.Addr = addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		cache, cacheErr := redis.NewCache(ctx, redisCfg)
		if cacheErr != nil {
			log.Warn("redis unavailable, caching disabled", zap.String("addr", addr), zap.Error(cacheErr))
		} else {
			c.closers = append(c.closers, cache.Close)
			c.Readiness.AddCheck("redis", handlers.PingCheck(cache))
			c.Catalog = redis.NewCatalogCache(cache, cfg.Redis.CatalogTTL)
			c.Leaderboard = redis.NewLeaderboardCache(cache, cfg.Redis.LeaderboardTTL)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Content store
	// ─────────────────────────────────────────────────────────────────────────

	if c.Content, err = newContentStore(ctx, cfg.Content, log); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Ledger
	// ─────────────────────────────────────────────────────────────────────────

	c.Ledger, err = ethereum.Dial(ctx, ledgerURL, ethereum.ClientConfig{
		ContractAddress:  cfg.Ledger.ContractAddress,
		PrivateKey:       cfg.Ledger.PrivateKey,
		ChainID:          cfg.Ledger.ChainID,
		CallTimeout:      cfg.Ledger.CallTimeout,
		RequestsPerSec:   cfg.Ledger.RequestsPerSec,
		Burst:            cfg.Ledger.Burst,
		ConfirmPollEvery: cfg.Ledger.ConfirmPollEvery,
		Logger:           log,
		Metrics:          c.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error { c.Ledger.Close(); return nil })

	log.Info("ledger connected",
		zap.String("contract", cfg.Ledger.ContractAddress),
		zap.String("wallet", c.Ledger.WalletAddress().Hex()),
	)

	return c, nil
}

func newContentStore(ctx context.Context, cfg config.ContentConfig, log *zap.Logger) (content.Store, error) {
	switch cfg.Backend {
	case config.ContentPinata:
		return pinata.NewClient(pinata.ClientConfig{
			APIURL:     cfg.PinataAPIURL,
			GatewayURL: cfg.PinataGatewayURL,
			JWT:        cfg.PinataJWT,
			Timeout:    cfg.Timeout,
			RetryCount: 2,
			Logger:     log,
		}), nil
	case config.ContentMinio:
		return objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Logger:    log,
		})
	default:
		return nil, fmt.Errorf("app: unknown content backend %q", cfg.Backend)
	}
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() error {
	var result *multierror.Error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && !errors.Is(err, context.Canceled) {
			result = multierror.Append(result, err)
		}
	}
	c.closers = nil
	return result.ErrorOrNil()
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.DefaultOptions()
	opts.Level = cfg.Observability.LogLevel
	opts.Format = cfg.Observability.LogFormat
	opts.FilePath = cfg.Observability.LogFile
	if cfg.IsDevelopment() && opts.Format == "" {
		opts.Format = "console"
	}

	log, err := logger.New(opts)
	if err != nil {
		return nil, err
	}
	return log.With(
		zap.String("app", cfg.App.Name),
		zap.String("env", string(cfg.App.Environment)),
		zap.String("version", cfg.App.Version),
	), nil
}
