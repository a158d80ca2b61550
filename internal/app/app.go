// Package app wires every paygate component into a running process: config,
// logging, the antifraud layer, the fairness engine, the payment state
// machine, and the webhook or long-polling front door.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/paygate/internal/config"
	"github.com/wisbric/paygate/internal/httpserver"
	"github.com/wisbric/paygate/internal/platform"
	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/admin"
	"github.com/wisbric/paygate/pkg/antifraud"
	"github.com/wisbric/paygate/pkg/award"
	"github.com/wisbric/paygate/pkg/cryptoutil"
	"github.com/wisbric/paygate/pkg/dispatch"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/fairness"
	"github.com/wisbric/paygate/pkg/invoice"
	"github.com/wisbric/paygate/pkg/ipguard"
	"github.com/wisbric/paygate/pkg/longpoll"
	"github.com/wisbric/paygate/pkg/miniapp"
	"github.com/wisbric/paygate/pkg/payment"
	"github.com/wisbric/paygate/pkg/platformclient"
	"github.com/wisbric/paygate/pkg/precheckout"
	"github.com/wisbric/paygate/pkg/ratelimit"
	"github.com/wisbric/paygate/pkg/refund"
	"github.com/wisbric/paygate/pkg/router"
	"github.com/wisbric/paygate/pkg/velocity"
	"github.com/wisbric/paygate/pkg/webhook"
)

// Run builds and runs the gateway until ctx is cancelled. It returns the
// first fatal error (a bad FAIRNESS_KEY, a PAYMENTS_CURRENCY other than XTR,
// unreachable storage, a listener bind failure), or nil on a clean shutdown.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	fairnessKey, err := cryptoutil.DecodeFairnessKey(cfg.FairnessKey)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if cfg.Currency != "XTR" {
		return fmt.Errorf("app: unsupported payments currency %q", cfg.Currency)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("app: connecting to redis: %w", err)
		}
		defer rdb.Close()
	}

	journal, closeJournal, err := buildJournal(ctx, cfg)
	if err != nil {
		return fmt.Errorf("app: building fairness journal: %w", err)
	}
	defer closeJournal()

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return fmt.Errorf("app: building case catalog: %w", err)
	}

	bucketStore := buildBucketStore(rdb)
	ipg := ipguard.NewStore()
	gate := antifraud.New(antifraud.Config{
		IPEnabled:      cfg.AntifraudIPEnabled,
		IPParams:       ratelimit.Params{Capacity: cfg.AntifraudIPCapacity, RefillTokensPerSecond: cfg.AntifraudIPRPS, TTLSeconds: cfg.AntifraudIPTTLSeconds},
		SubjectEnabled: cfg.AntifraudSubjectEnabled,
		SubjectParams:  ratelimit.Params{Capacity: cfg.AntifraudSubjectCapacity, RefillTokensPerSecond: cfg.AntifraudSubjectRPS, TTLSeconds: cfg.AntifraudSubjectTTLSeconds},
		Velocity:       velocity.Default(),
	}, ipg, bucketStore, logger)

	fair := fairness.New(fairnessKey, journal, catalog)
	client := platformclient.New("", cfg.BotToken, logger)

	refunder := refund.New(client, logger)
	awardSvc := award.New(catalog, client, refunder, logger)
	paymentHandler := payment.New(catalog, fair, awardSvc, refunder, client, cfg.ReceiptEnabled, logger)
	preCheckoutHandler := precheckout.New(catalog, client, gate, logger)
	invoiceSvc := invoice.New(catalog, client, cfg.Currency, cfg.TitlePrefix, "")
	invoiceHandler := invoice.NewHandler(invoiceSvc, gate, cfg.AntifraudTrustProxy)

	rt := router.New(preCheckoutHandler, paymentHandler, logger)
	dispatcher := dispatch.New(rt.Route, logger, dispatch.DefaultCapacity, dispatch.DefaultWorkers, dispatch.DefaultDedupTTL)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	adminHandler := admin.New(client, ipg, fair, cfg.AdminToken, logger)

	registry := telemetry.NewRegistry()
	server := httpserver.NewServer(cfg, logger, rdb, registry)

	server.MiniApp.Use(antifraud.Middleware(gate, antifraud.MiddlewareConfig{
		TrustProxy:   cfg.AntifraudTrustProxy,
		IncludePaths: cfg.AntifraudIncludePaths,
		ExcludePaths: cfg.AntifraudExcludePaths,
	}))
	server.MiniApp.Use(miniapp.Middleware(cfg.BotToken))
	server.MiniApp.Post("/invoice", invoiceHandler.ServeHTTP)

	server.Admin.Mount("/", adminHandler.Routes())
	server.Fairness.Mount("/", adminHandler.FairnessRoutes())

	var pollRunner *longpoll.Runner
	switch cfg.Mode {
	case "long_polling":
		pollRunner = longpoll.NewRunner(client, dispatcher.Enqueue, logger, 30, nil)
	default:
		webhookHandler := webhook.NewHandler(cfg.WebhookSecretToken, dispatcher.Enqueue, logger)
		server.Router.Post(cfg.WebhookPath, webhookHandler.ServeHTTP)
	}

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr(), "mode", cfg.Mode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("app: http server: %w", err)
			return
		}
		errCh <- nil
	}()

	if pollRunner != nil {
		go func() {
			if err := pollRunner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("app: long-poll runner: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	return nil
}

// buildBucketStore picks the Redis-backed token bucket store when Redis is
// configured, falling back to the in-memory reference implementation
// otherwise.
func buildBucketStore(rdb *redis.Client) ratelimit.Store {
	if rdb != nil {
		return ratelimit.NewRedisStore(rdb, "paygate:ratelimit:")
	}
	return ratelimit.NewMemoryStore()
}

// buildJournal selects the fairness journal backend named by cfg.RNGStorage.
// The returned close func releases any backing resource (a no-op for the
// memory and file backends) and must always be called.
func buildJournal(ctx context.Context, cfg *config.Config) (fairness.Journal, func(), error) {
	switch cfg.RNGStorage {
	case "file":
		fj, err := fairness.NewFileJournal(cfg.RNGDataDir)
		if err != nil {
			return nil, nil, err
		}
		return fj, func() {}, nil

	case "db":
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, nil, err
		}
		pool, err := platform.NewPostgresPool(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		sj, err := fairness.NewSQLJournal(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sj, pool.Close, nil

	default:
		return fairness.NewMemoryJournal(), func() {}, nil
	}
}

// postgresDSN overlays cfg's separately-configured RNGDBUser/RNGDBPass onto
// RNGDBURL's userinfo, so the connection string need not embed credentials
// directly — the password lives in its own env var rather than inline in
// a URL.
func postgresDSN(cfg *config.Config) (string, error) {
	if cfg.RNGDBURL == "" {
		return "", fmt.Errorf("app: RNG_STORAGE=db requires RNG_DB_URL")
	}
	if cfg.RNGDBUser == "" && cfg.RNGDBPass == "" {
		return cfg.RNGDBURL, nil
	}
	u, err := url.Parse(cfg.RNGDBURL)
	if err != nil {
		return "", fmt.Errorf("app: parsing RNG_DB_URL: %w", err)
	}
	u.User = url.UserPassword(cfg.RNGDBUser, cfg.RNGDBPass)
	return u.String(), nil
}

// defaultCases is the built-in placeholder catalog used when no
// EconomyCasesFile is configured, so paygate is runnable without first
// standing up the real (out-of-scope) economy/case catalog service.
func defaultCases() []economy.CaseConfig {
	return []economy.CaseConfig{
		{
			ID:         "starter",
			Title:      "Starter Case",
			PriceStars: 50,
			Items: []economy.PrizeItem{
				{ID: "internal-small", Type: economy.PrizeInternal, ProbabilityPpm: 1_000_000},
			},
		},
	}
}

func buildCatalog(cfg *config.Config) (economy.Catalog, error) {
	if cfg.EconomyCasesFile == "" {
		return economy.NewMemoryCatalog(defaultCases()), nil
	}
	cases, err := economy.LoadCasesFile(cfg.EconomyCasesFile)
	if err != nil {
		return nil, err
	}
	return economy.NewMemoryCatalog(cases), nil
}
