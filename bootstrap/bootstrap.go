// Package bootstrap wires configuration, storage, services, and the
// HTTP server into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plutusfin/ledger/adapters/clock"
	"github.com/plutusfin/ledger/adapters/idgen"
	"github.com/plutusfin/ledger/adapters/memory"
	"github.com/plutusfin/ledger/adapters/metrics"
	"github.com/plutusfin/ledger/adapters/random"
	"github.com/plutusfin/ledger/adapters/sqlite"
	"github.com/plutusfin/ledger/app"
	"github.com/plutusfin/ledger/config"
	"github.com/plutusfin/ledger/web"
)

// App is the assembled application.
type App struct {
	Holder     *config.Holder
	Logger     zerolog.Logger
	DB         *sqlite.DB
	Metrics    *metrics.Collector
	Gate       *app.QuotaGate
	Credits    *app.CreditService
	Tokens     *app.TokenService
	Webhooks   *app.PurchaseWebhookService
	HTTPServer *http.Server

	plans       *memory.PlanSource
	cleanupStop context.CancelFunc
}

// New builds the application from a config file, with hot reload of
// plan limits enabled.
func New(configPath string) (*App, error) {
	bootLogger := setupLogger("info", "json")

	holder, err := config.NewHolder(configPath, bootLogger)
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	collector := metrics.New()
	clk := clock.Real{}
	ids := idgen.UUID{}
	rnd := random.Real{}

	grants := sqlite.NewGrantStore(db)
	usage := sqlite.NewUsageStore(db)
	creditStore := sqlite.NewCreditStore(db, ids)
	tokenStore := sqlite.NewTokenStore(db)

	// Plans come from config; the subscription system assigns owners to
	// tiers, so unassigned owners get the configured default.
	plans := memory.NewPlanSource(cfg.DefaultPlan())
	holder.OnChange(func(c *config.Config) {
		plans.SetDefault(c.DefaultPlan())
	})
	holder.OnReload(func(err error) {
		if err != nil {
			collector.ConfigReloadErrors.Inc()
			return
		}
		collector.ConfigReloads.Inc()
	})

	gateCfg := app.GateConfig{
		MaxRetries:   cfg.Gate.MaxRetries,
		RetryBackoff: cfg.Gate.RetryBackoff,
	}
	gate := app.NewQuotaGate(plans, grants, usage, clk, gateCfg, collector, logger)
	credits := app.NewCreditService(creditStore, clk, ids, gateCfg, collector, logger)
	tokens := app.NewTokenService(tokenStore, clk, rnd, ids, collector, logger)
	webhooks := app.NewPurchaseWebhookService(grants, credits, clk, ids, logger)

	handler := web.NewHandler(web.Deps{
		Gate:     gate,
		Credits:  credits,
		Tokens:   tokens,
		Webhooks: webhooks,
		Metrics:  web.MetricsConfig{Enabled: cfg.Metrics.Enabled, Path: cfg.Metrics.Path},
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		Holder:     holder,
		Logger:     logger,
		DB:         db,
		Metrics:    collector,
		Gate:       gate,
		Credits:    credits,
		Tokens:     tokens,
		Webhooks:   webhooks,
		HTTPServer: srv,
		plans:      plans,
	}, nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *App) Run() error {
	cfg := a.Holder.Get()

	if err := a.Holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	a.Holder.WatchSignals()

	cleanupCtx, cancel := context.WithCancel(context.Background())
	a.cleanupStop = cancel
	go a.Tokens.CleanupLoop(cleanupCtx, cfg.Tokens.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("ledger listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return err
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return a.Shutdown()
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	if a.cleanupStop != nil {
		a.cleanupStop()
	}
	a.Holder.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("http shutdown failed")
	}

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(levelStr, format string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
