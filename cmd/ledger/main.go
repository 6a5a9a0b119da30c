package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(boot.Logger)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	res := cli.InitBackend(context.Background(), logger.Logger, cfg)

	// Events go to the broker when one is configured. Without a broker but
	// with a spreadsheet, an in-process outbox feeds the journal directly.
	publisher := res.Publisher()
	var outbox *worker.Outbox
	if publisher == nil && cfg.JournalEnabled() {
		journal, err := gsheet.New(context.Background(), cli.JournalOptions(cfg))
		if err != nil {
			logger.Error("Failed to initialize Google Sheets journal", "error", err)
			os.Exit(1)
		}
		outbox = worker.NewOutbox(worker.NewJournalWorker(journal).HandleEvent, worker.DefaultOutboxConfig())
		publisher = outbox
		logger.Info("Journal enabled via in-process outbox", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	svcCfg := services.Config{
		StoreTimeout:  cfg.StoreTimeout,
		UserCacheSize: cfg.UserCacheSize,
		UserCacheTTL:  cfg.UserCacheTTL,
	}
	ledgerSvc := services.NewLedgerService(res.Store, publisher, svcCfg)
	summarySvc := services.NewSummaryService(res.Store, ledgerSvc, svcCfg)

	caches := cache.NewManager()
	caches.Register(ledgerSvc.UserCache())

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:             ledgerSvc,
		Summary:            summarySvc,
		Ready:              res.Ready,
		UserCache:          ledgerSvc.UserCache(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Caches:             caches,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})
	caches.StartCleanup(time.Minute)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if outbox != nil {
			if err := outbox.Stop(ctx); err != nil {
				logger.Warn("Outbox stop error", "error", err)
			}
		}
		caches.Stop()
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	if outbox != nil {
		// Detached from ctx so Stop can still flush queued events.
		if err := outbox.Start(context.Background()); err != nil {
			logger.Error("Failed to start outbox", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil,
		"journal", cfg.JournalEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
