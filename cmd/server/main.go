package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fishnet-hq/paygate/service/catalog"
	"github.com/fishnet-hq/paygate/service/config"
	"github.com/fishnet-hq/paygate/service/db"
	"github.com/fishnet-hq/paygate/service/grants"
	"github.com/fishnet-hq/paygate/service/metrics"
	"github.com/fishnet-hq/paygate/service/payment"
	"github.com/fishnet-hq/paygate/service/server"
	solrail "github.com/fishnet-hq/paygate/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool, m)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure ledger schema", "error", err)
		os.Exit(1)
	}

	// Initialize the permission granter
	granter, err := grants.NewJetStreamGranter(cfg.NATSURL, cfg.GrantsChannel, m, logger)
	if err != nil {
		logger.Error("failed to initialize permission granter", "error", err)
		os.Exit(1)
	}
	defer granter.Close()

	// Initialize the dataset catalog reader
	cat := catalog.NewClient(cfg.CatalogURL, nil, logger)

	mint, err := solana.PublicKeyFromBase58(cfg.USDCMintAddress)
	if err != nil {
		logger.Error("invalid payment mint address", "mint", cfg.USDCMintAddress, "error", err)
		os.Exit(1)
	}

	// Initialize the Solana payment rail
	// Note: For premium RPC endpoints, include API key in the URL
	rpcClient := solrail.NewRPCClient(cfg.SolanaRPCURL, m)
	rail := solrail.NewRail(rpcClient, cat, mint, cfg.AppReferenceSeed, solrail.Options{
		ConfirmTimeout:          cfg.ConfirmTimeout,
		ConfirmPollInterval:     cfg.ConfirmPollInterval,
		SettlementFetchInterval: cfg.SettlementFetchInterval,
		SettlementFetchAttempts: cfg.SettlementFetchAttempts,
		DefaultPriorityFeeRate:  cfg.DefaultPriorityFeeRate,
		DefaultComputeUnitLimit: cfg.DefaultComputeUnitLimit,
	}, m, logger)
	logger.Info("initialized solana payment rail",
		"rpc", cfg.SolanaRPCURL,
		"mint", cfg.USDCMintAddress,
	)

	svc := payment.NewService(rail, cat, granter, store, cfg.MintDecimals, cfg.SendDeadline, m, logger)

	httpServer := server.New(cfg.ServerAddr, svc, m, logger)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
