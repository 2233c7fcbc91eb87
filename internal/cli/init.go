// Package cli provides common initialization utilities shared by
// cmd/daoledger, cmd/daoledger-worker, and cmd/report-export.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"daoledger/internal/config"
	applog "daoledger/internal/log"
	"daoledger/internal/prices"
	"daoledger/internal/storage"
	"daoledger/internal/tokens"
)

// SetupLogger initializes structured logging with default settings.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(component string) *applog.Logger {
	logger := applog.New(applog.DefaultConfig()).WithComponent(component)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// LoadTokenRegistry loads token metadata from a local file when configured,
// falling back to the chainlist URL. A missing registry is not fatal:
// amounts are then reported raw, without decimal adjustment.
func LoadTokenRegistry(ctx context.Context, logger *applog.Logger, cfg *config.Config) *tokens.Registry {
	if cfg.TokenDataFile != "" {
		registry, err := tokens.LoadFromFile(cfg.TokenDataFile)
		if err != nil {
			logger.Warn("Failed to load token data file", "path", cfg.TokenDataFile, "error", err)
			return nil
		}
		return registry
	}

	if cfg.ChainlistURL == "" {
		return nil
	}
	registry, err := tokens.LoadFromURL(ctx, cfg.ChainlistURL)
	if err != nil {
		logger.Warn("Failed to load token registry", "url", cfg.ChainlistURL, "error", err)
		return nil
	}
	logger.Info("Token registry loaded", "tokens", registry.Len())
	return registry
}

// LoadPriceTable loads the daily price table when configured. A missing
// table is not fatal: USD values are then reported as zero.
func LoadPriceTable(logger *applog.Logger, cfg *config.Config) *prices.Table {
	if cfg.PricesFile == "" {
		return nil
	}
	table, err := prices.LoadFile(cfg.PricesFile)
	if err != nil {
		logger.Warn("Failed to load price table", "path", cfg.PricesFile, "error", err)
		return nil
	}
	return table
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
