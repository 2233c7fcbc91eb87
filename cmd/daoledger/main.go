package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daoledger/internal/amqp"
	"daoledger/internal/cli"
	"daoledger/internal/core"
	"daoledger/internal/extract"
	apphttp "daoledger/internal/http"
	"daoledger/internal/indexer"
	applog "daoledger/internal/log"
	"daoledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)

	network, err := core.ParseNetwork(cfg.Network)
	if err != nil {
		logger.Error("Invalid network", "network", cfg.Network, "error", err)
		os.Exit(1)
	}

	client := indexer.NewClient(cfg.IndexerBaseURL, network)

	subUnits, err := cfg.ParseSubUnits()
	if err != nil {
		logger.Error("Invalid SUB_UNITS", "error", err)
		os.Exit(1)
	}
	if len(subUnits) == 0 && cfg.MainDAOAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		subUnits, err = client.ListSubDAOs(ctx, cfg.MainDAOAddress)
		cancel()
		if err != nil {
			logger.Error("Failed to discover SubDAOs", "dao", cfg.MainDAOAddress, "error", err)
			os.Exit(1)
		}
		logger.Info("Discovered SubDAOs", "dao", cfg.MainDAOAddress, "count", len(subUnits))
	}

	coreTeam := core.NewCoreTeamSet(cfg.ParseCoreTeamAddresses())
	registry := cli.LoadTokenRegistry(context.Background(), logger, cfg)
	priceTable := cli.LoadPriceTable(logger, cfg)
	extractor := extract.New(coreTeam, registry, priceTable)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - refreshes run inline")
	}

	svc := services.NewAccountingService(network, cfg.ProposalStatus, client, extractor, sqliteRepo, amqpClient)
	defer svc.Close()

	srv := apphttp.NewServer(":"+cfg.Port, svc, subUnits, cfg.MainDAOAddress)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting daoledger server",
		"port", cfg.Port,
		"network", network,
		"sub_units", len(subUnits))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
