package main

import (
	"context"
	"os"
	"time"

	"daoledger/internal/amqp"
	"daoledger/internal/cli"
	"daoledger/internal/core"
	"daoledger/internal/extract"
	"daoledger/internal/indexer"
	applog "daoledger/internal/log"
	"daoledger/internal/services"
	"daoledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)

	logger.Info("Starting daoledger-worker")

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
	if len(subUnits) == 0 {
		logger.Error("No sub-units to refresh, set SUB_UNITS or MAIN_DAO_ADDRESS")
		os.Exit(1)
	}

	coreTeam := core.NewCoreTeamSet(cfg.ParseCoreTeamAddresses())
	registry := cli.LoadTokenRegistry(context.Background(), logger, cfg)
	priceTable := cli.LoadPriceTable(logger, cfg)
	extractor := extract.New(coreTeam, registry, priceTable)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// AMQP is optional for the worker: without it only the periodic
	// refresh runs.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - running periodic refresh only")
	}

	svc := services.NewAccountingService(network, cfg.ProposalStatus, client, extractor, sqliteRepo, amqpClient)
	defer svc.Close()

	var consumer worker.Consumer
	if amqpClient != nil {
		consumer = amqpClient
	}
	refreshWorker := worker.NewRefreshWorker(svc, consumer, subUnits, cfg.RefreshInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Worker running",
		"network", network,
		"sub_units", len(subUnits),
		"refresh_interval", cfg.RefreshInterval)

	if err := refreshWorker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
