// report-export is a one-shot tool: it fetches every configured sub-unit,
// extracts payment records and writes a report to stdout, a file, or
// Google Sheets. No database or broker is touched.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"daoledger/internal/cli"
	"daoledger/internal/core"
	"daoledger/internal/export"
	"daoledger/internal/extract"
	"daoledger/internal/indexer"
	applog "daoledger/internal/log"
	"daoledger/internal/report"
)

func main() {
	groupByFlag := flag.String("group-by", "", "comma separated grouping dimensions (sub_unit, category, month, denom, recipient); empty for the detailed payment list")
	outputFlag := flag.String("o", "", "output file path (default stdout)")
	sheetsFlag := flag.Bool("sheets", false, "export to Google Sheets instead of CSV")
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "overall fetch timeout")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentExport)

	cfg := cli.LoadAndValidateConfig(logger)

	network, err := core.ParseNetwork(cfg.Network)
	if err != nil {
		logger.Error("Invalid network", "network", cfg.Network, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	client := indexer.NewClient(cfg.IndexerBaseURL, network)

	subUnits, err := cfg.ParseSubUnits()
	if err != nil {
		logger.Error("Invalid SUB_UNITS", "error", err)
		os.Exit(1)
	}
	if len(subUnits) == 0 && cfg.MainDAOAddress != "" {
		subUnits, err = client.ListSubDAOs(ctx, cfg.MainDAOAddress)
		if err != nil {
			logger.Error("Failed to discover SubDAOs", "dao", cfg.MainDAOAddress, "error", err)
			os.Exit(1)
		}
		logger.Info("Discovered SubDAOs", "dao", cfg.MainDAOAddress, "count", len(subUnits))
	}
	if len(subUnits) == 0 {
		logger.Error("No sub-units to export, set SUB_UNITS or MAIN_DAO_ADDRESS")
		os.Exit(1)
	}

	coreTeam := core.NewCoreTeamSet(cfg.ParseCoreTeamAddresses())
	registry := cli.LoadTokenRegistry(ctx, logger, cfg)
	priceTable := cli.LoadPriceTable(logger, cfg)
	extractor := extract.New(coreTeam, registry, priceTable)

	var records []core.PaymentRecord
	for _, sub := range subUnits {
		proposals, err := client.Proposals(ctx, sub, cfg.ProposalStatus)
		if err != nil {
			logger.Error("Failed to fetch proposals", "sub_unit", sub.Label(), "error", err)
			os.Exit(1)
		}
		payments, stats := extractor.ExtractAll(proposals)
		records = append(records, payments...)
		logger.Info("Sub-unit fetched",
			"sub_unit", sub.Label(),
			"proposals", stats.Proposals,
			"payments", stats.Payments,
			"unrecognized", stats.Unrecognized)
	}

	if *sheetsFlag {
		exporter, err := export.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		if *groupByFlag != "" {
			groupBy, err := report.ParseGroupBy(*groupByFlag)
			if err != nil {
				logger.Error("Invalid group-by", "error", err)
				os.Exit(1)
			}
			err = exporter.ExportReport(ctx, report.Build(records, groupBy))
		} else {
			err = exporter.ExportPayments(ctx, records)
		}
		if err != nil {
			logger.Error("Google Sheets export failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Exported to Google Sheets", "payments", len(records))
		return
	}

	var out io.Writer = os.Stdout
	if *outputFlag != "" {
		f, err := os.Create(*outputFlag)
		if err != nil {
			logger.Error("Failed to create output file", "path", *outputFlag, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if *groupByFlag != "" {
		groupBy, err := report.ParseGroupBy(*groupByFlag)
		if err != nil {
			logger.Error("Invalid group-by", "error", err)
			os.Exit(1)
		}
		if err := report.WriteCSV(out, report.Build(records, groupBy)); err != nil {
			logger.Error("CSV export failed", "error", err)
			os.Exit(1)
		}
	} else {
		if err := report.WritePaymentsCSV(out, records); err != nil {
			logger.Error("CSV export failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Export complete", "payments", len(records))
}
