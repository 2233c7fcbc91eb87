package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"daoledger/internal/amqp"
	"daoledger/internal/core"
	"daoledger/internal/extract"
	"daoledger/internal/indexer"
	"daoledger/internal/storage"
)

// ProposalFetcher is the slice of the indexer client the service needs.
type ProposalFetcher interface {
	Proposals(ctx context.Context, sub core.SubUnit, status string) ([]core.ProposalRecord, error)
	ListSubDAOs(ctx context.Context, daoAddress string) ([]core.SubUnit, error)
}

var _ ProposalFetcher = (*indexer.Client)(nil)

// AccountingService orchestrates fetch, extraction and storage of payment
// records across the indexer, SQLite and AMQP.
type AccountingService struct {
	network    core.Network
	status     string
	fetcher    ProposalFetcher
	extractor  *extract.Extractor
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewAccountingService(network core.Network, status string, fetcher ProposalFetcher, extractor *extract.Extractor, storage *storage.SQLiteRepository, amqpClient *amqp.Client) *AccountingService {
	return &AccountingService{
		network:    network,
		status:     status,
		fetcher:    fetcher,
		extractor:  extractor,
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RefreshSubUnit fetches a sub-unit's proposals, extracts payment records
// and replaces the stored snapshot. Returns extraction stats for logging.
func (s *AccountingService) RefreshSubUnit(ctx context.Context, sub core.SubUnit) (extract.Stats, error) {
	var stats extract.Stats

	if err := sub.Validate(); err != nil {
		return stats, fmt.Errorf("validate sub-unit: %w", err)
	}

	started := time.Now()
	proposals, err := s.fetcher.Proposals(ctx, sub, s.status)
	if err != nil {
		return stats, fmt.Errorf("fetch proposals for %s: %w", sub.Label(), err)
	}

	payments, stats := s.extractor.ExtractAll(proposals)

	if err := s.storage.ReplaceSubUnit(ctx, s.network, sub, proposals, payments); err != nil {
		return stats, fmt.Errorf("store snapshot for %s: %w", sub.Label(), err)
	}

	slog.InfoContext(ctx, "Sub-unit refreshed",
		"sub_unit", sub.Label(),
		"proposals", stats.Proposals,
		"payments", stats.Payments,
		"unrecognized", stats.Unrecognized,
		"dropped", stats.Dropped,
		"elapsed", time.Since(started).Round(time.Millisecond))

	return stats, nil
}

// RefreshAll refreshes every configured sub-unit sequentially. A failure on
// one sub-unit is logged and does not stop the others.
func (s *AccountingService) RefreshAll(ctx context.Context, subs []core.SubUnit) error {
	var failed int
	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.RefreshSubUnit(ctx, sub); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh sub-unit",
				"sub_unit", sub.Label(), "error", err)
			failed++
		}
	}
	if failed == len(subs) && len(subs) > 0 {
		return fmt.Errorf("all %d sub-unit refreshes failed", failed)
	}
	return nil
}

// EnqueueRefresh publishes a refresh request for async processing by the
// worker. Falls back to an inline refresh when AMQP is not configured.
func (s *AccountingService) EnqueueRefresh(ctx context.Context, sub core.SubUnit) (string, error) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, refreshing inline",
			"sub_unit", sub.Label())
		if _, err := s.RefreshSubUnit(ctx, sub); err != nil {
			return "", err
		}
		return "", nil
	}

	msg := amqp.NewRefreshMessage(string(s.network), sub.Name, sub.Address, s.status)
	if err := s.amqpClient.PublishRefresh(ctx, msg); err != nil {
		return "", fmt.Errorf("publish refresh: %w", err)
	}
	return msg.JobID, nil
}

// DiscoverSubUnits lists the SubDAOs of the main DAO from the indexer.
func (s *AccountingService) DiscoverSubUnits(ctx context.Context, daoAddress string) ([]core.SubUnit, error) {
	subs, err := s.fetcher.ListSubDAOs(ctx, daoAddress)
	if err != nil {
		return nil, fmt.Errorf("list subdaos: %w", err)
	}
	return subs, nil
}

// Payments returns stored payment records matching the filter.
func (s *AccountingService) Payments(ctx context.Context, f storage.Filter) ([]core.PaymentRecord, error) {
	return s.storage.ListPayments(ctx, s.network, f)
}

// StoredSubUnits returns the sub-units that have stored snapshots.
func (s *AccountingService) StoredSubUnits(ctx context.Context) ([]core.SubUnit, error) {
	return s.storage.SubUnits(ctx, s.network)
}

// LastFetched reports the newest snapshot time, used by readiness checks.
func (s *AccountingService) LastFetched(ctx context.Context) (time.Time, error) {
	return s.storage.LastFetched(ctx, s.network)
}

// Close closes both storage and AMQP connections
func (s *AccountingService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close accounting service: %v", errs)
	}

	return nil
}
