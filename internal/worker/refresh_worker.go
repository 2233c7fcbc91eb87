// Package worker runs the background refresh loop: it consumes refresh
// requests from AMQP and periodically re-fetches every configured sub-unit.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"daoledger/internal/amqp"
	"daoledger/internal/core"
	"daoledger/internal/extract"
)

// Refresher is the slice of the accounting service the worker needs.
type Refresher interface {
	RefreshSubUnit(ctx context.Context, sub core.SubUnit) (extract.Stats, error)
	RefreshAll(ctx context.Context, subs []core.SubUnit) error
}

// Consumer delivers refresh messages until the context is cancelled.
type Consumer interface {
	ConsumeRefresh(ctx context.Context, handler func(*amqp.RefreshMessage) error) error
}

type RefreshWorker struct {
	refresher Refresher
	consumer  Consumer
	subUnits  []core.SubUnit
	interval  time.Duration
}

func NewRefreshWorker(refresher Refresher, consumer Consumer, subUnits []core.SubUnit, interval time.Duration) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		consumer:  consumer,
		subUnits:  subUnits,
		interval:  interval,
	}
}

// HandleRefreshMessage processes a single refresh request from AMQP.
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.RefreshMessage) error {
	slog.InfoContext(ctx, "Processing refresh request",
		"job_id", msg.JobID,
		"sub_unit", msg.SubUnitName,
		"network", msg.Network)

	sub := core.SubUnit{Name: msg.SubUnitName, Address: msg.SubUnitAddress}
	if sub.Address == "" {
		// Resolve by name against the configured sub-units.
		for _, candidate := range w.subUnits {
			if candidate.Name == msg.SubUnitName {
				sub = candidate
				break
			}
		}
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("unknown sub-unit %q: %w", msg.SubUnitName, err)
	}

	stats, err := w.refresher.RefreshSubUnit(ctx, sub)
	if err != nil {
		return fmt.Errorf("refresh sub-unit %s: %w", sub.Label(), err)
	}

	slog.InfoContext(ctx, "Refresh request completed",
		"job_id", msg.JobID,
		"sub_unit", sub.Label(),
		"payments", stats.Payments)
	return nil
}

// Run blocks until the context is cancelled, consuming AMQP messages and
// running the periodic full refresh in parallel.
func (w *RefreshWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.ConsumeRefresh(ctx, func(msg *amqp.RefreshMessage) error {
				return w.HandleRefreshMessage(ctx, msg)
			})
			if err != nil && ctx.Err() != nil {
				return nil // clean shutdown
			}
			return err
		})
	}

	if w.interval > 0 {
		g.Go(func() error {
			return w.runPeriodicRefresh(ctx)
		})
	}

	return g.Wait()
}

// runPeriodicRefresh does a full refresh at startup, then on every tick.
// This is a backup mechanism in case AMQP messages are lost.
func (w *RefreshWorker) runPeriodicRefresh(ctx context.Context) error {
	if err := w.refresher.RefreshAll(ctx, w.subUnits); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.ErrorContext(ctx, "Startup refresh failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Periodic refresh started",
		"interval", w.interval,
		"sub_units", len(w.subUnits))

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic refresh", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := w.refresher.RefreshAll(ctx, w.subUnits); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.ErrorContext(ctx, "Periodic refresh failed", "error", err)
			}
		}
	}
}
