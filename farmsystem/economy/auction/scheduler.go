package auction

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
	"golang.org/x/sync/errgroup"
)

const sweepConcurrency = 4

// Completer settles a single auction. The bool reports whether this call
// performed the completion.
type Completer interface {
	Complete(ctx context.Context, auctionID int64) (bool, error)
}

// Scheduler periodically sweeps expired auctions to completion. Each
// auction settles independently; one failing settlement never blocks the
// rest of the sweep, and because completion is idempotent an auction
// picked up by two overlapping sweeps settles exactly once.
type Scheduler struct {
	auctions  repositories.AuctionRepository
	completer Completer
	interval  time.Duration
	shutdown  chan struct{}

	now func() time.Time
}

func NewScheduler(auctions repositories.AuctionRepository, completer Completer, interval time.Duration) *Scheduler {
	return &Scheduler{
		auctions:  auctions,
		completer: completer,
		interval:  interval,
		shutdown:  make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the background sweep loop.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("Sweep failed",
					slog.String("type", "sweep"),
					slog.String("error", err.Error()))
			}
			cancel()
		case <-s.shutdown:
			return
		}
	}
}

// RunOnce performs a single sweep and returns how many auctions it
// completed. Per-auction settlement failures are logged and counted as
// skipped rather than failing the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.auctions.GetExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, a := range expired {
		auctionID := a.ID
		code := a.Code
		g.Go(func() error {
			performed, err := s.completer.Complete(gctx, auctionID)
			if err != nil {
				slog.Error("Failed to complete expired auction",
					slog.String("type", "sweep"),
					slog.Int64("auction_id", auctionID),
					slog.String("code", code),
					slog.String("error", err.Error()))
				return nil
			}
			if performed {
				completed.Add(1)
			}
			return nil
		})
	}

	// Closures swallow their own errors, so Wait only reflects context
	// cancellation.
	if err := g.Wait(); err != nil {
		return int(completed.Load()), err
	}

	n := int(completed.Load())
	if n > 0 {
		slog.Info("Sweep completed expired auctions",
			slog.String("type", "sweep"),
			slog.Int("count", n),
			slog.Int("expired", len(expired)))
	}
	return n, nil
}

// Shutdown stops the sweep loop. Safe to call once.
func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	slog.Info("Auction scheduler shutdown completed", slog.String("type", "sweep"))
}
