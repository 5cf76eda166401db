// Package farmsystem wires the farm system league service: POM ledger,
// prospect auctions, settlement sweep, eligibility tracking, and the
// event stream gateway.
package farmsystem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/database"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
	"github.com/pomfarm/farmsystem/farmsystem/economy/auction"
	"github.com/pomfarm/farmsystem/farmsystem/economy/eligibility"
	"github.com/pomfarm/farmsystem/farmsystem/economy/ledger"
	"github.com/pomfarm/farmsystem/farmsystem/gateway/stream"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB                 *database.DB
	TeamRepository     repositories.TeamRepository
	ProspectRepository repositories.ProspectRepository
	AuctionRepository  repositories.AuctionRepository

	Ledger         *ledger.Ledger
	Notifier       *auction.Notifier
	AuctionManager *auction.Manager
	Scheduler      *auction.Scheduler
	Eligibility    *eligibility.Tracker
	Gateway        *stream.Gateway
}

// Setup builds the service graph on top of an already-connected DB and
// an optional external usage source.
func (a *App) Setup(lookup eligibility.UsageLookup) error {
	if a.DB == nil {
		return fmt.Errorf("database not initialized")
	}

	bunDB := a.DB.BunDB()
	a.TeamRepository = repositories.NewTeamRepository(bunDB)
	a.ProspectRepository = repositories.NewProspectRepository(bunDB)
	a.AuctionRepository = repositories.NewAuctionRepository(bunDB)

	a.Ledger = ledger.New(a.TeamRepository, a.AuctionRepository)
	a.Notifier = auction.NewNotifier()
	a.AuctionManager = auction.NewManager(
		a.AuctionRepository,
		a.ProspectRepository,
		a.Ledger,
		a.Notifier,
		auction.Config{
			MinBid:           a.Cfg.Auction.MinBid,
			ExpirationWindow: a.Cfg.Auction.ExpirationWindow(),
		},
	)
	a.Scheduler = auction.NewScheduler(a.AuctionRepository, a.AuctionManager, a.Cfg.Auction.SweepInterval())

	tracker, err := eligibility.NewTracker(a.ProspectRepository, eligibility.Bases{
		BattingThreshold:   a.Cfg.Eligibility.BattingThreshold,
		PitchingThreshold:  a.Cfg.Eligibility.PitchingThreshold,
		BaseTagCostBatting: a.Cfg.Eligibility.BaseTagCostBatting,
		BaseTagCostPitcher: a.Cfg.Eligibility.BaseTagCostPitcher,
	}, lookup)
	if err != nil {
		return err
	}
	a.Eligibility = tracker
	a.Gateway = stream.NewGateway(a.Notifier)
	return nil
}

// Start launches the background sweep and the stream gateway.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start()
	go func() {
		if err := a.Gateway.Serve(ctx, a.Cfg.Gateway.Addr); err != nil {
			slog.Error("Stream gateway stopped",
				slog.String("type", "ws"),
				slog.String("error", err.Error()))
		}
	}()

	slog.Info("Farm system ready",
		slog.String("version", a.Version),
		slog.String("commit", a.Commit),
		slog.Duration("expiration_window", a.Cfg.Auction.ExpirationWindow()),
		slog.Duration("sweep_interval", a.Cfg.Auction.SweepInterval()))
}

// Shutdown stops background work and closes the database.
func (a *App) Shutdown() {
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}

	// Give in-flight completions a moment to log before exit.
	time.Sleep(100 * time.Millisecond)
	slog.Info("Farm system shutdown completed")
}
