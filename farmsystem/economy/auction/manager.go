// Package auction implements nomination-style prospect auctions: a team
// puts a prospect on the block with an opening pledge, rival teams raise
// it, and every raise pushes the closing countdown back to a full window.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
	"github.com/pomfarm/farmsystem/farmsystem/economy/ledger"
)

type Config struct {
	// MinBid is the lowest allowed opening pledge.
	MinBid int64
	// ExpirationWindow is how long an auction stays open after its most
	// recent bid.
	ExpirationWindow time.Duration
}

type Manager struct {
	auctions  repositories.AuctionRepository
	prospects repositories.ProspectRepository
	ledger    *ledger.Ledger
	notifier  *Notifier
	codes     *CodeGenerator
	cfg       Config

	now func() time.Time
}

func NewManager(
	auctions repositories.AuctionRepository,
	prospects repositories.ProspectRepository,
	l *ledger.Ledger,
	notifier *Notifier,
	cfg Config,
) *Manager {
	return &Manager{
		auctions:  auctions,
		prospects: prospects,
		ledger:    l,
		notifier:  notifier,
		codes:     NewCodeGenerator(auctions),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Nominate opens an auction for a prospect. The nominator becomes the
// leading bidder at the opening amount, so the pledge counts against
// their available balance immediately. A prospect with ID zero is
// registered as part of the nomination.
func (m *Manager) Nominate(ctx context.Context, nominatorID int64, prospect *models.Prospect, startingAmount int64) (*models.Auction, error) {
	if startingAmount < m.cfg.MinBid {
		return nil, fmt.Errorf("opening pledge %d below minimum %d: %w",
			startingAmount, m.cfg.MinBid, bidderrors.ErrInvalidNomination)
	}

	code, err := m.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	auction := &models.Auction{
		Code:            code,
		NominatorID:     nominatorID,
		CurrentBidderID: nominatorID,
		StartingAmount:  startingAmount,
		CurrentAmount:   startingAmount,
		Status:          models.AuctionStatusActive,
		CreatedAt:       now,
		LastBidAt:       now,
		ExpiresAt:       now.Add(m.cfg.ExpirationWindow),
		UpdatedAt:       now,
	}

	// Affordability is enforced inside the repository transaction, against
	// the locked balance and live commitments, so racing nominations by
	// one team cannot both slip under its available balance.
	if err := m.auctions.Nominate(ctx, prospect, auction); err != nil {
		if errors.Is(err, bidderrors.ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: %w", bidderrors.ErrInvalidNomination, err)
		}
		return nil, err
	}

	slog.Info("Auction opened",
		slog.String("type", "auction"),
		slog.String("code", auction.Code),
		slog.String("prospect", prospect.Name),
		slog.Int64("nominator_id", nominatorID),
		slog.Int64("starting_amount", startingAmount))

	m.notifier.Publish(newEvent(EventAuctionCreated, auction, prospect, nominatorID, startingAmount, m.availableFor(ctx, nominatorID), now))
	return auction, nil
}

// PlaceBid raises the current bid and resets the expiry countdown. The
// displaced leader, if any, gets an outbid event on their team topic.
func (m *Manager) PlaceBid(ctx context.Context, auctionID, teamID, amount int64) (*models.Auction, error) {
	now := m.now()
	updated, prevBidder, err := m.auctions.PlaceBid(ctx, auctionID, teamID, amount, now, m.cfg.ExpirationWindow)
	if err != nil {
		return nil, err
	}

	prospect := m.prospectFor(ctx, updated.ProspectID)

	slog.Info("Bid placed",
		slog.String("type", "auction"),
		slog.String("code", updated.Code),
		slog.Int64("team_id", teamID),
		slog.Int64("amount", amount))

	m.notifier.Publish(newEvent(EventBidPlaced, updated, prospect, teamID, amount, m.availableFor(ctx, teamID), now))
	if prevBidder != 0 && prevBidder != teamID {
		m.notifier.Publish(newEvent(EventOutbid, updated, prospect, prevBidder, amount, m.availableFor(ctx, prevBidder), now))
	}
	return updated, nil
}

// Complete settles an auction: the leading bidder pays their pledge and
// the prospect joins their farm system. The bool reports whether this
// call did the work; completing an already-terminal auction is a no-op,
// which makes overlapping sweeps safe.
//
// A settlement shortfall leaves the auction active and is surfaced as an
// error; it means the balance dropped below the pledge through a path
// the commitment checks do not cover.
func (m *Manager) Complete(ctx context.Context, auctionID int64) (bool, error) {
	now := m.now()
	completed, performed, err := m.auctions.Complete(ctx, auctionID, now)
	if err != nil {
		if errors.Is(err, bidderrors.ErrInsufficientFunds) {
			slog.Error("Settlement shortfall, auction left open",
				slog.String("type", "auction"),
				slog.Int64("auction_id", auctionID),
				slog.String("error", err.Error()))
		}
		return false, err
	}
	if !performed {
		return false, nil
	}

	prospect := m.prospectFor(ctx, completed.ProspectID)

	slog.Info("Auction completed",
		slog.String("type", "auction"),
		slog.String("code", completed.Code),
		slog.String("prospect", prospect.Name),
		slog.Int64("winner_id", completed.CurrentBidderID),
		slog.Int64("amount", completed.CurrentAmount))

	m.notifier.Publish(newEvent(EventAuctionCompleted, completed, prospect, completed.CurrentBidderID, completed.CurrentAmount, m.availableFor(ctx, completed.CurrentBidderID), now))
	return true, nil
}

// Cancel closes an auction without settlement. Nothing was deducted, so
// nothing is refunded; the prospect stays available.
func (m *Manager) Cancel(ctx context.Context, auctionID int64) (*models.Auction, error) {
	now := m.now()
	cancelled, err := m.auctions.Cancel(ctx, auctionID, now)
	if err != nil {
		return nil, err
	}

	prospect := m.prospectFor(ctx, cancelled.ProspectID)

	slog.Info("Auction cancelled",
		slog.String("type", "auction"),
		slog.String("code", cancelled.Code),
		slog.String("prospect", prospect.Name))

	m.notifier.Publish(newEvent(EventAuctionCancelled, cancelled, prospect, cancelled.NominatorID, 0, m.availableFor(ctx, cancelled.NominatorID), now))
	return cancelled, nil
}

// prospectFor resolves prospect details for log lines and event
// payloads. By the time it runs the state change has committed, so a
// failed read degrades to an ID-only descriptor instead of turning a
// successful operation into an error.
func (m *Manager) prospectFor(ctx context.Context, prospectID int64) *models.Prospect {
	prospect, err := m.prospects.GetByID(ctx, prospectID)
	if err != nil {
		slog.Warn("Failed to resolve prospect for event",
			slog.String("type", "auction"),
			slog.Int64("prospect_id", prospectID),
			slog.String("error", err.Error()))
		return &models.Prospect{ID: prospectID}
	}
	return prospect
}

// availableFor resolves a team's uncommitted balance for event payloads.
// Events are best effort, so a failed read degrades to zero rather than
// failing the state change.
func (m *Manager) availableFor(ctx context.Context, teamID int64) int64 {
	available, err := m.ledger.AvailableBalance(ctx, teamID, 0)
	if err != nil {
		slog.Warn("Failed to resolve available balance for event",
			slog.String("type", "auction"),
			slog.Int64("team_id", teamID),
			slog.String("error", err.Error()))
		return 0
	}
	return available
}

func (m *Manager) GetActive(ctx context.Context) ([]*models.Auction, error) {
	return m.auctions.GetActive(ctx)
}

func (m *Manager) GetByCode(ctx context.Context, code string) (*models.Auction, error) {
	return m.auctions.GetByCode(ctx, code)
}

func (m *Manager) GetByTeam(ctx context.Context, teamID int64, role repositories.TeamRole) ([]*models.Auction, error) {
	return m.auctions.GetByTeam(ctx, teamID, role)
}

func (m *Manager) BidHistory(ctx context.Context, auctionID int64) ([]*models.BidRecord, error) {
	return m.auctions.GetBidRecords(ctx, auctionID)
}

func (m *Manager) Notifier() *Notifier {
	return m.notifier
}
