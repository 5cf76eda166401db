// Package ledger tracks POM balances and the soft commitments teams hold
// as leading bidders on open auctions. Commitments are never deducted;
// they only reduce what a team may pledge elsewhere until the auction
// settles or the team is outbid.
package ledger

import (
	"context"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
)

type Ledger struct {
	teams    repositories.TeamRepository
	auctions repositories.AuctionRepository
}

func New(teams repositories.TeamRepository, auctions repositories.AuctionRepository) *Ledger {
	return &Ledger{
		teams:    teams,
		auctions: auctions,
	}
}

// Snapshot is a point-in-time view of a team's POM position.
type Snapshot struct {
	Balance   int64 `json:"balance"`
	Committed int64 `json:"committed"`
	Available int64 `json:"available"`
}

// AvailableBalance returns the balance minus active commitments,
// excluding one auction by ID (zero excludes nothing). Callers raising a
// bid on an auction they already lead pass that auction's ID so the old
// commitment is released before checking the new one.
func (l *Ledger) AvailableBalance(ctx context.Context, teamID, excluding int64) (int64, error) {
	balance, err := l.teams.GetBalance(ctx, teamID)
	if err != nil {
		return 0, err
	}
	committed, err := l.auctions.CommittedTotal(ctx, teamID, excluding)
	if err != nil {
		return 0, err
	}
	return models.AvailableBalance(balance, committed), nil
}

// CanCommit reports whether the team's uncommitted balance covers amount,
// returning a typed insufficient-funds error with the breakdown when it
// does not.
func (l *Ledger) CanCommit(ctx context.Context, teamID, amount, excluding int64) error {
	balance, err := l.teams.GetBalance(ctx, teamID)
	if err != nil {
		return err
	}
	committed, err := l.auctions.CommittedTotal(ctx, teamID, excluding)
	if err != nil {
		return err
	}
	if models.AvailableBalance(balance, committed) < amount {
		return bidderrors.NewInsufficientFunds(balance, committed, amount)
	}
	return nil
}

// Settle deducts a settled amount from the team's raw balance.
func (l *Ledger) Settle(ctx context.Context, teamID, amount int64) error {
	return l.teams.Settle(ctx, teamID, amount)
}

// Credit adds POM to a team, for league payouts and adjustments.
func (l *Ledger) Credit(ctx context.Context, teamID, amount int64) error {
	return l.teams.Credit(ctx, teamID, amount)
}

func (l *Ledger) Snapshot(ctx context.Context, teamID int64) (*Snapshot, error) {
	balance, err := l.teams.GetBalance(ctx, teamID)
	if err != nil {
		return nil, err
	}
	committed, err := l.auctions.CommittedTotal(ctx, teamID, 0)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Balance:   balance,
		Committed: committed,
		Available: models.AvailableBalance(balance, committed),
	}, nil
}
