package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/uptrace/bun"
)

// TeamRole filters GetByTeam: auctions the team nominated versus auctions
// the team is currently leading.
type TeamRole string

const (
	RoleNominator TeamRole = "nominator"
	RoleBidder    TeamRole = "bidder"
)

type AuctionRepository interface {
	// Nominate atomically verifies the prospect is unowned and not already
	// on the block, checks the nominator can cover the opening pledge on
	// top of their live commitments, then opens the auction. A prospect
	// with ID zero is inserted as part of the nomination.
	Nominate(ctx context.Context, prospect *models.Prospect, auction *models.Auction) error
	GetByID(ctx context.Context, id int64) (*models.Auction, error)
	GetByCode(ctx context.Context, code string) (*models.Auction, error)
	GetActive(ctx context.Context) ([]*models.Auction, error)
	GetExpired(ctx context.Context, now time.Time) ([]*models.Auction, error)
	GetByTeam(ctx context.Context, teamID int64, role TeamRole) ([]*models.Auction, error)
	GetBidRecords(ctx context.Context, auctionID int64) ([]*models.BidRecord, error)
	// CommittedTotal sums the current amounts of active auctions the team
	// is leading, excluding one auction by ID (zero excludes nothing).
	CommittedTotal(ctx context.Context, teamID, excluding int64) (int64, error)
	// PlaceBid validates and records a bid, pushing the expiry window
	// forward. It returns the updated auction and the previous leading
	// bidder's team ID (zero if the nomination had no bids yet).
	PlaceBid(ctx context.Context, auctionID, teamID, amount int64, now time.Time, window time.Duration) (*models.Auction, int64, error)
	// Complete settles the winning bid and transfers the prospect. The
	// bool reports whether this call performed the completion; an auction
	// already out of the active state returns (auction, false, nil) so
	// overlapping sweeps stay idempotent.
	Complete(ctx context.Context, auctionID int64, now time.Time) (*models.Auction, bool, error)
	Cancel(ctx context.Context, auctionID int64, now time.Time) (*models.Auction, error)
}

type auctionRepository struct {
	db *bun.DB
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) Nominate(ctx context.Context, prospect *models.Prospect, auction *models.Auction) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		if prospect.ID == 0 {
			prospect.CreatedAt = auction.CreatedAt
			prospect.UpdatedAt = auction.CreatedAt
			if _, err := tx.NewInsert().Model(prospect).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create prospect: %w", err)
			}
		} else {
			locked := new(models.Prospect)
			if err := tx.NewSelect().
				Model(locked).
				Where("id = ?", prospect.ID).
				For("UPDATE").
				Scan(ctx); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("prospect %d: %w", prospect.ID, bidderrors.ErrProspectNotFound)
				}
				return fmt.Errorf("failed to lock prospect: %w", err)
			}

			if !locked.IsAvailable() {
				return fmt.Errorf("prospect %d: %w", prospect.ID, bidderrors.ErrProspectOwned)
			}

			exists, err := tx.NewSelect().
				Model((*models.Auction)(nil)).
				Where("prospect_id = ? AND status = ?", prospect.ID, models.AuctionStatusActive).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("failed to check active auctions: %w", err)
			}
			if exists {
				return fmt.Errorf("prospect %d already on the block: %w", prospect.ID, bidderrors.ErrInvalidNomination)
			}
			*prospect = *locked
		}

		team := new(models.Team)
		if err := tx.NewSelect().
			Model(team).
			Where("id = ?", auction.NominatorID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("team %d: %w", auction.NominatorID, bidderrors.ErrTeamNotFound)
			}
			return fmt.Errorf("failed to lock team: %w", err)
		}

		// The opening pledge commits immediately, so the affordability
		// check has to run against the locked balance and live commitments
		// or two simultaneous nominations could over-pledge one team.
		var committed int64
		if err := tx.NewSelect().
			Model((*models.Auction)(nil)).
			ColumnExpr("COALESCE(SUM(current_amount), 0)").
			Where("status = ? AND current_bidder_id = ?",
				models.AuctionStatusActive, auction.NominatorID).
			Scan(ctx, &committed); err != nil {
			return fmt.Errorf("failed to sum committed amounts: %w", err)
		}

		if models.AvailableBalance(team.Balance, committed) < auction.StartingAmount {
			return bidderrors.NewInsufficientFunds(team.Balance, committed, auction.StartingAmount)
		}

		auction.ProspectID = prospect.ID
		if _, err := tx.NewInsert().Model(auction).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create auction: %w", err)
		}
		return nil
	})
}

func (r *auctionRepository) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %d: %w", id, bidderrors.ErrAuctionNotFound)
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

func (r *auctionRepository) GetByCode(ctx context.Context, code string) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Where("code = ?", code).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auction %s: %w", code, bidderrors.ErrAuctionNotFound)
		}
		return nil, fmt.Errorf("failed to get auction by code: %w", err)
	}
	return auction, nil
}

func (r *auctionRepository) GetActive(ctx context.Context) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := r.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionStatusActive).
		Order("expires_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get active auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) GetExpired(ctx context.Context, now time.Time) ([]*models.Auction, error) {
	var auctions []*models.Auction
	err := r.db.NewSelect().
		Model(&auctions).
		Where("status = ? AND expires_at <= ?", models.AuctionStatusActive, now).
		Order("expires_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get expired auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) GetByTeam(ctx context.Context, teamID int64, role TeamRole) ([]*models.Auction, error) {
	var auctions []*models.Auction
	query := r.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionStatusActive)

	switch role {
	case RoleNominator:
		query = query.Where("nominator_id = ?", teamID)
	case RoleBidder:
		query = query.Where("current_bidder_id = ?", teamID)
	default:
		return nil, fmt.Errorf("unknown team role %q", role)
	}

	err := query.Order("expires_at ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get team auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) GetBidRecords(ctx context.Context, auctionID int64) ([]*models.BidRecord, error) {
	var records []*models.BidRecord
	err := r.db.NewSelect().
		Model(&records).
		Where("auction_id = ?", auctionID).
		Order("bid_time ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get bid records: %w", err)
	}
	return records, nil
}

func (r *auctionRepository) CommittedTotal(ctx context.Context, teamID, excluding int64) (int64, error) {
	var total int64
	err := r.db.NewSelect().
		Model((*models.Auction)(nil)).
		ColumnExpr("COALESCE(SUM(current_amount), 0)").
		Where("status = ? AND current_bidder_id = ? AND id != ?",
			models.AuctionStatusActive, teamID, excluding).
		Scan(ctx, &total)

	if err != nil {
		return 0, fmt.Errorf("failed to sum committed amounts: %w", err)
	}
	return total, nil
}

func (r *auctionRepository) PlaceBid(ctx context.Context, auctionID, teamID, amount int64, now time.Time, window time.Duration) (*models.Auction, int64, error) {
	var (
		updated    models.Auction
		prevBidder int64
	)

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		auction := new(models.Auction)
		if err := tx.NewSelect().
			Model(auction).
			Where("id = ?", auctionID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		team := new(models.Team)
		if err := tx.NewSelect().
			Model(team).
			Where("id = ?", teamID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("team %d: %w", teamID, bidderrors.ErrTeamNotFound)
			}
			return fmt.Errorf("failed to lock team: %w", err)
		}

		var committed int64
		if err := tx.NewSelect().
			Model((*models.Auction)(nil)).
			ColumnExpr("COALESCE(SUM(current_amount), 0)").
			Where("status = ? AND current_bidder_id = ? AND id != ?",
				models.AuctionStatusActive, teamID, auctionID).
			Scan(ctx, &committed); err != nil {
			return fmt.Errorf("failed to sum committed amounts: %w", err)
		}

		if err := auction.CheckBid(teamID, amount, team.Balance, committed); err != nil {
			return err
		}

		prevBidder = auction.CurrentBidderID

		// Every bid resets the countdown, so an auction only closes after
		// a full window with no action.
		auction.CurrentBidderID = teamID
		auction.CurrentAmount = amount
		auction.BidCount++
		auction.LastBidAt = now
		auction.ExpiresAt = now.Add(window)
		auction.UpdatedAt = now

		if _, err := tx.NewUpdate().
			Model(auction).
			Column("current_bidder_id", "current_amount", "bid_count", "last_bid_at", "expires_at", "updated_at").
			Where("id = ?", auction.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to update auction: %w", err)
		}

		record := &models.BidRecord{
			AuctionID: auction.ID,
			TeamID:    teamID,
			Amount:    amount,
			BidTime:   now,
			CreatedAt: now,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return fmt.Errorf("failed to record bid: %w", err)
		}

		updated = *auction
		return nil
	})

	if err != nil {
		return nil, 0, err
	}
	return &updated, prevBidder, nil
}

func (r *auctionRepository) Complete(ctx context.Context, auctionID int64, now time.Time) (*models.Auction, bool, error) {
	var (
		completed models.Auction
		performed bool
	)

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		auction := new(models.Auction)
		if err := tx.NewSelect().
			Model(auction).
			Where("id = ?", auctionID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		if auction.IsTerminal() {
			completed = *auction
			return nil
		}

		// The balance guard on the settle update is the last line of
		// defense; a shortfall here rolls the whole completion back and
		// leaves the auction active.
		result, err := tx.NewUpdate().
			Model((*models.Team)(nil)).
			Set("balance = balance - ?", auction.CurrentAmount).
			Set("updated_at = ?", now).
			Where("id = ? AND balance >= ?", auction.CurrentBidderID, auction.CurrentAmount).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to settle winning bid: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			winner := new(models.Team)
			if scanErr := tx.NewSelect().
				Model(winner).
				Where("id = ?", auction.CurrentBidderID).
				Scan(ctx); scanErr != nil {
				return fmt.Errorf("failed to load winning team: %w", scanErr)
			}
			return bidderrors.NewInsufficientFunds(winner.Balance, 0, auction.CurrentAmount)
		}

		if _, err := tx.NewUpdate().
			Model((*models.Prospect)(nil)).
			Set("team_id = ?", auction.CurrentBidderID).
			Set("acquired_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", auction.ProspectID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to transfer prospect: %w", err)
		}

		auction.Status = models.AuctionStatusCompleted
		auction.CompletedAt = now
		auction.UpdatedAt = now

		if _, err := tx.NewUpdate().
			Model(auction).
			Column("status", "completed_at", "updated_at").
			Where("id = ?", auction.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to complete auction: %w", err)
		}

		completed = *auction
		performed = true
		return nil
	})

	if err != nil {
		return nil, false, err
	}
	return &completed, performed, nil
}

func (r *auctionRepository) Cancel(ctx context.Context, auctionID int64, now time.Time) (*models.Auction, error) {
	var cancelled models.Auction

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		auction := new(models.Auction)
		if err := tx.NewSelect().
			Model(auction).
			Where("id = ?", auctionID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		if auction.IsTerminal() {
			return fmt.Errorf("auction %s: %w", auction.Code, bidderrors.ErrAuctionNotActive)
		}

		// No settlement on cancel: commitments were never deducted, so
		// there is nothing to refund.
		auction.Status = models.AuctionStatusCancelled
		auction.CompletedAt = now
		auction.UpdatedAt = now

		if _, err := tx.NewUpdate().
			Model(auction).
			Column("status", "completed_at", "updated_at").
			Where("id = ?", auction.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to cancel auction: %w", err)
		}

		cancelled = *auction
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}
