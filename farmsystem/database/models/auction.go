package models

import (
	"fmt"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID              int64         `bun:"id,pk,autoincrement"`
	Code            string        `bun:"code,notnull,unique"`
	ProspectID      int64         `bun:"prospect_id,notnull"`
	NominatorID     int64         `bun:"nominator_id,notnull"`
	CurrentBidderID int64         `bun:"current_bidder_id,notnull"`
	StartingAmount  int64         `bun:"starting_amount,notnull"`
	CurrentAmount   int64         `bun:"current_amount,notnull"`
	Status          AuctionStatus `bun:"status,notnull"`
	BidCount        int           `bun:"bid_count,notnull,default:0"`

	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastBidAt   time.Time `bun:"last_bid_at,notnull"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`
	ExpiresAt   time.Time `bun:"expires_at,nullzero"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// BidRecord is the append-only bid history of an auction. Amounts are
// strictly increasing per auction in chronological order; the latest
// record always matches the auction's CurrentAmount.
type BidRecord struct {
	bun.BaseModel `bun:"table:bid_records,alias:br"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AuctionID int64     `bun:"auction_id,notnull"`
	TeamID    int64     `bun:"team_id,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	BidTime   time.Time `bun:"bid_time,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// IsTerminal reports whether the auction has left the active state.
// Terminal auctions are immutable.
func (a *Auction) IsTerminal() bool {
	return a.Status != AuctionStatusActive
}

func (a *Auction) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// TimeRemaining returns the time left until expiry, or zero for expired
// or terminal auctions.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if a.IsTerminal() || a.ExpiresAt.IsZero() {
		return 0
	}
	remaining := a.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckBid validates a prospective bid against the auction state and the
// bidder's uncommitted balance. Both store implementations call this
// inside their per-auction mutual-exclusion boundary so the rules cannot
// diverge between them.
func (a *Auction) CheckBid(teamID, amount, balance, committed int64) error {
	if a.IsTerminal() {
		return fmt.Errorf("auction %s: %w", a.Code, bidderrors.ErrAuctionNotActive)
	}
	if amount <= a.CurrentAmount {
		return fmt.Errorf("%w: bid %d, current %d", bidderrors.ErrBidTooLow, amount, a.CurrentAmount)
	}
	if AvailableBalance(balance, committed) < amount {
		return bidderrors.NewInsufficientFunds(balance, committed, amount)
	}
	if teamID == a.CurrentBidderID {
		return fmt.Errorf("auction %s: %w", a.Code, bidderrors.ErrSelfOutbid)
	}
	return nil
}

// CommittedTotal sums the current amounts of the active auctions in the
// slice that the given team is leading, excluding one auction by ID
// (zero excludes nothing). The memory store uses it directly; the bun
// store runs the equivalent SQL aggregate.
func CommittedTotal(auctions []*Auction, teamID, excluding int64) int64 {
	var total int64
	for _, a := range auctions {
		if a.Status != AuctionStatusActive || a.CurrentBidderID != teamID || a.ID == excluding {
			continue
		}
		total += a.CurrentAmount
	}
	return total
}
