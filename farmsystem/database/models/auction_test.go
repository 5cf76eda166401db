package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
)

func activeAuction() *Auction {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return &Auction{
		ID:              1,
		Code:            "QX2R",
		ProspectID:      7,
		NominatorID:     1,
		CurrentBidderID: 1,
		StartingAmount:  10,
		CurrentAmount:   10,
		Status:          AuctionStatusActive,
		CreatedAt:       now,
		LastBidAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}
}

func TestCheckBid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Auction)
		teamID    int64
		amount    int64
		balance   int64
		committed int64
		wantErr   error
	}{
		{
			name:    "valid raise",
			teamID:  2,
			amount:  15,
			balance: 100,
		},
		{
			name:    "completed auction",
			mutate:  func(a *Auction) { a.Status = AuctionStatusCompleted },
			teamID:  2,
			amount:  15,
			balance: 100,
			wantErr: bidderrors.ErrAuctionNotActive,
		},
		{
			name:    "cancelled auction",
			mutate:  func(a *Auction) { a.Status = AuctionStatusCancelled },
			teamID:  2,
			amount:  15,
			balance: 100,
			wantErr: bidderrors.ErrAuctionNotActive,
		},
		{
			name:    "equal to current",
			teamID:  2,
			amount:  10,
			balance: 100,
			wantErr: bidderrors.ErrBidTooLow,
		},
		{
			name:    "below current",
			teamID:  2,
			amount:  9,
			balance: 100,
			wantErr: bidderrors.ErrBidTooLow,
		},
		{
			name:    "already leading",
			teamID:  1,
			amount:  15,
			balance: 100,
			wantErr: bidderrors.ErrSelfOutbid,
		},
		{
			name:    "exceeds balance",
			teamID:  2,
			amount:  101,
			balance: 100,
			wantErr: bidderrors.ErrInsufficientFunds,
		},
		{
			name:      "exceeds available after commitments",
			teamID:    2,
			amount:    41,
			balance:   100,
			committed: 60,
			wantErr:   bidderrors.ErrInsufficientFunds,
		},
		{
			name:      "exactly available",
			teamID:    2,
			amount:    40,
			balance:   100,
			committed: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAuction()
			if tt.mutate != nil {
				tt.mutate(a)
			}
			err := a.CheckBid(tt.teamID, tt.amount, tt.balance, tt.committed)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCheckBidTerminalBeforeAmount(t *testing.T) {
	// On a terminal auction even a low bid reports not-active, not too-low.
	a := activeAuction()
	a.Status = AuctionStatusCompleted
	err := a.CheckBid(2, 5, 100, 0)
	assert.ErrorIs(t, err, bidderrors.ErrAuctionNotActive)
	assert.NotErrorIs(t, err, bidderrors.ErrBidTooLow)
}

func TestIsExpiredAndTimeRemaining(t *testing.T) {
	a := activeAuction()

	before := a.ExpiresAt.Add(-time.Hour)
	assert.False(t, a.IsExpired(before))
	assert.Equal(t, time.Hour, a.TimeRemaining(before))

	assert.True(t, a.IsExpired(a.ExpiresAt))
	assert.Zero(t, a.TimeRemaining(a.ExpiresAt.Add(time.Minute)))

	a.Status = AuctionStatusCompleted
	assert.Zero(t, a.TimeRemaining(before))
}

func TestCommittedTotal(t *testing.T) {
	auctions := []*Auction{
		{ID: 1, Status: AuctionStatusActive, CurrentBidderID: 5, CurrentAmount: 30},
		{ID: 2, Status: AuctionStatusActive, CurrentBidderID: 5, CurrentAmount: 25},
		{ID: 3, Status: AuctionStatusCompleted, CurrentBidderID: 5, CurrentAmount: 99},
		{ID: 4, Status: AuctionStatusActive, CurrentBidderID: 6, CurrentAmount: 40},
	}

	assert.Equal(t, int64(55), CommittedTotal(auctions, 5, 0))
	assert.Equal(t, int64(25), CommittedTotal(auctions, 5, 1))
	assert.Equal(t, int64(40), CommittedTotal(auctions, 6, 0))
	assert.Zero(t, CommittedTotal(auctions, 7, 0))
}
