package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/memory"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
)

func setup(t *testing.T) (*Ledger, *memory.Store, *models.Team) {
	t.Helper()
	store := memory.NewStore()
	team, err := store.Teams().CreateForOwner(context.Background(), "owner-1", "Dusters")
	require.NoError(t, err)
	return New(store.Teams(), store.Auctions()), store, team
}

func addLeadingAuction(t *testing.T, store *memory.Store, teamID, amount int64) *models.Auction {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	a := &models.Auction{
		Code:            "A" + time.Now().Format("050405.000000"),
		NominatorID:     teamID,
		CurrentBidderID: teamID,
		StartingAmount:  amount,
		CurrentAmount:   amount,
		Status:          models.AuctionStatusActive,
		CreatedAt:       now,
		LastBidAt:       now,
		ExpiresAt:       now.Add(24 * time.Hour),
	}
	p := &models.Prospect{
		Name:        "Prospect " + a.Code,
		Position:    models.PositionOutfield,
		Level:       models.LevelAAA,
		DateOfBirth: time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Auctions().Nominate(ctx, p, a))
	return a
}

func TestSnapshot(t *testing.T) {
	l, store, team := setup(t)
	ctx := context.Background()

	snap, err := l.Snapshot(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Balance)
	assert.Zero(t, snap.Committed)
	assert.Equal(t, int64(100), snap.Available)

	addLeadingAuction(t, store, team.ID, 30)
	addLeadingAuction(t, store, team.ID, 25)

	snap, err = l.Snapshot(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Balance)
	assert.Equal(t, int64(55), snap.Committed)
	assert.Equal(t, int64(45), snap.Available)
}

func TestCanCommit(t *testing.T) {
	l, store, team := setup(t)
	ctx := context.Background()

	a := addLeadingAuction(t, store, team.ID, 60)

	require.NoError(t, l.CanCommit(ctx, team.ID, 40, 0))

	err := l.CanCommit(ctx, team.ID, 41, 0)
	require.Error(t, err)
	var insufficient *bidderrors.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(100), insufficient.Balance)
	assert.Equal(t, int64(60), insufficient.Committed)
	assert.Equal(t, int64(40), insufficient.Available())

	// Excluding the auction being raised frees its pledge.
	assert.NoError(t, l.CanCommit(ctx, team.ID, 90, a.ID))
}

func TestSettleAndCredit(t *testing.T) {
	l, _, team := setup(t)
	ctx := context.Background()

	require.NoError(t, l.Settle(ctx, team.ID, 30))
	avail, err := l.AvailableBalance(ctx, team.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(70), avail)

	err = l.Settle(ctx, team.ID, 71)
	assert.ErrorIs(t, err, bidderrors.ErrInsufficientFunds)

	require.NoError(t, l.Credit(ctx, team.ID, 10))
	avail, err = l.AvailableBalance(ctx, team.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(80), avail)
}

func TestUnknownTeam(t *testing.T) {
	l, _, _ := setup(t)
	_, err := l.Snapshot(context.Background(), 999)
	assert.ErrorIs(t, err, bidderrors.ErrTeamNotFound)
}
