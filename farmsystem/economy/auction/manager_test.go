package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/memory"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
	"github.com/pomfarm/farmsystem/farmsystem/economy/ledger"
)

var testStart = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	manager *Manager
	store   *memory.Store
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	l := ledger.New(store.Teams(), store.Auctions())
	m := NewManager(store.Auctions(), store.Prospects(), l, NewNotifier(), Config{
		MinBid:           5,
		ExpirationWindow: 24 * time.Hour,
	})
	env := &testEnv{manager: m, store: store, now: testStart}
	m.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) createTeam(t *testing.T, name string) *models.Team {
	t.Helper()
	team, err := e.store.Teams().CreateForOwner(context.Background(), "owner-"+name, name)
	require.NoError(t, err)
	return team
}

func testProspect(name string) *models.Prospect {
	return &models.Prospect{
		Name:         name,
		Position:     models.PositionShortstop,
		Organization: "BAL",
		Level:        models.LevelAA,
		DateOfBirth:  time.Date(2004, 7, 2, 0, 0, 0, 0, time.UTC),
		ETA:          2027,
	}
}

func TestNominate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Dusters")

	a, err := env.manager.Nominate(ctx, team.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	assert.Equal(t, models.AuctionStatusActive, a.Status)
	assert.Equal(t, team.ID, a.NominatorID)
	assert.Equal(t, team.ID, a.CurrentBidderID)
	assert.Equal(t, int64(10), a.CurrentAmount)
	assert.Equal(t, int64(10), a.StartingAmount)
	assert.Len(t, a.Code, 4)
	assert.Equal(t, testStart.Add(24*time.Hour), a.ExpiresAt)

	// The opening pledge is a commitment, not a deduction.
	balance, err := env.store.Teams().GetBalance(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestNominateBelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	team := env.createTeam(t, "Dusters")

	_, err := env.manager.Nominate(context.Background(), team.ID, testProspect("Low Baller"), 4)
	assert.ErrorIs(t, err, bidderrors.ErrInvalidNomination)
}

func TestNominateOverCommitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Dusters")

	_, err := env.manager.Nominate(ctx, team.ID, testProspect("First Pick"), 60)
	require.NoError(t, err)

	// 60 of 100 is pledged; a second 50 nomination must not fit.
	_, err = env.manager.Nominate(ctx, team.ID, testProspect("Second Pick"), 50)
	assert.ErrorIs(t, err, bidderrors.ErrInvalidNomination)
	assert.ErrorIs(t, err, bidderrors.ErrInsufficientFunds)
}

func TestNominateOwnedProspect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Dusters")
	rival := env.createTeam(t, "Rivals")

	owned := testProspect("Taken Guy")
	owned.TeamID = rival.ID
	require.NoError(t, env.store.Prospects().Create(ctx, owned))

	_, err := env.manager.Nominate(ctx, team.ID, &models.Prospect{ID: owned.ID}, 10)
	assert.ErrorIs(t, err, bidderrors.ErrProspectOwned)
}

func TestNominateAlreadyOnBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Dusters")
	rival := env.createTeam(t, "Rivals")

	free := testProspect("Hot Prospect")
	require.NoError(t, env.store.Prospects().Create(ctx, free))

	_, err := env.manager.Nominate(ctx, team.ID, &models.Prospect{ID: free.ID}, 10)
	require.NoError(t, err)

	_, err = env.manager.Nominate(ctx, rival.ID, &models.Prospect{ID: free.ID}, 10)
	assert.ErrorIs(t, err, bidderrors.ErrInvalidNomination)
}

func TestPlaceBidRaisesAndResetsWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	bidder := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	env.advance(23 * time.Hour)
	updated, err := env.manager.PlaceBid(ctx, a.ID, bidder.ID, 15)
	require.NoError(t, err)

	assert.Equal(t, bidder.ID, updated.CurrentBidderID)
	assert.Equal(t, int64(15), updated.CurrentAmount)
	assert.Equal(t, 1, updated.BidCount)
	// A bid one hour before close pushes expiry out a full window.
	assert.Equal(t, env.now.Add(24*time.Hour), updated.ExpiresAt)

	records, err := env.manager.BidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, bidder.ID, records[0].TeamID)
	assert.Equal(t, int64(15), records[0].Amount)
}

func TestPlaceBidValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	bidder := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	// Equal to current is not a raise.
	_, err = env.manager.PlaceBid(ctx, a.ID, bidder.ID, 10)
	assert.ErrorIs(t, err, bidderrors.ErrBidTooLow)

	// The nominator leads at the opening amount and cannot raise themselves.
	_, err = env.manager.PlaceBid(ctx, a.ID, nominator.ID, 15)
	assert.ErrorIs(t, err, bidderrors.ErrSelfOutbid)

	// Leaders cannot raise their own bid either.
	_, err = env.manager.PlaceBid(ctx, a.ID, bidder.ID, 15)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, bidder.ID, 20)
	assert.ErrorIs(t, err, bidderrors.ErrSelfOutbid)

	_, err = env.manager.PlaceBid(ctx, a.ID, nominator.ID, 500)
	var insufficient *bidderrors.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficient)
}

func TestCommitmentReleasedWhenOutbid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teamA := env.createTeam(t, "Alphas")
	teamB := env.createTeam(t, "Bravos")
	teamC := env.createTeam(t, "Charlies")

	first, err := env.manager.Nominate(ctx, teamC.ID, testProspect("First Prospect"), 5)
	require.NoError(t, err)
	second, err := env.manager.Nominate(ctx, teamC.ID, testProspect("Second Prospect"), 5)
	require.NoError(t, err)

	// A pledges 60 on the first auction; only 40 remains for the second.
	_, err = env.manager.PlaceBid(ctx, first.ID, teamA.ID, 60)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, second.ID, teamA.ID, 50)
	assert.ErrorIs(t, err, bidderrors.ErrInsufficientFunds)

	// B takes the lead on the first auction, releasing A's pledge.
	_, err = env.manager.PlaceBid(ctx, first.ID, teamB.ID, 65)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, second.ID, teamA.ID, 50)
	assert.NoError(t, err)
}

func TestRaisingOwnLeadExcludesOldCommitment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teamA := env.createTeam(t, "Alphas")
	teamB := env.createTeam(t, "Bravos")
	teamC := env.createTeam(t, "Charlies")

	a, err := env.manager.Nominate(ctx, teamC.ID, testProspect("Big Ticket"), 5)
	require.NoError(t, err)

	_, err = env.manager.PlaceBid(ctx, a.ID, teamA.ID, 70)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, teamB.ID, 75)
	require.NoError(t, err)

	// A's 70 pledge is released once B leads; raising to 90 only needs 90,
	// not 70+90.
	_, err = env.manager.PlaceBid(ctx, a.ID, teamA.ID, 90)
	assert.NoError(t, err)
}

func TestCompleteSettlesAndTransfers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	winner := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, winner.ID, 25)
	require.NoError(t, err)

	performed, err := env.manager.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, performed)

	balance, err := env.store.Teams().GetBalance(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)

	roster, err := env.store.Prospects().GetByTeam(ctx, winner.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Jackson Holliday", roster[0].Name)
	assert.Equal(t, env.now, roster[0].AcquiredAt)

	final, err := env.store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, final.Status)
	assert.Equal(t, env.now, final.CompletedAt)
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	winner := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, winner.ID, 25)
	require.NoError(t, err)

	performed, err := env.manager.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, performed)

	// A second completion must not deduct again.
	performed, err = env.manager.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, performed)

	balance, err := env.store.Teams().GetBalance(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	bidder := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	cancelled, err := env.manager.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, cancelled.Status)
	assert.Equal(t, env.now, cancelled.CompletedAt)

	// Cancelled auctions reject bids and further transitions.
	_, err = env.manager.PlaceBid(ctx, a.ID, bidder.ID, 20)
	assert.ErrorIs(t, err, bidderrors.ErrAuctionNotActive)
	_, err = env.manager.Cancel(ctx, a.ID)
	assert.ErrorIs(t, err, bidderrors.ErrAuctionNotActive)

	// The prospect never left the pool.
	available, err := env.store.Prospects().GetAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "Jackson Holliday", available[0].Name)
}

func TestGetByTeamRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	bidder := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, bidder.ID, 15)
	require.NoError(t, err)

	nominated, err := env.manager.GetByTeam(ctx, nominator.ID, repositories.RoleNominator)
	require.NoError(t, err)
	assert.Len(t, nominated, 1)

	leading, err := env.manager.GetByTeam(ctx, bidder.ID, repositories.RoleBidder)
	require.NoError(t, err)
	assert.Len(t, leading, 1)

	leading, err = env.manager.GetByTeam(ctx, nominator.ID, repositories.RoleBidder)
	require.NoError(t, err)
	assert.Empty(t, leading)
}

func TestConcurrentBidsExactlyOneWinsPerAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")

	teams := make([]*models.Team, 8)
	for i := range teams {
		teams[i] = env.createTeam(t, "Team"+string(rune('A'+i)))
	}

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 5)
	require.NoError(t, err)

	// All bidders race the same amount; the state machine must admit
	// exactly one.
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, team := range teams {
		wg.Add(1)
		go func(teamID int64) {
			defer wg.Done()
			_, err := env.manager.PlaceBid(ctx, a.ID, teamID, 20)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if !errors.Is(err, bidderrors.ErrBidTooLow) {
				t.Errorf("unexpected bid error: %v", err)
			}
		}(team.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	final, err := env.store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), final.CurrentAmount)
	assert.Equal(t, 1, final.BidCount)
}

func TestConcurrentBidHistoryStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")

	teams := make([]*models.Team, 4)
	for i := range teams {
		teams[i] = env.createTeam(t, "Crew"+string(rune('A'+i)))
		require.NoError(t, env.store.Teams().Credit(ctx, teams[i].ID, 900))
	}

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, team := range teams {
		for round := 0; round < 10; round++ {
			wg.Add(1)
			go func(teamID, amount int64) {
				defer wg.Done()
				// Rejections are expected; only consistency matters.
				_, _ = env.manager.PlaceBid(ctx, a.ID, teamID, amount)
			}(team.ID, int64(10+i*10+round))
		}
	}
	wg.Wait()

	records, err := env.manager.BidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i].Amount, records[i-1].Amount,
			"bid history must be strictly increasing")
	}

	final, err := env.store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, records[len(records)-1].Amount, final.CurrentAmount)
	assert.Equal(t, len(records), final.BidCount)
}

func TestConcurrentCompleteSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	winner := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)
	_, err = env.manager.PlaceBid(ctx, a.ID, winner.ID, 40)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var performedCount sync.Map
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			performed, err := env.manager.Complete(ctx, a.ID)
			assert.NoError(t, err)
			performedCount.Store(i, performed)
		}(i)
	}
	wg.Wait()

	total := 0
	performedCount.Range(func(_, v any) bool {
		if v.(bool) {
			total++
		}
		return true
	})
	assert.Equal(t, 1, total)

	balance, err := env.store.Teams().GetBalance(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
}

func TestAuctionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	teamA := env.createTeam(t, "Dusters")
	teamB := env.createTeam(t, "Rivals")
	require.NoError(t, env.store.Teams().Settle(ctx, teamB.ID, 50))

	l := ledger.New(env.store.Teams(), env.store.Auctions())

	a, err := env.manager.Nominate(ctx, teamA.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	env.advance(time.Hour)
	_, err = env.manager.PlaceBid(ctx, a.ID, teamB.ID, 15)
	require.NoError(t, err)

	available, err := l.AvailableBalance(ctx, teamB.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(35), available)

	env.advance(time.Hour)
	_, err = env.manager.PlaceBid(ctx, a.ID, teamA.ID, 20)
	require.NoError(t, err)

	env.advance(25 * time.Hour)
	scheduler := NewScheduler(env.store.Auctions(), env.manager, time.Minute)
	scheduler.now = env.manager.now
	n, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	balance, err := env.store.Teams().GetBalance(ctx, teamA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)

	// The loser's pledge was only ever virtual.
	balance, err = env.store.Teams().GetBalance(ctx, teamB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	done, err := env.store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, done.Status)

	prospect, err := env.store.Prospects().GetByID(ctx, done.ProspectID)
	require.NoError(t, err)
	assert.Equal(t, teamA.ID, prospect.TeamID)
	assert.False(t, prospect.AcquiredAt.IsZero())
}

func TestBidsAcrossAuctionsShareOneBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	bidder := env.createTeam(t, "Shoestrings")
	require.NoError(t, env.store.Teams().Settle(ctx, bidder.ID, 80))

	first, err := env.manager.Nominate(ctx, nominator.ID, testProspect("First Pick"), 5)
	require.NoError(t, err)
	second, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Second Pick"), 5)
	require.NoError(t, err)

	_, err = env.manager.PlaceBid(ctx, first.ID, bidder.ID, 15)
	require.NoError(t, err)

	// 15 of 20 is pledged on the first auction, so an identical bid on
	// the second cannot fit.
	_, err = env.manager.PlaceBid(ctx, second.ID, bidder.ID, 15)
	var insufficient *bidderrors.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(20), insufficient.Balance)
	assert.Equal(t, int64(15), insufficient.Committed)
	assert.Equal(t, int64(5), insufficient.Available())
	assert.Equal(t, int64(15), insufficient.Requested)
}

func TestConcurrentNominationsShareOneBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Shoestrings")
	require.NoError(t, env.store.Teams().Settle(ctx, team.ID, 80))

	// Balance 20 covers one 15-pledge nomination, never two.
	errs := make(chan error, 2)
	for _, name := range []string{"First Pick", "Second Pick"} {
		go func(name string) {
			_, err := env.manager.Nominate(ctx, team.ID, testProspect(name), 15)
			errs <- err
		}(name)
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], bidderrors.ErrInvalidNomination)
	assert.ErrorIs(t, failures[0], bidderrors.ErrInsufficientFunds)

	committed, err := env.store.Auctions().CommittedTotal(ctx, team.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(15), committed)
}

type failingProspects struct {
	repositories.ProspectRepository
}

func (f *failingProspects) GetByID(context.Context, int64) (*models.Prospect, error) {
	return nil, errors.New("stats backend down")
}

func TestPlaceBidSurvivesProspectLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	nominator := env.createTeam(t, "Dusters")
	rival := env.createTeam(t, "Rivals")

	a, err := env.manager.Nominate(ctx, nominator.ID, testProspect("Jackson Holliday"), 10)
	require.NoError(t, err)

	sub, cancelSub := env.manager.Notifier().Subscribe(TopicGlobal)
	defer cancelSub()

	// The bid commits before the event-payload lookup runs, so a broken
	// lookup must not turn the bid into an error.
	env.manager.prospects = &failingProspects{env.store.Prospects()}

	updated, err := env.manager.PlaceBid(ctx, a.ID, rival.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), updated.CurrentAmount)

	select {
	case e := <-sub:
		assert.Equal(t, EventBidPlaced, e.Kind)
		assert.Equal(t, a.ProspectID, e.Prospect.ID)
		assert.Empty(t, e.Prospect.Name)
	default:
		t.Fatal("bid event was not published")
	}
}
