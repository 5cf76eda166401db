package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
)

type auctionStore struct {
	s *Store
}

var _ repositories.AuctionRepository = (*auctionStore)(nil)

func (as *auctionStore) Nominate(_ context.Context, prospect *models.Prospect, auction *models.Auction) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	if prospect.ID == 0 {
		as.s.nextProspectID++
		prospect.ID = as.s.nextProspectID
		prospect.CreatedAt = auction.CreatedAt
		prospect.UpdatedAt = auction.CreatedAt
		as.s.prospects[prospect.ID] = cloneProspect(prospect)
	} else {
		existing, ok := as.s.prospects[prospect.ID]
		if !ok {
			return fmt.Errorf("prospect %d: %w", prospect.ID, bidderrors.ErrProspectNotFound)
		}
		if !existing.IsAvailable() {
			return fmt.Errorf("prospect %d: %w", prospect.ID, bidderrors.ErrProspectOwned)
		}
		for _, a := range as.s.auctions {
			if a.ProspectID == prospect.ID && a.Status == models.AuctionStatusActive {
				return fmt.Errorf("prospect %d already on the block: %w", prospect.ID, bidderrors.ErrInvalidNomination)
			}
		}
		*prospect = *existing
	}

	team, ok := as.s.teams[auction.NominatorID]
	if !ok {
		return fmt.Errorf("team %d: %w", auction.NominatorID, bidderrors.ErrTeamNotFound)
	}
	committed := as.s.committedTotal(auction.NominatorID, 0)
	if models.AvailableBalance(team.Balance, committed) < auction.StartingAmount {
		return bidderrors.NewInsufficientFunds(team.Balance, committed, auction.StartingAmount)
	}

	as.s.nextAuctionID++
	auction.ID = as.s.nextAuctionID
	auction.ProspectID = prospect.ID
	as.s.auctions[auction.ID] = cloneAuction(auction)
	return nil
}

func (as *auctionStore) GetByID(_ context.Context, id int64) (*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	auction, ok := as.s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", id, bidderrors.ErrAuctionNotFound)
	}
	return cloneAuction(auction), nil
}

func (as *auctionStore) GetByCode(_ context.Context, code string) (*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	for _, auction := range as.s.auctions {
		if auction.Code == code {
			return cloneAuction(auction), nil
		}
	}
	return nil, fmt.Errorf("auction %s: %w", code, bidderrors.ErrAuctionNotFound)
}

func (as *auctionStore) GetActive(_ context.Context) ([]*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	var auctions []*models.Auction
	for _, a := range as.s.auctions {
		if a.Status == models.AuctionStatusActive {
			auctions = append(auctions, cloneAuction(a))
		}
	}
	sortByExpiry(auctions)
	return auctions, nil
}

func (as *auctionStore) GetExpired(_ context.Context, now time.Time) ([]*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	var auctions []*models.Auction
	for _, a := range as.s.auctions {
		if a.Status == models.AuctionStatusActive && a.IsExpired(now) {
			auctions = append(auctions, cloneAuction(a))
		}
	}
	sortByExpiry(auctions)
	return auctions, nil
}

func (as *auctionStore) GetByTeam(_ context.Context, teamID int64, role repositories.TeamRole) ([]*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	var auctions []*models.Auction
	for _, a := range as.s.auctions {
		if a.Status != models.AuctionStatusActive {
			continue
		}
		switch role {
		case repositories.RoleNominator:
			if a.NominatorID == teamID {
				auctions = append(auctions, cloneAuction(a))
			}
		case repositories.RoleBidder:
			if a.CurrentBidderID == teamID {
				auctions = append(auctions, cloneAuction(a))
			}
		default:
			return nil, fmt.Errorf("unknown team role %q", role)
		}
	}
	sortByExpiry(auctions)
	return auctions, nil
}

func (as *auctionStore) GetBidRecords(_ context.Context, auctionID int64) ([]*models.BidRecord, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	records := make([]*models.BidRecord, 0, len(as.s.bids[auctionID]))
	for _, r := range as.s.bids[auctionID] {
		c := *r
		records = append(records, &c)
	}
	return records, nil
}

func (as *auctionStore) CommittedTotal(_ context.Context, teamID, excluding int64) (int64, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	return as.s.committedTotal(teamID, excluding), nil
}

func (as *auctionStore) PlaceBid(_ context.Context, auctionID, teamID, amount int64, now time.Time, window time.Duration) (*models.Auction, int64, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	auction, ok := as.s.auctions[auctionID]
	if !ok {
		return nil, 0, fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
	}
	team, ok := as.s.teams[teamID]
	if !ok {
		return nil, 0, fmt.Errorf("team %d: %w", teamID, bidderrors.ErrTeamNotFound)
	}

	committed := as.s.committedTotal(teamID, auctionID)
	if err := auction.CheckBid(teamID, amount, team.Balance, committed); err != nil {
		return nil, 0, err
	}

	prevBidder := auction.CurrentBidderID

	auction.CurrentBidderID = teamID
	auction.CurrentAmount = amount
	auction.BidCount++
	auction.LastBidAt = now
	auction.ExpiresAt = now.Add(window)
	auction.UpdatedAt = now

	as.s.nextBidID++
	as.s.bids[auctionID] = append(as.s.bids[auctionID], &models.BidRecord{
		ID:        as.s.nextBidID,
		AuctionID: auctionID,
		TeamID:    teamID,
		Amount:    amount,
		BidTime:   now,
		CreatedAt: now,
	})

	return cloneAuction(auction), prevBidder, nil
}

func (as *auctionStore) Complete(_ context.Context, auctionID int64, now time.Time) (*models.Auction, bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	auction, ok := as.s.auctions[auctionID]
	if !ok {
		return nil, false, fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
	}
	if auction.IsTerminal() {
		return cloneAuction(auction), false, nil
	}

	winner, ok := as.s.teams[auction.CurrentBidderID]
	if !ok {
		return nil, false, fmt.Errorf("team %d: %w", auction.CurrentBidderID, bidderrors.ErrTeamNotFound)
	}
	if winner.Balance < auction.CurrentAmount {
		return nil, false, bidderrors.NewInsufficientFunds(winner.Balance, 0, auction.CurrentAmount)
	}

	winner.Balance -= auction.CurrentAmount
	winner.UpdatedAt = now

	if prospect, ok := as.s.prospects[auction.ProspectID]; ok {
		prospect.TeamID = auction.CurrentBidderID
		prospect.AcquiredAt = now
		prospect.UpdatedAt = now
	}

	auction.Status = models.AuctionStatusCompleted
	auction.CompletedAt = now
	auction.UpdatedAt = now

	return cloneAuction(auction), true, nil
}

func (as *auctionStore) Cancel(_ context.Context, auctionID int64, now time.Time) (*models.Auction, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	auction, ok := as.s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", auctionID, bidderrors.ErrAuctionNotFound)
	}
	if auction.IsTerminal() {
		return nil, fmt.Errorf("auction %s: %w", auction.Code, bidderrors.ErrAuctionNotActive)
	}

	auction.Status = models.AuctionStatusCancelled
	auction.CompletedAt = now
	auction.UpdatedAt = now

	return cloneAuction(auction), nil
}

func sortByExpiry(auctions []*models.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		return auctions[i].ExpiresAt.Before(auctions[j].ExpiresAt)
	})
}
