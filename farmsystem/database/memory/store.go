// Package memory provides an in-process store implementing the same
// repository interfaces as the Postgres-backed ones. It backs tests and
// local development without a database.
package memory

import (
	"sync"

	"github.com/pomfarm/farmsystem/farmsystem/database/models"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
)

// Store holds all state behind a single mutex. The Postgres store gets
// its atomicity from serializable transactions and row locks; here one
// lock around each operation gives the same guarantees.
type Store struct {
	mu sync.Mutex

	teams     map[int64]*models.Team
	prospects map[int64]*models.Prospect
	auctions  map[int64]*models.Auction
	bids      map[int64][]*models.BidRecord

	nextTeamID     int64
	nextProspectID int64
	nextAuctionID  int64
	nextBidID      int64
}

func NewStore() *Store {
	return &Store{
		teams:     make(map[int64]*models.Team),
		prospects: make(map[int64]*models.Prospect),
		auctions:  make(map[int64]*models.Auction),
		bids:      make(map[int64][]*models.BidRecord),
	}
}

func (s *Store) Teams() repositories.TeamRepository {
	return &teamStore{s}
}

func (s *Store) Prospects() repositories.ProspectRepository {
	return &prospectStore{s}
}

func (s *Store) Auctions() repositories.AuctionRepository {
	return &auctionStore{s}
}

// committedTotal must be called with s.mu held.
func (s *Store) committedTotal(teamID, excluding int64) int64 {
	auctions := make([]*models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		auctions = append(auctions, a)
	}
	return models.CommittedTotal(auctions, teamID, excluding)
}

func cloneTeam(t *models.Team) *models.Team {
	c := *t
	return &c
}

func cloneProspect(p *models.Prospect) *models.Prospect {
	c := *p
	return &c
}

func cloneAuction(a *models.Auction) *models.Auction {
	c := *a
	return &c
}
