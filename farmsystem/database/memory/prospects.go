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

type prospectStore struct {
	s *Store
}

var _ repositories.ProspectRepository = (*prospectStore)(nil)

func (ps *prospectStore) Create(_ context.Context, prospect *models.Prospect) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	ps.s.nextProspectID++
	prospect.ID = ps.s.nextProspectID
	prospect.CreatedAt = time.Now()
	prospect.UpdatedAt = prospect.CreatedAt

	ps.s.prospects[prospect.ID] = cloneProspect(prospect)
	return nil
}

func (ps *prospectStore) GetByID(_ context.Context, id int64) (*models.Prospect, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	prospect, ok := ps.s.prospects[id]
	if !ok {
		return nil, fmt.Errorf("prospect %d: %w", id, bidderrors.ErrProspectNotFound)
	}
	return cloneProspect(prospect), nil
}

func (ps *prospectStore) GetAvailable(_ context.Context) ([]*models.Prospect, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	var prospects []*models.Prospect
	for _, p := range ps.s.prospects {
		if p.IsAvailable() {
			prospects = append(prospects, cloneProspect(p))
		}
	}
	sort.Slice(prospects, func(i, j int) bool { return prospects[i].Name < prospects[j].Name })
	return prospects, nil
}

func (ps *prospectStore) GetByTeam(_ context.Context, teamID int64) ([]*models.Prospect, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	var prospects []*models.Prospect
	for _, p := range ps.s.prospects {
		if p.TeamID == teamID {
			prospects = append(prospects, cloneProspect(p))
		}
	}
	sort.Slice(prospects, func(i, j int) bool {
		return prospects[i].AcquiredAt.After(prospects[j].AcquiredAt)
	})
	return prospects, nil
}

func (ps *prospectStore) UpdateUsage(_ context.Context, id int64, atBats int64, inningsPitched float64) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	prospect, ok := ps.s.prospects[id]
	if !ok {
		return fmt.Errorf("prospect %d: %w", id, bidderrors.ErrProspectNotFound)
	}
	prospect.AtBats = atBats
	prospect.InningsPitched = inningsPitched
	prospect.UpdatedAt = time.Now()
	return nil
}

func (ps *prospectStore) ApplyTag(_ context.Context, prospectID, teamID int64, costFor func(*models.Prospect) int64, now time.Time) (*models.Prospect, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()

	prospect, ok := ps.s.prospects[prospectID]
	if !ok {
		return nil, fmt.Errorf("prospect %d: %w", prospectID, bidderrors.ErrProspectNotFound)
	}
	if prospect.TeamID != teamID {
		return nil, fmt.Errorf("prospect %d not on team %d: %w", prospectID, teamID, bidderrors.ErrProspectNotFound)
	}

	// Priced under the lock so back-to-back tags pay the doubled cost.
	cost := costFor(prospect)

	team, ok := ps.s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", teamID, bidderrors.ErrTeamNotFound)
	}
	if !team.CanAfford(cost) {
		return nil, bidderrors.NewInsufficientFunds(team.Balance, 0, cost)
	}

	team.Balance -= cost
	team.UpdatedAt = now
	prospect.TagsApplied++
	prospect.LastTaggedAt = now
	prospect.LastTaggedByID = teamID
	prospect.UpdatedAt = now

	return cloneProspect(prospect), nil
}
