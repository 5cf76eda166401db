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

type teamStore struct {
	s *Store
}

var _ repositories.TeamRepository = (*teamStore)(nil)

func (ts *teamStore) Create(_ context.Context, team *models.Team) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	for _, existing := range ts.s.teams {
		if existing.Name == team.Name || existing.OwnerID == team.OwnerID {
			return fmt.Errorf("team %q already exists", team.Name)
		}
	}

	ts.s.nextTeamID++
	team.ID = ts.s.nextTeamID
	if team.Balance == 0 {
		team.Balance = models.DefaultStartingBalance
	}
	team.CreatedAt = time.Now()
	team.UpdatedAt = team.CreatedAt

	ts.s.teams[team.ID] = cloneTeam(team)
	return nil
}

func (ts *teamStore) CreateForOwner(ctx context.Context, ownerID, name string) (*models.Team, error) {
	if name == "" {
		name = fmt.Sprintf("%s's Team", ownerID)
	}
	team := &models.Team{
		Name:    name,
		OwnerID: ownerID,
		Balance: models.DefaultStartingBalance,
	}
	if err := ts.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (ts *teamStore) GetByID(_ context.Context, id int64) (*models.Team, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	team, ok := ts.s.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
	}
	return cloneTeam(team), nil
}

func (ts *teamStore) GetByOwnerID(_ context.Context, ownerID string) (*models.Team, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	for _, team := range ts.s.teams {
		if team.OwnerID == ownerID {
			return cloneTeam(team), nil
		}
	}
	return nil, fmt.Errorf("owner %s: %w", ownerID, bidderrors.ErrTeamNotFound)
}

func (ts *teamStore) GetAll(_ context.Context) ([]*models.Team, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	teams := make([]*models.Team, 0, len(ts.s.teams))
	for _, team := range ts.s.teams {
		teams = append(teams, cloneTeam(team))
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (ts *teamStore) GetBalance(_ context.Context, id int64) (int64, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	team, ok := ts.s.teams[id]
	if !ok {
		return 0, fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
	}
	return team.Balance, nil
}

func (ts *teamStore) Credit(_ context.Context, id int64, amount int64) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	team, ok := ts.s.teams[id]
	if !ok {
		return fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
	}
	team.Balance += amount
	team.UpdatedAt = time.Now()
	return nil
}

func (ts *teamStore) Settle(_ context.Context, id int64, amount int64) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()

	team, ok := ts.s.teams[id]
	if !ok {
		return fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
	}
	if team.Balance < amount {
		return bidderrors.NewInsufficientFunds(team.Balance, 0, amount)
	}
	team.Balance -= amount
	team.UpdatedAt = time.Now()
	return nil
}
