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

type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	CreateForOwner(ctx context.Context, ownerID, name string) (*models.Team, error)
	GetByID(ctx context.Context, id int64) (*models.Team, error)
	GetByOwnerID(ctx context.Context, ownerID string) (*models.Team, error)
	GetAll(ctx context.Context) ([]*models.Team, error)
	GetBalance(ctx context.Context, id int64) (int64, error)
	Credit(ctx context.Context, id int64, amount int64) error
	Settle(ctx context.Context, id int64, amount int64) error
}

type teamRepository struct {
	db *bun.DB
}

func NewTeamRepository(db *bun.DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) Create(ctx context.Context, team *models.Team) error {
	team.CreatedAt = time.Now()
	team.UpdatedAt = time.Now()
	if team.Balance == 0 {
		team.Balance = models.DefaultStartingBalance
	}

	_, err := r.db.NewInsert().Model(team).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// CreateForOwner provisions a team for a new owner in one step. This
// replaces any implicit create-on-signup hook: the caller that registers
// an owner creates the team explicitly.
func (r *teamRepository) CreateForOwner(ctx context.Context, ownerID, name string) (*models.Team, error) {
	if name == "" {
		name = fmt.Sprintf("%s's Team", ownerID)
	}
	team := &models.Team{
		Name:    name,
		OwnerID: ownerID,
		Balance: models.DefaultStartingBalance,
	}
	if err := r.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (r *teamRepository) GetByID(ctx context.Context, id int64) (*models.Team, error) {
	team := new(models.Team)
	err := r.db.NewSelect().
		Model(team).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

func (r *teamRepository) GetByOwnerID(ctx context.Context, ownerID string) (*models.Team, error) {
	team := new(models.Team)
	err := r.db.NewSelect().
		Model(team).
		Where("owner_id = ?", ownerID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("owner %s: %w", ownerID, bidderrors.ErrTeamNotFound)
		}
		return nil, fmt.Errorf("failed to get team by owner: %w", err)
	}
	return team, nil
}

func (r *teamRepository) GetAll(ctx context.Context) ([]*models.Team, error) {
	var teams []*models.Team
	err := r.db.NewSelect().
		Model(&teams).
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get teams: %w", err)
	}
	return teams, nil
}

func (r *teamRepository) GetBalance(ctx context.Context, id int64) (int64, error) {
	team, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return team.Balance, nil
}

func (r *teamRepository) Credit(ctx context.Context, id int64, amount int64) error {
	result, err := r.db.NewUpdate().
		Model((*models.Team)(nil)).
		Set("balance = balance + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to credit team: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("team %d: %w", id, bidderrors.ErrTeamNotFound)
	}
	return nil
}

// Settle unconditionally deducts amount, guarded by a conditional update
// so the balance can never go negative even if it drifted after the
// affordability check.
func (r *teamRepository) Settle(ctx context.Context, id int64, amount int64) error {
	result, err := r.db.NewUpdate().
		Model((*models.Team)(nil)).
		Set("balance = balance - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND balance >= ?", id, amount).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to settle: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		balance, balErr := r.GetBalance(ctx, id)
		if balErr != nil {
			return balErr
		}
		return bidderrors.NewInsufficientFunds(balance, 0, amount)
	}
	return nil
}
