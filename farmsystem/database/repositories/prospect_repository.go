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

type ProspectRepository interface {
	Create(ctx context.Context, prospect *models.Prospect) error
	GetByID(ctx context.Context, id int64) (*models.Prospect, error)
	GetAvailable(ctx context.Context) ([]*models.Prospect, error)
	GetByTeam(ctx context.Context, teamID int64) ([]*models.Prospect, error)
	UpdateUsage(ctx context.Context, id int64, atBats int64, inningsPitched float64) error
	// ApplyTag charges the owning team for one tag and increments the
	// prospect's tag counter. The price comes from costFor applied to the
	// locked row, so concurrent tags always pay the escalating cost.
	ApplyTag(ctx context.Context, prospectID, teamID int64, costFor func(*models.Prospect) int64, now time.Time) (*models.Prospect, error)
}

type prospectRepository struct {
	db *bun.DB
}

func NewProspectRepository(db *bun.DB) ProspectRepository {
	return &prospectRepository{db: db}
}

func (r *prospectRepository) Create(ctx context.Context, prospect *models.Prospect) error {
	prospect.CreatedAt = time.Now()
	prospect.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().Model(prospect).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create prospect: %w", err)
	}
	return nil
}

func (r *prospectRepository) GetByID(ctx context.Context, id int64) (*models.Prospect, error) {
	prospect := new(models.Prospect)
	err := r.db.NewSelect().
		Model(prospect).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prospect %d: %w", id, bidderrors.ErrProspectNotFound)
		}
		return nil, fmt.Errorf("failed to get prospect: %w", err)
	}
	return prospect, nil
}

func (r *prospectRepository) GetAvailable(ctx context.Context) ([]*models.Prospect, error) {
	var prospects []*models.Prospect
	err := r.db.NewSelect().
		Model(&prospects).
		Where("team_id IS NULL OR team_id = 0").
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get available prospects: %w", err)
	}
	return prospects, nil
}

func (r *prospectRepository) GetByTeam(ctx context.Context, teamID int64) ([]*models.Prospect, error) {
	var prospects []*models.Prospect
	err := r.db.NewSelect().
		Model(&prospects).
		Where("team_id = ?", teamID).
		Order("acquired_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get team prospects: %w", err)
	}
	return prospects, nil
}

func (r *prospectRepository) UpdateUsage(ctx context.Context, id int64, atBats int64, inningsPitched float64) error {
	result, err := r.db.NewUpdate().
		Model((*models.Prospect)(nil)).
		Set("at_bats = ?", atBats).
		Set("innings_pitched = ?", inningsPitched).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("prospect %d: %w", id, bidderrors.ErrProspectNotFound)
	}
	return nil
}

// ApplyTag deducts the tag cost from the team and increments the
// prospect's tag counter in one serializable transaction. The cost is
// computed from the locked row, and the tag count in the WHERE clause
// guards against a concurrent increment at the priced count.
func (r *prospectRepository) ApplyTag(ctx context.Context, prospectID, teamID int64, costFor func(*models.Prospect) int64, now time.Time) (*models.Prospect, error) {
	var tagged models.Prospect

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		prospect := new(models.Prospect)
		if err := tx.NewSelect().
			Model(prospect).
			Where("id = ?", prospectID).
			For("UPDATE").
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("prospect %d: %w", prospectID, bidderrors.ErrProspectNotFound)
			}
			return fmt.Errorf("failed to lock prospect: %w", err)
		}

		if prospect.TeamID != teamID {
			return fmt.Errorf("prospect %d not on team %d: %w", prospectID, teamID, bidderrors.ErrProspectNotFound)
		}

		cost := costFor(prospect)

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

		if !team.CanAfford(cost) {
			return bidderrors.NewInsufficientFunds(team.Balance, 0, cost)
		}

		if _, err := tx.NewUpdate().
			Model((*models.Team)(nil)).
			Set("balance = balance - ?", cost).
			Set("updated_at = ?", now).
			Where("id = ?", teamID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to deduct tag cost: %w", err)
		}

		result, err := tx.NewUpdate().
			Model((*models.Prospect)(nil)).
			Set("tags_applied = tags_applied + 1").
			Set("last_tagged_at = ?", now).
			Set("last_tagged_by_id = ?", teamID).
			Set("updated_at = ?", now).
			Where("id = ? AND tags_applied = ?", prospectID, prospect.TagsApplied).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply tag: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("prospect %d tag count changed concurrently", prospectID)
		}

		prospect.TagsApplied++
		prospect.LastTaggedAt = now
		prospect.LastTaggedByID = teamID
		prospect.UpdatedAt = now
		tagged = *prospect
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &tagged, nil
}
