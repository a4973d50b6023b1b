package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// SeasonRepository handles persistence of seasons.
type SeasonRepository struct {
	db *sqlx.DB
}

// NewSeasonRepository constructs the repository.
func NewSeasonRepository(db *sqlx.DB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

// FindByID returns a season by its ID.
func (r *SeasonRepository) FindByID(ctx context.Context, id string) (*models.Season, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM seasons WHERE id = $1`
	var season models.Season
	if err := r.db.GetContext(ctx, &season, query, id); err != nil {
		return nil, err
	}
	return &season, nil
}

// FindActive returns the currently active season.
func (r *SeasonRepository) FindActive(ctx context.Context) (*models.Season, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM seasons WHERE active = TRUE LIMIT 1`
	var season models.Season
	if err := r.db.GetContext(ctx, &season, query); err != nil {
		return nil, err
	}
	return &season, nil
}

// List returns all seasons, newest first.
func (r *SeasonRepository) List(ctx context.Context) ([]models.Season, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM seasons ORDER BY created_at DESC`
	var seasons []models.Season
	if err := r.db.SelectContext(ctx, &seasons, query); err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	return seasons, nil
}

// Create persists a new season.
func (r *SeasonRepository) Create(ctx context.Context, season *models.Season) error {
	if season.ID == "" {
		season.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	season.CreatedAt = now
	season.UpdatedAt = now
	const query = `INSERT INTO seasons (id, name, active, created_at, updated_at)
        VALUES (:id, :name, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, season); err != nil {
		return fmt.Errorf("create season: %w", err)
	}
	return nil
}

// Update renames a season.
func (r *SeasonRepository) Update(ctx context.Context, season *models.Season) error {
	season.UpdatedAt = time.Now().UTC()
	const query = `UPDATE seasons SET name = :name, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, season); err != nil {
		return fmt.Errorf("update season: %w", err)
	}
	return nil
}

// Activate marks one season active and deactivates the rest, atomically.
func (r *SeasonRepository) Activate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE seasons SET active = FALSE, updated_at = NOW() WHERE active = TRUE`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("deactivate seasons: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE seasons SET active = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate season: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate season: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("activate season %s: no such season", id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

// Delete removes a season. Courses referencing it block deletion at the
// database level.
func (r *SeasonRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM seasons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete season: %w", err)
	}
	return nil
}
