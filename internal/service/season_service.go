package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type seasonRepository interface {
	List(ctx context.Context) ([]models.Season, error)
	FindByID(ctx context.Context, id string) (*models.Season, error)
	FindActive(ctx context.Context) (*models.Season, error)
	Create(ctx context.Context, season *models.Season) error
	Update(ctx context.Context, season *models.Season) error
	Activate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SeasonRequest is the create/update payload for a season.
type SeasonRequest struct {
	Name string `json:"name" validate:"required"`
}

// SeasonService manages enrollment terms.
type SeasonService struct {
	repo      seasonRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSeasonService constructs SeasonService.
func NewSeasonService(repo seasonRepository, validate *validator.Validate, logger *zap.Logger) *SeasonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeasonService{repo: repo, validator: validate, logger: logger}
}

// List returns all seasons, newest first.
func (s *SeasonService) List(ctx context.Context) ([]models.Season, error) {
	seasons, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list seasons")
	}
	return seasons, nil
}

// Get returns one season.
func (s *SeasonService) Get(ctx context.Context, id string) (*models.Season, error) {
	season, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load season")
	}
	return season, nil
}

// GetActive returns the currently active season, if any.
func (s *SeasonService) GetActive(ctx context.Context) (*models.Season, error) {
	season, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active season")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active season")
	}
	return season, nil
}

// Create adds a season. New seasons start inactive; Activate switches terms.
func (s *SeasonService) Create(ctx context.Context, req SeasonRequest) (*models.Season, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid season payload")
	}
	season := &models.Season{Name: req.Name, Active: false}
	if err := s.repo.Create(ctx, season); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create season")
	}
	return season, nil
}

// Update renames a season.
func (s *SeasonService) Update(ctx context.Context, id string, req SeasonRequest) (*models.Season, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid season payload")
	}

	season, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load season")
	}

	season.Name = req.Name
	if err := s.repo.Update(ctx, season); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update season")
	}
	return season, nil
}

// Activate makes the season the single active term.
func (s *SeasonService) Activate(ctx context.Context, id string) (*models.Season, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load season")
	}
	if err := s.repo.Activate(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate season")
	}
	return s.repo.FindByID(ctx, id)
}

// Delete removes an inactive season. The active season cannot be deleted.
func (s *SeasonService) Delete(ctx context.Context, id string) error {
	season, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load season")
	}
	if season.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "the active season cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete season")
	}
	return nil
}
