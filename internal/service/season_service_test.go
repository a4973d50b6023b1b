package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type mockSeasonRepo struct {
	seasons map[string]models.Season
}

func (m *mockSeasonRepo) List(ctx context.Context) ([]models.Season, error) {
	var list []models.Season
	for _, s := range m.seasons {
		list = append(list, s)
	}
	return list, nil
}

func (m *mockSeasonRepo) FindByID(ctx context.Context, id string) (*models.Season, error) {
	if s, ok := m.seasons[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeasonRepo) FindActive(ctx context.Context) (*models.Season, error) {
	for _, s := range m.seasons {
		if s.Active {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeasonRepo) Create(ctx context.Context, season *models.Season) error {
	if m.seasons == nil {
		m.seasons = make(map[string]models.Season)
	}
	if season.ID == "" {
		season.ID = "new-season"
	}
	m.seasons[season.ID] = *season
	return nil
}

func (m *mockSeasonRepo) Update(ctx context.Context, season *models.Season) error {
	m.seasons[season.ID] = *season
	return nil
}

func (m *mockSeasonRepo) Activate(ctx context.Context, id string) error {
	for key, s := range m.seasons {
		s.Active = key == id
		m.seasons[key] = s
	}
	return nil
}

func (m *mockSeasonRepo) Delete(ctx context.Context, id string) error {
	delete(m.seasons, id)
	return nil
}

func newSeasonService(repo *mockSeasonRepo) *SeasonService {
	return NewSeasonService(repo, validator.New(), zap.NewNop())
}

func TestSeasonServiceCreateStartsInactive(t *testing.T) {
	svc := newSeasonService(&mockSeasonRepo{})

	season, err := svc.Create(context.Background(), SeasonRequest{Name: "2026 여름"})
	require.NoError(t, err)
	assert.False(t, season.Active)
}

func TestSeasonServiceActivateSwitchesTerms(t *testing.T) {
	repo := &mockSeasonRepo{seasons: map[string]models.Season{
		"spring": {ID: "spring", Name: "2026 봄", Active: true},
		"summer": {ID: "summer", Name: "2026 여름"},
	}}
	svc := newSeasonService(repo)

	season, err := svc.Activate(context.Background(), "summer")
	require.NoError(t, err)
	assert.True(t, season.Active)
	assert.False(t, repo.seasons["spring"].Active, "only one season stays active")
}

func TestSeasonServiceDeleteRefusesActive(t *testing.T) {
	repo := &mockSeasonRepo{seasons: map[string]models.Season{
		"spring": {ID: "spring", Name: "2026 봄", Active: true},
	}}
	svc := newSeasonService(repo)

	err := svc.Delete(context.Background(), "spring")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.seasons, "spring")
}

func TestSeasonServiceGetActiveNone(t *testing.T) {
	svc := newSeasonService(&mockSeasonRepo{})

	_, err := svc.GetActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
