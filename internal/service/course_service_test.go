package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	"github.com/hakwonhub/hakwon-api/internal/repository"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type mockCourseRepo struct {
	courses   map[string]models.Course
	listCalls int
	recounted int
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	m.listCalls++
	var details []models.CourseDetail
	for _, c := range m.courses {
		details = append(details, models.CourseDetail{Course: c})
	}
	return details, len(details), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	if course.ID == "" {
		course.ID = "new-course"
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	return nil
}

func (m *mockCourseRepo) Recount(ctx context.Context, id string) (int, error) {
	if _, ok := m.courses[id]; !ok {
		return 0, sql.ErrNoRows
	}
	return m.recounted, nil
}

type mockCourseCache struct {
	entries map[string][]byte
	deleted []string
}

func (m *mockCourseCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.entries[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *mockCourseCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = data
	return nil
}

func (m *mockCourseCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type mockCacheRecorder struct {
	hits   int
	misses int
}

func (m *mockCacheRecorder) RecordCacheOperation(operation string, hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func newCourseFixture(repo *mockCourseRepo, cache *mockCourseCache) (*CourseService, *mockCacheRecorder) {
	metrics := &mockCacheRecorder{}
	svc := NewCourseService(repo, cache, &mockAuditWriter{}, metrics, time.Minute, validator.New(), zap.NewNop())
	return svc, metrics
}

func TestCourseServiceListReadsThrough(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1", Title: "수학", Capacity: 10}}}
	cache := &mockCourseCache{}
	svc, metrics := newCourseFixture(repo, cache)
	ctx := context.Background()

	courses, pagination, err := svc.List(ctx, models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, metrics.misses)

	// Second call hits the cache; the repo stays untouched.
	courses, _, err = svc.List(ctx, models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, metrics.hits)
}

func TestCourseServiceListWithoutCache(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1"}}}
	svc := NewCourseService(repo, nil, nil, nil, time.Minute, validator.New(), zap.NewNop())

	_, _, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCourseServiceCreateInvalidatesCache(t *testing.T) {
	repo := &mockCourseRepo{}
	cache := &mockCourseCache{}
	svc, _ := newCourseFixture(repo, cache)
	ctx := context.Background()

	_, _, err := svc.List(ctx, models.CourseFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, cache.entries)

	_, err = svc.Create(ctx, CourseRequest{
		SeasonID: "season-1",
		Title:    "영어",
		Capacity: 20,
		Schedule: models.CourseSchedule{Day: "월/수", Start: 1, End: 2},
		Active:   true,
	})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, "courses:list:*")
	assert.Empty(t, cache.entries)
}

func TestCourseServiceCreateNormalizesLegacySchedule(t *testing.T) {
	repo := &mockCourseRepo{}
	svc, _ := newCourseFixture(repo, &mockCourseCache{})

	course, err := svc.Create(context.Background(), CourseRequest{
		SeasonID: "season-1",
		Title:    "수학",
		Capacity: 10,
		Schedule: models.CourseSchedule{Day: "월/수", Start: 1, End: 2},
	})
	require.NoError(t, err)
	require.Len(t, course.Slots, 2)
	assert.Equal(t, models.DayMon, course.Slots[0].Day)
	assert.Equal(t, models.DayWed, course.Slots[1].Day)
}

func TestCourseServiceCreateRejectsBadSchedule(t *testing.T) {
	svc, _ := newCourseFixture(&mockCourseRepo{}, &mockCourseCache{})

	_, err := svc.Create(context.Background(), CourseRequest{
		SeasonID: "season-1",
		Title:    "수학",
		Capacity: 10,
		Schedule: models.CourseSchedule{Day: "funday", Start: 1, End: 2},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CourseRequest{
		SeasonID: "season-1",
		Title:    "수학",
		Capacity: 10,
		Schedule: models.CourseSchedule{Day: "월", Start: 5, End: 2},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateRefusesCapacityBelowEnrolled(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", SeasonID: "season-1", Title: "수학", Capacity: 10, Enrolled: 7},
	}}
	svc, _ := newCourseFixture(repo, &mockCourseCache{})

	_, err := svc.Update(context.Background(), "c1", CourseRequest{
		SeasonID: "season-1", Title: "수학", Capacity: 5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceRecount(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1"}}, recounted: 4}
	cache := &mockCourseCache{}
	svc, _ := newCourseFixture(repo, cache)

	actual, err := svc.Recount(context.Background(), "c1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 4, actual)
	assert.Contains(t, cache.deleted, "courses:list:*")

	_, err = svc.Recount(context.Background(), "ghost", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseNotFound.Code, appErrors.FromError(err).Code)
}
