package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	"github.com/hakwonhub/hakwon-api/internal/repository"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	Recount(ctx context.Context, id string) (int, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheRecorder interface {
	RecordCacheOperation(operation string, hit bool)
}

// CourseRequest is the create/update payload for a course. The schedule
// accepts either the canonical slot list or the legacy day-string shorthand.
type CourseRequest struct {
	SeasonID   string                `json:"season_id" validate:"required"`
	Title      string                `json:"title" validate:"required"`
	Instructor string                `json:"instructor"`
	Category   string                `json:"category"`
	Level      string                `json:"level"`
	Capacity   int                   `json:"capacity" validate:"required,min=1"`
	Schedule   models.CourseSchedule `json:"schedule"`
	Active     bool                  `json:"active"`
}

// CourseListPage is the cached shape of one course listing.
type CourseListPage struct {
	Courses    []models.CourseDetail `json:"courses"`
	Pagination models.Pagination     `json:"pagination"`
}

// CourseService manages the course catalog. Public listings read through a
// Redis cache; the enrolled counter shown there may lag by up to the cache
// TTL, and capacity decisions never consult it.
type CourseService struct {
	repo      courseRepository
	cache     courseCache
	audit     auditWriter
	metrics   cacheRecorder
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService. Cache, audit, and metrics may
// be nil.
func NewCourseService(repo courseRepository, cache courseCache, audit auditWriter, metrics cacheRecorder,
	cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, cache: cache, audit: audit, metrics: metrics,
		cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns courses, reading through the cache when one is configured.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	key := s.listCacheKey(filter)
	if s.cache != nil {
		var page CourseListPage
		err := s.cache.Get(ctx, key, &page)
		if err == nil {
			s.recordCache("course_list", true)
			return page.Courses, &page.Pagination, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("course cache read failed", zap.Error(err))
		}
		s.recordCache("course_list", false)
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, CourseListPage{Courses: courses, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}
	return courses, &pagination, nil
}

// Get returns one course straight from the database.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	slots, err := s.normalizeSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		SeasonID:   req.SeasonID,
		Title:      req.Title,
		Instructor: req.Instructor,
		Category:   req.Category,
		Level:      req.Level,
		Capacity:   req.Capacity,
		Slots:      slots,
		Active:     req.Active,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidate(ctx)
	return course, nil
}

// Update rewrites a course's attributes. Shrinking capacity below the current
// enrolled count is rejected; release seats first.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	slots, err := s.normalizeSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCourseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if req.Capacity < course.Enrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("capacity %d is below the current enrolled count %d", req.Capacity, course.Enrolled))
	}

	course.SeasonID = req.SeasonID
	course.Title = req.Title
	course.Instructor = req.Instructor
	course.Category = req.Category
	course.Level = req.Level
	course.Capacity = req.Capacity
	course.Slots = slots
	course.Active = req.Active

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx)
	return course, nil
}

// Delete removes a course and all its enrollment rows.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCourseNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx)
	return nil
}

// Recount reconciles the enrolled counter against the open enrollment rows.
// The counter is the source of truth for capacity checks, so drift (from
// manual data fixes, for instance) should be repaired here, not by hand.
func (s *CourseService) Recount(ctx context.Context, id string, admin *models.JWTClaims) (int, error) {
	actual, err := s.repo.Recount(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.ErrCourseNotFound
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recount course")
	}

	if s.audit != nil && admin != nil {
		adminID := admin.SubjectID
		if err := s.audit.Create(ctx, &models.AuditLog{
			UserID:     &adminID,
			Action:     models.AuditActionRecount,
			Resource:   "course",
			ResourceID: &id,
			Detail:     []byte(fmt.Sprintf(`{"enrolled":%d}`, actual)),
		}); err != nil {
			s.logger.Warn("failed to record recount audit log", zap.Error(err))
		}
	}
	s.invalidate(ctx)
	return actual, nil
}

func (s *CourseService) normalizeSchedule(schedule models.CourseSchedule) (models.ScheduleSlots, error) {
	slots := schedule.Normalize()
	for _, slot := range slots {
		if !models.ValidDay(slot.Day) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", slot.Day))
		}
		if slot.Start < models.PeriodMin || slot.End > models.PeriodMax || slot.Start > slot.End {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("invalid period range %d-%d for %s", slot.Start, slot.End, slot.Day))
		}
	}
	return models.ScheduleSlots(slots), nil
}

func (s *CourseService) listCacheKey(filter models.CourseFilter) string {
	active := "any"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("courses:list:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		filter.SeasonID, filter.Category, filter.Level, active, filter.Search,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func (s *CourseService) recordCache(operation string, hit bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCacheOperation(operation, hit)
}

func (s *CourseService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "courses:list:*"); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Error(err))
	}
}
