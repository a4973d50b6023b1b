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
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.Attendance) error
	BulkUpsert(ctx context.Context, courseID string, date time.Time, marks []models.AttendanceMark) error
	ListByCourseDate(ctx context.Context, courseID string, date time.Time) ([]models.AttendanceRecord, error)
	SummaryByStudent(ctx context.Context, courseID, studentID string) (*models.AttendanceSummary, error)
}

type attendanceCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// MarkAttendanceRequest records attendance for one course and date.
type MarkAttendanceRequest struct {
	Date  time.Time               `json:"date" validate:"required"`
	Marks []models.AttendanceMark `json:"marks" validate:"required,min=1,dive"`
}

// AttendanceService records and reports per-course attendance.
type AttendanceService struct {
	repo      attendanceRepository
	courses   attendanceCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, courses attendanceCourseReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// Mark upserts attendance for every listed student on the given date.
// Re-marking the same (course, student, date) replaces the earlier status.
func (s *AttendanceService) Mark(ctx context.Context, courseID string, req MarkAttendanceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	for _, mark := range req.Marks {
		if !mark.Status.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", mark.Status))
		}
	}

	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrCourseNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	date := truncateToDay(req.Date)
	if err := s.repo.BulkUpsert(ctx, courseID, date, req.Marks); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return nil
}

// Roster returns the attendance records for a course on a date.
func (s *AttendanceService) Roster(ctx context.Context, courseID string, date time.Time) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListByCourseDate(ctx, courseID, truncateToDay(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Summary aggregates one student's attendance within a course.
func (s *AttendanceService) Summary(ctx context.Context, courseID, studentID string) (*models.AttendanceSummary, error) {
	summary, err := s.repo.SummaryByStudent(ctx, courseID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize attendance")
	}
	return summary, nil
}

// Attendance keys on calendar days; times of day never participate.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
