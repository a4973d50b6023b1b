package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type conflictEnrollmentReader interface {
	ListOpenByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type conflictCourseReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error)
}

// ConflictService detects timetable collisions between a candidate course and
// a set of busy courses. Detection itself is pure; the service only adds the
// lookup of a student's already-held courses.
type ConflictService struct {
	enrollments conflictEnrollmentReader
	courses     conflictCourseReader
	logger      *zap.Logger
}

// NewConflictService constructs ConflictService.
func NewConflictService(enrollments conflictEnrollmentReader, courses conflictCourseReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{enrollments: enrollments, courses: courses, logger: logger}
}

// Collides reports whether any slot of a overlaps any slot of b,
// short-circuiting on the first hit. Schedules normalize first, so the legacy
// single-range shorthand and the canonical slot list compare identically.
func Collides(a, b models.CourseSchedule) bool {
	for _, sa := range a.Normalize() {
		for _, sb := range b.Normalize() {
			if sa.Overlaps(sb) {
				return true
			}
		}
	}
	return false
}

// Check enumerates every busy course colliding with the candidate, with the
// full set of colliding slot pairs per course. No side effects.
func Check(candidate models.CourseSchedule, busy []models.BusyCourse) []models.CourseConflict {
	candidateSlots := candidate.Normalize()
	var conflicts []models.CourseConflict

	for _, b := range busy {
		var pairs []models.SlotPair
		for _, cs := range candidateSlots {
			for _, bs := range b.Schedule.Normalize() {
				if cs.Overlaps(bs) {
					pairs = append(pairs, models.SlotPair{Candidate: cs, Busy: bs})
				}
			}
		}
		if len(pairs) > 0 {
			conflicts = append(conflicts, models.CourseConflict{CourseID: b.CourseID, Title: b.Title, Pairs: pairs})
		}
	}
	return conflicts
}

// CheckForStudent merges the student's open enrollments into the supplied
// staged busy set, then runs the detector. The staged set carries the cart
// the client is still assembling.
func (s *ConflictService) CheckForStudent(ctx context.Context, studentID string, candidate models.CourseSchedule, staged []models.BusyCourse) ([]models.CourseConflict, error) {
	busy := make([]models.BusyCourse, 0, len(staged))
	busy = append(busy, staged...)

	if studentID != "" {
		open, err := s.enrollments.ListOpenByStudent(ctx, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open enrollments")
		}
		ids := make([]string, 0, len(open))
		for _, e := range open {
			ids = append(ids, e.CourseID)
		}
		held, err := s.courses.FindByIDs(ctx, ids)
		if err != nil {
			if err != sql.ErrNoRows {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load held courses")
			}
		}
		for _, course := range held {
			busy = append(busy, models.BusyCourse{
				CourseID: course.ID,
				Title:    course.Title,
				Schedule: models.CourseSchedule{Slots: course.Slots},
			})
		}
	}

	return Check(candidate, busy), nil
}
