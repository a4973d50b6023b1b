package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

type mockConflictEnrollmentReader struct {
	open []models.Enrollment
}

func (m *mockConflictEnrollmentReader) ListOpenByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return m.open, nil
}

type mockConflictCourseReader struct {
	courses map[string]models.Course
}

func (m *mockConflictCourseReader) FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error) {
	found := make(map[string]models.Course, len(ids))
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			found[id] = c
		}
	}
	return found, nil
}

func TestCollides(t *testing.T) {
	mon12 := models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayMon, Start: 1, End: 2}}}
	mon23 := models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayMon, Start: 2, End: 3}}}
	tue12 := models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayTue, Start: 1, End: 2}}}

	assert.True(t, Collides(mon12, mon23))
	assert.True(t, Collides(mon23, mon12))
	assert.False(t, Collides(mon12, tue12))
	assert.False(t, Collides(models.CourseSchedule{}, mon12))
	assert.False(t, Collides(models.CourseSchedule{}, models.CourseSchedule{}))
}

func TestCollidesLegacyShorthand(t *testing.T) {
	legacy := models.CourseSchedule{Day: "월/수", Start: 1, End: 2}
	canonical := models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayWed, Start: 2, End: 4}}}

	assert.True(t, Collides(legacy, canonical))
	assert.True(t, Collides(canonical, legacy))
}

func TestCheckReportsEveryCollidingPair(t *testing.T) {
	candidate := models.CourseSchedule{Slots: []models.ScheduleSlot{
		{Day: models.DayMon, Start: 1, End: 3},
		{Day: models.DayWed, Start: 1, End: 3},
	}}
	busy := []models.BusyCourse{
		{CourseID: "c1", Title: "수학", Schedule: models.CourseSchedule{Day: "월/수", Start: 2, End: 4}},
		{CourseID: "c2", Title: "영어", Schedule: models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayFri, Start: 1, End: 2}}}},
	}

	conflicts := Check(candidate, busy)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c1", conflicts[0].CourseID)
	assert.Equal(t, "수학", conflicts[0].Title)
	assert.Len(t, conflicts[0].Pairs, 2)
}

func TestCheckNoConflicts(t *testing.T) {
	candidate := models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayMon, Start: 1, End: 2}}}
	busy := []models.BusyCourse{
		{CourseID: "c1", Schedule: models.CourseSchedule{Slots: []models.ScheduleSlot{{Day: models.DayMon, Start: 3, End: 4}}}},
	}
	assert.Empty(t, Check(candidate, busy))
}

func TestConflictServiceCheckForStudentMergesHeldCourses(t *testing.T) {
	enrollments := &mockConflictEnrollmentReader{open: []models.Enrollment{
		{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusApproved},
	}}
	courses := &mockConflictCourseReader{courses: map[string]models.Course{
		"c1": {ID: "c1", Title: "수학", Slots: models.ScheduleSlots{{Day: models.DayMon, Start: 1, End: 2}}},
	}}
	svc := NewConflictService(enrollments, courses, zap.NewNop())

	candidate := models.CourseSchedule{Day: "월", Start: 2, End: 3}
	conflicts, err := svc.CheckForStudent(context.Background(), "s1", candidate, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c1", conflicts[0].CourseID)
}

func TestConflictServiceCheckForStudentStagedOnly(t *testing.T) {
	svc := NewConflictService(&mockConflictEnrollmentReader{}, &mockConflictCourseReader{}, zap.NewNop())

	staged := []models.BusyCourse{
		{CourseID: "cart-1", Title: "국어", Schedule: models.CourseSchedule{Day: "화", Start: 1, End: 2}},
	}
	candidate := models.CourseSchedule{Day: "화", Start: 2, End: 3}

	conflicts, err := svc.CheckForStudent(context.Background(), "", candidate, staged)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "cart-1", conflicts[0].CourseID)
}
