package service

import (
	"context"
	"database/sql"
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

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	submitErrs  map[string]error
	submitted   []models.Enrollment
}

func (m *mockEnrollmentRepo) Submit(ctx context.Context, enrollment *models.Enrollment) error {
	if err, ok := m.submitErrs[enrollment.CourseID]; ok {
		return err
	}
	enrollment.ID = "enr-" + enrollment.CourseID
	enrollment.Status = models.EnrollmentStatusPending
	enrollment.RequestedAt = time.Now().UTC()
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.submitted = append(m.submitted, *enrollment)
	return nil
}

func (m *mockEnrollmentRepo) Approve(ctx context.Context, id, adminID string, decidedAt time.Time) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if e.Status != models.EnrollmentStatusPending {
		return nil, repository.ErrNotPending
	}
	e.Status = models.EnrollmentStatusApproved
	e.DecidedAt = &decidedAt
	e.DecidedBy = &adminID
	m.enrollments[id] = e
	return &e, nil
}

func (m *mockEnrollmentRepo) Reject(ctx context.Context, id, adminID, reason string, decidedAt time.Time) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if e.Status != models.EnrollmentStatusPending {
		return nil, repository.ErrNotPending
	}
	e.Status = models.EnrollmentStatusRejected
	e.DecidedAt = &decidedAt
	e.DecidedBy = &adminID
	e.Reason = &reason
	m.enrollments[id] = e
	return &e, nil
}

func (m *mockEnrollmentRepo) Cancel(ctx context.Context, id string, cancelledAt time.Time) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if !e.Status.Open() {
		return nil, repository.ErrNotOpen
	}
	e.Status = models.EnrollmentStatusCancelled
	e.CancelledAt = &cancelledAt
	m.enrollments[id] = e
	return &e, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) ListOpenByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var open []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.Status.Open() {
			open = append(open, e)
		}
	}
	return open, nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseTitleReader struct {
	titles map[string]string
}

func (m *mockCourseTitleReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if title, ok := m.titles[id]; ok {
		return &models.Course{ID: id, Title: title}, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	dispatched []models.Notification
}

func (m *mockNotifier) Dispatch(notification models.Notification) error {
	m.dispatched = append(m.dispatched, notification)
	return nil
}

type mockFeedPublisher struct {
	events []models.FeedEvent
}

func (m *mockFeedPublisher) Publish(ctx context.Context, event models.FeedEvent) {
	m.events = append(m.events, event)
}

type mockAuditWriter struct {
	entries []models.AuditLog
}

func (m *mockAuditWriter) Create(ctx context.Context, entry *models.AuditLog) error {
	m.entries = append(m.entries, *entry)
	return nil
}

type mockDecisionRecorder struct {
	outcomes []string
}

func (m *mockDecisionRecorder) RecordEnrollmentDecision(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func openStudent(id string) *models.Student {
	start := time.Now().UTC().Add(-24 * time.Hour)
	end := time.Now().UTC().Add(24 * time.Hour)
	return &models.Student{
		ID:              id,
		Name:            "김철수",
		Phone:           "010-1234-5678",
		EnrollmentOpen:  true,
		ChangeStartDate: &start,
		ChangeEndDate:   &end,
	}
}

func newEnrollmentFixture(repo *mockEnrollmentRepo, students *mockStudentReader) (*EnrollmentService, *mockNotifier, *mockFeedPublisher, *mockDecisionRecorder) {
	notifier := &mockNotifier{}
	feed := &mockFeedPublisher{}
	metrics := &mockDecisionRecorder{}
	svc := NewEnrollmentService(repo, students, &mockCourseTitleReader{titles: map[string]string{"c1": "수학"}},
		notifier, feed, &mockAuditWriter{}, metrics, validator.New(), zap.NewNop())
	return svc, notifier, feed, metrics
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{SubjectID: "admin-1", Role: models.RoleAdmin, Name: "관리자"}
}

func TestEnrollmentServiceSubmitOutcomes(t *testing.T) {
	repo := &mockEnrollmentRepo{submitErrs: map[string]error{
		"full":    repository.ErrCourseFull,
		"dup":     repository.ErrDuplicateEnrollment,
		"missing": repository.ErrCourseNotFound,
	}}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, _, feed, metrics := newEnrollmentFixture(repo, students)

	outcomes, err := svc.Submit(context.Background(), SubmitEnrollmentsRequest{
		StudentID: "s1",
		SeasonID:  "season-1",
		CourseIDs: []string{"c1", "full", "dup", "missing"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "enr-c1", outcomes[0].EnrollmentID)

	assert.False(t, outcomes[1].Success)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, outcomes[1].ErrorReason)
	assert.False(t, outcomes[2].Success)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, outcomes[2].ErrorReason)
	assert.False(t, outcomes[3].Success)
	assert.Equal(t, appErrors.ErrCourseNotFound.Code, outcomes[3].ErrorReason)

	// Only the successful admission reaches the feed.
	require.Len(t, feed.events, 1)
	assert.Equal(t, models.FeedEventSubmitted, feed.events[0].Type)
	assert.Equal(t, []string{"submitted", "CAPACITY_EXCEEDED", "ALREADY_ENROLLED", "COURSE_NOT_FOUND"}, metrics.outcomes)
}

func TestEnrollmentServiceSubmitFailureNeverBlocksLaterCourses(t *testing.T) {
	repo := &mockEnrollmentRepo{submitErrs: map[string]error{"full": repository.ErrCourseFull}}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, _, _, _ := newEnrollmentFixture(repo, students)

	outcomes, err := svc.Submit(context.Background(), SubmitEnrollmentsRequest{
		StudentID: "s1",
		SeasonID:  "season-1",
		CourseIDs: []string{"full", "c2"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.True(t, outcomes[1].Success)
}

func TestEnrollmentServiceSubmitEnrollmentClosed(t *testing.T) {
	student := openStudent("s1")
	student.EnrollmentOpen = false
	students := &mockStudentReader{students: map[string]*models.Student{"s1": student}}
	svc, _, _, _ := newEnrollmentFixture(&mockEnrollmentRepo{}, students)

	_, err := svc.Submit(context.Background(), SubmitEnrollmentsRequest{
		StudentID: "s1", SeasonID: "season-1", CourseIDs: []string{"c1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentClosed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceSubmitUnknownStudent(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(&mockEnrollmentRepo{}, &mockStudentReader{})

	_, err := svc.Submit(context.Background(), SubmitEnrollmentsRequest{
		StudentID: "ghost", SeasonID: "season-1", CourseIDs: []string{"c1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceApprove(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusPending},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, notifier, feed, metrics := newEnrollmentFixture(repo, students)

	detail, err := svc.Approve(context.Background(), "e1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)

	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, models.NotificationTypeApproval, notifier.dispatched[0].Type)
	assert.Contains(t, notifier.dispatched[0].Message, "수학")

	require.Len(t, feed.events, 1)
	assert.Equal(t, models.FeedEventApproved, feed.events[0].Type)
	assert.Equal(t, []string{"approved"}, metrics.outcomes)
}

func TestEnrollmentServiceApproveNotPending(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusRejected},
	}}
	svc, _, _, _ := newEnrollmentFixture(repo, &mockStudentReader{})

	_, err := svc.Approve(context.Background(), "e1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceApproveMissing(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(&mockEnrollmentRepo{}, &mockStudentReader{})

	_, err := svc.Approve(context.Background(), "ghost", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceReject(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusPending},
	}}
	svc, notifier, feed, metrics := newEnrollmentFixture(repo, &mockStudentReader{})

	detail, err := svc.Reject(context.Background(), "e1", adminClaims(), RejectEnrollmentRequest{Reason: "시간 조정"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, detail.Status)
	require.NotNil(t, detail.Reason)
	assert.Equal(t, "시간 조정", *detail.Reason)

	require.Len(t, notifier.dispatched, 1)
	assert.Equal(t, models.NotificationTypeRejection, notifier.dispatched[0].Type)
	assert.Contains(t, notifier.dispatched[0].Message, "시간 조정")

	require.Len(t, feed.events, 1)
	assert.Equal(t, models.FeedEventRejected, feed.events[0].Type)
	assert.Equal(t, []string{"rejected"}, metrics.outcomes)
}

func TestEnrollmentServiceRejectRequiresReason(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(&mockEnrollmentRepo{}, &mockStudentReader{})

	_, err := svc.Reject(context.Background(), "e1", adminClaims(), RejectEnrollmentRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCancelSelf(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusApproved},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, _, feed, _ := newEnrollmentFixture(repo, students)

	detail, err := svc.CancelSelf(context.Background(), "e1", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, detail.Status)
	require.Len(t, feed.events, 1)
	assert.Equal(t, models.FeedEventCancelled, feed.events[0].Type)
}

func TestEnrollmentServiceCancelSelfOutsideChangeWindow(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusApproved},
	}}
	student := openStudent("s1")
	past := time.Now().UTC().Add(-48 * time.Hour)
	pastEnd := time.Now().UTC().Add(-24 * time.Hour)
	student.ChangeStartDate = &past
	student.ChangeEndDate = &pastEnd
	students := &mockStudentReader{students: map[string]*models.Student{"s1": student}}
	svc, _, _, _ := newEnrollmentFixture(repo, students)

	_, err := svc.CancelSelf(context.Background(), "e1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrChangePeriodClosed.Code, appErrors.FromError(err).Code)

	// The enrollment stays untouched.
	kept := repo.enrollments["e1"]
	assert.Equal(t, models.EnrollmentStatusApproved, kept.Status)
}

func TestEnrollmentServiceCancelSelfOtherStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusApproved},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, _, _, _ := newEnrollmentFixture(repo, students)

	_, err := svc.CancelSelf(context.Background(), "e1", "intruder")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCancelByAdminIgnoresWindow(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusPending},
	}}
	// No students registered: admin cancellation never consults the window.
	svc, _, _, _ := newEnrollmentFixture(repo, &mockStudentReader{})

	detail, err := svc.CancelByAdmin(context.Background(), "e1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, detail.Status)
}

func TestEnrollmentServiceCancelClosedEnrollment(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusCancelled},
	}}
	svc, _, _, _ := newEnrollmentFixture(repo, &mockStudentReader{})

	_, err := svc.CancelByAdmin(context.Background(), "e1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCancelBatch(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusPending},
		"e2": {ID: "e2", StudentID: "s2", CourseID: "c2", Status: models.EnrollmentStatusRejected},
	}}
	svc, _, _, _ := newEnrollmentFixture(repo, &mockStudentReader{})

	outcomes, err := svc.CancelBatch(context.Background(), CancelBatchRequest{EnrollmentIDs: []string{"e1", "e2", "ghost"}}, adminClaims())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, outcomes[1].ErrorReason)
	assert.False(t, outcomes[2].Success)
	assert.Equal(t, appErrors.ErrEnrollmentNotFound.Code, outcomes[2].ErrorReason)
}

// Full lifecycle: submit two courses, approve one, reject the other with a
// reason, then cancel the approved seat inside the change window.
func TestEnrollmentServiceLifecycle(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": openStudent("s1")}}
	svc, notifier, _, _ := newEnrollmentFixture(repo, students)
	ctx := context.Background()

	outcomes, err := svc.Submit(ctx, SubmitEnrollmentsRequest{
		StudentID: "s1", SeasonID: "season-1", CourseIDs: []string{"c1", "c2"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Success)
	require.True(t, outcomes[1].Success)

	approved, err := svc.Approve(ctx, outcomes[0].EnrollmentID, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, approved.Status)

	rejected, err := svc.Reject(ctx, outcomes[1].EnrollmentID, adminClaims(), RejectEnrollmentRequest{Reason: "시간 조정"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, rejected.Status)

	cancelled, err := svc.CancelSelf(ctx, outcomes[0].EnrollmentID, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, cancelled.Status)

	assert.Len(t, notifier.dispatched, 2)
}
