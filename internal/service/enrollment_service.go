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

type enrollmentRepository interface {
	Submit(ctx context.Context, enrollment *models.Enrollment) error
	Approve(ctx context.Context, id, adminID string, decidedAt time.Time) (*models.Enrollment, error)
	Reject(ctx context.Context, id, adminID, reason string, decidedAt time.Time) (*models.Enrollment, error)
	Cancel(ctx context.Context, id string, cancelledAt time.Time) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListOpenByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseTitleReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type notificationDispatcher interface {
	Dispatch(notification models.Notification) error
}

type feedPublisher interface {
	Publish(ctx context.Context, event models.FeedEvent)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type decisionRecorder interface {
	RecordEnrollmentDecision(outcome string)
}

// SubmitEnrollmentsRequest is the batch submission payload.
type SubmitEnrollmentsRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	SeasonID  string   `json:"season_id" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,required"`
}

// RejectEnrollmentRequest carries the mandatory rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelBatchRequest carries enrollment IDs for an admin batch cancellation.
type CancelBatchRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
}

// EnrollmentService orchestrates the admission workflow: submission,
// approval, rejection, and cancellation.
type EnrollmentService struct {
	repo          enrollmentRepository
	students      studentReader
	courses       courseTitleReader
	notifications notificationDispatcher
	feed          feedPublisher
	audit         auditWriter
	metrics       decisionRecorder
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. Feed, audit, and metrics
// may be nil; the workflow treats them as best-effort collaborators.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, courses courseTitleReader,
	notifications notificationDispatcher, feed feedPublisher, audit auditWriter, metrics decisionRecorder,
	validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:          repo,
		students:      students,
		courses:       courses,
		notifications: notifications,
		feed:          feed,
		audit:         audit,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns one enrollment with contextual info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrEnrollmentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Submit admits a batch of course requests for one student. Every course is
// its own atomic unit: one failure never blocks or rolls back the others, and
// the caller receives a per-course outcome list.
func (s *EnrollmentService) Submit(ctx context.Context, req SubmitEnrollmentsRequest) ([]models.SubmissionOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.EnrollmentOpen {
		return nil, appErrors.ErrEnrollmentClosed
	}

	outcomes := make([]models.SubmissionOutcome, 0, len(req.CourseIDs))
	for _, courseID := range req.CourseIDs {
		outcome := s.submitOne(ctx, req.StudentID, courseID, req.SeasonID)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *EnrollmentService) submitOne(ctx context.Context, studentID, courseID, seasonID string) models.SubmissionOutcome {
	enrollment := &models.Enrollment{StudentID: studentID, CourseID: courseID, SeasonID: seasonID}
	err := s.repo.Submit(ctx, enrollment)
	if err == nil {
		s.record("submitted")
		s.publish(ctx, models.FeedEvent{
			Type:         models.FeedEventSubmitted,
			EnrollmentID: enrollment.ID,
			CourseID:     courseID,
			StudentID:    studentID,
			Status:       models.EnrollmentStatusPending,
			At:           enrollment.RequestedAt,
		})
		return models.SubmissionOutcome{CourseID: courseID, Success: true, EnrollmentID: enrollment.ID}
	}

	var reason string
	switch {
	case errors.Is(err, repository.ErrCourseFull):
		reason = appErrors.ErrCapacityExceeded.Code
	case errors.Is(err, repository.ErrDuplicateEnrollment):
		reason = appErrors.ErrAlreadyEnrolled.Code
	case errors.Is(err, repository.ErrCourseNotFound):
		reason = appErrors.ErrCourseNotFound.Code
	default:
		reason = appErrors.ErrInternal.Code
		s.logger.Error("enrollment submission failed",
			zap.String("student_id", studentID),
			zap.String("course_id", courseID),
			zap.Error(err))
	}
	s.record(reason)
	return models.SubmissionOutcome{CourseID: courseID, Success: false, ErrorReason: reason}
}

// Approve transitions a pending enrollment to approved. The seat was claimed
// at submission time, so the counter stays put. Notification, audit, and feed
// are best-effort.
func (s *EnrollmentService) Approve(ctx context.Context, id string, admin *models.JWTClaims) (*models.EnrollmentDetail, error) {
	now := time.Now().UTC()
	enrollment, err := s.repo.Approve(ctx, id, admin.SubjectID, now)
	if err != nil {
		return nil, s.mapDecisionError(err)
	}

	s.record("approved")
	s.notify(enrollment, models.NotificationTypeApproval, s.approvalMessage(ctx, enrollment))
	s.auditDecision(ctx, models.AuditActionApprove, admin, enrollment.ID)
	s.publish(ctx, models.FeedEvent{
		Type:         models.FeedEventApproved,
		EnrollmentID: enrollment.ID,
		CourseID:     enrollment.CourseID,
		StudentID:    enrollment.StudentID,
		Status:       enrollment.Status,
		At:           now,
	})
	return s.repo.FindDetailByID(ctx, id)
}

// Reject atomically releases the seat and marks the enrollment rejected with
// the admin's reason. The reason travels on the rejection notification.
func (s *EnrollmentService) Reject(ctx context.Context, id string, admin *models.JWTClaims, req RejectEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}

	now := time.Now().UTC()
	enrollment, err := s.repo.Reject(ctx, id, admin.SubjectID, req.Reason, now)
	if err != nil {
		return nil, s.mapDecisionError(err)
	}

	s.record("rejected")
	message := fmt.Sprintf("Your enrollment request was rejected: %s", req.Reason)
	s.notify(enrollment, models.NotificationTypeRejection, message)
	s.auditDecision(ctx, models.AuditActionReject, admin, enrollment.ID)
	s.publish(ctx, models.FeedEvent{
		Type:         models.FeedEventRejected,
		EnrollmentID: enrollment.ID,
		CourseID:     enrollment.CourseID,
		StudentID:    enrollment.StudentID,
		Status:       enrollment.Status,
		At:           now,
	})
	return s.repo.FindDetailByID(ctx, id)
}

// CancelSelf cancels the student's own enrollment, gated by the student's
// change-period window. Both window bounds are inclusive.
func (s *EnrollmentService) CancelSelf(ctx context.Context, id, studentID string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrEnrollmentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.ChangeWindowOpen(time.Now().UTC()) {
		return nil, appErrors.ErrChangePeriodClosed
	}

	return s.cancel(ctx, id, nil)
}

// CancelByAdmin cancels any open enrollment, bypassing the change window.
func (s *EnrollmentService) CancelByAdmin(ctx context.Context, id string, admin *models.JWTClaims) (*models.EnrollmentDetail, error) {
	return s.cancel(ctx, id, admin)
}

// CancelBatch cancels several enrollments for an admin, reporting per-ID
// outcomes instead of aborting on the first failure.
func (s *EnrollmentService) CancelBatch(ctx context.Context, req CancelBatchRequest, admin *models.JWTClaims) ([]models.SubmissionOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}

	outcomes := make([]models.SubmissionOutcome, 0, len(req.EnrollmentIDs))
	for _, id := range req.EnrollmentIDs {
		if _, err := s.cancel(ctx, id, admin); err != nil {
			outcomes = append(outcomes, models.SubmissionOutcome{CourseID: id, Success: false, ErrorReason: appErrors.FromError(err).Code})
			continue
		}
		outcomes = append(outcomes, models.SubmissionOutcome{CourseID: id, Success: true})
	}
	return outcomes, nil
}

func (s *EnrollmentService) cancel(ctx context.Context, id string, admin *models.JWTClaims) (*models.EnrollmentDetail, error) {
	now := time.Now().UTC()
	enrollment, err := s.repo.Cancel(ctx, id, now)
	if err != nil {
		return nil, s.mapDecisionError(err)
	}

	s.record("cancelled")
	if admin != nil {
		s.auditDecision(ctx, models.AuditActionCancel, admin, enrollment.ID)
	}
	s.publish(ctx, models.FeedEvent{
		Type:         models.FeedEventCancelled,
		EnrollmentID: enrollment.ID,
		CourseID:     enrollment.CourseID,
		StudentID:    enrollment.StudentID,
		Status:       enrollment.Status,
		At:           now,
	})
	return s.repo.FindDetailByID(ctx, id)
}

func (s *EnrollmentService) mapDecisionError(err error) error {
	switch {
	case err == sql.ErrNoRows:
		return appErrors.ErrEnrollmentNotFound
	case errors.Is(err, repository.ErrNotPending):
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not pending")
	case errors.Is(err, repository.ErrNotOpen):
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is already closed")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment update failed")
	}
}

func (s *EnrollmentService) approvalMessage(ctx context.Context, enrollment *models.Enrollment) string {
	if course, err := s.courses.FindByID(ctx, enrollment.CourseID); err == nil {
		return fmt.Sprintf("Your enrollment for %q has been approved.", course.Title)
	}
	return "Your enrollment has been approved."
}

func (s *EnrollmentService) notify(enrollment *models.Enrollment, kind models.NotificationType, message string) {
	if s.notifications == nil {
		return
	}
	id := enrollment.ID
	err := s.notifications.Dispatch(models.Notification{
		StudentID:    enrollment.StudentID,
		EnrollmentID: &id,
		Type:         kind,
		Message:      message,
	})
	if err != nil {
		s.logger.Warn("failed to dispatch notification",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err))
	}
}

func (s *EnrollmentService) auditDecision(ctx context.Context, action models.AuditAction, admin *models.JWTClaims, enrollmentID string) {
	if s.audit == nil {
		return
	}
	adminID := admin.SubjectID
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}

func (s *EnrollmentService) publish(ctx context.Context, event models.FeedEvent) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(ctx, event)
}

func (s *EnrollmentService) record(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordEnrollmentDecision(outcome)
}
