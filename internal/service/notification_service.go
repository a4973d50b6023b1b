package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
	"github.com/hakwonhub/hakwon-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByStudent(ctx context.Context, studentID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, studentID string) error
	MarkAllRead(ctx context.Context, studentID string) error
}

// NotificationService persists per-student messages. Delivery is decoupled
// from the triggering decision through an in-memory job queue: enqueueing is
// cheap and a write failure only costs the notification, never the decision.
type NotificationService struct {
	repo   notificationRepository
	feed   feedPublisher
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs NotificationService and its worker queue.
// Call Start before dispatching and Stop on shutdown.
func NewNotificationService(repo notificationRepository, feed feedPublisher, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, feed: feed, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handleJob, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a notification for asynchronous persistence.
func (s *NotificationService) Dispatch(notification models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      notification.ID,
		Type:    "notification.create",
		Payload: notification,
	})
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		return err
	}
	if s.feed != nil {
		s.feed.Publish(ctx, models.FeedEvent{
			Type:      models.FeedEventNotified,
			StudentID: notification.StudentID,
			At:        notification.CreatedAt,
		})
	}
	return nil
}

// ListForStudent returns the student's notifications, optionally only unread.
func (s *NotificationService) ListForStudent(ctx context.Context, studentID string, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListByStudent(ctx, studentID, unreadOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one notification as read. Scoped to the owning student so a
// student can never mark another student's messages.
func (s *NotificationService) MarkRead(ctx context.Context, id, studentID string) error {
	if err := s.repo.MarkRead(ctx, id, studentID); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead flags every unread notification for the student.
func (s *NotificationService) MarkAllRead(ctx context.Context, studentID string) error {
	if err := s.repo.MarkAllRead(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
