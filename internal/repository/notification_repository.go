package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// NotificationRepository handles persistence of per-student notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a new notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, student_id, enrollment_id, type, message, read, created_at)
        VALUES (:id, :student_id, :enrollment_id, :type, :message, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByStudent returns a student's notifications, newest first.
func (r *NotificationRepository) ListByStudent(ctx context.Context, studentID string, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, student_id, enrollment_id, type, message, read, created_at
        FROM notifications WHERE student_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, studentID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags one notification as read, scoped to the owning student.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, studentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND student_id = $2`, id, studentID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s not found for student", id)
	}
	return nil
}

// MarkAllRead flags every unread notification for a student.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, studentID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE student_id = $1 AND read = FALSE`, studentID); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}
