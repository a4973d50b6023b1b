package models

import "time"

// NotificationType classifies per-student messages.
type NotificationType string

const (
	NotificationTypeApproval  NotificationType = "APPROVAL"
	NotificationTypeRejection NotificationType = "REJECTION"
	NotificationTypeInfo      NotificationType = "INFO"
)

// Notification is a per-student message created by the enrollment workflow.
// Creation is best-effort: a failed notification never fails the decision
// that triggered it.
type Notification struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	EnrollmentID *string          `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Type         NotificationType `db:"type" json:"type"`
	Message      string           `db:"message" json:"message"`
	Read         bool             `db:"read" json:"read"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}
