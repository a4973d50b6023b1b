package models

import "time"

// Feed event types published to the change feed.
const (
	FeedEventSubmitted = "enrollment.submitted"
	FeedEventApproved  = "enrollment.approved"
	FeedEventRejected  = "enrollment.rejected"
	FeedEventCancelled = "enrollment.cancelled"
	FeedEventNotified  = "notification.created"
)

// FeedEvent is one change-feed entry pushed to subscribed listeners.
type FeedEvent struct {
	Type         string           `json:"type"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
	CourseID     string           `json:"course_id,omitempty"`
	StudentID    string           `json:"student_id,omitempty"`
	Status       EnrollmentStatus `json:"status,omitempty"`
	At           time.Time        `json:"at"`
}
