package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment request.
type EnrollmentStatus string

// Status machine: PENDING -> APPROVED | REJECTED, {PENDING, APPROVED} -> CANCELLED.
// Terminal rows are never reused; a fresh submission creates a fresh row.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved  EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected  EnrollmentStatus = "REJECTED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Open reports whether the status still holds a seat (counts against capacity).
func (s EnrollmentStatus) Open() bool {
	return s == EnrollmentStatusPending || s == EnrollmentStatusApproved
}

// Enrollment captures a student's request for a seat in a course.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	SeasonID    string           `db:"season_id" json:"season_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt   *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy   *string          `db:"decided_by" json:"decided_by,omitempty"`
	CancelledAt *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Reason      *string          `db:"reason" json:"reason,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
	SeasonName  string `db:"season_name" json:"season_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	SeasonID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SubmissionOutcome reports the per-course result of a batch submission.
// Each course is admitted in its own transaction; one failure never rolls
// back or blocks the others.
type SubmissionOutcome struct {
	CourseID     string `json:"course_id"`
	Success      bool   `json:"success"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	ErrorReason  string `json:"error_reason,omitempty"`
}
