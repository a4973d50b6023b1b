package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// studentNamespace seeds deterministic student IDs so that the same
// (name, last-4-of-phone) pair always resolves to the same key.
var studentNamespace = uuid.MustParse("8f7d9a52-3b1e-4c66-9f0a-5f2e8d1c7b40")

// StudentKey derives the deterministic student identifier from a name and
// phone number. Only the last four digits of the phone participate.
func StudentKey(name, phone string) string {
	seed := strings.TrimSpace(name) + ":" + PhoneLast4(phone)
	return uuid.NewSHA1(studentNamespace, []byte(seed)).String()
}

// PhoneLast4 extracts the last four digits of a phone number, ignoring
// separators. Returns the digits as-is when fewer than four are present.
func PhoneLast4(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}

// Student represents a learner registered at the academy.
type Student struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Phone           string     `db:"phone" json:"phone"`
	BirthDate       *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	ClassID         *string    `db:"class_id" json:"class_id,omitempty"`
	EnrollmentOpen  bool       `db:"enrollment_open" json:"enrollment_open"`
	ChangeStartDate *time.Time `db:"change_start_date" json:"change_start_date,omitempty"`
	ChangeEndDate   *time.Time `db:"change_end_date" json:"change_end_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ChangeWindowOpen reports whether self-service cancellation is currently
// allowed for the student. Both bounds are inclusive; an unset window means
// the change period is closed.
func (s *Student) ChangeWindowOpen(now time.Time) bool {
	if s.ChangeStartDate == nil || s.ChangeEndDate == nil {
		return false
	}
	return !now.Before(*s.ChangeStartDate) && !now.After(*s.ChangeEndDate)
}

// StudentDetail enriches Student with the assigned class name.
type StudentDetail struct {
	Student
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	Open      *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
