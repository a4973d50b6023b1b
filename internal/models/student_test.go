package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStudentKeyDeterministic(t *testing.T) {
	a := StudentKey("김철수", "010-1234-5678")
	b := StudentKey("김철수", "010-1234-5678")
	assert.Equal(t, a, b)
}

func TestStudentKeyOnlyLastFourDigitsMatter(t *testing.T) {
	a := StudentKey("김철수", "010-1234-5678")
	b := StudentKey("김철수", "011-9999-5678")
	assert.Equal(t, a, b)

	c := StudentKey("김철수", "010-1234-0000")
	assert.NotEqual(t, a, c)
}

func TestStudentKeyTrimsName(t *testing.T) {
	assert.Equal(t, StudentKey("김철수", "5678"), StudentKey("  김철수  ", "5678"))
}

func TestPhoneLast4(t *testing.T) {
	assert.Equal(t, "5678", PhoneLast4("010-1234-5678"))
	assert.Equal(t, "5678", PhoneLast4("5678"))
	assert.Equal(t, "678", PhoneLast4("6-7-8"))
	assert.Equal(t, "", PhoneLast4(""))
}

func TestStudentChangeWindowOpen(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 7, 23, 59, 59, 0, time.UTC)
	student := &Student{ChangeStartDate: &start, ChangeEndDate: &end}

	assert.True(t, student.ChangeWindowOpen(start), "start bound is inclusive")
	assert.True(t, student.ChangeWindowOpen(end), "end bound is inclusive")
	assert.True(t, student.ChangeWindowOpen(start.AddDate(0, 0, 3)))
	assert.False(t, student.ChangeWindowOpen(start.Add(-time.Second)))
	assert.False(t, student.ChangeWindowOpen(end.Add(time.Second)))

	assert.False(t, (&Student{}).ChangeWindowOpen(start), "unset window is closed")
}

func TestEnrollmentStatusOpen(t *testing.T) {
	assert.True(t, EnrollmentStatusPending.Open())
	assert.True(t, EnrollmentStatusApproved.Open())
	assert.False(t, EnrollmentStatusRejected.Open())
	assert.False(t, EnrollmentStatusCancelled.Open())
}
