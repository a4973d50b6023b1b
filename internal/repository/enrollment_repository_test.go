package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

const lockCourseQuery = `SELECT enrolled, capacity FROM courses WHERE id = $1 AND active = TRUE FOR UPDATE`
const duplicateQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`

func TestEnrollmentRepositorySubmit(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockCourseQuery)).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(3, 10))
	mock.ExpectQuery(regexp.QuoteMeta(duplicateQuery)).
		WithArgs("stu-1", "course-1", models.EnrollmentStatusPending, models.EnrollmentStatusApproved).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "course-1", "season-1", models.EnrollmentStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled = enrolled + 1, updated_at = NOW() WHERE id = $1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseID: "course-1", SeasonID: "season-1"}
	require.NoError(t, repo.Submit(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.False(t, enrollment.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySubmitCourseFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockCourseQuery)).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(10, 10))
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "course-1", SeasonID: "season-1"})
	assert.ErrorIs(t, err, ErrCourseFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySubmitDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockCourseQuery)).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(3, 10))
	mock.ExpectQuery(regexp.QuoteMeta(duplicateQuery)).
		WithArgs("stu-1", "course-1", models.EnrollmentStatusPending, models.EnrollmentStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "course-1", SeasonID: "season-1"})
	assert.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySubmitMissingCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockCourseQuery)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Submit(context.Background(), &models.Enrollment{StudentID: "stu-1", CourseID: "ghost", SeasonID: "season-1"})
	assert.ErrorIs(t, err, ErrCourseNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func enrollmentRow(id string, status models.EnrollmentStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "course_id", "season_id", "status",
		"requested_at", "decided_at", "decided_by", "cancelled_at", "reason"}).
		AddRow(id, "stu-1", "course-1", "season-1", status, time.Now(), nil, nil, nil, nil)
}

func TestEnrollmentRepositoryApprove(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	decidedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, decided_at = $3, decided_by = $4 WHERE id = $1 AND status = $5")).
		WithArgs("enr-1", models.EnrollmentStatusApproved, decidedAt, "admin-1", models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = ").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusApproved))

	enrollment, err := repo.Approve(context.Background(), "enr-1", "admin-1", decidedAt)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApproveNotPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	decidedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, decided_at = $3, decided_by = $4 WHERE id = $1 AND status = $5")).
		WithArgs("enr-1", models.EnrollmentStatusApproved, decidedAt, "admin-1", models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = ").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusRejected))

	_, err := repo.Approve(context.Background(), "enr-1", "admin-1", decidedAt)
	assert.ErrorIs(t, err, ErrNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRejectReleasesSeat(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	decidedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = .+ FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, decided_at = $3, decided_by = $4, reason = $5 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusRejected, decidedAt, "admin-1", "시간 조정").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0), updated_at = NOW() WHERE id = $1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Reject(context.Background(), "enr-1", "admin-1", "시간 조정", decidedAt)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, enrollment.Status)
	require.NotNil(t, enrollment.Reason)
	assert.Equal(t, "시간 조정", *enrollment.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRejectNotPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = .+ FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusApproved))
	mock.ExpectRollback()

	_, err := repo.Reject(context.Background(), "enr-1", "admin-1", "시간 조정", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelReleasesSeat(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	cancelledAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = .+ FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusApproved))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, cancelledAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0), updated_at = NOW() WHERE id = $1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Cancel(context.Background(), "enr-1", cancelledAt)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelClosed(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = .+ FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusCancelled))
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), "enr-1", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelMissing(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE id = .+ FOR UPDATE").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), "ghost", time.Now().UTC())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListOpenByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM enrollments WHERE student_id = .+ AND status IN ").
		WithArgs("stu-1", models.EnrollmentStatusPending, models.EnrollmentStatusApproved).
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusPending))

	enrollments, err := repo.ListOpenByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
