package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// Sentinel errors surfaced by the transactional enrollment operations.
// Services translate these into API errors.
var (
	ErrCourseNotFound      = errors.New("course not found or inactive")
	ErrCourseFull          = errors.New("course has no remaining capacity")
	ErrDuplicateEnrollment = errors.New("student already has an open enrollment for course")
	ErrNotPending          = errors.New("enrollment is not pending")
	ErrNotOpen             = errors.New("enrollment is neither pending nor approved")
)

// EnrollmentRepository handles persistence of enrollments. All mutators of a
// course's enrolled counter go through transactions that lock the course row,
// so capacity decisions always read current state.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, season_id, status, requested_at, decided_at, decided_by, cancelled_at, reason`

// Submit admits one enrollment request as a single atomic unit: lock the
// course row, re-check capacity, re-check for an open duplicate, then insert
// the pending row and bump the counter. Both writes commit or neither does.
func (r *EnrollmentRepository) Submit(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RequestedAt.IsZero() {
		enrollment.RequestedAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusPending

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit tx: %w", err)
	}

	var course struct {
		Enrolled int `db:"enrolled"`
		Capacity int `db:"capacity"`
	}
	err = tx.GetContext(ctx, &course,
		`SELECT enrolled, capacity FROM courses WHERE id = $1 AND active = TRUE FOR UPDATE`,
		enrollment.CourseID)
	if err != nil {
		_ = tx.Rollback()
		if err == sql.ErrNoRows {
			return ErrCourseNotFound
		}
		return fmt.Errorf("lock course: %w", err)
	}

	if course.Enrolled >= course.Capacity {
		_ = tx.Rollback()
		return ErrCourseFull
	}

	var exists int
	err = tx.GetContext(ctx, &exists,
		`SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`,
		enrollment.StudentID, enrollment.CourseID, models.EnrollmentStatusPending, models.EnrollmentStatusApproved)
	if err != nil && err != sql.ErrNoRows {
		_ = tx.Rollback()
		return fmt.Errorf("check open enrollment: %w", err)
	}
	if err == nil {
		_ = tx.Rollback()
		return ErrDuplicateEnrollment
	}

	const insert = `INSERT INTO enrollments (id, student_id, course_id, season_id, status, requested_at)
        VALUES (:id, :student_id, :course_id, :season_id, :status, :requested_at)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE courses SET enrolled = enrolled + 1, updated_at = NOW() WHERE id = $1`,
		enrollment.CourseID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("increment enrolled: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit submit tx: %w", err)
	}
	return nil
}

// Approve transitions a pending enrollment to approved. The counter is
// untouched: the seat was already claimed at submission time.
func (r *EnrollmentRepository) Approve(ctx context.Context, id, adminID string, decidedAt time.Time) (*models.Enrollment, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, decided_at = $3, decided_by = $4 WHERE id = $1 AND status = $5`,
		id, models.EnrollmentStatusApproved, decidedAt, adminID, models.EnrollmentStatusPending)
	if err != nil {
		return nil, fmt.Errorf("approve enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("approve enrollment: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a non-pending one.
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}
	return r.FindByID(ctx, id)
}

// Reject atomically releases the seat and marks the enrollment rejected.
// Counter and status move in one transaction so they can never diverge.
func (r *EnrollmentRepository) Reject(ctx context.Context, id, adminID, reason string, decidedAt time.Time) (*models.Enrollment, error) {
	return r.close(ctx, id, func(tx *sqlx.Tx, enrollment *models.Enrollment) error {
		if enrollment.Status != models.EnrollmentStatusPending {
			return ErrNotPending
		}
		enrollment.Status = models.EnrollmentStatusRejected
		enrollment.DecidedAt = &decidedAt
		enrollment.DecidedBy = &adminID
		enrollment.Reason = &reason
		_, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET status = $2, decided_at = $3, decided_by = $4, reason = $5 WHERE id = $1`,
			id, enrollment.Status, decidedAt, adminID, reason)
		return err
	})
}

// Cancel atomically releases the seat and marks the enrollment cancelled.
// Allowed from pending or approved.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, cancelledAt time.Time) (*models.Enrollment, error) {
	return r.close(ctx, id, func(tx *sqlx.Tx, enrollment *models.Enrollment) error {
		if !enrollment.Status.Open() {
			return ErrNotOpen
		}
		enrollment.Status = models.EnrollmentStatusCancelled
		enrollment.CancelledAt = &cancelledAt
		_, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1`,
			id, enrollment.Status, cancelledAt)
		return err
	})
}

// close runs the shared shape of reject and cancel: lock the enrollment row,
// apply the status transition, then decrement the course counter with a floor
// of zero, all in one transaction.
func (r *EnrollmentRepository) close(ctx context.Context, id string, transition func(*sqlx.Tx, *models.Enrollment) error) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close tx: %w", err)
	}

	var enrollment models.Enrollment
	err = tx.GetContext(ctx, &enrollment,
		fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentColumns), id)
	if err != nil {
		_ = tx.Rollback()
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	if err = transition(tx, &enrollment); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0), updated_at = NOW() WHERE id = $1`,
		enrollment.CourseID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("decrement enrolled: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close tx: %w", err)
	}
	return &enrollment, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.season_id, e.status, e.requested_at, e.decided_at, e.decided_by, e.cancelled_at, e.reason,
        s.name AS student_name, c.title AS course_title, z.name AS season_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        LEFT JOIN seasons z ON z.id = e.season_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id
LEFT JOIN seasons z ON z.id = e.season_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SeasonID != "" {
		conditions = append(conditions, fmt.Sprintf("e.season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"requested_at": "e.requested_at",
		"student_name": "s.name",
		"course_title": "c.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "requested_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.requested_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.season_id, e.status, e.requested_at, e.decided_at, e.decided_by, e.cancelled_at, e.reason,
        s.name AS student_name, c.title AS course_title, z.name AS season_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListOpenByStudent returns the student's pending and approved enrollments,
// the busy set for conflict checks.
func (r *EnrollmentRepository) ListOpenByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND status IN ($2, $3)`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID,
		models.EnrollmentStatusPending, models.EnrollmentStatusApproved); err != nil {
		return nil, fmt.Errorf("list open enrollments: %w", err)
	}
	return enrollments, nil
}
