package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes one (course, student, date) record, replacing any existing
// status for that key.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO attendance (id, course_id, student_id, date, status, notes, created_at, updated_at)
        VALUES (:id, :course_id, :student_id, :date, :status, :notes, :created_at, :updated_at)
        ON CONFLICT (course_id, student_id, date)
        DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// BulkUpsert records attendance for one course and date in one transaction.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, courseID string, date time.Time, marks []models.AttendanceMark) error {
	if len(marks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	const query = `INSERT INTO attendance (id, course_id, student_id, date, status, notes, created_at, updated_at)
        VALUES (:id, :course_id, :student_id, :date, :status, :notes, :created_at, :updated_at)
        ON CONFLICT (course_id, student_id, date)
        DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, mark := range marks {
		record := models.Attendance{
			ID:        uuid.NewString(),
			CourseID:  courseID,
			StudentID: mark.StudentID,
			Date:      date,
			Status:    mark.Status,
			Notes:     mark.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NamedExecContext(ctx, query, &record); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert attendance for %s: %w", mark.StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance tx: %w", err)
	}
	return nil
}

// ListByCourseDate returns the attendance roster for a course on a date.
func (r *AttendanceRepository) ListByCourseDate(ctx context.Context, courseID string, date time.Time) ([]models.AttendanceRecord, error) {
	const query = `SELECT a.id, a.course_id, a.student_id, a.date, a.status, a.notes, a.created_at, a.updated_at,
        s.name AS student_name
        FROM attendance a LEFT JOIN students s ON s.id = a.student_id
        WHERE a.course_id = $1 AND a.date = $2
        ORDER BY s.name ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, courseID, date); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// SummaryByStudent aggregates a student's attendance within a course.
func (r *AttendanceRepository) SummaryByStudent(ctx context.Context, courseID, studentID string) (*models.AttendanceSummary, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
        COUNT(*) FILTER (WHERE status = 'LATE') AS late,
        COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
        COUNT(*) FILTER (WHERE status = 'EXCUSED') AS excused,
        COUNT(*) AS total
        FROM attendance WHERE course_id = $1 AND student_id = $2`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	return &summary, nil
}
