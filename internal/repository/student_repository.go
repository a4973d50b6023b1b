package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, name, phone, birth_date, class_id, enrollment_open, change_start_date, change_end_date, created_at, updated_at`

// FindByID returns a student by the deterministic key.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID returns a student with the assigned class name.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.name, s.phone, s.birth_date, s.class_id, s.enrollment_open, s.change_start_date, s.change_end_date, s.created_at, s.updated_at,
        k.name AS class_name
        FROM students s LEFT JOIN classes k ON k.id = s.class_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s LEFT JOIN classes k ON k.id = s.class_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("s.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Open != nil {
		conditions = append(conditions, fmt.Sprintf("s.enrollment_open = $%d", len(args)+1))
		args = append(args, *filter.Open)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "s.name",
		"created_at": "s.created_at",
		"class_name": "k.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "s.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.name, s.phone, s.birth_date, s.class_id, s.enrollment_open, s.change_start_date, s.change_end_date, s.created_at, s.updated_at,
        k.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create persists a new student. The caller derives the deterministic ID.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, phone, birth_date, class_id, enrollment_open, change_start_date, change_end_date, created_at, updated_at)
        VALUES (:id, :name, :phone, :birth_date, :class_id, :enrollment_open, :change_start_date, :change_end_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateBatch inserts several students in one transaction. All-or-nothing:
// the batch import either lands completely or not at all.
func (r *StudentRepository) CreateBatch(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	const query = `INSERT INTO students (id, name, phone, birth_date, class_id, enrollment_open, change_start_date, change_end_date, created_at, updated_at)
        VALUES (:id, :name, :phone, :birth_date, :class_id, :enrollment_open, :change_start_date, :change_end_date, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range students {
		students[i].CreatedAt = now
		students[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, &students[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert student %s: %w", students[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

// Update rewrites the mutable attributes of a student, excluding class
// assignment, which moves through AssignClass to keep counts consistent.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, phone = :phone, birth_date = :birth_date,
        enrollment_open = :enrollment_open, change_start_date = :change_start_date, change_end_date = :change_end_date, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// AssignClass moves a student between classes, maintaining both denormalized
// student counts in the same transaction. classID nil removes the assignment.
func (r *StudentRepository) AssignClass(ctx context.Context, studentID string, classID *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}

	var previous *string
	if err := tx.GetContext(ctx, &previous, `SELECT class_id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE students SET class_id = $2, updated_at = NOW() WHERE id = $1`, studentID, classID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("assign class: %w", err)
	}
	if previous != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET student_count = GREATEST(student_count - 1, 0), updated_at = NOW() WHERE id = $1`, *previous); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("decrement class count: %w", err)
		}
	}
	if classID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET student_count = student_count + 1, updated_at = NOW() WHERE id = $1`, *classID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("increment class count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign tx: %w", err)
	}
	return nil
}

// Delete removes a student and cascades: open enrollments release their
// course seats, all enrollment and notification rows go, and the class
// count is re-synced. One transaction.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}

	var classID *string
	if err := tx.GetContext(ctx, &classID, `SELECT class_id FROM students WHERE id = $1 FOR UPDATE`, id); err != nil {
		_ = tx.Rollback()
		return err
	}

	// Seats held by pending/approved enrollments come back to their courses.
	if _, err := tx.ExecContext(ctx,
		`UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0), updated_at = NOW()
         WHERE id IN (SELECT course_id FROM enrollments WHERE student_id = $1 AND status IN ($2, $3))`,
		id, models.EnrollmentStatusPending, models.EnrollmentStatusApproved); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("release seats: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE student_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete notifications: %w", err)
	}
	if classID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET student_count = GREATEST(student_count - 1, 0), updated_at = NOW() WHERE id = $1`, *classID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("decrement class count: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}
