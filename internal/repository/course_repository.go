package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonhub/hakwon-api/internal/models"
)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, season_id, title, instructor, category, level, capacity, enrolled, slots, active, created_at, updated_at`

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c LEFT JOIN seasons z ON z.id = c.season_id`
	var conditions []string
	var args []interface{}

	if filter.SeasonID != "" {
		conditions = append(conditions, fmt.Sprintf("c.season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.instructor ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":      "c.title",
		"category":   "c.category",
		"created_at": "c.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "title"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "c.title"
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

	query := fmt.Sprintf(`SELECT c.id, c.season_id, c.title, c.instructor, c.category, c.level, c.capacity, c.enrolled, c.slots, c.active, c.created_at, c.updated_at,
        COALESCE(z.name, '') AS season_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, season_id, title, instructor, category, level, capacity, enrolled, slots, active, created_at, updated_at)
        VALUES (:id, :season_id, :title, :instructor, :category, :level, :capacity, :enrolled, :slots, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable attributes of a course. The enrolled counter is
// excluded on purpose; only the enrollment transactions touch it.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET season_id = :season_id, title = :title, instructor = :instructor,
        category = :category, level = :level, capacity = :capacity, slots = :slots, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course and its enrollments.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete course: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// Recount recomputes the enrolled counter from the open enrollment rows,
// holding the course lock so concurrent submissions serialize against it.
// Returns the reconciled value.
func (r *CourseRepository) Recount(ctx context.Context, id string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin recount tx: %w", err)
	}

	var current int
	if err := tx.GetContext(ctx, &current, `SELECT enrolled FROM courses WHERE id = $1 FOR UPDATE`, id); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	var actual int
	if err := tx.GetContext(ctx, &actual,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status IN ($2, $3)`,
		id, models.EnrollmentStatusPending, models.EnrollmentStatusApproved); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("count open enrollments: %w", err)
	}

	if actual != current {
		if _, err := tx.ExecContext(ctx,
			`UPDATE courses SET enrolled = $2, updated_at = NOW() WHERE id = $1`, id, actual); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("write recount: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit recount tx: %w", err)
	}
	return actual, nil
}

// FindByIDs loads a set of courses keyed by ID, for conflict checks.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Course, error) {
	result := make(map[string]models.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id IN (%s)`, courseColumns, strings.Join(placeholders, ","))
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	for _, c := range courses {
		result[c.ID] = c
	}
	return result, nil
}
