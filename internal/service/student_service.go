package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	CreateBatch(ctx context.Context, students []models.Student) error
	Update(ctx context.Context, student *models.Student) error
	AssignClass(ctx context.Context, studentID string, classID *string) error
	Delete(ctx context.Context, id string) error
}

// CreateStudentRequest is the payload for registering one student.
type CreateStudentRequest struct {
	Name            string     `json:"name" validate:"required"`
	Phone           string     `json:"phone" validate:"required,min=4"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	ClassID         *string    `json:"class_id,omitempty"`
	EnrollmentOpen  bool       `json:"enrollment_open"`
	ChangeStartDate *time.Time `json:"change_start_date,omitempty"`
	ChangeEndDate   *time.Time `json:"change_end_date,omitempty"`
}

// BatchCreateStudentsRequest registers several students at once.
type BatchCreateStudentsRequest struct {
	Students []CreateStudentRequest `json:"students" validate:"required,min=1,dive"`
}

// UpdateStudentRequest rewrites a student's mutable attributes. Class
// assignment moves separately through AssignClass.
type UpdateStudentRequest struct {
	Name            string     `json:"name" validate:"required"`
	Phone           string     `json:"phone" validate:"required,min=4"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	EnrollmentOpen  bool       `json:"enrollment_open"`
	ChangeStartDate *time.Time `json:"change_start_date,omitempty"`
	ChangeEndDate   *time.Time `json:"change_end_date,omitempty"`
}

// AssignClassRequest moves a student into a class; nil clears the assignment.
type AssignClassRequest struct {
	ClassID *string `json:"class_id"`
}

// StudentService manages the student roster. Student identity is the
// deterministic key derived from name plus the last four phone digits, so
// renaming a student or changing their phone re-keys the row.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student with class info.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// Create registers a student under the deterministic key. A second student
// with the same name and last four phone digits is a conflict, not a new row.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	// Insert without a class, then assign, so the class counter moves
	// through the same transactional path as every other assignment.
	student := s.fromCreateRequest(req)
	if _, err := s.repo.FindByID(ctx, student.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this name and phone already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing student")
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	if req.ClassID != nil {
		if err := s.repo.AssignClass(ctx, student.ID, req.ClassID); err != nil {
			s.logger.Warn("failed to assign class on create",
				zap.String("student_id", student.ID), zap.Error(err))
		} else {
			student.ClassID = req.ClassID
		}
	}
	return student, nil
}

// CreateBatch registers several students in one transaction. Duplicate keys
// inside the batch or against existing rows fail the whole batch.
func (s *StudentService) CreateBatch(ctx context.Context, req BatchCreateStudentsRequest) ([]models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	students := make([]models.Student, 0, len(req.Students))
	seen := make(map[string]struct{}, len(req.Students))
	for _, item := range req.Students {
		student := s.fromCreateRequest(item)
		if _, dup := seen[student.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch contains duplicate students")
		}
		seen[student.ID] = struct{}{}
		students = append(students, *student)
	}

	if err := s.repo.CreateBatch(ctx, students); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create students")
	}

	for i, item := range req.Students {
		if item.ClassID == nil {
			continue
		}
		if err := s.repo.AssignClass(ctx, students[i].ID, item.ClassID); err != nil {
			s.logger.Warn("failed to assign class on batch create",
				zap.String("student_id", students[i].ID), zap.Error(err))
			continue
		}
		students[i].ClassID = item.ClassID
	}
	return students, nil
}

// Update rewrites the student's attributes. Name and phone stay fixed to the
// original key; a changed identity pair is rejected so the key never drifts
// from the stored row.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if models.StudentKey(req.Name, req.Phone) != id {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name and phone must match the student's registered identity")
	}

	student.Name = req.Name
	student.Phone = req.Phone
	student.BirthDate = req.BirthDate
	student.EnrollmentOpen = req.EnrollmentOpen
	student.ChangeStartDate = req.ChangeStartDate
	student.ChangeEndDate = req.ChangeEndDate

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// AssignClass moves the student into a class, or out of any class when the
// payload carries null.
func (s *StudentService) AssignClass(ctx context.Context, id string, req AssignClassRequest) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.AssignClass(ctx, id, req.ClassID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign class")
	}
	return nil
}

// Delete removes the student, releasing any seats their open enrollments held.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

func (s *StudentService) fromCreateRequest(req CreateStudentRequest) *models.Student {
	return &models.Student{
		ID:              models.StudentKey(req.Name, req.Phone),
		Name:            req.Name,
		Phone:           req.Phone,
		BirthDate:       req.BirthDate,
		EnrollmentOpen:  req.EnrollmentOpen,
		ChangeStartDate: req.ChangeStartDate,
		ChangeEndDate:   req.ChangeEndDate,
	}
}
