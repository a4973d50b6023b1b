package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakwonhub/hakwon-api/internal/models"
	appErrors "github.com/hakwonhub/hakwon-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]models.Student
	assigned map[string]*string
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var details []models.StudentDetail
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, len(details), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) CreateBatch(ctx context.Context, students []models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) AssignClass(ctx context.Context, studentID string, classID *string) error {
	if m.assigned == nil {
		m.assigned = make(map[string]*string)
	}
	m.assigned[studentID] = classID
	if s, ok := m.students[studentID]; ok {
		s.ClassID = classID
		m.students[studentID] = s
	}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	return nil
}

func newStudentService(repo *mockStudentRepo) *StudentService {
	return NewStudentService(repo, validator.New(), zap.NewNop())
}

func TestStudentServiceCreateDerivesKey(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)

	student, err := svc.Create(context.Background(), CreateStudentRequest{Name: "김철수", Phone: "010-1234-5678"})
	require.NoError(t, err)
	assert.Equal(t, models.StudentKey("김철수", "010-1234-5678"), student.ID)
	assert.Contains(t, repo.students, student.ID)
}

func TestStudentServiceCreateDuplicateKey(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateStudentRequest{Name: "김철수", Phone: "010-1234-5678"})
	require.NoError(t, err)

	// Same name and last four digits means the same key, even on another prefix.
	_, err = svc.Create(ctx, CreateStudentRequest{Name: "김철수", Phone: "011-0000-5678"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateAssignsClass(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)
	classID := "class-1"

	student, err := svc.Create(context.Background(), CreateStudentRequest{Name: "김철수", Phone: "5678", ClassID: &classID})
	require.NoError(t, err)
	require.NotNil(t, student.ClassID)
	assert.Equal(t, classID, *student.ClassID)
	assert.Equal(t, &classID, repo.assigned[student.ID])
}

func TestStudentServiceCreateBatchRejectsInBatchDuplicates(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{})

	_, err := svc.CreateBatch(context.Background(), BatchCreateStudentsRequest{Students: []CreateStudentRequest{
		{Name: "김철수", Phone: "010-1234-5678"},
		{Name: "김철수", Phone: "999-5678"},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateBatch(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo)
	classID := "class-1"

	students, err := svc.CreateBatch(context.Background(), BatchCreateStudentsRequest{Students: []CreateStudentRequest{
		{Name: "김철수", Phone: "5678", ClassID: &classID},
		{Name: "이영희", Phone: "4321"},
	}})
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.NotNil(t, students[0].ClassID)
	assert.Nil(t, students[1].ClassID)
	assert.Len(t, repo.students, 2)
}

func TestStudentServiceUpdateKeepsIdentity(t *testing.T) {
	key := models.StudentKey("김철수", "010-1234-5678")
	repo := &mockStudentRepo{students: map[string]models.Student{
		key: {ID: key, Name: "김철수", Phone: "010-1234-5678"},
	}}
	svc := newStudentService(repo)
	ctx := context.Background()

	// Same identity pair: allowed.
	updated, err := svc.Update(ctx, key, UpdateStudentRequest{Name: "김철수", Phone: "010-1234-5678", EnrollmentOpen: true})
	require.NoError(t, err)
	assert.True(t, updated.EnrollmentOpen)

	// A different name would re-key the row: rejected.
	_, err = svc.Update(ctx, key, UpdateStudentRequest{Name: "박민수", Phone: "010-1234-5678"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceAssignClassUnknownStudent(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{})

	err := svc.AssignClass(context.Background(), "ghost", AssignClassRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDelete(t *testing.T) {
	key := models.StudentKey("김철수", "5678")
	repo := &mockStudentRepo{students: map[string]models.Student{key: {ID: key}}}
	svc := newStudentService(repo)

	require.NoError(t, svc.Delete(context.Background(), key))
	err := svc.Delete(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}
