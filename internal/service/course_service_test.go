package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/repository"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type mockAssignments struct {
	winner  *models.Application
	course  *models.Course
	err     error
	memo    *string
	selects int
}

func (m *mockAssignments) SelectWinner(ctx context.Context, dispatchID, applicationID string) (*models.Application, error) {
	m.selects++
	if m.err != nil {
		return nil, m.err
	}
	return m.winner, nil
}

func (m *mockAssignments) ConfirmCourse(ctx context.Context, dispatchID string, adminMemo *string) (*models.Course, error) {
	m.memo = adminMemo
	if m.err != nil {
		return nil, m.err
	}
	return m.course, nil
}

type mockCourseRepo struct {
	courses map[string]models.Course
	updated *models.Course
	status  map[string]models.CourseStatus
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindByDispatchID(ctx context.Context, dispatchID string) (*models.Course, error) {
	for _, c := range m.courses {
		if c.DispatchID == dispatchID {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var list []models.Course
	for _, c := range m.courses {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.Course, error) {
	var list []models.Course
	for _, c := range m.courses {
		if c.TeacherProfileID == teacherProfileID {
			list = append(list, c)
		}
	}
	return list, nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	m.updated = course
	return nil
}

func (m *mockCourseRepo) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.CourseStatus)
	}
	m.status[id] = status
	return nil
}

type mockWinnerProfiles struct {
	byID     map[string]*models.TeacherProfile
	byUserID map[string]*models.TeacherProfile
}

func (m *mockWinnerProfiles) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWinnerProfiles) FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	if p, ok := m.byUserID[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockWinnerNotifier struct {
	emails []string
}

func (m *mockWinnerNotifier) NotifyWinnerSelected(teacherEmail string, dispatch *models.DispatchRequest) {
	m.emails = append(m.emails, teacherEmail)
}

func newCourseService(assignments *mockAssignments, repo *mockCourseRepo, profiles *mockWinnerProfiles, notifier *mockWinnerNotifier, audit *mockAuditSink) *CourseService {
	postings := &mockPostingSource{dispatches: map[string]*models.DispatchRequest{
		"d1": {ID: "d1", Status: models.DispatchStatusAssigned, CourseTitle: "Conversation"},
	}}
	return NewCourseService(assignments, repo, postings, profiles, notifier, &mockBoardInvalidator{}, audit, nil, validator.New(), zap.NewNop())
}

func TestCourseServiceSelectWinner(t *testing.T) {
	assignments := &mockAssignments{winner: &models.Application{ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusSelected}}
	profiles := &mockWinnerProfiles{byID: map[string]*models.TeacherProfile{"tp1": {ID: "tp1", Email: "teacher@example.com"}}}
	notifier := &mockWinnerNotifier{}
	audit := &mockAuditSink{}
	svc := newCourseService(assignments, &mockCourseRepo{}, profiles, notifier, audit)

	winner, err := svc.SelectWinner(context.Background(), "admin1", "d1", "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSelected, winner.Status)
	assert.Contains(t, notifier.emails, "teacher@example.com")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionWinnerSelect, audit.logs[0].Action)
}

func TestCourseServiceSelectWinnerDispatchNotOpen(t *testing.T) {
	assignments := &mockAssignments{err: repository.ErrDispatchNotOpen}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.SelectWinner(context.Background(), "admin1", "d1", "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceSelectWinnerCourseExists(t *testing.T) {
	assignments := &mockAssignments{err: repository.ErrCourseExists}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.SelectWinner(context.Background(), "admin1", "d1", "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyAssigned.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceSelectWinnerMismatch(t *testing.T) {
	assignments := &mockAssignments{err: repository.ErrApplicationMismatch}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.SelectWinner(context.Background(), "admin1", "d1", "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceConfirmCourse(t *testing.T) {
	assignments := &mockAssignments{course: &models.Course{ID: "c1", DispatchID: "d1", Status: models.CourseStatusConfirmed}}
	audit := &mockAuditSink{}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, audit)

	memo := "billing confirmed"
	course, err := svc.ConfirmCourse(context.Background(), "admin1", "d1", ConfirmCourseRequest{AdminMemo: &memo})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusConfirmed, course.Status)
	require.NotNil(t, assignments.memo)
	assert.Equal(t, memo, *assignments.memo)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionCourseConfirm, audit.logs[0].Action)
}

func TestCourseServiceConfirmCourseNoSelection(t *testing.T) {
	assignments := &mockAssignments{err: repository.ErrNoSelectedApplication}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.ConfirmCourse(context.Background(), "admin1", "d1", ConfirmCourseRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceConfirmCourseTwice(t *testing.T) {
	assignments := &mockAssignments{err: repository.ErrCourseExists}
	svc := newCourseService(assignments, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.ConfirmCourse(context.Background(), "admin1", "d1", ConfirmCourseRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyAssigned.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateRederivesEndDate(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusConfirmed, CourseTitle: "Old title"},
	}}
	svc := newCourseService(&mockAssignments{}, repo, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	course, err := svc.Update(context.Background(), "c1", CourseUpdateRequest{
		CourseTitle:  "New title",
		Weekdays:     []string{"MON", "WED"},
		StartTime:    "10:00",
		EndTime:      "11:30",
		StartDate:    "2026-09-07",
		LectureCount: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", course.CourseTitle)
	assert.Equal(t, "2026-09-30", course.EndDate.Format("2006-01-02"))
	assert.NotNil(t, repo.updated)
}

func TestCourseServiceSetStatus(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusConfirmed},
	}}
	svc := newCourseService(&mockAssignments{}, repo, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	course, err := svc.SetStatus(context.Background(), "c1", CourseStatusRequest{Status: models.CourseStatusOngoing})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusOngoing, course.Status)
	assert.Equal(t, models.CourseStatusOngoing, repo.status["c1"])
}

func TestCourseServiceSetStatusInvalidTransition(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusEnded},
	}}
	svc := newCourseService(&mockAssignments{}, repo, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	_, err := svc.SetStatus(context.Background(), "c1", CourseStatusRequest{Status: models.CourseStatusOngoing})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceMyCoursesWithoutProfile(t *testing.T) {
	svc := newCourseService(&mockAssignments{}, &mockCourseRepo{}, &mockWinnerProfiles{}, &mockWinnerNotifier{}, &mockAuditSink{})

	courses, err := svc.MyCourses(context.Background(), "u9")
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestCourseServiceMyCourses(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", TeacherProfileID: "tp1", Status: models.CourseStatusOngoing, StartDate: time.Now()},
		"c2": {ID: "c2", TeacherProfileID: "tp2", Status: models.CourseStatusOngoing},
	}}
	profiles := &mockWinnerProfiles{byUserID: map[string]*models.TeacherProfile{"u1": {ID: "tp1", UserID: "u1"}}}
	svc := newCourseService(&mockAssignments{}, repo, profiles, &mockWinnerNotifier{}, &mockAuditSink{})

	courses, err := svc.MyCourses(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "c1", courses[0].ID)
}
