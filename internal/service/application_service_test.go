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

type mockApplicationRepo struct {
	apps     map[string]models.Application
	byPair   map[string]models.Application
	created   *models.Application
	createErr error
	revived   []string
	status    map[string]models.ApplicationStatus
	promoted  []string
}

func pairKey(dispatchID, teacherProfileID string) string {
	return dispatchID + "/" + teacherProfileID
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if a, ok := m.apps[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindByDispatchAndTeacher(ctx context.Context, dispatchID, teacherProfileID string) (*models.Application, error) {
	if a, ok := m.byPair[pairKey(dispatchID, teacherProfileID)]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) ListByDispatch(ctx context.Context, dispatchID string) ([]models.ApplicationDetail, error) {
	return nil, nil
}

func (m *mockApplicationRepo) ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.ApplicationWithDispatch, error) {
	var list []models.ApplicationWithDispatch
	for _, a := range m.apps {
		if a.TeacherProfileID == teacherProfileID {
			list = append(list, models.ApplicationWithDispatch{Application: a})
		}
	}
	return list, nil
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if m.createErr != nil {
		return m.createErr
	}
	if app.ID == "" {
		app.ID = "new-app"
	}
	if m.apps == nil {
		m.apps = make(map[string]models.Application)
	}
	m.apps[app.ID] = *app
	m.created = app
	return nil
}

func (m *mockApplicationRepo) Revive(ctx context.Context, id, message string) error {
	m.revived = append(m.revived, id)
	if a, ok := m.apps[id]; ok {
		a.Status = models.ApplicationStatusApplied
		a.Message = message
		m.apps[id] = a
	}
	return nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.ApplicationStatus)
	}
	m.status[id] = status
	if a, ok := m.apps[id]; ok {
		a.Status = status
		m.apps[id] = a
	}
	return nil
}

func (m *mockApplicationRepo) PromoteToSelected(ctx context.Context, dispatchID, id string) error {
	m.promoted = append(m.promoted, id)
	return nil
}

type mockApplicantProfiles struct {
	profiles map[string]*models.TeacherProfile
}

func (m *mockApplicantProfiles) FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockPostingSource struct {
	dispatches map[string]*models.DispatchRequest
}

func (m *mockPostingSource) FindByID(ctx context.Context, id string) (*models.DispatchRequest, error) {
	if d, ok := m.dispatches[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

type mockBoardInvalidator struct {
	calls int
}

func (m *mockBoardInvalidator) InvalidateBoard(ctx context.Context) {
	m.calls++
}

func acceptedProfiles() *mockApplicantProfiles {
	return &mockApplicantProfiles{profiles: map[string]*models.TeacherProfile{
		"u1": {ID: "tp1", UserID: "u1", Status: models.ProfileStatusAccepted},
	}}
}

func publishedPosting(deadline *time.Time) *mockPostingSource {
	return &mockPostingSource{dispatches: map[string]*models.DispatchRequest{
		"d1": {ID: "d1", Status: models.DispatchStatusPublished, ApplicationDeadline: deadline},
	}}
}

func TestApplicationServiceApply(t *testing.T) {
	repo := &mockApplicationRepo{}
	board := &mockBoardInvalidator{}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), board, nil, validator.New(), zap.NewNop())

	app, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "I teach Mondays"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApplied, app.Status)
	assert.Equal(t, "tp1", app.TeacherProfileID)
	assert.NotNil(t, repo.created)
	assert.Equal(t, 1, board.calls)
}

func TestApplicationServiceApplyRequiresAcceptedProfile(t *testing.T) {
	profiles := &mockApplicantProfiles{profiles: map[string]*models.TeacherProfile{
		"u1": {ID: "tp1", UserID: "u1", Status: models.ProfileStatusInReview},
	}}
	svc := NewApplicationService(&mockApplicationRepo{}, profiles, publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyWithoutProfile(t *testing.T) {
	svc := NewApplicationService(&mockApplicationRepo{}, &mockApplicantProfiles{}, publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u9", "d1", ApplyRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyUnpublishedPosting(t *testing.T) {
	postings := &mockPostingSource{dispatches: map[string]*models.DispatchRequest{
		"d1": {ID: "d1", Status: models.DispatchStatusClosed},
	}}
	svc := NewApplicationService(&mockApplicationRepo{}, acceptedProfiles(), postings, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyAfterDeadline(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)
	svc := NewApplicationService(&mockApplicationRepo{}, acceptedProfiles(), publishedPosting(&yesterday), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDeadlinePassed.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyDuplicate(t *testing.T) {
	repo := &mockApplicationRepo{
		byPair: map[string]models.Application{
			pairKey("d1", "tp1"): {ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusApplied},
		},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "again"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyApplied.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyInsertRaceConflicts(t *testing.T) {
	// A concurrent apply can pass the existence check and lose the insert
	// race on the unique (dispatch, teacher) constraint.
	repo := &mockApplicationRepo{createErr: repository.ErrDuplicateApplication}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "again"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyApplied.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceApplyRevivesWithdrawn(t *testing.T) {
	withdrawn := models.Application{ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusWithdrawn, Message: "old"}
	repo := &mockApplicationRepo{
		apps:   map[string]models.Application{"a1": withdrawn},
		byPair: map[string]models.Application{pairKey("d1", "tp1"): withdrawn},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	app, err := svc.Apply(context.Background(), "u1", "d1", ApplyRequest{Message: "back again"})
	require.NoError(t, err)
	assert.Equal(t, "a1", app.ID)
	assert.Equal(t, models.ApplicationStatusApplied, app.Status)
	assert.Equal(t, "back again", app.Message)
	assert.Contains(t, repo.revived, "a1")
	assert.Nil(t, repo.created)
}

func TestApplicationServiceWithdraw(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusApplied}},
	}
	board := &mockBoardInvalidator{}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), board, nil, validator.New(), zap.NewNop())

	err := svc.Withdraw(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusWithdrawn, repo.status["a1"])
	assert.Equal(t, 1, board.calls)
}

func TestApplicationServiceWithdrawForeignApplication(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", DispatchID: "d1", TeacherProfileID: "tp2", Status: models.ApplicationStatusApplied}},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	err := svc.Withdraw(context.Background(), "u1", "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceWithdrawAfterSelection(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusSelected}},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	err := svc.Withdraw(context.Background(), "u1", "a1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceMyApplicationsWithoutProfile(t *testing.T) {
	svc := NewApplicationService(&mockApplicationRepo{}, &mockApplicantProfiles{}, publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	apps, err := svc.MyApplications(context.Background(), "u9")
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestApplicationServiceSetStatusPromotes(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", DispatchID: "d1", TeacherProfileID: "tp1", Status: models.ApplicationStatusShortlisted}},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	app, err := svc.SetStatus(context.Background(), "a1", SetApplicationStatusRequest{Status: models.ApplicationStatusSelected})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSelected, app.Status)
	assert.Contains(t, repo.promoted, "a1")
	assert.Empty(t, repo.status)
}

func TestApplicationServiceSetStatusRejectsWithdrawTarget(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", Status: models.ApplicationStatusApplied}},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.SetStatus(context.Background(), "a1", SetApplicationStatusRequest{Status: models.ApplicationStatusWithdrawn})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSetStatusOnWithdrawnRow(t *testing.T) {
	repo := &mockApplicationRepo{
		apps: map[string]models.Application{"a1": {ID: "a1", Status: models.ApplicationStatusWithdrawn}},
	}
	svc := NewApplicationService(repo, acceptedProfiles(), publishedPosting(nil), nil, nil, validator.New(), zap.NewNop())

	_, err := svc.SetStatus(context.Background(), "a1", SetApplicationStatusRequest{Status: models.ApplicationStatusShortlisted})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
