package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type mockTeacherProfileRepo struct {
	profiles map[string]models.TeacherProfile
	byUser   map[string]string
	created  *models.TeacherProfile
	updated  *models.TeacherProfile
	reviewed map[string]models.ProfileStatus
	attached map[string][2]*string
}

func (m *mockTeacherProfileRepo) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	if p, ok := m.profiles[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherProfileRepo) FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	if id, ok := m.byUser[userID]; ok {
		return m.FindByID(ctx, id)
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherProfileRepo) List(ctx context.Context, filter models.TeacherProfileFilter) ([]models.TeacherProfile, int, error) {
	var list []models.TeacherProfile
	for _, p := range m.profiles {
		list = append(list, p)
	}
	return list, len(list), nil
}

func (m *mockTeacherProfileRepo) Create(ctx context.Context, profile *models.TeacherProfile) error {
	if profile.ID == "" {
		profile.ID = "new-profile"
	}
	if m.profiles == nil {
		m.profiles = make(map[string]models.TeacherProfile)
	}
	if m.byUser == nil {
		m.byUser = make(map[string]string)
	}
	m.profiles[profile.ID] = *profile
	m.byUser[profile.UserID] = profile.ID
	m.created = profile
	return nil
}

func (m *mockTeacherProfileRepo) Update(ctx context.Context, profile *models.TeacherProfile) error {
	m.profiles[profile.ID] = *profile
	m.updated = profile
	return nil
}

func (m *mockTeacherProfileRepo) UpdateReview(ctx context.Context, id string, status models.ProfileStatus, memo, evaluation *string) error {
	if m.reviewed == nil {
		m.reviewed = make(map[string]models.ProfileStatus)
	}
	m.reviewed[id] = status
	if p, ok := m.profiles[id]; ok {
		p.Status = status
		m.profiles[id] = p
	}
	return nil
}

func (m *mockTeacherProfileRepo) UpdateAttachmentKeys(ctx context.Context, id string, profileImageKey, visaScanKey *string) error {
	if m.attached == nil {
		m.attached = make(map[string][2]*string)
	}
	m.attached[id] = [2]*string{profileImageKey, visaScanKey}
	return nil
}

type mockAttachmentStore struct {
	saved []string
}

func (m *mockAttachmentStore) SaveStream(key string, r io.Reader) (string, error) {
	m.saved = append(m.saved, key)
	return key, nil
}

func (m *mockAttachmentStore) Open(key string) (*os.File, error) {
	return nil, os.ErrNotExist
}

type mockURLSigner struct{}

func (m *mockURLSigner) Generate(ownerID, key string) (string, time.Time, error) {
	return "token-" + key, time.Now().Add(time.Minute), nil
}

func (m *mockURLSigner) Parse(token string, allowExpired bool) (string, string, time.Time, error) {
	return "owner", strings.TrimPrefix(token, "token-"), time.Now(), nil
}

func validProfileRequest() TeacherProfileRequest {
	return TeacherProfileRequest{
		FirstName:         "Jordan",
		LastName:          "Park",
		Nationality:       "Canada",
		NativeLang:        "English",
		Email:             "jordan@example.com",
		PhoneNumber:       "010-9876-5432",
		AddressLine:       "12 Hangang-daero",
		City:              "Seoul",
		District:          "Yongsan-gu",
		VisaType:          "F-2",
		TeachingLanguage:  models.LanguageEnglish,
		SelfIntroduction:  "Experienced conversation teacher.",
		EducationHistory:  "BA Linguistics",
		ExperienceHistory: "Five years of adult classes.",
	}
}

func newProfileService(repo *mockTeacherProfileRepo, audit *mockAuditSink, store *mockAttachmentStore) *TeacherProfileService {
	return NewTeacherProfileService(repo, audit, store, &mockURLSigner{}, validator.New(), zap.NewNop())
}

func TestTeacherProfileServiceSubmit(t *testing.T) {
	repo := &mockTeacherProfileRepo{}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	profile, err := svc.Submit(context.Background(), "u1", validProfileRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ProfileStatusNew, profile.Status)
	assert.Equal(t, "u1", profile.UserID)
	assert.NotNil(t, repo.created)
}

func TestTeacherProfileServiceSubmitTwice(t *testing.T) {
	repo := &mockTeacherProfileRepo{}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	_, err := svc.Submit(context.Background(), "u1", validProfileRequest())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "u1", validProfileRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceSubmitFutureBirthDate(t *testing.T) {
	svc := newProfileService(&mockTeacherProfileRepo{}, &mockAuditSink{}, &mockAttachmentStore{})

	req := validProfileRequest()
	future := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	req.DateOfBirth = &future
	_, err := svc.Submit(context.Background(), "u1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceSubmitExpiredVisa(t *testing.T) {
	svc := newProfileService(&mockTeacherProfileRepo{}, &mockAuditSink{}, &mockAttachmentStore{})

	req := validProfileRequest()
	expired := "2024-01-01"
	req.VisaExpiryDate = &expired
	_, err := svc.Submit(context.Background(), "u1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceSubmitHalfCoordinates(t *testing.T) {
	svc := newProfileService(&mockTeacherProfileRepo{}, &mockAuditSink{}, &mockAttachmentStore{})

	req := validProfileRequest()
	lat := 37.5
	req.Latitude = &lat
	_, err := svc.Submit(context.Background(), "u1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceUpdateMineKeepsReviewFields(t *testing.T) {
	memo := "checked references"
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", UserID: "u1", Status: models.ProfileStatusAccepted, Memo: &memo}},
		byUser:   map[string]string{"u1": "tp1"},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	req := validProfileRequest()
	req.City = "Busan"
	profile, err := svc.UpdateMine(context.Background(), "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "Busan", profile.City)
	assert.Equal(t, models.ProfileStatusAccepted, profile.Status)
	require.NotNil(t, profile.Memo)
	assert.Equal(t, memo, *profile.Memo)
}

func TestTeacherProfileServiceReview(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", Status: models.ProfileStatusInReview}},
	}
	audit := &mockAuditSink{}
	svc := newProfileService(repo, audit, &mockAttachmentStore{})

	profile, err := svc.Review(context.Background(), "admin1", "tp1", ProfileReviewRequest{Status: models.ProfileStatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, models.ProfileStatusAccepted, profile.Status)
	assert.Equal(t, models.ProfileStatusAccepted, repo.reviewed["tp1"])
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionProfileReview, audit.logs[0].Action)
}

func TestTeacherProfileServiceReviewFromAccepted(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", Status: models.ProfileStatusAccepted}},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	_, err := svc.Review(context.Background(), "admin1", "tp1", ProfileReviewRequest{Status: models.ProfileStatusRejected})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceReviewRejectedBackToReview(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", Status: models.ProfileStatusRejected}},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	profile, err := svc.Review(context.Background(), "admin1", "tp1", ProfileReviewRequest{Status: models.ProfileStatusInReview})
	require.NoError(t, err)
	assert.Equal(t, models.ProfileStatusInReview, profile.Status)
}

func TestTeacherProfileServiceSaveAttachment(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", UserID: "u1", Status: models.ProfileStatusNew}},
		byUser:   map[string]string{"u1": "tp1"},
	}
	store := &mockAttachmentStore{}
	svc := newProfileService(repo, &mockAuditSink{}, store)

	key, err := svc.SaveAttachment(context.Background(), "u1", AttachmentVisaScan, "visa.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "tp1/visa_scan/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.Contains(t, store.saved, key)
	keys := repo.attached["tp1"]
	assert.Nil(t, keys[0])
	require.NotNil(t, keys[1])
	assert.Equal(t, key, *keys[1])
}

func TestTeacherProfileServiceSaveAttachmentUnknownKind(t *testing.T) {
	svc := newProfileService(&mockTeacherProfileRepo{}, &mockAuditSink{}, &mockAttachmentStore{})

	_, err := svc.SaveAttachment(context.Background(), "u1", "resume", "resume.doc", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceAttachmentURL(t *testing.T) {
	imageKey := "tp1/profile_image/abc.png"
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1", ProfileImageKey: &imageKey}},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	token, expiresAt, err := svc.AttachmentURL(context.Background(), "tp1", AttachmentProfileImage)
	require.NoError(t, err)
	assert.Equal(t, "token-"+imageKey, token)
	assert.True(t, expiresAt.After(time.Now()))
}

func TestTeacherProfileServiceAttachmentURLMissing(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {ID: "tp1"}},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	_, _, err := svc.AttachmentURL(context.Background(), "tp1", AttachmentVisaScan)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherProfileServiceExportCSV(t *testing.T) {
	repo := &mockTeacherProfileRepo{
		profiles: map[string]models.TeacherProfile{"tp1": {
			ID: "tp1", FirstName: "Jordan", LastName: "Park", Email: "jordan@example.com",
			TeachingLanguage: models.LanguageEnglish, Status: models.ProfileStatusAccepted,
		}},
	}
	svc := newProfileService(repo, &mockAuditSink{}, &mockAttachmentStore{})

	data, err := svc.ExportCSV(context.Background(), models.TeacherProfileFilter{})
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "Name,Email,Phone")
	assert.Contains(t, body, "Jordan Park")
}
