package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/export"
)

type teacherProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
	FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
	List(ctx context.Context, filter models.TeacherProfileFilter) ([]models.TeacherProfile, int, error)
	Create(ctx context.Context, profile *models.TeacherProfile) error
	Update(ctx context.Context, profile *models.TeacherProfile) error
	UpdateReview(ctx context.Context, id string, status models.ProfileStatus, memo, evaluation *string) error
	UpdateAttachmentKeys(ctx context.Context, id string, profileImageKey, visaScanKey *string) error
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type attachmentStore interface {
	SaveStream(key string, r io.Reader) (string, error)
	Open(key string) (*os.File, error)
}

type urlSigner interface {
	Generate(ownerID, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (ownerID, key string, expiresAt time.Time, err error)
}

// Attachment kinds accepted on a profile.
const (
	AttachmentProfileImage = "profile_image"
	AttachmentVisaScan     = "visa_scan"
)

// TeacherProfileRequest is the payload for submitting or updating a profile.
type TeacherProfileRequest struct {
	FirstName   string  `json:"first_name" validate:"required,max=100"`
	LastName    string  `json:"last_name" validate:"required,max=100"`
	KoreanName  *string `json:"korean_name" validate:"omitempty,max=100"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Nationality string  `json:"nationality" validate:"required,max=100"`
	NativeLang  string  `json:"native_language" validate:"required,max=50"`
	Email       string  `json:"email" validate:"required,email"`
	PhoneNumber string  `json:"phone_number" validate:"required,max=30"`
	AddressLine string  `json:"address_line" validate:"required,max=255"`
	City        string  `json:"city" validate:"required,max=100"`
	District    string  `json:"district" validate:"required,max=100"`
	PostalCode  *string `json:"postal_code" validate:"omitempty,max=20"`

	VisaType       string  `json:"visa_type" validate:"required"`
	VisaExpiryDate *string `json:"visa_expiry_date" validate:"omitempty,datetime=2006-01-02"`

	TeachingLanguage     string   `json:"teaching_language" validate:"required"`
	PreferredSubjects    *string  `json:"preferred_subjects" validate:"omitempty,max=500"`
	TotalExperienceYears *float64 `json:"total_experience_years" validate:"omitempty,gte=0,lte=60"`
	KoreaExperienceYears *float64 `json:"korea_experience_years" validate:"omitempty,gte=0,lte=60"`

	SelfIntroduction  string  `json:"self_introduction" validate:"required,max=5000"`
	EducationHistory  string  `json:"education_history" validate:"required,max=5000"`
	ExperienceHistory string  `json:"experience_history" validate:"required,max=5000"`
	Certifications    *string `json:"certifications" validate:"omitempty,max=2000"`

	EmploymentType     *string              `json:"employment_type" validate:"omitempty,oneof=FULL_TIME PART_TIME FREELANCE"`
	PreferredLocations *string              `json:"preferred_locations" validate:"omitempty,max=500"`
	AvailableFromDate  *string              `json:"available_from_date" validate:"omitempty,datetime=2006-01-02"`
	Availability       *models.Availability `json:"availability"`

	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// ProfileReviewRequest is the admin review payload.
type ProfileReviewRequest struct {
	Status           models.ProfileStatus `json:"status" validate:"required"`
	Memo             *string              `json:"memo" validate:"omitempty,max=2000"`
	EvaluationResult *string              `json:"evaluation_result" validate:"omitempty,max=2000"`
}

// TeacherProfileService orchestrates teacher profile operations.
type TeacherProfileService struct {
	repo      teacherProfileRepository
	audit     auditSink
	store     attachmentStore
	signer    urlSigner
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherProfileService constructs a TeacherProfileService.
func NewTeacherProfileService(repo teacherProfileRepository, audit auditSink, store attachmentStore, signer urlSigner, validate *validator.Validate, logger *zap.Logger) *TeacherProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherProfileService{
		repo:      repo,
		audit:     audit,
		store:     store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Submit creates the caller's profile. One profile per user account.
func (s *TeacherProfileService) Submit(ctx context.Context, userID string, req TeacherProfileRequest) (*models.TeacherProfile, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByUserID(ctx, userID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "profile already submitted")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing profile")
	}

	profile := &models.TeacherProfile{
		UserID: userID,
		Status: models.ProfileStatusNew,
	}
	s.applyRequest(profile, req)

	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create profile")
	}
	return profile, nil
}

// GetMine returns the caller's profile.
func (s *TeacherProfileService) GetMine(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// UpdateMine rewrites the caller's resume fields. Review fields are kept.
func (s *TeacherProfileService) UpdateMine(ctx context.Context, userID string, req TeacherProfileRequest) (*models.TeacherProfile, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	profile, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.applyRequest(profile, req)
	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return profile, nil
}

// Get returns any profile by id (admin view).
func (s *TeacherProfileService) Get(ctx context.Context, id string) (*models.TeacherProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// List returns profiles for the admin roster.
func (s *TeacherProfileService) List(ctx context.Context, filter models.TeacherProfileFilter) ([]models.TeacherProfile, *models.Pagination, error) {
	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles")
	}
	return profiles, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// profileReviewTransitions lists the permitted review moves.
var profileReviewTransitions = map[models.ProfileStatus][]models.ProfileStatus{
	models.ProfileStatusNew:      {models.ProfileStatusInReview, models.ProfileStatusAccepted, models.ProfileStatusRejected},
	models.ProfileStatusInReview: {models.ProfileStatusAccepted, models.ProfileStatusRejected},
	models.ProfileStatusRejected: {models.ProfileStatusInReview},
}

// Review applies an admin review decision.
func (s *TeacherProfileService) Review(ctx context.Context, adminID, id string, req ProfileReviewRequest) (*models.TeacherProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range profileReviewTransitions[profile.Status] {
		if next == req.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move profile from %s to %s", profile.Status, req.Status))
	}

	if err := s.repo.UpdateReview(ctx, id, req.Status, req.Memo, req.EvaluationResult); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update review")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionProfileReview,
		Resource:   "teacher_profile",
		ResourceID: &id,
		OldValues:  []byte(fmt.Sprintf(`{"status":%q}`, profile.Status)),
		NewValues:  []byte(fmt.Sprintf(`{"status":%q}`, req.Status)),
	}); err != nil {
		s.logger.Warn("failed to record review audit log", zap.Error(err))
	}

	profile.Status = req.Status
	profile.Memo = req.Memo
	profile.EvaluationResult = req.EvaluationResult
	return profile, nil
}

// SaveAttachment stores an uploaded blob under an opaque key and attaches it
// to the caller's profile.
func (s *TeacherProfileService) SaveAttachment(ctx context.Context, userID, kind, filename string, r io.Reader) (string, error) {
	if kind != AttachmentProfileImage && kind != AttachmentVisaScan {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown attachment kind")
	}

	profile, err := s.GetMine(ctx, userID)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	key := fmt.Sprintf("%s/%s/%s%s", profile.ID, kind, uuid.NewString(), ext)
	if _, err := s.store.SaveStream(key, r); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}

	var imageKey, scanKey *string
	if kind == AttachmentProfileImage {
		imageKey = &key
	} else {
		scanKey = &key
	}
	if err := s.repo.UpdateAttachmentKeys(ctx, profile.ID, imageKey, scanKey); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach file")
	}
	return key, nil
}

// AttachmentURL issues a signed download token for a profile attachment.
func (s *TeacherProfileService) AttachmentURL(ctx context.Context, profileID, kind string) (string, time.Time, error) {
	profile, err := s.Get(ctx, profileID)
	if err != nil {
		return "", time.Time{}, err
	}

	var key *string
	switch kind {
	case AttachmentProfileImage:
		key = profile.ProfileImageKey
	case AttachmentVisaScan:
		key = profile.VisaScanKey
	default:
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "unknown attachment kind")
	}
	if key == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "attachment not uploaded")
	}

	token, expiresAt, err := s.signer.Generate(profile.ID, *key)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// OpenAttachment validates a signed token and opens the underlying file.
func (s *TeacherProfileService) OpenAttachment(token string) (*os.File, error) {
	_, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.store.Open(key)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	return file, nil
}

// ExportCSV renders the profile roster matching the filter as CSV.
func (s *TeacherProfileService) ExportCSV(ctx context.Context, filter models.TeacherProfileFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = 100
	var rows []map[string]string
	for {
		profiles, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list profiles for export")
		}
		for _, p := range profiles {
			rows = append(rows, map[string]string{
				"Name":        p.FullName(),
				"Email":       p.Email,
				"Phone":       p.PhoneNumber,
				"Nationality": p.Nationality,
				"Language":    p.TeachingLanguage,
				"Visa":        p.VisaType,
				"City":        p.City,
				"Status":      string(p.Status),
				"Submitted":   p.CreatedAt.Format("2006-01-02"),
			})
		}
		if len(rows) >= total || len(profiles) == 0 {
			break
		}
		filter.Page++
	}

	return s.csv.Render(export.Dataset{
		Headers: []string{"Name", "Email", "Phone", "Nationality", "Language", "Visa", "City", "Status", "Submitted"},
		Rows:    rows,
	})
}

func (s *TeacherProfileService) validateRequest(req TeacherProfileRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	if !containsString(models.TeachingLanguages, req.TeachingLanguage) {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported teaching language")
	}
	if !containsString(models.VisaTypes, req.VisaType) {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported visa type")
	}
	if err := validateCoordinatePair(req.Latitude, req.Longitude); err != nil {
		return err
	}

	today := truncateToDay(time.Now())
	if req.DateOfBirth != nil {
		dob, _ := time.Parse("2006-01-02", *req.DateOfBirth)
		if dob.After(today) {
			return appErrors.Clone(appErrors.ErrValidation, "date of birth cannot be in the future")
		}
		if dob.Year() < 1920 {
			return appErrors.Clone(appErrors.ErrValidation, "date of birth is implausibly old")
		}
	}
	if req.VisaExpiryDate != nil {
		expiry, _ := time.Parse("2006-01-02", *req.VisaExpiryDate)
		if expiry.Before(today) {
			return appErrors.Clone(appErrors.ErrValidation, "visa has already expired")
		}
	}
	if req.AvailableFromDate != nil {
		from, _ := time.Parse("2006-01-02", *req.AvailableFromDate)
		if from.Before(today) {
			return appErrors.Clone(appErrors.ErrValidation, "available-from date cannot be in the past")
		}
	}
	if req.Availability != nil {
		if err := req.Availability.Validate(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
		}
	}
	return nil
}

func (s *TeacherProfileService) applyRequest(profile *models.TeacherProfile, req TeacherProfileRequest) {
	profile.FirstName = strings.TrimSpace(req.FirstName)
	profile.LastName = strings.TrimSpace(req.LastName)
	profile.KoreanName = normalizeOptional(req.KoreanName)
	profile.Gender = req.Gender
	profile.DateOfBirth = parseOptionalDate(req.DateOfBirth)
	profile.Nationality = strings.TrimSpace(req.Nationality)
	profile.NativeLanguage = strings.TrimSpace(req.NativeLang)
	profile.Email = strings.TrimSpace(req.Email)
	profile.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	profile.AddressLine = strings.TrimSpace(req.AddressLine)
	profile.City = strings.TrimSpace(req.City)
	profile.District = strings.TrimSpace(req.District)
	profile.PostalCode = normalizeOptional(req.PostalCode)
	profile.VisaType = req.VisaType
	profile.VisaExpiryDate = parseOptionalDate(req.VisaExpiryDate)
	profile.TeachingLanguage = req.TeachingLanguage
	profile.PreferredSubjects = normalizeOptional(req.PreferredSubjects)
	profile.TotalExperienceYears = req.TotalExperienceYears
	profile.KoreaExperienceYears = req.KoreaExperienceYears
	profile.SelfIntroduction = strings.TrimSpace(req.SelfIntroduction)
	profile.EducationHistory = strings.TrimSpace(req.EducationHistory)
	profile.ExperienceHistory = strings.TrimSpace(req.ExperienceHistory)
	profile.Certifications = normalizeOptional(req.Certifications)
	profile.EmploymentType = req.EmploymentType
	profile.PreferredLocations = normalizeOptional(req.PreferredLocations)
	profile.AvailableFromDate = parseOptionalDate(req.AvailableFromDate)
	profile.Availability = req.Availability
	profile.Latitude = req.Latitude
	profile.Longitude = req.Longitude
}

func parseOptionalDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil
	}
	return &parsed
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
