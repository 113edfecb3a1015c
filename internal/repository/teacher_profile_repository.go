package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/friending/culture-dispatch-api/internal/geo"
	"github.com/friending/culture-dispatch-api/internal/models"
)

const teacherProfileColumns = `id, user_id, first_name, last_name, korean_name, gender, date_of_birth, nationality, native_language, email, phone_number, address_line, city, district, postal_code, visa_type, visa_expiry_date, teaching_language, preferred_subjects, total_experience_years, korea_experience_years, self_introduction, education_history, experience_history, certifications, employment_type, preferred_locations, available_from_date, availability, latitude, longitude, profile_image_key, visa_scan_key, status, memo, evaluation_result, created_at, updated_at`

// TeacherProfileRepository provides database access to teacher profiles.
type TeacherProfileRepository struct {
	db *sqlx.DB
}

// NewTeacherProfileRepository creates a new instance of TeacherProfileRepository.
func NewTeacherProfileRepository(db *sqlx.DB) *TeacherProfileRepository {
	return &TeacherProfileRepository{db: db}
}

// FindByID returns a profile by identifier.
func (r *TeacherProfileRepository) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM teacher_profiles WHERE id = $1 LIMIT 1`, teacherProfileColumns)
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile by id: %w", err)
	}
	return &profile, nil
}

// FindByUserID returns the profile owned by a user, if any.
func (r *TeacherProfileRepository) FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM teacher_profiles WHERE user_id = $1 LIMIT 1`, teacherProfileColumns)
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher profile by user: %w", err)
	}
	return &profile, nil
}

// List returns profiles based on filters with total count.
func (r *TeacherProfileRepository) List(ctx context.Context, filter models.TeacherProfileFilter) ([]models.TeacherProfile, int, error) {
	baseQuery := `FROM teacher_profiles WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Language != "" {
		conditions = append(conditions, fmt.Sprintf("teaching_language = $%d", len(args)+1))
		args = append(args, filter.Language)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(nationality) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"last_name":  true,
		"status":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherProfileColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var profiles []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &profiles, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list teacher profiles: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teacher profiles: %w", err)
	}

	return profiles, total, nil
}

// ListWithinBox returns accepted, geocoded profiles inside a bounding box.
// Callers apply the exact distance cut; the box is only a coarse prefilter.
func (r *TeacherProfileRepository) ListWithinBox(ctx context.Context, box geo.BoundingBox, language string) ([]models.TeacherProfile, error) {
	baseQuery := fmt.Sprintf(`SELECT %s FROM teacher_profiles WHERE status = $1 AND latitude IS NOT NULL AND longitude IS NOT NULL AND latitude BETWEEN $2 AND $3 AND longitude BETWEEN $4 AND $5`, teacherProfileColumns)
	args := []interface{}{models.ProfileStatusAccepted, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng}

	if language != "" {
		baseQuery += fmt.Sprintf(" AND teaching_language = $%d", len(args)+1)
		args = append(args, language)
	}

	var profiles []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &profiles, baseQuery, args...); err != nil {
		return nil, fmt.Errorf("list teacher profiles within box: %w", err)
	}
	return profiles, nil
}

// AcceptedEmails returns the email addresses of accepted teachers, used for
// posting notifications.
func (r *TeacherProfileRepository) AcceptedEmails(ctx context.Context) ([]string, error) {
	const query = `SELECT email FROM teacher_profiles WHERE status = $1 ORDER BY email`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query, models.ProfileStatusAccepted); err != nil {
		return nil, fmt.Errorf("list accepted teacher emails: %w", err)
	}
	return emails, nil
}

// Create inserts a new teacher profile.
func (r *TeacherProfileRepository) Create(ctx context.Context, profile *models.TeacherProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	const query = `INSERT INTO teacher_profiles (id, user_id, first_name, last_name, korean_name, gender, date_of_birth, nationality, native_language, email, phone_number, address_line, city, district, postal_code, visa_type, visa_expiry_date, teaching_language, preferred_subjects, total_experience_years, korea_experience_years, self_introduction, education_history, experience_history, certifications, employment_type, preferred_locations, available_from_date, availability, latitude, longitude, profile_image_key, visa_scan_key, status, memo, evaluation_result, created_at, updated_at) VALUES (:id, :user_id, :first_name, :last_name, :korean_name, :gender, :date_of_birth, :nationality, :native_language, :email, :phone_number, :address_line, :city, :district, :postal_code, :visa_type, :visa_expiry_date, :teaching_language, :preferred_subjects, :total_experience_years, :korea_experience_years, :self_introduction, :education_history, :experience_history, :certifications, :employment_type, :preferred_locations, :available_from_date, :availability, :latitude, :longitude, :profile_image_key, :visa_scan_key, :status, :memo, :evaluation_result, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create teacher profile: %w", err)
	}
	return nil
}

// Update rewrites the mutable resume fields of a profile. Review fields
// (status, memo, evaluation_result) are changed through UpdateReview.
func (r *TeacherProfileRepository) Update(ctx context.Context, profile *models.TeacherProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teacher_profiles SET first_name = :first_name, last_name = :last_name, korean_name = :korean_name, gender = :gender, date_of_birth = :date_of_birth, nationality = :nationality, native_language = :native_language, email = :email, phone_number = :phone_number, address_line = :address_line, city = :city, district = :district, postal_code = :postal_code, visa_type = :visa_type, visa_expiry_date = :visa_expiry_date, teaching_language = :teaching_language, preferred_subjects = :preferred_subjects, total_experience_years = :total_experience_years, korea_experience_years = :korea_experience_years, self_introduction = :self_introduction, education_history = :education_history, experience_history = :experience_history, certifications = :certifications, employment_type = :employment_type, preferred_locations = :preferred_locations, available_from_date = :available_from_date, availability = :availability, latitude = :latitude, longitude = :longitude, profile_image_key = :profile_image_key, visa_scan_key = :visa_scan_key, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("update teacher profile: %w", err)
	}
	return nil
}

// UpdateReview applies an admin review decision to a profile.
func (r *TeacherProfileRepository) UpdateReview(ctx context.Context, id string, status models.ProfileStatus, memo, evaluation *string) error {
	const query = `UPDATE teacher_profiles SET status = $2, memo = $3, evaluation_result = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, memo, evaluation, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher profile review: %w", err)
	}
	return nil
}

// UpdateAttachmentKeys stores attachment storage keys on a profile. A nil
// key leaves the corresponding column untouched.
func (r *TeacherProfileRepository) UpdateAttachmentKeys(ctx context.Context, id string, profileImageKey, visaScanKey *string) error {
	const query = `UPDATE teacher_profiles SET profile_image_key = COALESCE($2, profile_image_key), visa_scan_key = COALESCE($3, visa_scan_key), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, profileImageKey, visaScanKey, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher profile attachments: %w", err)
	}
	return nil
}

// Delete removes a profile permanently.
func (r *TeacherProfileRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM teacher_profiles WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete teacher profile: %w", err)
	}
	return nil
}
