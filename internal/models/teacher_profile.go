package models

import "time"

// ProfileStatus is the review lifecycle of a submitted teacher profile.
type ProfileStatus string

const (
	ProfileStatusNew      ProfileStatus = "NEW"
	ProfileStatusInReview ProfileStatus = "IN_REVIEW"
	ProfileStatusAccepted ProfileStatus = "ACCEPTED"
	ProfileStatusRejected ProfileStatus = "REJECTED"
)

// TeachingLanguage values accepted on profiles and dispatch requests.
const (
	LanguageEnglish  = "English"
	LanguageJapanese = "Japanese"
	LanguageChinese  = "Chinese"
	LanguageSpanish  = "Spanish"
)

// TeachingLanguages lists the accepted values for validation.
var TeachingLanguages = []string{LanguageEnglish, LanguageJapanese, LanguageChinese, LanguageSpanish}

// VisaTypes accepted on profiles.
var VisaTypes = []string{"E-2", "F-2", "F-4", "F-5", "D-10", "OTHER"}

// TeacherProfile is a foreign-language teacher's resume. One per user
// account; status is mutated only by admin review.
type TeacherProfile struct {
	ID          string  `db:"id" json:"id"`
	UserID      string  `db:"user_id" json:"user_id"`
	FirstName   string  `db:"first_name" json:"first_name"`
	LastName    string  `db:"last_name" json:"last_name"`
	KoreanName  *string `db:"korean_name" json:"korean_name,omitempty"`
	Gender      *string `db:"gender" json:"gender,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Nationality string  `db:"nationality" json:"nationality"`
	NativeLanguage string `db:"native_language" json:"native_language"`
	Email       string  `db:"email" json:"email"`
	PhoneNumber string  `db:"phone_number" json:"phone_number"`
	AddressLine string  `db:"address_line" json:"address_line"`
	City        string  `db:"city" json:"city"`
	District    string  `db:"district" json:"district"`
	PostalCode  *string `db:"postal_code" json:"postal_code,omitempty"`

	VisaType       string     `db:"visa_type" json:"visa_type"`
	VisaExpiryDate *time.Time `db:"visa_expiry_date" json:"visa_expiry_date,omitempty"`

	TeachingLanguage  string   `db:"teaching_language" json:"teaching_language"`
	PreferredSubjects *string  `db:"preferred_subjects" json:"preferred_subjects,omitempty"`
	TotalExperienceYears *float64 `db:"total_experience_years" json:"total_experience_years,omitempty"`
	KoreaExperienceYears *float64 `db:"korea_experience_years" json:"korea_experience_years,omitempty"`

	SelfIntroduction  string  `db:"self_introduction" json:"self_introduction"`
	EducationHistory  string  `db:"education_history" json:"education_history"`
	ExperienceHistory string  `db:"experience_history" json:"experience_history"`
	Certifications    *string `db:"certifications" json:"certifications,omitempty"`

	EmploymentType     *string    `db:"employment_type" json:"employment_type,omitempty"`
	PreferredLocations *string    `db:"preferred_locations" json:"preferred_locations,omitempty"`
	AvailableFromDate  *time.Time `db:"available_from_date" json:"available_from_date,omitempty"`
	Availability       *Availability `db:"availability" json:"availability,omitempty"`

	Latitude  *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64 `db:"longitude" json:"longitude,omitempty"`

	ProfileImageKey *string `db:"profile_image_key" json:"profile_image_key,omitempty"`
	VisaScanKey     *string `db:"visa_scan_key" json:"visa_scan_key,omitempty"`

	Status           ProfileStatus `db:"status" json:"status"`
	Memo             *string       `db:"memo" json:"memo,omitempty"`
	EvaluationResult *string       `db:"evaluation_result" json:"evaluation_result,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the western name parts.
func (p *TeacherProfile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// HasCoordinates reports whether the profile is eligible for geo search.
func (p *TeacherProfile) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// TeacherProfileFilter captures admin listing criteria.
type TeacherProfileFilter struct {
	Status    *ProfileStatus
	Language  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// TeacherDistance pairs a profile with its distance from a search centre.
type TeacherDistance struct {
	Profile    TeacherProfile `json:"profile"`
	DistanceKm float64        `json:"distance_km"`
}
