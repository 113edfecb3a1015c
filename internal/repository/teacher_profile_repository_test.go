package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friending/culture-dispatch-api/internal/geo"
	"github.com/friending/culture-dispatch-api/internal/models"
)

func profileColumnsList() []string {
	return []string{
		"id", "user_id", "first_name", "last_name", "korean_name", "gender", "date_of_birth",
		"nationality", "native_language", "email", "phone_number", "address_line", "city",
		"district", "postal_code", "visa_type", "visa_expiry_date", "teaching_language",
		"preferred_subjects", "total_experience_years", "korea_experience_years",
		"self_introduction", "education_history", "experience_history", "certifications",
		"employment_type", "preferred_locations", "available_from_date", "availability",
		"latitude", "longitude", "profile_image_key", "visa_scan_key",
		"status", "memo", "evaluation_result", "created_at", "updated_at",
	}
}

func profileRow(rows *sqlmock.Rows, id string, lat, lng float64, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, "u-"+id, "Jane", "Doe", nil, nil, nil,
		"USA", models.LanguageEnglish, id+"@example.com", "010-1234-5678", "1 Teheran-ro", "Seoul",
		"Gangnam", nil, "E-2", nil, models.LanguageEnglish,
		nil, nil, nil,
		"intro", "education", "experience", nil,
		nil, nil, nil, nil,
		lat, lng, nil, nil,
		string(models.ProfileStatusAccepted), nil, nil, now, now,
	)
}

func TestTeacherProfileFindByUserID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherProfileRepository(db)

	now := time.Now()
	rows := profileRow(sqlmock.NewRows(profileColumnsList()), "p1", 37.5, 127.0, now)
	mock.ExpectQuery("SELECT (.+) FROM teacher_profiles WHERE user_id = \\$1 LIMIT 1").
		WithArgs("u-p1").
		WillReturnRows(rows)

	profile, err := repo.FindByUserID(context.Background(), "u-p1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName())
	assert.True(t, profile.HasCoordinates())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherProfileListWithinBox(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherProfileRepository(db)

	now := time.Now()
	rows := profileRow(sqlmock.NewRows(profileColumnsList()), "p1", 37.5, 127.0, now)
	box := geo.BoxAround(37.5, 127.0, 10)
	mock.ExpectQuery("SELECT (.+) FROM teacher_profiles WHERE status = \\$1 AND latitude IS NOT NULL AND longitude IS NOT NULL AND latitude BETWEEN \\$2 AND \\$3 AND longitude BETWEEN \\$4 AND \\$5").
		WithArgs(models.ProfileStatusAccepted, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng).
		WillReturnRows(rows)

	profiles, err := repo.ListWithinBox(context.Background(), box, "")
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherProfileUpdateReview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherProfileRepository(db)

	memo := "strong candidate"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teacher_profiles SET status = $2, memo = $3, evaluation_result = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("p1", models.ProfileStatusAccepted, &memo, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateReview(context.Background(), "p1", models.ProfileStatusAccepted, &memo, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
