package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friending/culture-dispatch-api/internal/models"
)

func dispatchRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "branch_id", "requested_by", "teaching_language", "course_title", "weekdays",
		"start_time", "end_time", "start_date", "end_date", "lecture_count",
		"students_count", "target", "level", "is_online", "requirements", "notes",
		"requester_name", "requester_phone", "requester_email",
		"status", "published_at", "application_deadline", "created_at", "updated_at",
	}).AddRow(
		"d1", "b1", "u1", models.LanguageEnglish, "Morning English", []byte(`["MON","WED"]`),
		"10:00", "11:00", now, now.AddDate(0, 0, 7), 3,
		nil, nil, nil, false, nil, nil,
		"Manager Kim", "010-0000-0000", "manager@example.com",
		string(models.DispatchStatusPublished), now, nil, now, now,
	)
}

func TestDispatchFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispatchRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM dispatch_requests WHERE id = \\$1 LIMIT 1").
		WithArgs("d1").
		WillReturnRows(dispatchRows(now))

	dispatch, err := repo.FindByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Morning English", dispatch.CourseTitle)
	assert.Equal(t, models.WeekdayList{"MON", "WED"}, dispatch.Weekdays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchUpdateStatusPublishKeepsTimestamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE dispatch_requests SET status = $2, published_at = COALESCE(published_at, $3), updated_at = $3 WHERE id = $1")).
		WithArgs("d1", models.DispatchStatusPublished, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "d1", models.DispatchStatusPublished)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchListPublished(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispatchRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "branch_id", "requested_by", "teaching_language", "course_title", "weekdays",
		"start_time", "end_time", "start_date", "end_date", "lecture_count",
		"students_count", "target", "level", "is_online", "requirements", "notes",
		"requester_name", "requester_phone", "requester_email",
		"status", "published_at", "application_deadline", "created_at", "updated_at",
		"applications_count",
	}).AddRow(
		"d1", "b1", "u1", models.LanguageEnglish, "Morning English", []byte(`["MON","WED"]`),
		"10:00", "11:00", now, now.AddDate(0, 0, 7), 3,
		nil, nil, nil, false, nil, nil,
		"Manager Kim", "010-0000-0000", "manager@example.com",
		string(models.DispatchStatusPublished), now, nil, now, now,
		2,
	)
	mock.ExpectQuery("SELECT (.+) FROM dispatch_requests d WHERE d.status = \\$1 ORDER BY d.published_at DESC").
		WithArgs(models.DispatchStatusPublished).
		WillReturnRows(rows)

	items, err := repo.ListPublished(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].ApplicationsCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDispatchRepository(db)

	now := time.Now()
	status := models.DispatchStatusRequested
	mock.ExpectQuery("SELECT (.+) FROM dispatch_requests WHERE 1=1 AND status = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs(status).
		WillReturnRows(dispatchRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dispatch_requests WHERE 1=1 AND status = $1")).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	dispatches, total, err := repo.List(context.Background(), models.DispatchFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, dispatches, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
