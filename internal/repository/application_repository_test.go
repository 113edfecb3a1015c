package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friending/culture-dispatch-api/internal/models"
)

func TestApplicationFindByDispatchAndTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "dispatch_id", "teacher_profile_id", "message", "status", "created_at", "updated_at"}).
		AddRow("a1", "d1", "p1", "hello", string(models.ApplicationStatusWithdrawn), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, dispatch_id, teacher_profile_id, message, status, created_at, updated_at FROM applications WHERE dispatch_id = $1 AND teacher_profile_id = $2 LIMIT 1")).
		WithArgs("d1", "p1").
		WillReturnRows(rows)

	app, err := repo.FindByDispatchAndTeacher(context.Background(), "d1", "p1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusWithdrawn, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationFindByDispatchAndTeacherNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM applications WHERE dispatch_id = \\$1 AND teacher_profile_id = \\$2").
		WithArgs("d1", "p1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByDispatchAndTeacher(context.Background(), "d1", "p1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec("INSERT INTO applications").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := repo.Create(context.Background(), &models.Application{
		DispatchID: "d1", TeacherProfileID: "p1", Status: models.ApplicationStatusApplied,
	})
	assert.ErrorIs(t, err, ErrDuplicateApplication)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRevive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $2, message = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("a1", models.ApplicationStatusApplied, "second try", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Revive(context.Background(), "a1", "second try")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationAppliedDispatchIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	rows := sqlmock.NewRows([]string{"dispatch_id"}).AddRow("d1").AddRow("d2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dispatch_id FROM applications WHERE teacher_profile_id = $1 AND status <> 'WITHDRAWN'")).
		WithArgs("p1").
		WillReturnRows(rows)

	ids, err := repo.AppliedDispatchIDs(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

