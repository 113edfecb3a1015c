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

func TestBranchList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "center_name", "region_name", "branch_name", "address", "latitude", "longitude",
		"center_phone", "manager_name", "manager_phone", "manager_email", "notes",
		"created_at", "updated_at",
	}).AddRow("b1", "Hyundai", "Seoul", "Apgujeong", "123 Apgujeong-ro", 37.52, 127.02, nil, nil, nil, nil, nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM branches WHERE 1=1 AND region_name = \\$1 ORDER BY region_name ASC, branch_name ASC").
		WithArgs("Seoul").
		WillReturnRows(rows)

	branches, err := repo.List(context.Background(), models.BranchFilter{Region: "Seoul"})
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.True(t, branches[0].HasCoordinates())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchRegions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	rows := sqlmock.NewRows([]string{"region_name"}).AddRow("Busan").AddRow("Seoul")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT region_name FROM branches ORDER BY region_name ASC")).
		WillReturnRows(rows)

	regions, err := repo.Regions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Busan", "Seoul"}, regions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchCountOpenDispatches(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBranchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dispatch_requests WHERE branch_id = $1 AND status NOT IN ('CLOSED', 'CANCELED', 'CONFIRMED')")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountOpenDispatches(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
