package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openacademy-api/internal/models"
)

func TestPartnerRepositoryListInstructors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPartnerRepository(db)

	instructor := true
	rows := sqlmock.NewRows([]string{"id", "name", "email", "instructor", "created_at", "updated_at"}).
		AddRow("p1", "Ada", nil, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, instructor, created_at, updated_at FROM partners WHERE 1=1 AND instructor = $1 ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs(true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM partners WHERE 1=1 AND instructor = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.PartnerFilter{Instructor: &instructor})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPartnerRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPartnerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM partners WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))

	missing, err := repo.FindMissing(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPartnerRepositoryFindMissingEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPartnerRepository(db)

	missing, err := repo.FindMissing(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPartnerRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPartnerRepository(db)

	mock.ExpectExec("INSERT INTO partners").
		WithArgs(sqlmock.AnyArg(), "Ada", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), &models.Partner{Name: "Ada", Instructor: true}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
