package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, sqlMock
}

var recordColumns = []string{"id", "job_id", "session_id", "shipment_ids", "guide_number", "requested_count", "line_item_count", "status", "created_at", "updated_at"}

func TestStore_Create(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	store := NewStore(db)

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`INSERT INTO "fito_generation_records"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	sqlMock.ExpectCommit()

	record := &GenerationRecord{JobID: "job-1", ShipmentIDs: []int64{1001}, RequestedCount: 2}
	require.NoError(t, store.Create(context.Background(), record))

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, model.JobStatusPending, record.Status)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_CreateRequiresJobID(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	err := NewStore(db).Create(context.Background(), &GenerationRecord{})
	assert.Error(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_MarkFinished(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	job := model.GenerationJob{ID: "job-1", Status: model.JobStatusCompleted, ProcessedCount: 2, TotalCount: 2}

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "fito_generation_records" SET .* WHERE job_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()
	require.NoError(t, store.MarkFinished(ctx, job, time.Now()))

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "fito_generation_records" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectCommit()
	err := store.MarkFinished(ctx, model.GenerationJob{ID: "ghost", Status: model.JobStatusFailed}, time.Now())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_AttachArchive(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	store := NewStore(db)

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "fito_generation_records" SET "archive_key"=\$1,"archive_url"=\$2,"certificates"=\$3,"updated_at"=\$4 WHERE job_id = \$5`).
		WithArgs("fito/job-1.xml", "/api/v1/fito/archive/fito/job-1.xml", 3, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()

	err := store.AttachArchive(context.Background(), "job-1", "fito/job-1.xml", "/api/v1/fito/archive/fito/job-1.xml", 3)
	require.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_GetByJobID(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()

	sqlMock.ExpectQuery(`SELECT \* FROM "fito_generation_records" WHERE job_id = \$1 ORDER BY "fito_generation_records"."id" LIMIT \$2`).
		WithArgs("job-1", 1).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(id.String(), "job-1", uuid.New().String(), []byte("[1001]"), "729-1234 5675", 2, 3, "completed", now, now))

	record, err := store.GetByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, id, record.ID)
	assert.Equal(t, []int64{1001}, record.ShipmentIDs)
	assert.Equal(t, model.JobStatusCompleted, record.Status)
	assert.Equal(t, 3, record.LineItemCount)

	sqlMock.ExpectQuery(`SELECT \* FROM "fito_generation_records" WHERE job_id = \$1`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows(recordColumns))
	_, err = store.GetByJobID(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	sqlMock.ExpectQuery(`SELECT \* FROM "fito_generation_records" WHERE job_id = \$1`).
		WillReturnError(errors.New("connection refused"))
	_, err = store.GetByJobID(ctx, "job-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecordNotFound)

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_List(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	store := NewStore(db)
	now := time.Now().UTC()
	status := model.JobStatusCompleted
	offset, limit := 10, 500

	sqlMock.ExpectQuery(`SELECT count\(\*\) FROM "fito_generation_records" WHERE status = \$1`).
		WithArgs("completed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	sqlMock.ExpectQuery(`SELECT \* FROM "fito_generation_records" WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("completed", 100, 10).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(uuid.New().String(), "job-2", uuid.New().String(), []byte("[2]"), "G-2", 1, 1, "completed", now, now).
			AddRow(uuid.New().String(), "job-1", uuid.New().String(), []byte("[1]"), "G-1", 1, 1, "completed", now, now))

	result, err := store.List(context.Background(), ListFilter{Status: &status, Offset: &offset, Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.TotalCount)
	assert.Equal(t, 10, result.Offset)
	assert.Equal(t, 100, result.Limit, "limit is capped")
	require.Len(t, result.Records, 2)
	assert.Equal(t, "job-2", result.Records[0].JobID)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
