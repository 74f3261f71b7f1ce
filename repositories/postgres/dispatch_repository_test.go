package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/models"
)

func newMockRepository(t *testing.T) (*DispatchRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewDispatchRepository(WrapDB(sqlDB, zap.NewNop()), zap.NewNop()).(*DispatchRepository)
	return repo, mock
}

var recordColumns = []string{
	"id", "request_id", "operation", "model", "provider", "status",
	"latency_ms", "error_kind", "error_message", "details", "timestamp",
}

func TestDispatchRepository_Insert(t *testing.T) {
	repo, mock := newMockRepository(t)

	record := models.NewDispatchRecord(models.OperationChat, "claude-3-opus", "claude").
		WithRequest("req-1").
		WithLatency(250 * time.Millisecond).
		WithDetails(map[string]int{"messages": 2})

	mock.ExpectExec("INSERT INTO dispatch_logs").
		WithArgs(
			sqlmock.AnyArg(),
			"req-1",
			"chat",
			"claude-3-opus",
			"claude",
			"success",
			int64(250),
			nil,
			nil,
			[]byte(`{"messages":2}`),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), record)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepository_InsertError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("INSERT INTO dispatch_logs").
		WillReturnError(errors.New("relation \"dispatch_logs\" does not exist"))

	err := repo.Insert(context.Background(), models.NewDispatchRecord(models.OperationEmbed, "text-embedding-ada-002", "azure-openai"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert dispatch record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepository_ListRecent(t *testing.T) {
	repo, mock := newMockRepository(t)

	id := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumns).
		AddRow(id.String(), "req-9", "stream_chat", "gpt-4o", "azure-openai", "error",
			1200, "transport", "stream interrupted", []byte(`{"fragments":3}`), now).
		AddRow(uuid.New().String(), "", "chat", "gemini-2.0-flash", "gemini", "success",
			300, nil, nil, nil, now)

	mock.ExpectQuery("SELECT (.+) FROM dispatch_logs").
		WithArgs(10, 0).
		WillReturnRows(rows)

	records, err := repo.ListRecent(context.Background(), 10, 0)

	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, models.OperationStreamChat, records[0].Operation)
	assert.Equal(t, models.DispatchStatusError, records[0].Status)
	require.NotNil(t, records[0].ErrorKind)
	assert.Equal(t, "transport", *records[0].ErrorKind)
	assert.JSONEq(t, `{"fragments":3}`, string(records[0].Details))

	assert.Equal(t, "gemini", records[1].Provider)
	assert.Nil(t, records[1].ErrorKind)
	assert.Empty(t, records[1].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepository_GetByRequestID(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM dispatch_logs WHERE request_id = \\$1").
		WithArgs("req-404").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	records, err := repo.GetByRequestID(context.Background(), "req-404")

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepository_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM dispatch_logs").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListRecent(context.Background(), 5, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query dispatch records")
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))
	err = db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database health check failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_EnsureSchema(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dispatch_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, WrapDB(sqlDB, zap.NewNop()).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
