package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/models"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &PostgresDB{sqlDB}, mock
}

func TestGetSyncCursor(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"contract_name", "last_synced_block", "status", "error_message", "last_sync_at"}).
		AddRow("agent_registry", 500, "idle", "", time.Now())
	mock.ExpectQuery("SELECT contract_name, last_synced_block").
		WithArgs("agent_registry").
		WillReturnRows(rows)

	cursor, err := db.GetSyncCursor(ctx, "agent_registry")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cursor.LastSyncedBlock)
	assert.Equal(t, models.CursorStatusIdle, cursor.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSyncCursorNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT contract_name, last_synced_block").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"contract_name", "last_synced_block", "status", "error_message", "last_sync_at"}))

	_, err := db.GetSyncCursor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceSyncCursor(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO sync_cursors").
		WithArgs("agent_registry", uint64(750)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.AdvanceSyncCursor(context.Background(), "agent_registry", 750))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAgentDuplicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO agents").
		WillReturnError(&pq.Error{Code: "23505"})

	err := db.CreateAgent(context.Background(), &models.Agent{AgentID: 7, TotalRevenue: "0"})
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAgentStatusNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE agents SET status").
		WithArgs("active", uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.UpdateAgentStatus(context.Background(), 99, models.AgentStatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A duplicate feed entry hits the conflict clause and is absorbed without
// surfacing an error.
func TestCreateEconomyEventConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO economy_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.CreateEconomyEvent(context.Background(), &models.EconomyEvent{
		Type:        "agent_registered",
		Description: "Agent 7 registered",
		TxHash:      "0xabc",
		BlockNumber: 10,
		Metadata:    map[string]string{"agent_id": "7"},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIsLogProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("0xabc", uint(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("0xabc", uint(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	processed, err := db.IsLogProcessed(ctx, "0xabc", 3)
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = db.IsLogProcessed(ctx, "0xabc", 3)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkLogProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO processed_logs").
		WithArgs("0xabc", uint(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO processed_logs").
		WithArgs("0xabc", uint(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := db.MarkLogProcessed(ctx, "0xabc", 3)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = db.MarkLogProcessed(ctx, "0xabc", 3)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectWinningBidTransaction(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE task_bids SET status = 'won'").
		WithArgs(uint64(1), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE task_bids SET status = 'lost'").
		WithArgs(uint64(1), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE tasks SET status = 'assigned'").
		WithArgs(uint64(1), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, db.SelectWinningBid(context.Background(), 1, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawPartnershipFundsNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE partnerships").
		WithArgs("100", uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.WithdrawPartnershipFunds(context.Background(), 9, "100")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
