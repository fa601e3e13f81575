package relational

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/circuitbreaker"
)

func newTestClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "postgres")
	logger := zap.NewNop()
	return &Client{db: db, wrap: circuitbreaker.NewDatabaseWrapper(mockDB, logger), logger: logger}, mock
}

func TestCreateResearchSessionInsertsRunningStatus(t *testing.T) {
	c, mock := newTestClient(t)
	defer c.db.Close()

	mock.ExpectExec("INSERT INTO research_sessions").
		WithArgs("s1", "u1", "c1", "t1", "what is RRF?", SessionRunning).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := c.CreateResearchSession(context.Background(), "s1", "u1", "c1", "t1", "what is RRF?")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailResearchSessionSetsFailedStatus(t *testing.T) {
	c, mock := newTestClient(t)
	defer c.db.Close()

	mock.ExpectExec("UPDATE research_sessions SET status").
		WithArgs(SessionFailed, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.FailResearchSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
