package repository

import (
	"context"
	"testing"
	"time"

	"agentengine/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRepository_InsertPending(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewExecutionRepository().WithDB(gdb)
	ctx := context.Background()

	t.Run("inserted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "execution_records" .* ON CONFLICT DO NOTHING RETURNING "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		rec := &model.ExecutionRecord{SignalID: 1, AgentID: 2, StartedAt: time.Now()}
		started, err := repo.InsertPending(ctx, rec)

		require.NoError(t, err)
		assert.True(t, started)
		assert.Equal(t, uint(11), rec.ID)
		assert.Equal(t, model.ExecutionStatePending, rec.State)
	})

	t.Run("conflict is a skipped insert", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "execution_records" .* ON CONFLICT DO NOTHING RETURNING "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		started, err := repo.InsertPending(ctx, &model.ExecutionRecord{SignalID: 1, AgentID: 2, StartedAt: time.Now()})

		require.NoError(t, err)
		assert.False(t, started)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_MarkTransitionsOnlyFromPending(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewExecutionRepository().WithDB(gdb)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "execution_records" SET "completed_at"=\$1,"state"=\$2,"transaction_id"=\$3,"updated_at"=\$4 WHERE id = \$5 AND state = \$6`).
		WithArgs(now, model.ExecutionStateSuccess, "sig-1", sqlmock.AnyArg(), uint(4), model.ExecutionStatePending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.MarkSuccess(ctx, 4, "sig-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "execution_records" SET .* WHERE id = \$\d+ AND state = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err = repo.MarkFailed(ctx, 4, "X", "late", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
