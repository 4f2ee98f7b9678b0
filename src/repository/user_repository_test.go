package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_ActiveAgentIDs(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewUserRepository().WithDB(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "agents" WHERE active = $1 ORDER BY id ASC`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(3))

	ids, err := repo.ActiveAgentIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_WalletOfUserMissing(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewUserRepository().WithDB(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "wallets" WHERE user_id = $1 AND address = $2 ORDER BY "wallets"."id" LIMIT $3`)).
		WithArgs(uint(5), "wallet-x", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w, err := repo.WalletOfUser(context.Background(), 5, "wallet-x")
	require.NoError(t, err)
	assert.Nil(t, w)
	require.NoError(t, mock.ExpectationsWereMet())
}
