package controller

import (
	"context"
	"errors"
	"testing"

	"agentengine/src/apperrors"
	"agentengine/src/database/dbtest"
	"agentengine/src/model"
	"agentengine/src/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturePersistsCodedError(t *testing.T) {
	db := dbtest.NewSQLite(t)
	repo := new(repository.ExceptionRepository).WithDB(db)
	err := apperrors.Retryable(errors.New("deadlock detected"), apperrors.CodeTransactionFailed, "wallet reset failed")

	exc := Capture(context.Background(), repo, "agentengine", "walletreset", "ResetWallet", LevelError, err,
		map[string]interface{}{"wallet": "wallet-a"})
	require.NotNil(t, exc)

	var stored model.Exception
	require.NoError(t, db.First(&stored, exc.ID).Error)
	assert.Equal(t, apperrors.CodeTransactionFailed, stored.Code)
	assert.Equal(t, string(apperrors.KindInternal), stored.Kind)
	assert.Equal(t, LevelError, stored.Level)
	assert.JSONEq(t, `{"wallet":"wallet-a"}`, stored.Context)
	assert.Contains(t, stored.Stack, "TestCapturePersistsCodedError")
}

func TestCapturePlainErrorUsesGoroutineStack(t *testing.T) {
	exc := Capture(context.Background(), nil, "agentengine", "monitor", "Tick", LevelWarn, errors.New("boom"), nil)
	require.NotNil(t, exc)
	assert.Empty(t, exc.Code)
	assert.Equal(t, string(apperrors.KindInternal), exc.Kind)
	assert.Contains(t, exc.Stack, "controller.Capture")
	assert.Empty(t, exc.Context)
}

func TestCaptureIgnoresNil(t *testing.T) {
	assert.Nil(t, Capture(context.Background(), nil, "s", "m", "f", LevelError, nil, nil))
}
