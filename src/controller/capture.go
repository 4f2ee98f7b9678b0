package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/model"

	logger "github.com/sirupsen/logrus"
)

// Exception levels.
const (
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

type ExceptionSink interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo ExceptionSink,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) *model.Exception {

	if err == nil {
		return nil
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	stack := string(debug.Stack())
	if _, ok := apperrors.As(err); ok {
		stack = apperrors.StackTrace(err)
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Kind:      string(apperrors.KindOf(err)),
		Code:      apperrors.CodeOf(err),
		Message:   err.Error(),
		Stack:     stack,
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now().UTC(),
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
		"code":    exc.Code,
	}).WithError(err).Error("System exception captured")

	// Persist in database, detached from a caller's cancellation
	if repo != nil {
		if e := repo.Create(context.WithoutCancel(ctx), exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
	return exc
}
