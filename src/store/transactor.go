package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Hook runs after the enclosing transaction committed. Its error is logged, never returned.
type Hook func(ctx context.Context) error

type hooksKey struct{}

type hookQueue struct {
	mu    sync.Mutex
	hooks []namedHook
}

type namedHook struct {
	name string
	fn   Hook
}

func (q *hookQueue) add(name string, fn Hook) {
	q.mu.Lock()
	q.hooks = append(q.hooks, namedHook{name: name, fn: fn})
	q.mu.Unlock()
}

// Transactor opens bounded durable transactions and runs post-commit hooks.
type Transactor struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewTransactor(db *gorm.DB, log *logrus.Entry) *Transactor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transactor{db: db, log: log.WithField("component", "Transactor")}
}

// WithinTx runs fn in a transaction bounded by timeout. Repository calls made with the
// ctx passed to fn join the transaction. Hooks registered through AfterCommit run only
// once the transaction committed. A nested call joins the outer transaction.
func (t *Transactor) WithinTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if _, ok := repository.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	txCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	queue := &hookQueue{}
	txCtx = context.WithValue(txCtx, hooksKey{}, queue)

	err := t.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.ContextWithTx(txCtx, tx))
	})
	if err != nil {
		return t.classify(txCtx, err)
	}

	for _, h := range queue.hooks {
		runHook(ctx, t.log, h.name, h.fn)
	}
	return nil
}

func (t *Transactor) classify(txCtx context.Context, err error) error {
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		t.log.WithError(err).Error("Transaction exceeded its deadline and was rolled back")
		return apperrors.Retryable(err, apperrors.CodeTransactionFailed, "transaction timed out")
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	t.log.WithError(err).Error("Transaction rolled back")
	return apperrors.Retryable(err, apperrors.CodeTransactionFailed, "transaction failed")
}

// AfterCommit defers fn until the transaction carried by ctx committed, or runs it now
// when ctx carries none. A rolled back transaction drops its hooks.
func AfterCommit(ctx context.Context, log *logrus.Entry, name string, fn Hook) {
	if q, ok := ctx.Value(hooksKey{}).(*hookQueue); ok {
		if _, inTx := repository.TxFromContext(ctx); inTx {
			q.add(name, fn)
			return
		}
	}
	runHook(ctx, log, name, fn)
}

func runHook(ctx context.Context, log *logrus.Entry, name string, fn Hook) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := fn(ctx); err != nil {
		log.WithError(err).WithField("hook", name).Warn("Post-commit step failed")
	}
}
