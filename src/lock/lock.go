package lock

import (
	"context"
	"math/rand"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/cache"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Lease is a held lock. Only the holder of Token can release or extend it.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// DistributedLock is a leased mutual exclusion primitive on top of the cache
// lock primitives. An expired lease frees the resource for the next caller.
type DistributedLock struct {
	locker   cache.Locker
	config   Config
	log      *logrus.Entry
	newToken func() string
}

func NewDistributedLock(locker cache.Locker, config Config, log *logrus.Entry) *DistributedLock {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 50 * time.Millisecond
	}
	if config.MaxRetryDelay < config.RetryDelay {
		config.MaxRetryDelay = config.RetryDelay
	}
	return &DistributedLock{
		locker:   locker,
		config:   config,
		log:      log.WithField("component", "DistributedLock"),
		newToken: uuid.NewString,
	}
}

// BalanceResource scopes a lock to one (wallet, token) balance.
func BalanceResource(walletAddress, tokenAddress string) string {
	return "balance:" + walletAddress + ":" + tokenAddress
}

// WalletResource scopes a lock to every balance and position of a wallet. Balance guards
// hold it for the whole trade, so the holder of this lease sees no trade in flight.
func WalletResource(walletAddress string) string {
	return "wallet:" + walletAddress
}

// TryAcquire makes a single attempt.
func (d *DistributedLock) TryAcquire(ctx context.Context, resource string, ttl time.Duration) (*Lease, bool, error) {
	if ttl <= 0 {
		ttl = d.config.TTL
	}
	lease := &Lease{Key: cache.LockKey(resource), Token: d.newToken(), TTL: ttl}
	ok, err := d.locker.SetNX(ctx, lease.Key, lease.Token, ttl)
	if err != nil {
		return nil, false, apperrors.DependencyUnavailable(err, "lock backend unavailable")
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

// Acquire retries with jittered exponential backoff until the lock is taken or ctx ends.
func (d *DistributedLock) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lease, error) {
	delay := d.config.RetryDelay
	for attempt := 1; ; attempt++ {
		lease, ok, err := d.TryAcquire(ctx, resource, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			if attempt > 1 {
				d.log.WithFields(logrus.Fields{
					"resource": resource,
					"attempts": attempt,
				}).Debug("Lock acquired after contention")
			}
			return lease, nil
		}

		timer := time.NewTimer(jitter(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.Wrap(ctx.Err(), apperrors.KindConflict, apperrors.CodeLockNotAcquired,
				"lock "+resource+" is held by another worker")
		case <-timer.C:
		}

		delay *= 2
		if delay > d.config.MaxRetryDelay {
			delay = d.config.MaxRetryDelay
		}
	}
}

// Release deletes the lock if lease still owns it. false means the lease had already expired
// or was taken over.
func (d *DistributedLock) Release(ctx context.Context, lease *Lease) (bool, error) {
	if lease == nil {
		return false, nil
	}
	ok, err := d.locker.DelIfEquals(ctx, lease.Key, lease.Token)
	if err != nil {
		return false, apperrors.DependencyUnavailable(err, "lock backend unavailable")
	}
	if !ok {
		d.log.WithField("key", lease.Key).Warn("Lease lost before release")
	}
	return ok, nil
}

// Extend resets the lease ttl if it is still owned.
func (d *DistributedLock) Extend(ctx context.Context, lease *Lease, ttl time.Duration) (bool, error) {
	if lease == nil {
		return false, nil
	}
	if ttl <= 0 {
		ttl = lease.TTL
	}
	ok, err := d.locker.ExpireIfEquals(ctx, lease.Key, lease.Token, ttl)
	if err != nil {
		return false, apperrors.DependencyUnavailable(err, "lock backend unavailable")
	}
	if ok {
		lease.TTL = ttl
	}
	return ok, nil
}

// WithLock runs fn while holding resource.
func (d *DistributedLock) WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := d.Acquire(ctx, resource, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// release must outlive a cancelled caller
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := d.Release(releaseCtx, lease); err != nil {
			d.log.WithError(err).WithField("key", lease.Key).Warn("Failed to release lock")
		}
	}()
	return fn(ctx)
}

// jitter spreads d by up to 20% either way.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2 * (rand.Float64()*2 - 1)
	out := time.Duration(float64(d) + spread)
	if out < 0 {
		return 0
	}
	return out
}
