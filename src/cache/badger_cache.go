package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	setPrefix       = "set:"
	maxTxnConflicts = 10
)

// BadgerCache implements Cache on an embedded badger store. Set members are kept as
// individual keys under "set:<key>:" so membership changes never rewrite a whole set.
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens badger at path, or in memory when path is empty.
func NewBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(_ context.Context, key string) (string, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

func (c *BadgerCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	return c.update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry(key, value, ttl))
	})
}

func (c *BadgerCache) Del(_ context.Context, keys ...string) (int, error) {
	deleted := 0
	err := c.update(func(txn *badger.Txn) error {
		deleted = 0
		for _, k := range keys {
			if _, err := txn.Get([]byte(k)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
			deleted++
		}
		for _, k := range keys {
			n, err := deletePrefix(txn, setMemberPrefix(k))
			if err != nil {
				return err
			}
			if n > 0 {
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (c *BadgerCache) SAdd(_ context.Context, key string, members ...string) error {
	return c.update(func(txn *badger.Txn) error {
		for _, m := range members {
			if err := txn.Set([]byte(setMemberPrefix(key)+m), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCache) SMembers(_ context.Context, key string) ([]string, error) {
	prefix := setMemberPrefix(key)
	var members []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			members = append(members, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	return members, err
}

func (c *BadgerCache) SRem(_ context.Context, key string, members ...string) error {
	return c.update(func(txn *badger.Txn) error {
		for _, m := range members {
			if err := txn.Delete([]byte(setMemberPrefix(key) + m)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BadgerCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	set := false
	err := c.update(func(txn *badger.Txn) error {
		set = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.SetEntry(entry(key, value, ttl)); err != nil {
			return err
		}
		set = true
		return nil
	})
	return set, err
}

func (c *BadgerCache) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	done := false
	err := c.update(func(txn *badger.Txn) error {
		done = false
		held, err := valueOf(txn, key)
		if err != nil || held != value {
			return err
		}
		done = true
		return txn.Delete([]byte(key))
	})
	return done, err
}

func (c *BadgerCache) ExpireIfEquals(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	done := false
	err := c.update(func(txn *badger.Txn) error {
		done = false
		held, err := valueOf(txn, key)
		if err != nil || held != value {
			return err
		}
		done = true
		return txn.SetEntry(entry(key, value, ttl))
	})
	return done, err
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// update retries fn when a concurrent transaction touched the same keys.
func (c *BadgerCache) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnConflicts; i++ {
		err = c.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func entry(key, value string, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), []byte(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// valueOf returns "" with a nil error for a missing key.
func valueOf(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

func setMemberPrefix(key string) string {
	return setPrefix + key + ":"
}

func deletePrefix(txn *badger.Txn, prefix string) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
