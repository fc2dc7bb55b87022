// Package cache provides the TTL'd key/value store used to memoize scored
// recommendation pages and externally-sourced embeddings. Keys are namespaced
// by concern (recommendations:<user>:..., profile_embedding:<subject>, ...)
// so prefix invalidation stays surgical.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Cache wraps a BadgerDB instance. Values round-trip through JSON; a value
// that fails to deserialize is reported as a miss, not an error.
type Cache struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open creates a cache at path. An empty path opens an in-memory instance,
// which is what the tests and the preview CLI use.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}

	return &Cache{db: db, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get unmarshals the value stored at key into dest. It returns false when
// the key is absent, expired, or holds a value that no longer deserializes.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("discarding undecodable cache entry",
			zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Set overwrites key unconditionally and resets its TTL. A zero ttl stores
// the entry without expiry; reserve that for keys already unique and
// immutable (e.g. grant_summary:<id>:<updatedAt>).
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// DeletePattern removes every key sharing the given prefix inside a single
// transaction, so a concurrent Get never observes a partially-invalidated
// group. Returns the number of entries removed.
func (c *Cache) DeletePattern(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	err := c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache pattern delete failed: %w", err)
	}
	return deleted, nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache exists check failed: %w", err)
	}
	return true, nil
}
