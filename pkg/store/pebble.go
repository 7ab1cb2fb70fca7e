package store

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/retention"
)

// The backend handle is a shared, read-mostly resource initialized once per
// process. No in-process lock guards the operations: the backend serializes
// concurrent writes to the same key at the storage layer.
var (
	db     *pebble.DB
	dbPath string
)

// policy computes ExpiryTime for new and refreshed records. Set during
// startup, before the store serves operations.
var policy = retention.DefaultPolicy

// timeNow is swapped by tests to simulate expiry.
var timeNow = time.Now

// SetPolicy installs the retention policy consulted on writes.
func SetPolicy(p retention.Policy) { policy = p }

// Open opens (or creates) the backend database at the given path and keeps
// a process-global handle.
func Open(path string) error {
	var err error
	logger.Info("opening_store", zap.String("path", path))
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", zap.String("path", path), zap.Error(err))
		return err
	}
	dbPath = path
	logger.Info("store_opened", zap.String("path", path))
	return nil
}

// Close closes the backend handle if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	dbPath = ""
	logger.Info("store_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

// checkCtx maps an expired caller deadline onto the retryable taxonomy
// before any backend call.
func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// rawGet returns the value for key; found=false on a clean miss.
func rawGet(key []byte) (val []byte, found bool, err error) {
	v, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, true, nil
}

func rawSet(key, val []byte) error {
	return db.Set(key, val, pebble.Sync)
}

func rawDelete(key []byte) error {
	return db.Delete(key, pebble.Sync)
}

// prefixIter opens an iterator bounded to keys starting with prefix.
func prefixIter(prefix []byte) (*pebble.Iterator, error) {
	return db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns every key in the DB. Used by the inspect
// tool and tests.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if len(pfx) > 0 && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// GetKey returns the raw value stored at key. Used by the inspect tool.
func GetKey(key string) ([]byte, error) {
	if db == nil {
		return nil, errNotOpen
	}
	v, found, err := rawGet([]byte(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound("key", key)
	}
	return v, nil
}
