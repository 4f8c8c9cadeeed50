package sqlitestore

import (
	"context"
	"time"

	"github.com/kingdavid28/chatstatus/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*ResilientStore)(nil)

// ResilientStore wraps the sqlite store's I/O methods with a circuit
// breaker and database-locked retry. Subscribe passes through: the
// subscription registry is in-process and never touches the database.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient wraps inner with default breaker settings (threshold=5,
// resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState reports the breaker state for health endpoints.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func (r *ResilientStore) Read(ctx context.Context, path string) (store.Document, error) {
	var result store.Document
	err := r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			var innerErr error
			result, innerErr = r.inner.Read(ctx, path)
			return innerErr
		})
	})
	return result, err
}

func (r *ResilientStore) Write(ctx context.Context, path string, value store.Document) error {
	return r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			return r.inner.Write(ctx, path, value)
		})
	})
}

func (r *ResilientStore) Merge(ctx context.Context, path string, partial store.Document) error {
	return r.cb.Execute(func() error {
		return RetryOnDBLock(func() error {
			return r.inner.Merge(ctx, path, partial)
		})
	})
}

func (r *ResilientStore) Subscribe(path string, onChange func(store.Document)) (func(), error) {
	return r.inner.Subscribe(path, onChange)
}

func (r *ResilientStore) Close() error { return r.inner.Close() }
