package sync

import (
	"context"
	"sync"
)

// OnceErrCtx returns a function that calls fn the first time it is
// invoked and replays that result, error included, on every later call.
// Only the first caller's context is passed to fn; later callers wait
// for it.
func OnceErrCtx[T any](fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	var once sync.Once
	var result T
	var err error

	return func(ctx context.Context) (T, error) {
		once.Do(func() {
			result, err = fn(ctx)
		})
		return result, err
	}
}
