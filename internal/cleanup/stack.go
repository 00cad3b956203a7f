// Package cleanup implements the CleanupStack entity (spec §3): an ordered
// sequence of deferred callbacks, drained in reverse registration order
// after a handler invocation returns or fails.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kb-labs/kb-plugin-host/pkg/errutil"
)

// DefaultReleaseTimeout bounds a single cleanup callback (spec §3).
const DefaultReleaseTimeout = 5 * time.Second

// Func is one deferred cleanup callback registered via lifecycle.onCleanup.
type Func func(ctx context.Context) error

// Stack is an ordered, append-only (during handler execution) collection of
// cleanup callbacks. The zero value is ready to use.
type Stack struct {
	mu  sync.Mutex
	fns []Func
}

// New returns an empty Stack.
func New() *Stack {
	return &Stack{}
}

// Push registers a cleanup callback. Safe for concurrent use; the handler
// may register cleanups from multiple goroutines.
func (s *Stack) Push(fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

// Len reports the number of registered callbacks.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Drain runs every registered callback in reverse registration order, each
// bounded by releaseTimeout (DefaultReleaseTimeout if zero). A callback that
// errors is logged at error level (errutil.LogError), one that times out is
// logged at warn, and neither stops the drain (spec
// §5: "CleanupStack callbacks run after any outcome ... failures logged not
// fatal"). Drain is idempotent: once emptied, subsequent calls are no-ops.
func (s *Stack) Drain(ctx context.Context, logger *slog.Logger, releaseTimeout time.Duration) {
	if releaseTimeout <= 0 {
		releaseTimeout = DefaultReleaseTimeout
	}

	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		s.runOne(ctx, logger, fns[i], releaseTimeout)
	}
}

func (s *Stack) runOne(ctx context.Context, logger *slog.Logger, fn Func, timeout time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(cctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			errutil.LogError(logger, "cleanup callback failed", err)
		}
	case <-cctx.Done():
		logger.Warn("cleanup callback timed out", "timeout", timeout)
	}
}
