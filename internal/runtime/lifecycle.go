package runtime

import (
	"context"

	"github.com/kb-labs/kb-plugin-host/internal/cleanup"
)

// Lifecycle is the lifecycle.onCleanup facade (spec §4.2): registers a
// deferred callback onto the invocation's CleanupStack.
type Lifecycle struct {
	stack *cleanup.Stack
}

func newLifecycle(stack *cleanup.Stack) *Lifecycle {
	if stack == nil {
		stack = cleanup.New()
	}
	return &Lifecycle{stack: stack}
}

// OnCleanup registers fn, run in reverse registration order by the host
// after the handler returns.
func (l *Lifecycle) OnCleanup(fn func(ctx context.Context) error) {
	l.stack.Push(cleanup.Func(fn))
}
