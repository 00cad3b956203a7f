package runtime

import (
	"context"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// Invoke is the invoke.call facade (spec §4.2): Policy-gated
// plugin-to-plugin invocation, delegated to a host-supplied invoker
// adapter. Cyclic ownership is avoided deliberately (spec §9): this facade
// only ever round-trips through the host, it never holds a direct
// reference into the target plugin's own Context.
type Invoke struct {
	caller Caller
	policy manifest.InvokePolicy
}

func newInvoke(caller Caller, p manifest.InvokePolicy) *Invoke {
	return &Invoke{caller: caller, policy: p}
}

// CallOptions controls an invoke.Call.
type CallOptions struct {
	TimeoutMs int64
}

// Call invokes targetPluginID with input after a Policy check.
func (i *Invoke) Call(ctx context.Context, targetPluginID string, input any, opts CallOptions) (any, error) {
	if d := policy.CheckInvoke(targetPluginID, i.policy); !d.Allow {
		return nil, &PermissionError{Reason: d.Reason, Details: d.Details}
	}
	if i.caller == nil {
		return nil, &PermissionError{Reason: "invoke is disallowed: no invoker configured"}
	}
	return i.caller.Call(ctx, "invoke", "call", []any{targetPluginID, input}, 0)
}
