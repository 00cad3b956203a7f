package runtime

import "context"

// Events is the events.emit facade (spec §4.2). Event names are
// transparently prefixed "<pluginId>:" before delegation to the host event
// bus adapter.
type Events struct {
	caller   Caller
	pluginID string
}

func newEvents(caller Caller, pluginID string) *Events {
	return &Events{caller: caller, pluginID: pluginID}
}

// Emit sends a namespaced event to the host. It is a no-op when the host
// supplied no event sink (caller is nil).
func (e *Events) Emit(ctx context.Context, name string, payload any) error {
	if e.caller == nil {
		return nil
	}
	_, err := e.caller.Call(ctx, "events", "emit", []any{e.pluginID + ":" + name, payload}, 0)
	return err
}
