package runtime

import (
	"context"
	"time"
)

// State is the per-(tenant, plugin) namespaced key-value facade (spec
// §4.2), delegating to the host cache adapter over IPC. All keys are
// transparently prefixed "<tenant|'default'>:<pluginId>:<key>".
type State struct {
	caller   Caller
	pluginID string
	tenantID string
}

func newState(caller Caller, pluginID, tenantID string) *State {
	return &State{caller: caller, pluginID: pluginID, tenantID: tenantID}
}

func (s *State) namespacedKey(key string) string {
	tenant := s.tenantID
	if tenant == "" {
		tenant = "default"
	}
	return tenant + ":" + s.pluginID + ":" + key
}

// Get returns the value for key, or (nil, false) if absent.
func (s *State) Get(ctx context.Context, key string) (any, bool, error) {
	v, err := s.caller.Call(ctx, "cache", "get", []any{s.namespacedKey(key)}, 0)
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// Set stores value under key, with an optional TTL.
func (s *State) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	_, err := s.caller.Call(ctx, "cache", "set", []any{s.namespacedKey(key), value, ttl.Milliseconds()}, 0)
	return err
}

// Delete removes key. A missing key is a no-op.
func (s *State) Delete(ctx context.Context, key string) error {
	_, err := s.caller.Call(ctx, "cache", "delete", []any{s.namespacedKey(key)}, 0)
	return err
}

// Has reports whether key is present, by non-null lookup.
func (s *State) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// GetMany returns values for the given keys; missing keys are absent from
// the result map.
func (s *State) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	result := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			result[k] = v
		}
	}
	return result, nil
}

// SetMany stores every entry with the same TTL.
func (s *State) SetMany(ctx context.Context, entries map[string]any, ttl time.Duration) error {
	for k, v := range entries {
		if err := s.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}
