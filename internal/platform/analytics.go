package platform

import (
	"sync"
	"time"
)

// AnalyticsRecord is one tracked analytics event.
type AnalyticsRecord struct {
	PluginID  string
	Name      string
	Props     any
	Timestamp time.Time
}

// Analytics is the host-side "analytics" adapter: an in-process recorder a
// host can drain and forward to a real telemetry backend. Kept intentionally
// dumb (append-only, no aggregation) since the ambient stack's metrics
// surface is internal/observability, not this adapter.
type Analytics struct {
	mu      sync.Mutex
	records []AnalyticsRecord
	now     func() time.Time
}

// NewAnalytics returns an empty Analytics recorder.
func NewAnalytics() *Analytics {
	return &Analytics{now: time.Now}
}

// Track implements the "track" RPC method invoked by the sandbox.
func (a *Analytics) Track(pluginID, name string, props any) error {
	a.mu.Lock()
	a.records = append(a.records, AnalyticsRecord{
		PluginID:  pluginID,
		Name:      name,
		Props:     props,
		Timestamp: a.now(),
	})
	a.mu.Unlock()
	return nil
}

// Records returns a copy of every record tracked so far.
func (a *Analytics) Records() []AnalyticsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnalyticsRecord, len(a.records))
	copy(out, a.records)
	return out
}
