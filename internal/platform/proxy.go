package platform

import (
	"context"
	"time"
)

// Caller is the narrow IPC surface a sandbox-side proxy needs. Satisfied by
// *ipc.Client and by internal/runtime.Caller; kept as its own interface so
// this package does not import internal/runtime (avoiding a cycle, since
// runtime's Bundle composes alongside these proxies in sandboxctx).
type Caller interface {
	Call(ctx context.Context, adapter, method string, args []any, timeout time.Duration) (any, error)
}

// LLMProxy is the sandbox-side stand-in for LLM, delegating every method to
// the host's "llm" adapter over IPC (spec §4.6 step 4).
type LLMProxy struct{ caller Caller }

// NewLLMProxy returns an LLMProxy bound to caller.
func NewLLMProxy(caller Caller) *LLMProxy { return &LLMProxy{caller: caller} }

// Complete calls the host's "llm" adapter's complete method over IPC.
func (p *LLMProxy) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	res, err := p.caller.Call(ctx, "llm", "complete", []any{prompt, opts}, 0)
	if err != nil {
		return "", err
	}
	s, _ := res.(string)
	return s, nil
}

// EmbeddingsProxy is the sandbox-side stand-in for Embeddings.
type EmbeddingsProxy struct{ caller Caller }

// NewEmbeddingsProxy returns an EmbeddingsProxy bound to caller.
func NewEmbeddingsProxy(caller Caller) *EmbeddingsProxy { return &EmbeddingsProxy{caller: caller} }

// Embed calls the host's "embeddings" adapter's embed method over IPC.
func (p *EmbeddingsProxy) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := p.caller.Call(ctx, "embeddings", "embed", []any{text}, 0)
	if err != nil {
		return nil, err
	}
	return toFloat64Slice(res), nil
}

func toFloat64Slice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		if f, ok := e.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// VectorStoreProxy is the sandbox-side stand-in for VectorStore.
type VectorStoreProxy struct{ caller Caller }

// NewVectorStoreProxy returns a VectorStoreProxy bound to caller.
func NewVectorStoreProxy(caller Caller) *VectorStoreProxy { return &VectorStoreProxy{caller: caller} }

// Upsert implements VectorStore.Upsert over IPC.
func (p *VectorStoreProxy) Upsert(ctx context.Context, id string, vector []float64, metadata any) error {
	_, err := p.caller.Call(ctx, "vectorStore", "upsert", []any{id, toAnySlice(vector), metadata}, 0)
	return err
}

// Query implements VectorStore.Query over IPC.
func (p *VectorStoreProxy) Query(ctx context.Context, vector []float64, topK int) ([]ScoredRecord, error) {
	res, err := p.caller.Call(ctx, "vectorStore", "query", []any{toAnySlice(vector), float64(topK)}, 0)
	if err != nil {
		return nil, err
	}
	return toScoredRecords(res), nil
}

func toAnySlice(v []float64) []any {
	out := make([]any, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}

func toScoredRecords(v any) []ScoredRecord {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ScoredRecord, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		rec := ScoredRecord{}
		if id, ok := m["ID"].(string); ok {
			rec.ID = id
		}
		if score, ok := m["Score"].(float64); ok {
			rec.Score = score
		}
		rec.Metadata = m["Metadata"]
		rec.Vector = toFloat64Slice(m["Vector"])
		out = append(out, rec)
	}
	return out
}

// StorageProxy is the sandbox-side stand-in for Storage, namespaced to one
// plugin.
type StorageProxy struct {
	caller   Caller
	pluginID string
}

// NewStorageProxy returns a StorageProxy bound to caller and pluginID.
func NewStorageProxy(caller Caller, pluginID string) *StorageProxy {
	return &StorageProxy{caller: caller, pluginID: pluginID}
}

// Get implements Storage.Get over IPC.
func (p *StorageProxy) Get(ctx context.Context, key string) (any, error) {
	return p.caller.Call(ctx, "storage", "get", []any{p.pluginID, key}, 0)
}

// Put implements Storage.Put over IPC.
func (p *StorageProxy) Put(ctx context.Context, key, value string) error {
	_, err := p.caller.Call(ctx, "storage", "put", []any{p.pluginID, key, value}, 0)
	return err
}

// Delete implements Storage.Delete over IPC.
func (p *StorageProxy) Delete(ctx context.Context, key string) error {
	_, err := p.caller.Call(ctx, "storage", "delete", []any{p.pluginID, key}, 0)
	return err
}

// AnalyticsProxy is the sandbox-side stand-in for Analytics, namespaced to
// one plugin.
type AnalyticsProxy struct {
	caller   Caller
	pluginID string
}

// NewAnalyticsProxy returns an AnalyticsProxy bound to caller and pluginID.
func NewAnalyticsProxy(caller Caller, pluginID string) *AnalyticsProxy {
	return &AnalyticsProxy{caller: caller, pluginID: pluginID}
}

// Track implements Analytics.Track over IPC.
func (p *AnalyticsProxy) Track(ctx context.Context, name string, props any) error {
	_, err := p.caller.Call(ctx, "analytics", "track", []any{p.pluginID, name, props}, 0)
	return err
}
