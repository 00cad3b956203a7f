package platform

import (
	"errors"

	"github.com/kb-labs/kb-plugin-host/internal/ipc"
)

// InvokeFunc routes a plugin-to-plugin invocation (spec §4.2 invoke.call)
// back through the host's command execution path. It is supplied by
// internal/executor, which owns the registry and router; platform only
// adapts it to the "invoke" RPC surface, avoiding a direct dependency from
// this package onto executor (spec §9: "cyclic ownership avoidance").
type InvokeFunc func(targetPluginID string, input any) (any, error)

type invokeAdapter struct {
	fn InvokeFunc
}

// Call implements the "call" RPC method.
func (a *invokeAdapter) Call(targetPluginID string, input any) (any, error) {
	if a.fn == nil {
		return nil, errInvokeUnconfigured
	}
	return a.fn(targetPluginID, input)
}

var errInvokeUnconfigured = errors.New("invoke: no invoker configured")

// Services bundles every host-side platform service for registration.
// Fields left nil fall back to a local, dependency-free default so a host
// embedding this package can wire only the adapters it needs.
type Services struct {
	Cache       *Cache
	Events      *Events
	Analytics   *Analytics
	Storage     *Storage
	LLM         LLM
	Embeddings  Embeddings
	VectorStore *VectorStore
	Invoke      InvokeFunc
}

// NewDispatcher registers every service in svc under its adapter name,
// returning an ipc.Dispatcher ready to pass to ipc.Listen (spec §4.9 step 3:
// "the host dispatches incoming adapter:call frames to the matching
// platform service methods").
func NewDispatcher(svc Services) ipc.Dispatcher {
	reg := ipc.NewRegistry()

	cache := svc.Cache
	if cache == nil {
		cache = NewCache()
	}
	reg.Register("cache", cache)

	events := svc.Events
	if events == nil {
		events = NewEvents()
	}
	reg.Register("events", events)

	analytics := svc.Analytics
	if analytics == nil {
		analytics = NewAnalytics()
	}
	reg.Register("analytics", analytics)

	storage := svc.Storage
	if storage == nil {
		storage = NewStorage(DefaultStorageDir())
	}
	reg.Register("storage", storage)

	reg.Register("llm", NewLLMAdapter(svc.LLM))
	reg.Register("embeddings", NewEmbeddingsAdapter(svc.Embeddings))

	vectorStore := svc.VectorStore
	if vectorStore == nil {
		vectorStore = NewVectorStore()
	}
	reg.Register("vectorStore", vectorStore)

	reg.Register("invoke", &invokeAdapter{fn: svc.Invoke})

	return reg
}
