package platform

import (
	"errors"
	"strings"
)

// LLM is the host-side "llm" adapter surface. No example repo in the
// retrieval pack ships a complete LLM client implementation (only bare
// go.mod manifests reference one), so this package defines the narrow
// capability interface a real client would implement and ships a
// deterministic local stand-in (EchoLLM) suitable for tests and offline
// development; see DESIGN.md for the stdlib-only justification.
type LLM interface {
	Complete(prompt string, opts map[string]any) (string, error)
}

// ErrLLMUnconfigured is returned by a host that has not wired a real LLM
// backend.
var ErrLLMUnconfigured = errors.New("llm: no backend configured")

// EchoLLM is a deterministic LLM stand-in: it reports back a trimmed
// version of the prompt. Useful for golden-path tests of the adapter
// plumbing without a network dependency.
type EchoLLM struct{}

// Complete implements LLM.
func (EchoLLM) Complete(prompt string, _ map[string]any) (string, error) {
	return "echo: " + strings.TrimSpace(prompt), nil
}

// llmAdapter exposes LLM's capability interface under the RPC method names
// the sandbox-side proxy calls.
type llmAdapter struct {
	backend LLM
}

// NewLLMAdapter wraps backend for registration in an ipc.Registry under
// the "llm" adapter name.
func NewLLMAdapter(backend LLM) any {
	if backend == nil {
		backend = EchoLLM{}
	}
	return &llmAdapter{backend: backend}
}

// Complete implements the "complete" RPC method.
func (a *llmAdapter) Complete(prompt string, opts map[string]any) (string, error) {
	return a.backend.Complete(prompt, opts)
}
