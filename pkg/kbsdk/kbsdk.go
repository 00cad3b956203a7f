// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

// Package kbsdk is the public facade a third-party plugin links against: a
// Handler interface plus the Sandbox Bootstrap (spec §4.6) that wires up
// harden, the platform RPC proxies, and the Plugin Context Factory before
// calling into it.
package kbsdk

import (
	"sync"

	"github.com/kb-labs/kb-plugin-host/internal/sandboxctx"
)

// Result is what a Handler returns: the §4.6 step 10 "{exitCode, result?,
// meta?}" triple sent back to the host as a ResultMessage.
type Result struct {
	ExitCode int
	Result   any
	Meta     any
}

// Handler is the contract every plugin command implements. Execute receives
// the composed invocation Context (spec §4.5) and the flattened input (spec
// §4.6 step 9: command flags surfaced as top-level input keys).
type Handler interface {
	Execute(ctx *sandboxctx.Context, input map[string]any) (Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx *sandboxctx.Context, input map[string]any) (Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx *sandboxctx.Context, input map[string]any) (Result, error) {
	return f(ctx, input)
}

var (
	currentMu sync.RWMutex
	current   *sandboxctx.Context
)

// setCurrent publishes ctx as the process-wide active invocation Context
// for the duration of one handler call (spec §4.6 step 7), so code reached
// indirectly from a Handler (a helper package that doesn't thread a Context
// through its own call signature) can still reach Runtime/UI/Cleanup.
func setCurrent(ctx *sandboxctx.Context) {
	currentMu.Lock()
	current = ctx
	currentMu.Unlock()
}

func clearCurrent() {
	currentMu.Lock()
	current = nil
	currentMu.Unlock()
}

// Current returns the active invocation Context, or nil outside of a
// handler call. A plugin's own Handler.Execute should prefer the ctx
// argument it was given directly; Current exists for nested helper code.
func Current() *sandboxctx.Context {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}
