// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

// Command kb-plugin-echo is a minimal third-party plugin: it echoes its
// input back as its result and demonstrates reading a runtime-granted env
// var through the Context the Sandbox Bootstrap builds. It links against
// pkg/kbsdk the same way any out-of-tree plugin would, and is spawned by
// the host's Executor exactly like one (no special-cased code path).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kb-labs/kb-plugin-host/internal/sandboxctx"
	"github.com/kb-labs/kb-plugin-host/pkg/kbsdk"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	err := kbsdk.Serve(kbsdk.Config{
		Handler:    kbsdk.HandlerFunc(execute),
		ControlIn:  os.NewFile(3, "kb-control-in"),
		ControlOut: os.NewFile(4, "kb-control-out"),
		Stdout:     os.Stdout,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "kb-plugin-echo:", err)
		os.Exit(1)
	}
}

// execute implements the echo command: it prints the number of input fields
// and the message through the UI façade, and returns the message together
// with the unchanged input as the invocation result.
func execute(ctx *sandboxctx.Context, input map[string]any) (kbsdk.Result, error) {
	ctx.UI.Printf("echo: received %d input field(s)", len(input))

	message, _ := input["message"].(string)
	if message == "" {
		if greeting, ok := ctx.Runtime.Env.Get("KB_EXAMPLE_GREETING"); ok {
			message = greeting
		} else {
			message = "hello from kb-plugin-echo"
		}
	}
	ctx.UI.Print(message)

	return kbsdk.Result{
		ExitCode: 0,
		Result: map[string]any{
			"message": message,
			"input":   input,
		},
	}, nil
}
