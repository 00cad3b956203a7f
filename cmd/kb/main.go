// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

// Command kb is the plugin-host CLI: it discovers plugin.yaml manifests,
// registers the commands they contribute, and runs them inside the Sandbox
// Bootstrap.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kb:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps err to the process exit code spec §6 requires: 1 for a
// generic failure unless err carries a more specific code.
func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}
