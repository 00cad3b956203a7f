// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

//go:build integration

package executor_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/kb-labs/kb-plugin-host/internal/executor"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/registry"
)

// buildEchoPlugin compiles cmd/kb-plugin-echo into dir and returns the
// resulting binary's absolute path. This drives the real processSpawner
// path end to end, the one thing executor_test.go's fake-spawner table
// tests can't reach: an actual fork/exec across the control pipes.
func buildEchoPlugin(dir string) (string, error) {
	repoRoot, err := filepath.Abs("../..")
	if err != nil {
		return "", err
	}
	bin := filepath.Join(dir, "kb-plugin-echo")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/kb-plugin-echo")
	cmd.Dir = repoRoot
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return bin, nil
}

var _ = Describe("Spawning the echo plugin", func() {
	var (
		binPath string
		ex      *executor.Executor
	)

	BeforeEach(func() {
		tmp := GinkgoT().TempDir()

		var err error
		binPath, err = buildEchoPlugin(tmp)
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv("XDG_RUNTIME_DIR", tmp)
		ex = executor.New(executor.Config{})
	})

	command := func() *registry.RegisteredCommand {
		return &registry.RegisteredCommand{
			ID:       "echo",
			PluginID: "kb-plugin-echo",
			Command:  manifest.Command{HandlerPath: binPath},
		}
	}

	It("runs the spawned child to completion and reports its result", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		outcome, err := ex.Run(ctx, executor.Invocation{
			Command: command(),
			Flags:   map[string]any{"message": "integration hello"},
			Cwd:     GinkgoT().TempDir(),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.State).To(Equal(executor.StateClosed))
		Expect(outcome.ExitCode).To(Equal(0))

		result, ok := outcome.Result.(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(result["message"]).To(Equal("integration hello"))
	})

	It("falls back to the plugin's default greeting when no message flag is set", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		outcome, err := ex.Run(ctx, executor.Invocation{
			Command: command(),
			Cwd:     GinkgoT().TempDir(),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.ExitCode).To(Equal(0))

		result, ok := outcome.Result.(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(result["message"]).To(Equal("hello from kb-plugin-echo"))
	})

	It("aborts the child once the quota timeout elapses and reports a non-zero exit", func() {
		rc := command()
		rc.Command.Permissions = &manifest.Policy{Quotas: manifest.Quotas{TimeoutMs: 1}}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		outcome, err := ex.Run(ctx, executor.Invocation{
			Command: rc,
			Cwd:     GinkgoT().TempDir(),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.ExitCode).NotTo(Equal(0))
		Expect(outcome.Error).NotTo(BeNil())
	})
})
