// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package ipc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/ipc"
)

type cacheService struct{}

func (cacheService) Get(key string) (string, error) {
	if key == "k" {
		return "v", nil
	}
	return "", nil
}

func TestClientServer_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "kb.sock")

	registry := ipc.NewRegistry()
	registry.Register("cache", cacheService{})

	server, err := ipc.Listen(sock, registry, nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	client, err := ipc.DialUnix(context.Background(), sock, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("DialUnix() error = %v", err)
	}
	defer client.Close()

	result, err := client.Call(context.Background(), "cache", "get", []any{"k"}, time.Second)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != "v" {
		t.Errorf("Call() result = %v, want %q", result, "v")
	}
}

func TestClient_UnknownAdapter(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "kb.sock")

	server, err := ipc.Listen(sock, ipc.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer server.Close()
	go server.Serve()

	client, err := ipc.DialUnix(context.Background(), sock, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("DialUnix() error = %v", err)
	}
	defer client.Close()

	_, err = client.Call(context.Background(), "nope", "get", nil, time.Second)
	if err == nil {
		t.Fatal("expected an error for an unknown adapter")
	}
}

func TestClient_CloseFailsPending(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "kb.sock")

	server, err := ipc.Listen(sock, ipc.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer server.Close()
	// Deliberately never call Serve(): the connection accepts but nothing
	// reads frames from the client's write, so a Call blocks until Close.

	client, err := ipc.DialUnix(context.Background(), sock, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("DialUnix() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, callErr := client.Call(context.Background(), "cache", "get", []any{"k"}, 5*time.Second)
		done <- callErr
	}()

	time.Sleep(50 * time.Millisecond)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Call() to fail after Close()")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call() did not return after Close()")
	}
}
