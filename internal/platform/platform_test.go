// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package platform_test

import (
	"testing"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/platform"
)

func TestCache_GetSetDelete(t *testing.T) {
	c := platform.NewCache()

	if v, err := c.Get("k"); err != nil || v != nil {
		t.Fatalf("Get(missing) = (%v, %v), want (nil, nil)", v, err)
	}
	if err := c.Set("k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, err := c.Get("k")
	if err != nil || v != "v" {
		t.Fatalf("Get(k) = (%v, %v), want (v, nil)", v, err)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if v, _ := c.Get("k"); v != nil {
		t.Errorf("Get(k) after Delete = %v, want nil", v)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := platform.NewCache()
	if err := c.Set("k", "v", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if v, _ := c.Get("k"); v != nil {
		t.Errorf("Get(k) after TTL expiry = %v, want nil", v)
	}
}

func TestEvents_Subscribe(t *testing.T) {
	e := platform.NewEvents()
	var got []string
	e.Subscribe(func(name string, payload any) {
		got = append(got, name)
	})
	if err := e.Emit("acme:ready", nil); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(got) != 1 || got[0] != "acme:ready" {
		t.Errorf("subscribers saw %v, want [acme:ready]", got)
	}
}

func TestAnalytics_Track(t *testing.T) {
	a := platform.NewAnalytics()
	if err := a.Track("acme.tool", "run", map[string]any{"ok": true}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	records := a.Records()
	if len(records) != 1 || records[0].Name != "run" {
		t.Errorf("Records() = %+v, want one 'run' record", records)
	}
}

func TestStorage_PutGetDelete(t *testing.T) {
	s := platform.NewStorage(t.TempDir())

	if v, err := s.Get("acme.tool", "missing"); err != nil || v != nil {
		t.Fatalf("Get(missing) = (%v, %v), want (nil, nil)", v, err)
	}
	if err := s.Put("acme.tool", "k", "hello"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	v, err := s.Get("acme.tool", "k")
	if err != nil || v != "hello" {
		t.Fatalf("Get(k) = (%v, %v), want (hello, nil)", v, err)
	}
	if err := s.Delete("acme.tool", "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestVectorStore_QueryRanksBySimilarity(t *testing.T) {
	vs := platform.NewVectorStore()
	_ = vs.Upsert("a", []float64{1, 0}, nil)
	_ = vs.Upsert("b", []float64{0, 1}, nil)

	results, err := vs.Query([]float64{1, 0}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("Query() top result = %+v, want id=a", results)
	}
}

func TestEchoLLM_Complete(t *testing.T) {
	out, err := platform.EchoLLM{}.Complete("  hi  ", nil)
	if err != nil || out != "echo: hi" {
		t.Errorf("Complete() = (%q, %v), want (echo: hi, nil)", out, err)
	}
}

func TestHashEmbeddings_Deterministic(t *testing.T) {
	h := platform.HashEmbeddings{Dims: 4}
	v1, err1 := h.Embed("hello")
	v2, err2 := h.Embed("hello")
	if err1 != nil || err2 != nil {
		t.Fatalf("Embed() errors = %v, %v", err1, err2)
	}
	if len(v1) != 4 {
		t.Fatalf("len(Embed()) = %d, want 4", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Errorf("Embed() not deterministic at index %d: %v != %v", i, v1[i], v2[i])
		}
	}
}
