package platform

import (
	"os"
	"path/filepath"

	"github.com/kb-labs/kb-plugin-host/internal/xdg"
)

// Storage is the host-side "storage" adapter: a plugin-namespaced blob
// store under the XDG data directory, distinct from the per-invocation
// Artifacts facade (internal/runtime/artifacts.go), which is scoped to one
// invocation's outdir instead of surviving across invocations.
type Storage struct {
	root string
}

// NewStorage returns a Storage rooted at dir (typically xdg.DataDir()/storage).
func NewStorage(dir string) *Storage {
	return &Storage{root: dir}
}

func (s *Storage) path(pluginID, key string) string {
	return filepath.Join(s.root, pluginID, filepath.FromSlash(key))
}

// Get reads the named blob for pluginID, returning (nil, nil) if absent.
func (s *Storage) Get(pluginID, key string) (any, error) {
	data, err := os.ReadFile(s.path(pluginID, key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Put writes value (stringified) under key for pluginID, creating parent
// directories as needed.
func (s *Storage) Put(pluginID, key string, value string) error {
	p := s.path(pluginID, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(value), 0o600)
}

// Delete removes the named blob; a missing blob is a no-op.
func (s *Storage) Delete(pluginID, key string) error {
	err := os.Remove(s.path(pluginID, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// DefaultStorageDir returns the default on-disk root for Storage.
func DefaultStorageDir() string {
	return filepath.Join(xdg.DataDir(), "storage")
}
