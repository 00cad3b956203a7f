package runtime

import (
	"os"
	"path/filepath"
	"time"
)

// Artifacts is the artifacts facade (spec §4.2), namespaced to the
// invocation's outdir.
type Artifacts struct {
	outdir string
}

func newArtifacts(outdir string) *Artifacts {
	return &Artifacts{outdir: outdir}
}

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Write stores content under name, creating outdir recursively.
func (a *Artifacts) Write(name string, content []byte) (string, error) {
	if err := os.MkdirAll(a.outdir, 0o755); err != nil {
		return "", err
	}
	path := a.Path(name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Read returns the contents of the named artifact as a string.
func (a *Artifacts) Read(name string) (string, error) {
	data, err := a.ReadBuffer(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBuffer returns the contents of the named artifact as bytes.
func (a *Artifacts) ReadBuffer(name string) ([]byte, error) {
	return os.ReadFile(a.Path(name))
}

// Exists reports whether the named artifact exists.
func (a *Artifacts) Exists(name string) bool {
	_, err := os.Stat(a.Path(name))
	return err == nil
}

// Path returns the absolute path of the named artifact.
func (a *Artifacts) Path(name string) string {
	return filepath.Join(a.outdir, name)
}

// List returns only regular files at the top level of outdir; a
// non-existing outdir yields an empty result, not an error.
func (a *Artifacts) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(a.outdir)
	if os.IsNotExist(err) {
		return []ArtifactInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	result := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, statErr := e.Info()
		if statErr != nil {
			continue
		}
		result = append(result, ArtifactInfo{
			Name:      e.Name(),
			Path:      a.Path(e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return result, nil
}
