package runtime

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// FS is the filesystem facade (spec §4.2). Every I/O operation first
// normalises the path to an absolute, cwd-anchored form, then runs Policy;
// on denial it fails with a *PermissionError unless the Guard reports a
// pass-through (spec §4.3).
type FS struct {
	policy manifest.Policy
	cwd    string
	outdir string
	guard  *harden.Guard
}

func newFS(p manifest.Policy, cwd, outdir string, guard *harden.Guard) *FS {
	return &FS{policy: p, cwd: cwd, outdir: outdir, guard: guard}
}

func (f *FS) checkRead(path string) (string, error) {
	abs := f.Resolve(path)
	if d := policy.CheckReadPath(path, f.cwd, f.policy.FS.Read); !d.Allow {
		if f.guard != nil && f.guard.Evaluate("fs.read", path, d) {
			return abs, nil
		}
		return "", &PermissionError{Reason: d.Reason, Details: d.Details}
	}
	return abs, nil
}

func (f *FS) checkWrite(path string) (string, error) {
	abs := f.Resolve(path)
	if d := policy.CheckWritePath(path, f.cwd, f.policy.FS.Write, f.outdir); !d.Allow {
		if f.guard != nil && f.guard.Evaluate("fs.write", path, d) {
			return abs, nil
		}
		return "", &PermissionError{Reason: d.Reason, Details: d.Details}
	}
	return abs, nil
}

// ReadFile reads the full contents of path as a string, after a Policy check.
func (f *FS) ReadFile(path string) (string, error) {
	abs, err := f.checkRead(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadFileBuffer reads the full contents of path as bytes.
func (f *FS) ReadFileBuffer(path string) ([]byte, error) {
	abs, err := f.checkRead(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// WriteFileOptions controls WriteFile behavior.
type WriteFileOptions struct {
	Append bool
}

// WriteFile writes content to path, creating parent directories as needed.
func (f *FS) WriteFile(path string, content []byte, opts WriteFileOptions) error {
	abs, err := f.checkWrite(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(content)
	return err
}

// Readdir lists entry names under path.
func (f *FS) Readdir(path string) ([]string, error) {
	abs, err := f.checkRead(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// DirEntry is a directory listing entry with type information.
type DirEntry struct {
	Name        string
	IsFile      bool
	IsDirectory bool
}

// ReaddirWithStats lists entries under path with type info.
func (f *FS) ReaddirWithStats(path string) ([]DirEntry, error) {
	abs, err := f.checkRead(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, len(entries))
	for i, e := range entries {
		result[i] = DirEntry{Name: e.Name(), IsFile: !e.IsDir(), IsDirectory: e.IsDir()}
	}
	return result, nil
}

// Stat describes a filesystem entry.
type Stat struct {
	IsFileFlag bool
	IsDirFlag  bool
	Size       int64
	ModTime    time.Time
}

// IsFile reports whether the stat target is a regular file.
func (s Stat) IsFile() bool { return s.IsFileFlag }

// IsDirectory reports whether the stat target is a directory.
func (s Stat) IsDirectory() bool { return s.IsDirFlag }

// Stat returns metadata about path.
func (f *FS) Stat(path string) (Stat, error) {
	abs, err := f.checkRead(path)
	if err != nil {
		return Stat{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		IsFileFlag: info.Mode().IsRegular(),
		IsDirFlag:  info.IsDir(),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}, nil
}

// Exists reports whether path exists. It never fails: a Policy denial or an
// I/O error are both reported as "does not exist" (spec §4.2: "never throws").
func (f *FS) Exists(path string) bool {
	abs, err := f.checkRead(path)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(abs)
	return statErr == nil
}

// MkdirOptions controls Mkdir behavior.
type MkdirOptions struct {
	Recursive bool
}

// Mkdir creates path.
func (f *FS) Mkdir(path string, opts MkdirOptions) error {
	abs, err := f.checkWrite(path)
	if err != nil {
		return err
	}
	if opts.Recursive {
		return os.MkdirAll(abs, 0o755)
	}
	return os.Mkdir(abs, 0o755)
}

// RemoveOptions controls Remove behavior.
type RemoveOptions struct {
	Recursive bool
	Force     bool
}

// Remove deletes path.
func (f *FS) Remove(path string, opts RemoveOptions) error {
	abs, err := f.checkWrite(path)
	if err != nil {
		return err
	}
	if opts.Recursive {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil && opts.Force && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Copy copies src to dest; src must be readable and dest writable.
func (f *FS) Copy(src, dest string) error {
	srcAbs, err := f.checkRead(src)
	if err != nil {
		return err
	}
	destAbs, err := f.checkWrite(dest)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(srcAbs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destAbs, data, 0o644)
}

// Move moves src to dest; both must be writable.
func (f *FS) Move(src, dest string) error {
	srcAbs, err := f.checkWrite(src)
	if err != nil {
		return err
	}
	destAbs, err := f.checkWrite(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return err
	}
	return os.Rename(srcAbs, destAbs)
}

// Resolve, Relative, Join, Dirname, Basename, Extname are pure path helpers
// with no policy check (spec §4.2).

// Resolve returns the absolute, cwd-anchored form of path.
func (f *FS) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(f.cwd, path))
}

// Relative returns path relative to the facade's cwd.
func (f *FS) Relative(path string) (string, error) {
	return filepath.Rel(f.cwd, f.Resolve(path))
}

// Join joins path elements.
func (f *FS) Join(elems ...string) string {
	return filepath.Join(elems...)
}

// Dirname returns path's parent directory.
func (f *FS) Dirname(path string) string {
	return filepath.Dir(path)
}

// Basename returns path's final element.
func (f *FS) Basename(path string) string {
	return filepath.Base(path)
}

// Extname returns path's extension, including the leading dot.
func (f *FS) Extname(path string) string {
	return filepath.Ext(path)
}
