package harden

import (
	"encoding/json"
	"os"
	"sync"
)

// FileSink appends each ViolationEvent as a JSON line to a file under the
// XDG state directory, so a host operator can audit what a plugin
// attempted across many invocations (SPEC_FULL.md "Violation audit log").
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) the audit log at path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

// Report implements Sink.
func (s *FileSink) Report(v ViolationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = s.file.Write(data)
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error {
	return s.file.Close()
}
