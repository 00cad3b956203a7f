package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// maxLineSize bounds one line-delimited JSON frame. Adapter payloads are
// small RPC calls, not bulk data transfer (that goes through runtime.fs /
// artifacts instead), so a generous but finite cap catches a runaway peer.
const maxLineSize = 8 << 20 // 8 MiB

// lineWriter serialises one JSON value per line, newline-terminated,
// guarding against interleaved writes from concurrent callers (spec §4.4:
// "one JSON value per line, UTF-8, \n-terminated").
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (l *lineWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}

// lineReader reads one JSON value per line. Lines that fail to parse are
// logged and skipped rather than treated as fatal (spec §4.4: "readers
// accumulate bytes until a newline, parse that line, ignore lines that do
// not parse" — forward-compatibility with added fields, spec §7).
type lineReader struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
}

func newLineReader(r io.Reader, logger *slog.Logger) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	if logger == nil {
		logger = slog.Default()
	}
	return &lineReader{scanner: scanner, logger: logger}
}

// next reads and decodes the next valid frame, skipping malformed lines.
// Returns false (ok=false) once the underlying reader is exhausted.
func next[T any](lr *lineReader) (frame T, ok bool) {
	for lr.scanner.Scan() {
		line := lr.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			lr.logger.Warn("ipc: dropping malformed frame", "error", err)
			continue
		}
		return v, true
	}
	return frame, false
}
