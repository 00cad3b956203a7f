package ipc

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// randSuffix returns a random 32-bit value for request id uniqueness
// (spec §4.4: `"rpc-<monotonic>-<random>"`).
func randSuffix() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Client is the child-side IPC data-channel client (spec §4.4). It
// multiplexes concurrent adapter:call requests over one socket connection
// keyed by requestId.
type Client struct {
	conn   net.Conn
	writer *lineWriter
	reader *lineReader
	logger *slog.Logger

	counter uint64

	mu      sync.Mutex
	pending map[string]chan AdapterResponse
	closed  bool
}

// DialUnix connects to the host's data-channel socket at socketPath,
// retrying with exponential backoff for up to maxWait: the child process
// may be scheduled before the host finishes its net.Listen call, so the
// first few dial attempts failing is an expected race, not an error.
func DialUnix(ctx context.Context, socketPath string, maxWait time.Duration, logger *slog.Logger) (*Client, error) {
	backoff := retry.WithMaxDuration(maxWait, retry.NewExponential(10*time.Millisecond))

	var conn net.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, dialErr := net.Dial("unix", socketPath)
		if dialErr != nil {
			return retry.RetryableError(dialErr)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial ipc socket %s: %w", socketPath, err)
	}

	return NewClient(conn, logger), nil
}

// NewClient wraps an already-established connection.
func NewClient(conn net.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:    conn,
		writer:  newLineWriter(conn),
		reader:  newLineReader(conn, logger),
		logger:  logger,
		pending: make(map[string]chan AdapterResponse),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		resp, ok := next[AdapterResponse](c.reader)
		if !ok {
			c.failAllPending(fmt.Errorf("ipc: connection closed"))
			return
		}

		c.mu.Lock()
		ch, found := c.pending[resp.RequestID]
		if found {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()

		if !found {
			continue // no one is waiting (already timed out) — drop silently
		}
		ch <- resp
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for id, ch := range c.pending {
		ch <- AdapterResponse{RequestID: id, Error: &RPCError{Message: err.Error(), Code: "IPC_ERROR"}}
		delete(c.pending, id)
	}
}

// nextRequestID generates a globally-unique-per-client id of the form
// "rpc-<monotonic>-<random>" (spec §4.4).
func (c *Client) nextRequestID() string {
	n := atomic.AddUint64(&c.counter, 1)
	return fmt.Sprintf("rpc-%d-%08x", n, randSuffix())
}

// Call issues an adapter:call request and blocks until the matching
// response arrives or timeout elapses (default DefaultCallTimeout).
func (c *Client) Call(ctx context.Context, adapter, method string, args []any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	requestID := c.nextRequestID()
	ch := make(chan AdapterResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("ipc: client is closed")
	}
	c.pending[requestID] = ch
	c.mu.Unlock()

	call := AdapterCall{
		Type:      TypeAdapterCall,
		RequestID: requestID,
		Adapter:   adapter,
		Method:    method,
		Args:      args,
		TimeoutMs: timeout.Milliseconds(),
	}
	if err := c.writer.writeJSON(call); err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("ipc: write request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("ipc: call %s.%s timed out after %s", adapter, method, timeout)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Close fails all outstanding pending calls with a cancellation error and
// releases the socket (spec §4.4). Reconnect is never attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		ch <- AdapterResponse{RequestID: id, Error: &RPCError{Message: "ipc: client closed", Code: "IPC_ERROR"}}
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}
