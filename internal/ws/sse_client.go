package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// SSEClient streams project events as Server-Sent Events.
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
	seq     uint64
	done    chan struct{}
}

// NewSSEClient builds an SSE subscriber.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: writer, flusher: flusher, log: logger, done: make(chan struct{})}
}

// Send emits a project event frame. Frames are numbered from 1 per connection.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.seq++
	if _, err := fmt.Fprintf(c.writer, "id: %d\nevent: project\ndata: %s\n\n", c.seq, payload); err != nil {
		c.log.Warn("sse send failed", "error", err)
		c.closeLocked()
		return err
	}
	c.flusher.Flush()
	return nil
}

// Heartbeat emits a comment frame to keep intermediaries from timing out.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		c.closeLocked()
		return err
	}
	c.flusher.Flush()
	return nil
}

// Done is closed once the stream stops accepting frames.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *SSEClient) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
