// Package tone provides in-memory PCM plumbing and the siren generator
// used by the local audio executor and the emergency controller.
package tone

import (
	"context"
	"io"
	"sync"
)

// Buffer is a simple in-memory circular buffer that retains the last N bytes
// of PCM and allows callers to open blocking readers that stream current +
// future data. Playback sinks read from it; generators write into it.
type Buffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	dropped int // total bytes trimmed off the front since creation
	max     int
	closed  bool
}

// NewBuffer creates a new Buffer with a maximum size in bytes.
func NewBuffer(maxBytes int) *Buffer {
	b := &Buffer{max: maxBytes}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends data to the buffer, truncating oldest bytes if necessary.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		excess := len(b.buf) - b.max
		b.buf = b.buf[excess:]
		b.dropped += excess
	}
	b.cond.Broadcast()
	return len(p), nil
}

// Close marks the buffer as closed and wakes readers.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}

// Reader is an io.ReadCloser that streams current buffer contents and waits
// for new data until the provided context is canceled. Positions are kept
// in the buffer's absolute byte stream, so a reader that falls behind an
// overflowing writer resumes at the oldest retained byte instead of
// re-reading skewed data.
type Reader struct {
	buf    *Buffer
	ctx    context.Context
	stop   func() bool
	offset int // absolute position in the byte stream
	closed bool
}

func (r *Reader) Read(p []byte) (int, error) {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if r.closed {
			return 0, io.ErrClosedPipe
		}
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		if r.offset < b.dropped {
			r.offset = b.dropped
		}
		if idx := r.offset - b.dropped; idx < len(b.buf) {
			n := copy(p, b.buf[idx:])
			r.offset += n
			return n, nil
		}

		if b.closed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}
}

func (r *Reader) Close() error {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.stop != nil {
		r.stop()
	}
	b.cond.Broadcast()
	return nil
}

// NewReader returns an io.ReadCloser that streams current buffer contents
// and blocks for future writes until ctx is done.
func (b *Buffer) NewReader(ctx context.Context) io.ReadCloser {
	r := &Reader{buf: b, ctx: ctx}
	b.mu.Lock()
	r.offset = b.dropped
	b.mu.Unlock()
	// Wake any blocked Read when ctx ends so it can return ctx.Err().
	r.stop = context.AfterFunc(ctx, b.cond.Broadcast)
	return r
}
