package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer implementing io.Writer.
// When full it silently overwrites the oldest data, so it always holds the
// most recent writes up to its capacity.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	write int // next write position
	count int // bytes currently stored, capped at len(buf)
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write implements io.Writer. Oldest data is dropped once the buffer wraps.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	cap := len(rb.buf)

	if n >= cap {
		// Larger than the whole buffer: only the tail survives
		copy(rb.buf, p[n-cap:])
		rb.write = 0
		rb.count = cap
		return n, nil
	}

	head := copy(rb.buf[rb.write:], p)
	if head < n {
		copy(rb.buf, p[head:])
	}
	rb.write = (rb.write + n) % cap
	rb.count += n
	if rb.count > cap {
		rb.count = cap
	}
	return n, nil
}

// Bytes returns the stored contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	start := (rb.write - rb.count + len(rb.buf)) % len(rb.buf)
	n := copy(out, rb.buf[start:])
	if n < rb.count {
		copy(out[n:], rb.buf[:rb.write])
	}
	return out
}

// Len returns the number of bytes currently stored.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// DumpToFile writes the buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
