package progress

import (
	"io"
	"sync/atomic"
)

// ReadCounter wraps a reader and tracks bytes read so far, giving a
// byte-count progress signal for a stream such as a child process's stdout
// pipe. No other package in this module uses it; the process supervisor
// (C2) reads its pipes directly.
type ReadCounter struct {
	r     io.Reader
	count uint64
}

func NewReadCounter(r io.Reader) *ReadCounter {
	return &ReadCounter{r: r}
}

func (h *ReadCounter) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		atomic.AddUint64(&h.count, uint64(n))
	}
	return n, err
}

func (h *ReadCounter) Count() uint64 {
	return atomic.LoadUint64(&h.count)
}
