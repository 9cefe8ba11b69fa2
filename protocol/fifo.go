package protocol

import "sync/atomic"

// FifoBuffer is a byte ring between one writer (the serial reader) and one
// reader (the transport). It implements InputBuffer.
type FifoBuffer struct {
	buf   []byte
	flat  []byte // contiguous copy handed out by Data when the ring wraps
	read  atomic.Uint32
	write atomic.Uint32
}

// NewFifoBuffer returns a ring holding up to capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		flat: make([]byte, capacity),
	}
}

// Write appends as much of data as fits and returns the count written
func (f *FifoBuffer) Write(data []byte) int {
	size := uint32(len(f.buf))
	w := f.write.Load()
	r := f.read.Load()
	n := 0
	for _, b := range data {
		next := (w + 1) % size
		if next == r {
			break
		}
		f.buf[w] = b
		w = next
		n++
	}
	f.write.Store(w)
	return n
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	w, r := f.write.Load(), f.read.Load()
	if w >= r {
		return int(w - r)
	}
	return len(f.buf) - int(r) + int(w)
}

// Free returns the number of bytes Write can still accept
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes in order. The slice is valid until the
// next Data or Pop.
func (f *FifoBuffer) Data() []byte {
	w, r := f.write.Load(), f.read.Load()
	if r <= w {
		return f.buf[r:w]
	}
	n := copy(f.flat, f.buf[r:])
	n += copy(f.flat[n:], f.buf[:w])
	return f.flat[:n]
}

// Pop discards n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if avail := f.Available(); n > avail {
		n = avail
	}
	size := uint32(len(f.buf))
	f.read.Store((f.read.Load() + uint32(n)) % size)
}

// Reset empties the ring. Only safe while the writer is stopped.
func (f *FifoBuffer) Reset() {
	f.read.Store(0)
	f.write.Store(0)
}
