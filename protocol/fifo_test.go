package protocol

import (
	"bytes"
	"testing"
)

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if fifo.Available() != 0 || fifo.Free() != 9 {
		t.Errorf("new fifo: available %d free %d", fifo.Available(), fifo.Free())
	}

	if n := fifo.Write([]byte{1, 2, 3, 4, 5}); n != 5 {
		t.Errorf("wrote %d bytes, want 5", n)
	}
	fifo.Pop(3)
	if !bytes.Equal(fifo.Data(), []byte{4, 5}) {
		t.Errorf("after pop: %v", fifo.Data())
	}

	fifo.Reset()
	big := make([]byte, 12)
	if n := fifo.Write(big); n != 9 {
		t.Errorf("Expected to write 9 bytes to size-10 FIFO, wrote %d", n)
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)
	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Pop(2)

	if n := fifo.Write([]byte{5, 6}); n != 2 {
		t.Errorf("Expected to write 2 bytes, wrote %d", n)
	}
	if got := fifo.Data(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("Wrap-around data mismatch: got %v", got)
	}
	fifo.Pop(10)
	if fifo.Available() != 0 {
		t.Errorf("over-pop left %d bytes", fifo.Available())
	}
}

func TestFifoFeedsTransport(t *testing.T) {
	var got []uint32
	out := NewScratchOutput()
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		got = append(got, v)
		return err
	})

	fifo := NewFifoBuffer(32)
	frame, _ := AppendFrame(nil, MessageDest, []byte{0x05, 0x2A})

	// Deliver the frame in two pieces, the second one wrapping the ring
	fifo.Write(make([]byte, 28))
	fifo.Pop(28)
	fifo.Write(frame[:4])
	tr.Receive(fifo)
	if len(got) != 0 {
		t.Fatal("dispatched a partial frame")
	}
	fifo.Write(frame[4:])
	tr.Receive(fifo)

	if len(got) != 1 || got[0] != 42 {
		t.Errorf("dispatched %v", got)
	}
	if fifo.Available() != 0 {
		t.Errorf("%d bytes left in fifo", fifo.Available())
	}
}
