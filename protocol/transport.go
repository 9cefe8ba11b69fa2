package protocol

import "sync/atomic"

// CommandHandler handles one decoded command. It consumes its arguments
// from the front of *data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it validates incoming frames,
// dispatches their commands and acknowledges every frame.
type Transport struct {
	synchronized atomic.Bool
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()

	// Counters for the status report
	crcErrors atomic.Uint32
	dropped   atomic.Uint32
}

// NewTransport creates a synchronized transport expecting sequence 0x10
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes as many complete frames as input holds. A partial frame
// at the end is left in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized.Load() {
			i := indexSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			t.synchronized.Store(true)
			t.encodeAckNak()
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, err := DecodeFrame(data)
		if err == ErrNeedMore {
			break
		}
		if err != nil {
			if err == ErrBadCRC {
				t.crcErrors.Add(1)
			}
			t.dropped.Add(1)
			t.synchronized.Store(false)
			continue
		}
		data = data[n:]

		expected := uint8(t.nextSequence.Load())
		if frame.Seq == MessageDest && expected != MessageDest {
			// Host restarted its sequence
			t.nextSequence.Store(MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if frame.Seq == expected {
			t.nextSequence.Store(uint32(NextSeq(frame.Seq)))
			_ = t.parseFrame(frame.Payload)
		}
		// A mismatched sequence is answered with the expected one (NAK)
		t.encodeAckNak()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}

// parseFrame dispatches every command in a frame
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synchronized.Store(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.synchronized.Store(false)
			return err
		}
		if t.handler == nil {
			return nil
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak sends an empty frame carrying the next expected sequence
func (t *Transport) encodeAckNak() {
	ns := uint8(t.nextSequence.Load())
	crc := CRC16([]byte{MessageLengthMin, ns})
	t.output.Output([]byte{MessageLengthMin, ns, uint8(crc >> 8), uint8(crc), MessageValueSync})

	// ACK goes out before any response queued by the handler
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame sends a frame. Responses reuse the current sequence.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	WriteFrame(t.output, uint8(t.nextSequence.Load()), frameData)
}

// SendCommand sends a command id followed by its arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// Synchronized reports whether the receiver is frame-aligned
func (t *Transport) Synchronized() bool { return t.synchronized.Load() }

// Errors returns the number of CRC failures and dropped frames
func (t *Transport) Errors() (crc, dropped uint32) {
	return t.crcErrors.Load(), t.dropped.Load()
}

// SetResetCallback sets a callback run when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback that pushes pending output to the wire
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
