package protocol

import "errors"

var (
	ErrNeedMore  = errors.New("incomplete frame")
	ErrBadLength = errors.New("frame length out of range")
	ErrBadSeq    = errors.New("frame sequence byte missing destination bits")
	ErrBadSync   = errors.New("frame missing trailing sync byte")
	ErrBadCRC    = errors.New("frame crc mismatch")
	ErrTooLarge  = errors.New("payload exceeds frame capacity")
)

// Frame is one decoded message. Payload aliases the input.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// DecodeFrame validates the frame at the front of data and returns it along
// with its total length. ErrNeedMore means data holds a valid prefix.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, ErrNeedMore
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, ErrBadLength
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, ErrBadSeq
	}
	if len(data) < n {
		return Frame{}, 0, ErrNeedMore
	}
	if data[n-1] != MessageValueSync {
		return Frame{}, 0, ErrBadSync
	}
	want := uint16(data[n-3])<<8 | uint16(data[n-2])
	if CRC16(data[:n-MessageTrailerSize]) != want {
		return Frame{}, 0, ErrBadCRC
	}
	return Frame{Seq: seq, Payload: data[MessageHeaderSize : n-MessageTrailerSize]}, n, nil
}

// WriteFrame writes a complete frame to output. body fills in the payload.
func WriteFrame(output OutputBuffer, seq uint8, body func(OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if body != nil {
		body(output)
	}

	size := len(output.DataSince(cursor))
	output.Update(cursor, uint8(size+MessageTrailerSize))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// AppendFrame appends a frame carrying payload to dst
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MessagePayloadMax {
		return dst, ErrTooLarge
	}
	start := len(dst)
	dst = append(dst, uint8(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}

// NextSeq returns the sequence byte following seq
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
