package protocol

import (
	"errors"
	"math"
)

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// vlqBounds are the ranges that fit in 1..4 bytes; anything outside needs 5
var vlqBounds = [4]struct{ lo, hi int32 }{
	{-(1 << 26), 3 << 26},
	{-(1 << 19), 3 << 19},
	{-(1 << 12), 3 << 12},
	{-(1 << 5), 3 << 5},
}

// EncodeVLQInt appends v in the Klipper variable-length encoding:
// most significant 7-bit group first, continuation bit 0x80.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	for i, b := range vlqBounds {
		if v < b.lo || v >= b.hi {
			shift := uint(28 - 7*i)
			buf[n] = byte((uint32(v)>>shift)&0x7F) | 0x80
			n++
		}
	}
	buf[n] = byte(v & 0x7F)
	output.Output(buf[:n+1])
}

// EncodeVLQUint appends an unsigned value
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// EncodeVLQFloat appends a float32 as the VLQ of its IEEE-754 bits
func EncodeVLQFloat(output OutputBuffer, f float32) {
	EncodeVLQUint(output, math.Float32bits(f))
}

// DecodeVLQInt consumes one value from the front of *data
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// Negative: sign-extend the first group
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}

	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint consumes one unsigned value
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// DecodeVLQFloat consumes one float32 encoded with EncodeVLQFloat
func DecodeVLQFloat(data *[]byte) (float32, error) {
	bits, err := DecodeVLQUint(data)
	return math.Float32frombits(bits), err
}

// EncodeVLQBytes appends a length-prefixed byte string
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes consumes a length-prefixed byte string.
// The result aliases *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrBufferTooSmall
	}
	out := (*data)[:n]
	*data = (*data)[n:]
	return out, nil
}
