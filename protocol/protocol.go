// Package protocol implements the framed serial protocol spoken between the
// drive firmware and host tools.
//
// A frame is [length][sequence][payload][crc16 hi][crc16 lo][0x7E]. The
// payload is a sequence of VLQ-encoded command ids, each followed by its
// VLQ-encoded arguments. The framing and VLQ encoding follow Klipper so the
// same host tooling can talk to both kinds of firmware.
package protocol

// Version is the protocol/firmware version reported in the dictionary
const Version = "gofoc-0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageValueSync   = 0x7E

	// MessageDest is set in the high nibble of every sequence byte
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F
	MessageBufferMax = 512 // Scratch output capacity
)
