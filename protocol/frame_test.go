package protocol

import (
	"bytes"
	"testing"
)

func TestAppendFrameDecode(t *testing.T) {
	payload := []byte{1, 2, 3}
	frame, err := AppendFrame(nil, 0x12, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != len(payload)+MessageLengthMin || frame[0] != byte(len(frame)) {
		t.Fatalf("bad length byte: % x", frame)
	}

	got, n, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(frame) || got.Seq != 0x12 || !bytes.Equal(got.Payload, payload) {
		t.Errorf("decoded %+v n=%d", got, n)
	}
}

func TestWriteFrameMatchesAppend(t *testing.T) {
	out := NewScratchOutput()
	WriteFrame(out, 0x15, func(o OutputBuffer) { o.Output([]byte{9, 8, 7}) })
	want, _ := AppendFrame(nil, 0x15, []byte{9, 8, 7})
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("WriteFrame % x, AppendFrame % x", out.Result(), want)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	good, _ := AppendFrame(nil, 0x10, []byte{4})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"short", func(b []byte) []byte { return b[:3] }, ErrNeedMore},
		{"partial", func(b []byte) []byte { return b[:len(b)-1] }, ErrNeedMore},
		{"length", func(b []byte) []byte { b[0] = 2; return b }, ErrBadLength},
		{"sequence", func(b []byte) []byte { b[1] = 0x20; return b }, ErrBadSeq},
		{"sync", func(b []byte) []byte { b[len(b)-1] = 0; return b }, ErrBadSync},
		{"crc", func(b []byte) []byte { b[2] ^= 0xFF; return b }, ErrBadCRC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			if _, _, err := DecodeFrame(data); err != tt.want {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAppendFrameTooLarge(t *testing.T) {
	if _, err := AppendFrame(nil, 0x10, make([]byte, MessagePayloadMax+1)); err != ErrTooLarge {
		t.Errorf("got %v, want ErrTooLarge", err)
	}
}

func TestNextSeqWraps(t *testing.T) {
	if NextSeq(0x1F) != 0x10 {
		t.Errorf("NextSeq(0x1f) = %#x", NextSeq(0x1F))
	}
	if NextSeq(0x10) != 0x11 {
		t.Errorf("NextSeq(0x10) = %#x", NextSeq(0x10))
	}
}
