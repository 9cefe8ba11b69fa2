package protocol

import (
	"math"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	tests := []struct {
		name  string
		value int32
		size  int
	}{
		{"zero", 0, 1},
		{"small positive", 42, 1},
		{"one byte max", 95, 1},
		{"two byte min", 96, 2},
		{"small negative", -32, 1},
		{"two byte negative", -33, 2},
		{"three byte", 100000, 3},
		{"four byte", 1 << 24, 4},
		{"five byte", math.MaxInt32, 5},
		{"min int", math.MinInt32, 5},
		{"minus one", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := NewScratchOutput()
			EncodeVLQInt(output, tt.value)
			data := output.Result()
			if len(data) != tt.size {
				t.Errorf("encoded %d in %d bytes, want %d (% x)", tt.value, len(data), tt.size, data)
			}

			decoded, err := DecodeVLQInt(&data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if decoded != tt.value {
				t.Errorf("round trip: got %d, want %d", decoded, tt.value)
			}
			if len(data) != 0 {
				t.Errorf("%d bytes left over", len(data))
			}
		})
	}
}

func TestVLQKnownEncoding(t *testing.T) {
	// Byte sequences produced by the Klipper host encoder
	output := NewScratchOutput()
	EncodeVLQUint(output, 0x80000000)
	got := output.Result()
	want := []byte{0x88, 0x80, 0x80, 0x80, 0x00}
	if string(got) != string(want) {
		t.Errorf("0x80000000 encoded as % x, want % x", got, want)
	}

	output.Reset()
	EncodeVLQInt(output, 1000)
	if got := output.Result(); got[0] != 0x87 || got[1] != 0x68 {
		t.Errorf("1000 encoded as % x, want 87 68", got)
	}
}

func TestVLQUintLargeValues(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x7FFFFFFF, 0x80000000, 0xDEADBEEF, math.MaxUint32} {
		output := NewScratchOutput()
		EncodeVLQUint(output, v)
		data := output.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != v {
			t.Errorf("uint %#x: got %#x err %v", v, got, err)
		}
	}
}

func TestVLQFloat(t *testing.T) {
	values := []float32{0, 1, -1, 0.05, 1500, 50e-6, -12.5, float32(math.Inf(1))}
	output := NewScratchOutput()
	for _, v := range values {
		EncodeVLQFloat(output, v)
	}
	data := output.Result()
	for _, want := range values {
		got, err := DecodeVLQFloat(&data)
		if err != nil {
			t.Fatalf("decode %v: %v", want, err)
		}
		if got != want {
			t.Errorf("float round trip: got %v, want %v", got, want)
		}
	}
}

func TestVLQDecodeErrors(t *testing.T) {
	empty := []byte{}
	if _, err := DecodeVLQInt(&empty); err != ErrBufferTooSmall {
		t.Errorf("empty input: got %v, want ErrBufferTooSmall", err)
	}

	truncated := []byte{0x81, 0x82}
	if _, err := DecodeVLQInt(&truncated); err != ErrBufferTooSmall {
		t.Errorf("truncated input: got %v, want ErrBufferTooSmall", err)
	}

	overlong := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&overlong); err != ErrInvalidVLQ {
		t.Errorf("overlong input: got %v, want ErrInvalidVLQ", err)
	}
}

func TestVLQBytes(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQBytes(output, []byte("foc"))
	EncodeVLQUint(output, 7)

	data := output.Result()
	b, err := DecodeVLQBytes(&data)
	if err != nil || string(b) != "foc" {
		t.Fatalf("bytes: got %q err %v", b, err)
	}
	if v, _ := DecodeVLQUint(&data); v != 7 {
		t.Errorf("trailing value: got %d, want 7", v)
	}

	short := []byte{5, 'a'}
	if _, err := DecodeVLQBytes(&short); err != ErrBufferTooSmall {
		t.Errorf("short string: got %v", err)
	}
}
