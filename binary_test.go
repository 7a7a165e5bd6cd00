package woff2

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestBinaryReader(t *testing.T) {
	r := NewBinaryReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})
	test.T(t, r.ReadByte(), byte(0x01))
	test.T(t, r.ReadUint16(), uint16(0x0203))
	test.T(t, r.ReadUint32(), uint32(0x04050607))
	test.T(t, r.Pos(), uint32(7))
	test.T(t, r.Len(), uint32(2))
	test.T(t, r.ReadInt16(), int16(0x0809))
	test.That(t, !r.EOF(), "EOF must not be set")

	test.T(t, r.ReadByte(), byte(0))
	test.That(t, r.EOF(), "EOF must be set")

	r.Seek(5)
	test.That(t, !r.EOF(), "EOF must be cleared by Seek")
	test.T(t, r.ReadUint32(), uint32(0x06070809))

	r.Seek(10)
	test.That(t, r.EOF(), "EOF must be set by out of bounds Seek")
}

func TestBinaryReaderBytes(t *testing.T) {
	r := NewBinaryReader([]byte("wOF2true"))
	test.T(t, r.ReadString(4), "wOF2")
	test.T(t, string(r.ReadBytes(4)), "true")
	test.That(t, r.ReadBytes(1) == nil, "read past end must return nil")
	test.That(t, r.EOF(), "EOF must be set")
}

func TestBinaryWriter(t *testing.T) {
	w := NewBinaryWriter(make([]byte, 3)) // buffer serves as capacity
	test.T(t, w.Len(), uint32(0))
	w.WriteString("head")
	w.WriteByte(0x01)
	w.WriteUint16(0x0203)
	w.WriteInt16(-2)
	w.WriteUint32(0x04050607)
	test.T(t, w.Len(), uint32(13))
	test.Bytes(t, w.Bytes(), []byte{'h', 'e', 'a', 'd', 0x01, 0x02, 0x03, 0xFF, 0xFE, 0x04, 0x05, 0x06, 0x07})
}

func TestBitmapReader(t *testing.T) {
	r := NewBitmapReader([]byte{0xA0, 0x01})
	bits := make([]bool, 16)
	for i := range bits {
		bits[i] = r.Read()
	}
	test.That(t, !r.EOF(), "EOF must not be set")
	test.T(t, bits[0], true)
	test.T(t, bits[1], false)
	test.T(t, bits[2], true)
	test.T(t, bits[15], true)
	for _, bit := range bits[3:15] {
		test.T(t, bit, false)
	}
	test.T(t, r.Read(), false)
	test.That(t, r.EOF(), "EOF must be set")
}

func TestReadUintBase128(t *testing.T) {
	var tests = []struct {
		b   []byte
		v   uint32
		err bool
	}{
		{[]byte{0x3F}, 63, false},
		{[]byte{0x81, 0x00}, 128, false},
		{[]byte{0x8F, 0xFF, 0xFF, 0xFF, 0x7F}, 0xFFFFFFFF, false},
		{[]byte{0x80, 0x3F}, 0, true},                   // leading zero
		{[]byte{0x90, 0xFF, 0xFF, 0xFF, 0x7F}, 0, true}, // overflow
		{[]byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x00}, 0, true},
		{[]byte{0x81}, 0, true}, // truncated
	}
	for _, tt := range tests {
		r := NewBinaryReader(tt.b)
		v, err := readUintBase128(r)
		if tt.err {
			test.That(t, err != nil, "must give error for", tt.b)
		} else {
			test.Error(t, err)
			test.T(t, v, tt.v)
		}
	}
}

func TestRead255Uint16(t *testing.T) {
	var tests = []struct {
		b []byte
		v uint16
	}{
		{[]byte{0x00}, 0},
		{[]byte{0xFC}, 252},
		{[]byte{0xFF, 0x00}, 253},
		{[]byte{0xFF, 0xFF}, 508},
		{[]byte{0xFE, 0x00}, 506},
		{[]byte{0xFE, 0xFF}, 761},
		{[]byte{0xFD, 0x01, 0xF4}, 500},
		{[]byte{0xFD, 0xFF, 0xFF}, 65535},
	}
	for _, tt := range tests {
		r := NewBinaryReader(tt.b)
		test.T(t, read255Uint16(r), tt.v)
		test.That(t, !r.EOF(), "EOF must not be set for", tt.b)
	}
}
