package woff2

import (
	"encoding/binary"
	"fmt"
)

// MaxMemory is the maximum memory that a font is allowed to occupy, both for
// the decompressed font data and for the reconstructed SFNT output.
var MaxMemory uint32 = 30 * 1024 * 1024

// ErrExceedsMemory is returned if the font would exceed MaxMemory.
var ErrExceedsMemory = fmt.Errorf("memory limit exceded")

// ErrInvalidFontData is returned if the font is malformed.
var ErrInvalidFontData = fmt.Errorf("invalid font data")

// calcChecksum sums b as big-endian uint32s. A length that is not a multiple
// of four is treated as if b were zero-padded to the next multiple.
func calcChecksum(b []byte) uint32 {
	var sum uint32
	n := len(b) &^ 3
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(b[i:])
	}
	if n != len(b) {
		var tail [4]byte
		copy(tail[:], b[n:])
		sum += binary.BigEndian.Uint32(tail[:])
	}
	return sum
}

func round4(v uint64) uint64 {
	return (v + 3) &^ 3
}

func uint32ToString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}
