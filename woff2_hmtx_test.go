package woff2

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestReconstructHmtx(t *testing.T) {
	info := &fontInfo{numGlyphs: 3, numHMetrics: 2, xMins: []int16{10, 20, 30}}

	// proportional lsbs omitted, monospace lsbs explicit
	b := []byte{0x01, 0x01, 0xF4, 0x02, 0x58, 0x00, 0x28}
	w := NewBinaryWriter([]byte{})
	checksum, err := reconstructHmtx(b, info, w)
	test.Error(t, err)
	test.Bytes(t, w.Bytes(), []byte{0x01, 0xF4, 0x00, 0x0A, 0x02, 0x58, 0x00, 0x14, 0x00, 0x28})
	test.T(t, checksum, calcChecksum(w.Bytes()))

	// proportional lsbs explicit, monospace lsbs omitted
	b = []byte{0x02, 0x01, 0xF4, 0x02, 0x58, 0xFF, 0xF6, 0x00, 0x07}
	w = NewBinaryWriter([]byte{})
	_, err = reconstructHmtx(b, info, w)
	test.Error(t, err)
	test.Bytes(t, w.Bytes(), []byte{0x01, 0xF4, 0xFF, 0xF6, 0x02, 0x58, 0x00, 0x07, 0x00, 0x1E})

	// both arrays explicit
	b = []byte{0x00, 0x01, 0xF4, 0x02, 0x58, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03}
	w = NewBinaryWriter([]byte{})
	_, err = reconstructHmtx(b, info, w)
	test.Error(t, err)
	test.Bytes(t, w.Bytes(), []byte{0x01, 0xF4, 0x00, 0x01, 0x02, 0x58, 0x00, 0x02, 0x00, 0x03})
}

func TestReconstructHmtxBadFlags(t *testing.T) {
	info := &fontInfo{numGlyphs: 2, numHMetrics: 1, xMins: []int16{5, 7}}

	// both lsb arrays omitted
	_, err := reconstructHmtx([]byte{0x03, 0x01, 0xF4}, info, NewBinaryWriter([]byte{}))
	test.That(t, err != nil, "flags 0x03 must give error")

	// reserved bits
	_, err = reconstructHmtx([]byte{0x05, 0x01, 0xF4, 0x00, 0x07}, info, NewBinaryWriter([]byte{}))
	test.That(t, err != nil, "reserved flag bits must give error")
}

func TestReconstructHmtxBadMetrics(t *testing.T) {
	// no hmetrics
	info := &fontInfo{numGlyphs: 2, numHMetrics: 0, xMins: []int16{5, 7}}
	_, err := reconstructHmtx([]byte{0x01}, info, NewBinaryWriter([]byte{}))
	test.That(t, err != nil, "zero numHMetrics must give error")

	// more hmetrics than glyphs
	info = &fontInfo{numGlyphs: 1, numHMetrics: 2, xMins: []int16{5}}
	_, err = reconstructHmtx([]byte{0x01, 0x01, 0xF4, 0x01, 0xF4}, info, NewBinaryWriter([]byte{}))
	test.That(t, err != nil, "numHMetrics exceeding numGlyphs must give error")

	// truncated advance widths
	info = &fontInfo{numGlyphs: 2, numHMetrics: 2, xMins: []int16{5, 7}}
	_, err = reconstructHmtx([]byte{0x01, 0x01}, info, NewBinaryWriter([]byte{}))
	test.That(t, err != nil, "truncated input must give error")
}
