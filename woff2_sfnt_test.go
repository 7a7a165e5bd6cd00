package woff2

import (
	"encoding/binary"
	"testing"

	"github.com/tdewolff/test"
	"golang.org/x/image/font/sfnt"
)

func TestWriteOffsetTable(t *testing.T) {
	var tests = []struct {
		numTables                              uint16
		searchRange, entrySelector, rangeShift uint16
	}{
		{1, 16, 0, 0},
		{9, 128, 3, 16},
		{16, 256, 4, 0},
		{17, 256, 4, 16},
	}
	for _, tt := range tests {
		w := NewBinaryWriter([]byte{})
		writeOffsetTable(w, 0x00010000, tt.numTables)
		test.T(t, binary.BigEndian.Uint16(w.Bytes()[6:]), tt.searchRange)
		test.T(t, binary.BigEndian.Uint16(w.Bytes()[8:]), tt.entrySelector)
		test.T(t, binary.BigEndian.Uint16(w.Bytes()[10:]), tt.rangeShift)
	}
}

func TestParseWOFF2Collection(t *testing.T) {
	tables := testFontTables(true)
	indices := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}
	fonts := []ttcFixtureFont{
		{0x00010000, indices},
		{0x00010000, indices},
	}
	b := buildWOFF2("ttcf", tables, 0x00020000, fonts)
	out, err := ParseWOFF2(b)
	test.Error(t, err)

	// TTC header with DSIG triple, then one offset table and directory per font
	test.T(t, string(out[:4]), "ttcf")
	test.T(t, binary.BigEndian.Uint32(out[4:]), uint32(0x00020000))
	test.T(t, binary.BigEndian.Uint32(out[8:]), uint32(2))
	font1 := binary.BigEndian.Uint32(out[12:])
	font2 := binary.BigEndian.Uint32(out[16:])
	test.T(t, font1, uint32(32))
	test.T(t, font2, uint32(32+12+16*9))

	// shared tables are written once; both directories point at the same copy
	glyfEntry1 := font1 + 12 + 16*1
	glyfEntry2 := font2 + 12 + 16*1
	test.T(t, string(out[glyfEntry1:glyfEntry1+4]), "glyf")
	test.Bytes(t, out[glyfEntry2:glyfEntry2+16], out[glyfEntry1:glyfEntry1+16])
	test.T(t, len(out), 32+2*(12+16*9)+44+24+8+56+36+8+32+8+32)

	coll, err := sfnt.ParseCollection(out)
	test.Error(t, err)
	test.T(t, coll.NumFonts(), 2)
	f, err := coll.Font(1)
	test.Error(t, err)
	test.T(t, f.NumGlyphs(), 2)

	out2, err := ParseWOFF2(b)
	test.Error(t, err)
	test.Bytes(t, out2, out)
}

func TestParseWOFF2CollectionNonConsecutiveLoca(t *testing.T) {
	tables := testFontTables(false) // loca not directly after glyf
	indices := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}
	b := buildWOFF2("ttcf", tables, 0x00010000, []ttcFixtureFont{{0x00010000, indices}})
	_, err := ParseWOFF2(b)
	test.That(t, err != nil, "non-consecutive glyf and loca must give error")
}

func TestParseWOFF2CollectionBadVersion(t *testing.T) {
	tables := testFontTables(true)
	indices := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}
	b := buildWOFF2("ttcf", tables, 0x00030000, []ttcFixtureFont{{0x00010000, indices}})
	_, err := ParseWOFF2(b)
	test.That(t, err != nil, "unknown collection version must give error")
}

func TestParseWOFF2CollectionSingleFont(t *testing.T) {
	// a v1.0 collection of one font has no DSIG triple
	tables := testFontTables(true)
	indices := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}
	b := buildWOFF2("ttcf", tables, 0x00010000, []ttcFixtureFont{{0x00010000, indices}})
	out, err := ParseWOFF2(b)
	test.Error(t, err)
	test.T(t, binary.BigEndian.Uint32(out[12:]), uint32(16))

	coll, err := sfnt.ParseCollection(out)
	test.Error(t, err)
	test.T(t, coll.NumFonts(), 1)
}
