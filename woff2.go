// Package woff2 converts the WOFF2 font format into its contained SFNT font
// format (TTF or OTF), including TrueType collections. See
// https://www.w3.org/TR/WOFF2/
package woff2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/andybalholm/brotli"
)

// Validation tests:
// https://github.com/w3c/woff2-tests

// Other implementations:
// http://git.savannah.gnu.org/cgit/freetype/freetype2.git/tree/src/sfnt/sfwoff2.c
// https://github.com/google/woff2/tree/master/src
// https://github.com/fonttools/fonttools/blob/master/Lib/fontTools/ttLib/woff2.py

// Over 14k test fonts the max compression ratio seen to date was ~20.
// >100 suggests a bad uncompressed size.
const maxPlausibleCompressionRatio = 100.0

// woff2TableTags is the fixed mapping from the 6-bit known-tag index in a
// directory entry's flag byte to its table tag; index 63 escapes to an
// explicit 4-byte tag.
var woff2TableTags = []string{
	"cmap", "head", "hhea", "hmtx",
	"maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca",
	"prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern",
	"LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS",
	"GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL",
	"SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar",
	"fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar",
	"mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat",
	"Gloc", "Feat", "Sill",
}

// woff2Table describes one entry of the WOFF2 table directory. srcOffset and
// srcLength locate the (possibly transformed) table data inside the
// decompressed stream; dstOffset and dstLength describe the table in the
// reconstructed SFNT and are set by the assembler.
type woff2Table struct {
	tag         string
	transformed bool
	srcOffset   uint32
	srcLength   uint32
	dstOffset   uint32
	dstLength   uint32
}

// ttcFont describes one font of a TrueType collection: its sfnt version and
// the indices of its tables in the shared directory.
type ttcFont struct {
	flavor         uint32
	dstOffset      uint32
	headerChecksum uint32
	tableIndices   []uint16
}

type woff2Header struct {
	flavor           uint32
	headerVersion    uint32 // 0 for a single font
	numTables        uint16
	compressed       []byte
	uncompressedSize uint32
	tables           []woff2Table
	ttcFonts         []ttcFont
}

// fontInfo accumulates data needed to reconstruct a single font. One per font
// of a TTC.
type fontInfo struct {
	numGlyphs       uint16
	indexFormat     uint16
	numHMetrics     uint16
	xMins           []int16
	tableEntryByTag map[string]uint32 // byte offset of the directory entry in the output
}

type checksumKey struct {
	tag       string
	srcOffset uint32
}

// rebuildInfo accumulates metadata while rebuilding the font. The checksums
// map memoizes tables that have been written, keyed by (tag, srcOffset)
// because the transformed loca has length zero and would otherwise collide
// with its neighbor.
type rebuildInfo struct {
	headerChecksum uint32
	fontInfos      []fontInfo
	tableOrder     [][]uint16 // per font, table indices in processing order
	checksums      map[checksumKey]uint32
}

// FinalSize returns the totalSfntSize field of the WOFF2 header, or 0 when
// the input is too short. It is the encoder's size estimate for the
// reconstructed font and is used only as an allocation hint; the actual
// output size may differ.
func FinalSize(b []byte) uint32 {
	if len(b) < 20 {
		return 0
	}
	return binary.BigEndian.Uint32(b[16:])
}

// ParseWOFF2 parses the WOFF2 font format and returns its contained SFNT font
// format (TTF or OTF), or the TTC collection format when the WOFF2 holds a
// collection. See https://www.w3.org/TR/WOFF2/
func ParseWOFF2(b []byte) ([]byte, error) {
	hdr, err := parseWOFF2Header(b)
	if err != nil {
		return nil, err
	}

	totalSfntSize := FinalSize(b)
	if MaxMemory < totalSfntSize {
		return nil, ErrExceedsMemory
	}
	w := NewBinaryWriter(make([]byte, totalSfntSize)) // initial guess, grows as needed

	rebuild := &rebuildInfo{checksums: map[checksumKey]uint32{}}
	if err := writeHeaders(hdr, rebuild, w); err != nil {
		return nil, err
	}

	if float64(hdr.uncompressedSize)/float64(len(b)) > maxPlausibleCompressionRatio {
		return nil, fmt.Errorf("implausible compression ratio")
	}

	// decompress font data using Brotli
	if hdr.uncompressedSize == 0 {
		return nil, ErrInvalidFontData
	} else if MaxMemory < hdr.uncompressedSize {
		return nil, ErrExceedsMemory
	}
	rBrotli := brotli.NewReader(bytes.NewReader(hdr.compressed)) // err is always nil
	dataBuf := bytes.NewBuffer(make([]byte, 0, hdr.uncompressedSize))
	n, err := io.Copy(dataBuf, io.LimitReader(rBrotli, int64(hdr.uncompressedSize)+1))
	if err != nil {
		return nil, err
	} else if n != int64(hdr.uncompressedSize) {
		return nil, fmt.Errorf("sum of table lengths must match decompressed font data size")
	}
	data := dataBuf.Bytes()

	for i := range rebuild.fontInfos {
		if err := reconstructFont(data, hdr, rebuild, i, w); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func parseWOFF2Header(b []byte) (*woff2Header, error) {
	if len(b) < 48 {
		return nil, ErrInvalidFontData
	}

	hdr := &woff2Header{}
	r := NewBinaryReader(b)
	signature := r.ReadString(4)
	if signature != "wOF2" {
		return nil, fmt.Errorf("bad signature")
	}
	hdr.flavor = r.ReadUint32()
	length := r.ReadUint32()           // length
	hdr.numTables = r.ReadUint16()     // numTables
	_ = r.ReadUint16()                 // reserved
	_ = r.ReadUint32()                 // totalSfntSize, not trusted
	compressedLength := r.ReadUint32() // totalCompressedSize
	_ = r.ReadUint16()                 // majorVersion
	_ = r.ReadUint16()                 // minorVersion
	metaOffset := r.ReadUint32()       // metaOffset
	metaLength := r.ReadUint32()       // metaLength
	_ = r.ReadUint32()                 // metaOrigLength
	privOffset := r.ReadUint32()       // privOffset
	privLength := r.ReadUint32()       // privLength
	if r.EOF() {
		return nil, ErrInvalidFontData
	} else if length != uint32(len(b)) {
		return nil, fmt.Errorf("length in header must match file size")
	} else if hdr.numTables == 0 {
		return nil, fmt.Errorf("numTables in header must not be zero")
	}
	if metaOffset != 0 && (uint32(len(b)) <= metaOffset || uint32(len(b))-metaOffset < metaLength) {
		return nil, fmt.Errorf("metadata block must lie within file")
	}
	if privOffset != 0 && (uint32(len(b)) <= privOffset || uint32(len(b))-privOffset < privLength) {
		return nil, fmt.Errorf("private data block must lie within file")
	}

	var srcOffset uint32
	for i := 0; i < int(hdr.numTables); i++ {
		flags := r.ReadByte()
		tagIndex := int(flags & 0x3F)
		transformVersion := int(flags&0xC0) >> 6

		var tag string
		if tagIndex == 63 {
			tag = uint32ToString(r.ReadUint32())
		} else {
			tag = woff2TableTags[tagIndex]
		}

		dstLength, err := readUintBase128(r)
		if err != nil {
			return nil, err
		}

		// the transform bit is implicit: version 0 means transformed for
		// glyf/loca, while any nonzero version means transformed elsewhere
		transformed := transformVersion != 0
		if tag == "glyf" || tag == "loca" {
			transformed = transformVersion == 0
		}
		transformLength := dstLength
		if transformed {
			transformLength, err = readUintBase128(r)
			if err != nil {
				return nil, err
			}
			if tag == "loca" && transformLength != 0 {
				return nil, fmt.Errorf("loca: transformLength must be zero")
			}
		}
		if math.MaxUint32-srcOffset < transformLength {
			return nil, ErrInvalidFontData
		}

		hdr.tables = append(hdr.tables, woff2Table{
			tag:         tag,
			transformed: transformed,
			srcOffset:   srcOffset,
			srcLength:   transformLength,
			dstLength:   dstLength,
		})
		srcOffset += transformLength
	}
	hdr.uncompressedSize = srcOffset

	if uint32ToString(hdr.flavor) == "ttcf" {
		hdr.headerVersion = r.ReadUint32()
		if r.EOF() {
			return nil, ErrInvalidFontData
		} else if hdr.headerVersion != 0x00010000 && hdr.headerVersion != 0x00020000 {
			return nil, fmt.Errorf("ttcf: version must be 1.0 or 2.0")
		}
		numFonts := read255Uint16(r)
		if r.EOF() {
			return nil, ErrInvalidFontData
		} else if numFonts == 0 {
			return nil, fmt.Errorf("ttcf: numFonts must not be zero")
		}
		for i := 0; i < int(numFonts); i++ {
			numTables := read255Uint16(r)
			if r.EOF() {
				return nil, ErrInvalidFontData
			} else if numTables == 0 {
				return nil, fmt.Errorf("ttcf: numTables must not be zero")
			}
			font := ttcFont{
				flavor:       r.ReadUint32(),
				tableIndices: make([]uint16, numTables),
			}
			iGlyf, iLoca := -1, -1
			for j := 0; j < int(numTables); j++ {
				index := read255Uint16(r)
				if r.EOF() {
					return nil, ErrInvalidFontData
				} else if int(index) >= len(hdr.tables) {
					return nil, fmt.Errorf("ttcf: table index out of range")
				}
				font.tableIndices[j] = index
				if hdr.tables[index].tag == "glyf" {
					iGlyf = int(index)
				} else if hdr.tables[index].tag == "loca" {
					iLoca = int(index)
				}
			}
			if (iGlyf != -1 || iLoca != -1) && iLoca-iGlyf != 1 {
				return nil, fmt.Errorf("ttcf: loca must come directly after glyf table")
			}
			hdr.ttcFonts = append(hdr.ttcFonts, font)
		}
	}

	compressedOffset := r.Pos()
	hdr.compressed = r.ReadBytes(compressedLength)
	if r.EOF() {
		return nil, ErrInvalidFontData
	}

	// the compressed stream, the optional metadata and private data blocks,
	// and the file end must line up on 4-byte padded boundaries
	end := round4(uint64(compressedOffset) + uint64(compressedLength))
	if metaOffset != 0 {
		if end != uint64(metaOffset) {
			return nil, fmt.Errorf("misplaced metadata block")
		}
		end = round4(uint64(metaOffset) + uint64(metaLength))
	}
	if privOffset != 0 {
		if end != uint64(privOffset) {
			return nil, fmt.Errorf("misplaced private data block")
		}
		end = round4(uint64(privOffset) + uint64(privLength))
	}
	if end != round4(uint64(len(b))) {
		return nil, fmt.Errorf("file length must match table of contents")
	}
	return hdr, nil
}

func readUintBase128(r *BinaryReader) (uint32, error) {
	// see https://www.w3.org/TR/WOFF2/#DataTypes
	var accum uint32
	for i := 0; i < 5; i++ {
		dataByte := r.ReadByte()
		if r.EOF() {
			return 0, ErrInvalidFontData
		}
		if i == 0 && dataByte == 0x80 {
			return 0, fmt.Errorf("readUintBase128: must not start with leading zeros")
		}
		if (accum & 0xFE000000) != 0 {
			return 0, fmt.Errorf("readUintBase128: overflow")
		}
		accum = (accum << 7) | uint32(dataByte&0x7F)
		if (dataByte & 0x80) == 0 {
			return accum, nil
		}
	}
	return 0, fmt.Errorf("readUintBase128: exceeds 5 bytes")
}

func read255Uint16(r *BinaryReader) uint16 {
	// see https://www.w3.org/TR/WOFF2/#DataTypes
	code := r.ReadByte()
	if code == 253 {
		return r.ReadUint16()
	} else if code == 255 {
		return uint16(r.ReadByte()) + 253
	} else if code == 254 {
		return uint16(r.ReadByte()) + 253*2
	} else {
		return uint16(code)
	}
}
