package woff2

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// sortTableIndices puts a font's table indices in tag order, the order in
// which its directory entries are written and its tables are processed. A tag
// referenced twice by the same font is rejected.
func sortTableIndices(indices []uint16, tables []woff2Table) error {
	sort.Slice(indices, func(i, j int) bool {
		return tables[indices[i]].tag < tables[indices[j]].tag
	})
	for i := 1; i < len(indices); i++ {
		if tables[indices[i-1]].tag == tables[indices[i]].tag {
			return fmt.Errorf("%s: table defined more than once", tables[indices[i]].tag)
		}
	}
	return nil
}

// offsetToFirstTable returns the size of the header region: everything before
// the first table, that is the offset subtable and directory entries of all
// fonts plus, for collections, the TTC header.
func offsetToFirstTable(hdr *woff2Header) uint64 {
	if hdr.headerVersion == 0 {
		return 12 + 16*uint64(hdr.numTables)
	}
	offset := uint64(12) + 4*uint64(len(hdr.ttcFonts))
	if hdr.headerVersion == 0x00020000 {
		offset += 12 // ulDsigTag, ulDsigLength, ulDsigOffset
	}
	for _, font := range hdr.ttcFonts {
		offset += 12 + 16*uint64(len(font.tableIndices))
	}
	return offset
}

func writeOffsetTable(w *BinaryWriter, flavor uint32, numTables uint16) {
	searchRange := uint32(1)
	var entrySelector uint16
	for searchRange*2 <= uint32(numTables) {
		searchRange *= 2
		entrySelector++
	}
	searchRange *= 16
	rangeShift := uint32(numTables)*16 - searchRange

	w.WriteUint32(flavor)
	w.WriteUint16(numTables)
	w.WriteUint16(uint16(searchRange))
	w.WriteUint16(entrySelector)
	w.WriteUint16(uint16(rangeShift))
}

// writeHeaders writes everything before the actual table data: the offset
// subtable and zeroed directory entries for every font and, for collections,
// the TTC header. It records the byte offset of each directory entry for
// back-patching, and the header checksums that seed the font checksums.
func writeHeaders(hdr *woff2Header, rebuild *rebuildInfo, w *BinaryWriter) error {
	if uint64(MaxMemory) < offsetToFirstTable(hdr) {
		return ErrExceedsMemory
	}

	if hdr.headerVersion != 0 {
		w.WriteUint32(hdr.flavor) // TTCTag "ttcf"
		w.WriteUint32(hdr.headerVersion)
		w.WriteUint32(uint32(len(hdr.ttcFonts)))
		offsetTablePos := w.Len()
		for range hdr.ttcFonts {
			w.WriteUint32(0) // OffsetTable, set below
		}
		if hdr.headerVersion == 0x00020000 {
			w.WriteUint32(0) // ulDsigTag
			w.WriteUint32(0) // ulDsigLength
			w.WriteUint32(0) // ulDsigOffset
		}

		rebuild.fontInfos = make([]fontInfo, len(hdr.ttcFonts))
		rebuild.tableOrder = make([][]uint16, len(hdr.ttcFonts))
		for i := range hdr.ttcFonts {
			font := &hdr.ttcFonts[i]
			if err := sortTableIndices(font.tableIndices, hdr.tables); err != nil {
				return err
			}
			rebuild.tableOrder[i] = font.tableIndices

			binary.BigEndian.PutUint32(w.Bytes()[offsetTablePos+4*uint32(i):], w.Len())
			font.dstOffset = w.Len()
			writeOffsetTable(w, font.flavor, uint16(len(font.tableIndices)))

			info := &rebuild.fontInfos[i]
			info.tableEntryByTag = make(map[string]uint32, len(font.tableIndices))
			for _, index := range font.tableIndices {
				tag := hdr.tables[index].tag
				info.tableEntryByTag[tag] = w.Len()
				w.WriteString(tag)
				w.WriteUint32(0) // checkSum, set later
				w.WriteUint32(0) // offset
				w.WriteUint32(0) // length
			}
			font.headerChecksum = calcChecksum(w.Bytes()[font.dstOffset:w.Len()])
		}
	} else {
		indices := make([]uint16, len(hdr.tables))
		for i := range indices {
			indices[i] = uint16(i)
		}
		if err := sortTableIndices(indices, hdr.tables); err != nil {
			return err
		}

		writeOffsetTable(w, hdr.flavor, hdr.numTables)
		rebuild.fontInfos = make([]fontInfo, 1)
		rebuild.tableOrder = [][]uint16{indices}
		info := &rebuild.fontInfos[0]
		info.tableEntryByTag = make(map[string]uint32, len(indices))
		for _, index := range indices {
			tag := hdr.tables[index].tag
			info.tableEntryByTag[tag] = w.Len()
			w.WriteString(tag)
			w.WriteUint32(0) // checkSum, set later
			w.WriteUint32(0) // offset
			w.WriteUint32(0) // length
		}
	}
	rebuild.headerChecksum = calcChecksum(w.Bytes())
	return nil
}

// reconstructFont writes the tables of one font in tag order, reversing the
// glyf, loca and hmtx transforms and passing other tables through. Each
// table's directory entry is back-patched with its checksum, offset and
// length, and head.checkSumAdjustment is set last. For collections, a table
// already written by an earlier font is not written again; its checksum and
// destination range are reused.
func reconstructFont(data []byte, hdr *woff2Header, rebuild *rebuildInfo, fontIndex int, w *BinaryWriter) error {
	info := &rebuild.fontInfos[fontIndex]
	indices := rebuild.tableOrder[fontIndex]

	iGlyf, iLoca, iHead := -1, -1, -1
	for _, index := range indices {
		switch hdr.tables[index].tag {
		case "glyf":
			iGlyf = int(index)
		case "loca":
			iLoca = int(index)
		case "head":
			iHead = int(index)
		}
	}
	if (iGlyf == -1) != (iLoca == -1) {
		return fmt.Errorf("glyf and loca tables must be both present or both absent")
	} else if iGlyf != -1 && hdr.tables[iGlyf].transformed != hdr.tables[iLoca].transformed {
		return fmt.Errorf("glyf and loca tables must either be both transformed or untransformed")
	}

	fontChecksum := rebuild.headerChecksum
	if hdr.headerVersion != 0 {
		fontChecksum = hdr.ttcFonts[fontIndex].headerChecksum
	}

	var locaChecksum uint32
	for _, index := range indices {
		table := &hdr.tables[index]

		key := checksumKey{table.tag, table.srcOffset}
		checksum, reused := rebuild.checksums[key]
		if reused && fontIndex == 0 {
			return fmt.Errorf("%s: table defined more than once", table.tag)
		}
		if uint64(len(data)) < uint64(table.srcOffset)+uint64(table.srcLength) {
			return ErrInvalidFontData
		}
		src := data[table.srcOffset : table.srcOffset+table.srcLength]

		if table.tag == "hhea" {
			// numberOfHMetrics is the last field of hhea
			rHhea := NewBinaryReader(src)
			_ = rHhea.ReadBytes(34)
			info.numHMetrics = rHhea.ReadUint16()
			if rHhea.EOF() {
				return fmt.Errorf("hhea: %w", ErrInvalidFontData)
			}
		}

		if !reused {
			if !table.transformed {
				if table.tag == "head" {
					if len(src) < 12 {
						return fmt.Errorf("head: %w", ErrInvalidFontData)
					}
					// clear checkSumAdjustment to enable calculation of table and font checksums
					binary.BigEndian.PutUint32(src[8:], 0x00000000)
				}
				table.dstOffset = w.Len()
				checksum = calcChecksum(src)
				w.WriteBytes(src)
			} else {
				var err error
				switch table.tag {
				case "glyf":
					table.dstOffset = w.Len()
					checksum, locaChecksum, err = reconstructGlyfLoca(src, table, &hdr.tables[iLoca], info, w)
					if err != nil {
						return err
					}
				case "loca":
					// written by the glyf reconstruction, which also set the destination range
					checksum = locaChecksum
				case "hmtx":
					table.dstOffset = w.Len()
					checksum, err = reconstructHmtx(src, info, w)
					if err != nil {
						return err
					}
					if table.dstLength != w.Len()-table.dstOffset {
						return fmt.Errorf("hmtx: origLength must match reconstructed size")
					}
				default:
					return fmt.Errorf("%s: invalid transformation", table.tag)
				}
			}
			rebuild.checksums[key] = checksum
		}
		fontChecksum += checksum

		// fill in the directory entry, it was written as zeros
		entry := info.tableEntryByTag[table.tag]
		buf := w.Bytes()
		binary.BigEndian.PutUint32(buf[entry+4:], checksum)
		binary.BigEndian.PutUint32(buf[entry+8:], table.dstOffset)
		binary.BigEndian.PutUint32(buf[entry+12:], table.dstLength)
		fontChecksum += calcChecksum(buf[entry+4 : entry+16])

		for w.Len()%4 != 0 {
			w.WriteByte(0x00)
		}
		if uint64(w.Len()) < uint64(table.dstOffset)+uint64(table.dstLength) {
			return ErrInvalidFontData
		}
	}

	// head.checkSumAdjustment makes the font's uint32 sum equal 0xB1B0AFBA
	if iHead != -1 {
		head := &hdr.tables[iHead]
		if head.dstLength < 12 {
			return fmt.Errorf("head: %w", ErrInvalidFontData)
		}
		binary.BigEndian.PutUint32(w.Bytes()[head.dstOffset+8:], 0xB1B0AFBA-fontChecksum)
	}
	return nil
}
