package woff2

import (
	"fmt"
)

// reconstructHmtx reverses the hmtx transform. The flag byte says which of the
// two left side bearing arrays were omitted by the encoder; omitted entries
// equal the xMin values collected while reconstructing glyf. The advance
// widths are always present.
func reconstructHmtx(b []byte, info *fontInfo, w *BinaryWriter) (uint32, error) {
	r := NewBinaryReader(b)
	flags := r.ReadByte()
	if r.EOF() {
		return 0, fmt.Errorf("hmtx: %w", ErrInvalidFontData)
	}
	hasProportionalLsbs := flags&0x01 == 0
	hasMonospaceLsbs := flags&0x02 == 0
	if flags&0xFC != 0 {
		return 0, fmt.Errorf("hmtx: reserved bits in flags must not be set")
	} else if !hasProportionalLsbs && !hasMonospaceLsbs {
		return 0, fmt.Errorf("hmtx: must not omit both left side bearing arrays")
	}
	if info.numHMetrics < 1 {
		return 0, fmt.Errorf("hmtx: must have at least one entry")
	} else if info.numGlyphs < info.numHMetrics {
		return 0, fmt.Errorf("hmtx: more entries than glyphs in glyf")
	}

	advanceWidths := make([]uint16, info.numHMetrics)
	lsbs := make([]int16, info.numGlyphs)
	for iHMetric := uint16(0); iHMetric < info.numHMetrics; iHMetric++ {
		advanceWidths[iHMetric] = r.ReadUint16()
	}
	for iHMetric := uint16(0); iHMetric < info.numHMetrics; iHMetric++ {
		if hasProportionalLsbs {
			lsbs[iHMetric] = r.ReadInt16()
		} else {
			lsbs[iHMetric] = info.xMins[iHMetric]
		}
	}
	for iLsb := info.numHMetrics; iLsb < info.numGlyphs; iLsb++ {
		if hasMonospaceLsbs {
			lsbs[iLsb] = r.ReadInt16()
		} else {
			lsbs[iLsb] = info.xMins[iLsb]
		}
	}
	if r.EOF() {
		return 0, fmt.Errorf("hmtx: %w", ErrInvalidFontData)
	}

	start := w.Len()
	for iHMetric := uint16(0); iHMetric < info.numHMetrics; iHMetric++ {
		w.WriteUint16(advanceWidths[iHMetric])
		w.WriteInt16(lsbs[iHMetric])
	}
	for iLsb := info.numHMetrics; iLsb < info.numGlyphs; iLsb++ {
		w.WriteInt16(lsbs[iLsb])
	}
	return calcChecksum(w.Bytes()[start:w.Len()]), nil
}
