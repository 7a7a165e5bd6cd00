package woff2

import (
	"encoding/binary"
	"fmt"
	"math"
)

// simple glyph flags
const (
	glyfOnCurve       = 0x01
	glyfXShort        = 0x02
	glyfYShort        = 0x04
	glyfRepeat        = 0x08
	glyfThisXIsSame   = 0x10
	glyfThisYIsSame   = 0x20
	glyfOverlapSimple = 0x40
)

// composite glyph flags
const (
	glyfArg1And2AreWords   = 0x0001
	glyfWeHaveAScale       = 0x0008
	glyfMoreComponents     = 0x0020
	glyfWeHaveAnXAndYScale = 0x0040
	glyfWeHaveATwoByTwo    = 0x0080
	glyfWeHaveInstructions = 0x0100
)

type point struct {
	x, y    int32
	onCurve bool
}

func signInt32(flag byte, baseval int32) int32 {
	if flag&0x01 != 0 {
		return baseval // positive if the low bit is set
	}
	return -baseval
}

// decodeTriplets decodes one triplet-encoded point per flag byte, reading the
// coordinate bytes from glyphStream and accumulating absolute coordinates.
// Each regime of the flag byte's low 7 bits consumes 1-4 coordinate bytes.
func decodeTriplets(flags []byte, glyphStream *BinaryReader, points []point) error {
	var x, y int32
	for i, flag := range flags {
		onCurve := flag&0x80 == 0
		flag &= 0x7F

		var dx, dy int32
		if flag < 10 {
			b0 := int32(glyphStream.ReadByte())
			dy = signInt32(flag, (int32(flag&0x0E)<<7)+b0)
		} else if flag < 20 {
			b0 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, (int32((flag-10)&0x0E)<<7)+b0)
		} else if flag < 84 {
			b0 := int32(flag - 20)
			b1 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, 1+(b0&0x30)+(b1>>4))
			dy = signInt32(flag>>1, 1+((b0&0x0C)<<2)+(b1&0x0F))
		} else if flag < 120 {
			b0 := int32(flag - 84)
			dx = signInt32(flag, 1+((b0/12)<<8)+int32(glyphStream.ReadByte()))
			dy = signInt32(flag>>1, 1+(((b0%12)>>2)<<8)+int32(glyphStream.ReadByte()))
		} else if flag < 124 {
			b0 := int32(glyphStream.ReadByte())
			b1 := int32(glyphStream.ReadByte())
			b2 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, (b0<<4)+(b1>>4))
			dy = signInt32(flag>>1, ((b1&0x0F)<<8)+b2)
		} else {
			b0 := int32(glyphStream.ReadByte())
			b1 := int32(glyphStream.ReadByte())
			b2 := int32(glyphStream.ReadByte())
			b3 := int32(glyphStream.ReadByte())
			dx = signInt32(flag, (b0<<8)+b1)
			dy = signInt32(flag>>1, (b2<<8)+b3)
		}
		if 0 < x && math.MaxInt32-x < dx || x < 0 && dx < math.MinInt32-x ||
			0 < y && math.MaxInt32-y < dy || y < 0 && dy < math.MinInt32-y {
			return fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		x += dx
		y += dy
		points[i] = point{x, y, onCurve}
	}
	if glyphStream.EOF() {
		return fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	return nil
}

// storePoints writes the point data of a simple glyph: the run-length encoded
// flag bytes followed by the x and y delta streams. Deltas of up to one byte
// store their sign in the flag, zero deltas store nothing.
func storePoints(w *BinaryWriter, points []point, overlapBit bool) {
	flags := make([]byte, 0, len(points))
	lastFlag := -1
	repeatCount := 0
	var lastX, lastY int32
	for i, p := range points {
		flag := 0
		if p.onCurve {
			flag |= glyfOnCurve
		}
		if overlapBit && i == 0 {
			flag |= glyfOverlapSimple
		}

		dx := p.x - lastX
		dy := p.y - lastY
		if dx == 0 {
			flag |= glyfThisXIsSame
		} else if -256 < dx && dx < 256 {
			flag |= glyfXShort
			if 0 < dx {
				flag |= glyfThisXIsSame
			}
		}
		if dy == 0 {
			flag |= glyfThisYIsSame
		} else if -256 < dy && dy < 256 {
			flag |= glyfYShort
			if 0 < dy {
				flag |= glyfThisYIsSame
			}
		}

		if flag == lastFlag && repeatCount != 255 {
			flags[len(flags)-1] |= glyfRepeat
			repeatCount++
		} else {
			if repeatCount != 0 {
				flags = append(flags, byte(repeatCount))
			}
			flags = append(flags, byte(flag))
			repeatCount = 0
		}
		lastFlag = flag
		lastX = p.x
		lastY = p.y
	}
	if repeatCount != 0 {
		flags = append(flags, byte(repeatCount))
	}
	w.WriteBytes(flags)

	lastX = 0
	for _, p := range points {
		dx := p.x - lastX
		if dx == 0 {
			// pass
		} else if -256 < dx && dx < 256 {
			if dx < 0 {
				dx = -dx
			}
			w.WriteByte(byte(dx))
		} else {
			w.WriteInt16(int16(dx))
		}
		lastX = p.x
	}
	lastY = 0
	for _, p := range points {
		dy := p.y - lastY
		if dy == 0 {
			// pass
		} else if -256 < dy && dy < 256 {
			if dy < 0 {
				dy = -dy
			}
			w.WriteByte(byte(dy))
		} else {
			w.WriteInt16(int16(dy))
		}
		lastY = p.y
	}
}

// reconstructGlyfLoca reverses the glyf transform. It writes the glyf table to
// w, followed directly by the reconstructed loca table, filling in the
// destination ranges of both tables and the glyph count, index format and
// per-glyph xMin values of info. It returns the checksum of both tables.
func reconstructGlyfLoca(b []byte, glyfTable, locaTable *woff2Table, info *fontInfo, w *BinaryWriter) (uint32, uint32, error) {
	glyfStart := w.Len()

	r := NewBinaryReader(b)
	_ = r.ReadUint16() // version
	optionFlags := r.ReadUint16()
	info.numGlyphs = r.ReadUint16()
	info.indexFormat = r.ReadUint16()
	nContourStreamSize := r.ReadUint32()
	nPointsStreamSize := r.ReadUint32()
	flagStreamSize := r.ReadUint32()
	glyphStreamSize := r.ReadUint32()
	compositeStreamSize := r.ReadUint32()
	bboxStreamSize := r.ReadUint32()
	instructionStreamSize := r.ReadUint32()
	if r.EOF() {
		return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}

	// the seven substreams follow the 36-byte header back to back; each size
	// must stay within the transformed data
	offset := uint64(36)
	sizes := [7]uint32{nContourStreamSize, nPointsStreamSize, flagStreamSize,
		glyphStreamSize, compositeStreamSize, bboxStreamSize, instructionStreamSize}
	var substreams [7][]byte
	for i, size := range sizes {
		if uint64(len(b))-offset < uint64(size) {
			return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		substreams[i] = b[offset : offset+uint64(size) : offset+uint64(size)]
		offset += uint64(size)
	}
	nContourStream := NewBinaryReader(substreams[0])
	nPointsStream := NewBinaryReader(substreams[1])
	flagStream := NewBinaryReader(substreams[2])
	glyphStream := NewBinaryReader(substreams[3])
	compositeStream := NewBinaryReader(substreams[4])

	bitmapSize := ((uint32(info.numGlyphs) + 31) >> 5) << 2
	if bboxStreamSize < bitmapSize {
		return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	bboxBitmap := NewBitmapReader(substreams[5][:bitmapSize])
	bboxStream := NewBinaryReader(substreams[5][bitmapSize:])
	instructionStream := NewBinaryReader(substreams[6])

	var overlapBitmap *BitmapReader
	if optionFlags&0x0001 != 0 { // overlapSimpleBitmap present
		n := (uint64(info.numGlyphs) + 7) >> 3
		if uint64(len(b))-offset < n {
			return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		overlapBitmap = NewBitmapReader(b[offset : offset+n])
	}

	locaLength := (uint32(info.numGlyphs) + 1) * 2
	if info.indexFormat != 0 {
		locaLength *= 2
	}
	if locaTable.dstLength != locaLength {
		return 0, 0, fmt.Errorf("loca: origLength must match numGlyphs+1 entries")
	}

	var glyfChecksum uint32
	locaValues := make([]uint32, info.numGlyphs+1)
	info.xMins = make([]int16, info.numGlyphs)
	for iGlyph := uint16(0); iGlyph < info.numGlyphs; iGlyph++ {
		recordStart := w.Len()
		locaValues[iGlyph] = recordStart - glyfStart

		explicitBbox := bboxBitmap.Read()
		overlapBit := false
		if overlapBitmap != nil {
			overlapBit = overlapBitmap.Read()
		}
		nContours := nContourStream.ReadUint16()
		if nContourStream.EOF() {
			return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}

		if nContours == 0 { // empty glyph
			if explicitBbox {
				return 0, 0, fmt.Errorf("glyf: empty glyph cannot have bbox definition")
			}
			continue
		} else if nContours == 0xFFFF { // composite glyph
			if !explicitBbox {
				return 0, 0, fmt.Errorf("glyf: composite glyph must have bbox definition")
			}

			w.WriteUint16(nContours) // numberOfContours
			bbox := bboxStream.ReadBytes(8)
			if bboxStream.EOF() {
				return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			w.WriteBytes(bbox)

			hasInstructions := false
			for {
				compositeFlag := compositeStream.ReadUint16()
				numBytes := uint32(2) // glyphIndex
				if compositeFlag&glyfArg1And2AreWords != 0 {
					numBytes += 4
				} else {
					numBytes += 2
				}
				if compositeFlag&glyfWeHaveAScale != 0 {
					numBytes += 2
				} else if compositeFlag&glyfWeHaveAnXAndYScale != 0 {
					numBytes += 4
				} else if compositeFlag&glyfWeHaveATwoByTwo != 0 {
					numBytes += 8
				}
				compositeBytes := compositeStream.ReadBytes(numBytes)
				if compositeStream.EOF() {
					return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}

				w.WriteUint16(compositeFlag)
				w.WriteBytes(compositeBytes)

				if compositeFlag&glyfWeHaveInstructions != 0 {
					hasInstructions = true
				}
				if compositeFlag&glyfMoreComponents == 0 {
					break
				}
			}

			if hasInstructions {
				instructionLength := read255Uint16(glyphStream)
				instructions := instructionStream.ReadBytes(uint32(instructionLength))
				if glyphStream.EOF() || instructionStream.EOF() {
					return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteUint16(instructionLength)
				w.WriteBytes(instructions)
			}
		} else { // simple glyph
			nPointsPerContour := make([]uint16, nContours)
			var totalPoints uint32
			for iContour := uint16(0); iContour < nContours; iContour++ {
				nPoints := read255Uint16(nPointsStream)
				nPointsPerContour[iContour] = nPoints
				totalPoints += uint32(nPoints)
			}
			if nPointsStream.EOF() {
				return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}

			flags := flagStream.ReadBytes(totalPoints)
			if flagStream.EOF() {
				return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			points := make([]point, totalPoints)
			if err := decodeTriplets(flags, glyphStream, points); err != nil {
				return 0, 0, err
			}

			instructionLength := read255Uint16(glyphStream)
			instructions := instructionStream.ReadBytes(uint32(instructionLength))
			if glyphStream.EOF() || instructionStream.EOF() {
				return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}

			w.WriteUint16(nContours) // numberOfContours
			if explicitBbox {
				bbox := bboxStream.ReadBytes(8)
				if bboxStream.EOF() {
					return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteBytes(bbox)
			} else {
				var xMin, yMin, xMax, yMax int32
				if 0 < len(points) {
					xMin, xMax = points[0].x, points[0].x
					yMin, yMax = points[0].y, points[0].y
				}
				for _, p := range points[1:] {
					if p.x < xMin {
						xMin = p.x
					} else if xMax < p.x {
						xMax = p.x
					}
					if p.y < yMin {
						yMin = p.y
					} else if yMax < p.y {
						yMax = p.y
					}
				}
				w.WriteInt16(int16(xMin))
				w.WriteInt16(int16(yMin))
				w.WriteInt16(int16(xMax))
				w.WriteInt16(int16(yMax))
			}

			endPoint := int32(-1)
			for _, nPoints := range nPointsPerContour {
				endPoint += int32(nPoints)
				if 65536 <= endPoint {
					return 0, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				w.WriteUint16(uint16(endPoint))
			}

			w.WriteUint16(instructionLength)
			w.WriteBytes(instructions)
			storePoints(w, points, overlapBit)
		}

		// offsets for the loca table are 4-byte aligned
		for w.Len()%4 != 0 {
			w.WriteByte(0x00)
		}
		glyfChecksum += calcChecksum(w.Bytes()[recordStart:w.Len()])

		// xMin may be needed to reconstruct hmtx
		if nContours != 0xFFFF {
			info.xMins[iGlyph] = int16(binary.BigEndian.Uint16(w.Bytes()[recordStart+2:]))
		}
	}

	glyfTable.dstLength = w.Len() - glyfStart
	locaTable.dstOffset = w.Len()

	// the last entry in the loca table equals the length of the glyf table
	locaValues[info.numGlyphs] = glyfTable.dstLength
	locaStart := w.Len()
	for _, value := range locaValues {
		if info.indexFormat != 0 {
			w.WriteUint32(value)
		} else {
			w.WriteUint16(uint16(value >> 1))
		}
	}
	locaChecksum := calcChecksum(w.Bytes()[locaStart:w.Len()])
	locaTable.dstLength = w.Len() - locaTable.dstOffset
	return glyfChecksum, locaChecksum, nil
}
