package record

import (
	"encoding/binary"
	"fmt"
)

// Encode re-encodes an edited record over its original payload bytes.
// Every modelled field is rebuilt from rec; reserved bytes the schema
// does not model are copied verbatim from original at their fixed
// offsets, so sibling data this tool does not understand is never
// disturbed. The output length must equal the original length; a row
// count change trips LengthMismatchError, the caller's signal to route
// through the explicit resize path instead.
func Encode(rec Record, original []byte) ([]byte, error) {
	out, err := encodeValue(rec, original)
	if err != nil {
		return nil, err
	}
	if len(out) != len(original) {
		return nil, &LengthMismatchError{Kind: rec.Kind(), Want: len(original), Got: len(out)}
	}
	return out, nil
}

// EncodeResized is the explicit length-change path: the output may grow
// or shrink with the row count, and the caller takes on updating the
// container directory to match. Reserved bytes are still copied from the
// original rows where they exist.
func EncodeResized(rec Record, original []byte) ([]byte, error) {
	return encodeValue(rec, original)
}

func encodeValue(rec Record, original []byte) ([]byte, error) {
	kind := rec.Kind()
	if _, err := checkLayout(kind, original); err != nil {
		return nil, err
	}

	switch r := rec.(type) {
	case *ThresholdTable:
		return encodeThresholds(r, original)
	case *ColourPreset:
		return encodeColours(r, original)
	case *HighlightFlags:
		return encodeHighlights(r, original)
	default:
		return nil, &SchemaMismatchError{Kind: kind, Reason: "unknown record kind"}
	}
}

// prologue writes kind and row count, keeping the reserved u16 from the
// original bytes.
func prologue(kind Kind, rows int, original []byte) []byte {
	out := make([]byte, prologueSize+rows*rowSize(kind))
	binary.LittleEndian.PutUint16(out, uint16(kind))
	copy(out[2:4], original[2:4])
	binary.LittleEndian.PutUint32(out[4:], uint32(rows))
	return out
}

// reservedAt copies the unmodelled bytes of a row from the original
// payload, when the original still has a row at that index. Added rows
// (resize path) get zeroed reserved bytes.
func reservedAt(out, original []byte, pos, n int) {
	if pos+n <= len(original) {
		copy(out[pos:pos+n], original[pos:pos+n])
	}
}

func encodeThresholds(t *ThresholdTable, original []byte) ([]byte, error) {
	out := prologue(KindThreshold, len(t.Rows), original)
	p := prologueSize
	for i, row := range t.Rows {
		if row.Start < ScaleMin || row.Start > ScaleMax {
			return nil, &ValueOutOfRangeError{
				Field: fmt.Sprintf("%s/start", row.Tier), Value: row.Start, Min: ScaleMin, Max: ScaleMax,
			}
		}
		if row.End < ScaleMin || row.End > ScaleMax {
			return nil, &ValueOutOfRangeError{
				Field: fmt.Sprintf("%s/end", row.Tier), Value: row.End, Min: ScaleMin, Max: ScaleMax,
			}
		}
		if !row.Tier.Valid() {
			return nil, &SchemaMismatchError{
				Kind:   KindThreshold,
				Reason: fmt.Sprintf("row %d references unregistered tier %d", i, uint16(row.Tier)),
			}
		}
		binary.LittleEndian.PutUint16(out[p:], uint16(row.Start))
		binary.LittleEndian.PutUint16(out[p+2:], uint16(row.End))
		binary.LittleEndian.PutUint16(out[p+4:], uint16(row.Tier))
		reservedAt(out, original, p+6, 2)
		p += thresholdRowSize
	}
	return out, nil
}

func encodeColours(c *ColourPreset, original []byte) ([]byte, error) {
	out := prologue(KindColour, len(c.Rows), original)
	p := prologueSize
	for i, row := range c.Rows {
		if !row.Tier.Valid() {
			return nil, &SchemaMismatchError{
				Kind:   KindColour,
				Reason: fmt.Sprintf("row %d references unregistered tier %d", i, uint16(row.Tier)),
			}
		}
		binary.LittleEndian.PutUint16(out[p:], uint16(row.Tier))
		out[p+2] = row.R
		out[p+3] = row.G
		out[p+4] = row.B
		out[p+5] = row.A
		reservedAt(out, original, p+6, 2)
		p += colourRowSize
	}
	return out, nil
}

func encodeHighlights(h *HighlightFlags, original []byte) ([]byte, error) {
	out := prologue(KindHighlight, len(h.Rows), original)
	p := prologueSize
	for _, row := range h.Rows {
		if row.Group < 0 || row.Group > 0xffff {
			return nil, &ValueOutOfRangeError{Field: "highlight/group", Value: row.Group, Min: 0, Max: 0xffff}
		}
		binary.LittleEndian.PutUint16(out[p:], uint16(row.Group))
		if row.Enabled {
			out[p+2] = 1
		}
		reservedAt(out, original, p+3, 1)
		p += highlightRowSize
	}
	return out, nil
}
