package record

import (
	"encoding/binary"
	"fmt"
)

// All record payloads are little-endian and open with the same 8-byte
// prologue: u16 kind, u16 reserved, u32 row count. Reserved fields are
// not modelled; the encoder copies them verbatim from the original span.
const (
	prologueSize = 8

	thresholdRowSize = 8 // u16 start, u16 end, u16 tier, u16 reserved
	colourRowSize    = 8 // u16 tier, u8 r, u8 g, u8 b, u8 a, u16 reserved
	highlightRowSize = 4 // u16 group, u8 enabled, u8 reserved
)

func rowSize(k Kind) int {
	switch k {
	case KindThreshold:
		return thresholdRowSize
	case KindColour:
		return colourRowSize
	case KindHighlight:
		return highlightRowSize
	default:
		return 0
	}
}

// KindOf reads the record kind from a payload prologue without decoding
// the rest. Used to classify entries when inspecting a bundle.
func KindOf(data []byte) (Kind, error) {
	if len(data) < prologueSize {
		return 0, &SchemaMismatchError{Reason: fmt.Sprintf("payload too short: %d bytes", len(data))}
	}
	k := Kind(binary.LittleEndian.Uint16(data))
	if rowSize(k) == 0 {
		return 0, &SchemaMismatchError{Kind: k, Reason: "unknown record kind"}
	}
	return k, nil
}

// Decode decodes payload bytes into the typed value for kind. Decoding is
// pure and deterministic: identical bytes always produce an identical
// value, so decode-encode-decode round-trips untouched records exactly.
func Decode(kind Kind, data []byte) (Record, error) {
	rows, err := checkLayout(kind, data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindThreshold:
		return decodeThresholds(data, rows)
	case KindColour:
		return decodeColours(data, rows)
	case KindHighlight:
		return decodeHighlights(data, rows)
	default:
		return nil, &SchemaMismatchError{Kind: kind, Reason: "unknown record kind"}
	}
}

func checkLayout(kind Kind, data []byte) (int, error) {
	if len(data) < prologueSize {
		return 0, &SchemaMismatchError{Kind: kind, Reason: fmt.Sprintf("payload too short: %d bytes", len(data))}
	}
	if got := Kind(binary.LittleEndian.Uint16(data)); got != kind {
		return 0, &SchemaMismatchError{Kind: kind, Reason: fmt.Sprintf("payload is a %s record", got)}
	}
	rows := int(binary.LittleEndian.Uint32(data[4:]))
	want := prologueSize + rows*rowSize(kind)
	if len(data) != want {
		return 0, &SchemaMismatchError{
			Kind:   kind,
			Reason: fmt.Sprintf("%d rows need %d bytes, payload has %d", rows, want, len(data)),
		}
	}
	return rows, nil
}

func decodeThresholds(data []byte, rows int) (*ThresholdTable, error) {
	t := &ThresholdTable{Rows: make([]ThresholdRow, rows)}
	p := prologueSize
	for i := range t.Rows {
		tier := Tier(binary.LittleEndian.Uint16(data[p+4:]))
		if !tier.Valid() {
			return nil, &SchemaMismatchError{
				Kind:   KindThreshold,
				Reason: fmt.Sprintf("row %d references unregistered tier %d", i, uint16(tier)),
			}
		}
		t.Rows[i] = ThresholdRow{
			Start: int(binary.LittleEndian.Uint16(data[p:])),
			End:   int(binary.LittleEndian.Uint16(data[p+2:])),
			Tier:  tier,
		}
		p += thresholdRowSize
	}
	return t, nil
}

func decodeColours(data []byte, rows int) (*ColourPreset, error) {
	c := &ColourPreset{Rows: make([]ColourRow, rows)}
	p := prologueSize
	for i := range c.Rows {
		tier := Tier(binary.LittleEndian.Uint16(data[p:]))
		if !tier.Valid() {
			return nil, &SchemaMismatchError{
				Kind:   KindColour,
				Reason: fmt.Sprintf("row %d references unregistered tier %d", i, uint16(tier)),
			}
		}
		c.Rows[i] = ColourRow{
			Tier: tier,
			R:    data[p+2],
			G:    data[p+3],
			B:    data[p+4],
			A:    data[p+5],
		}
		p += colourRowSize
	}
	return c, nil
}

func decodeHighlights(data []byte, rows int) (*HighlightFlags, error) {
	h := &HighlightFlags{Rows: make([]HighlightRow, rows)}
	p := prologueSize
	for i := range h.Rows {
		if v := data[p+2]; v > 1 {
			return nil, &SchemaMismatchError{
				Kind:   KindHighlight,
				Reason: fmt.Sprintf("row %d enabled flag is %d, want 0 or 1", i, v),
			}
		}
		h.Rows[i] = HighlightRow{
			Group:   int(binary.LittleEndian.Uint16(data[p:])),
			Enabled: data[p+2] == 1,
		}
		p += highlightRowSize
	}
	return h, nil
}
