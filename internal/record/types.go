package record

import "fmt"

// Kind identifies a record layout this tool knows how to edit. The kind
// is the first u16 of every record payload.
type Kind uint16

const (
	KindThreshold Kind = 0x0001
	KindColour    Kind = 0x0002
	KindHighlight Kind = 0x0003
)

func (k Kind) String() string {
	switch k {
	case KindThreshold:
		return "threshold"
	case KindColour:
		return "colour"
	case KindHighlight:
		return "highlight"
	default:
		return fmt.Sprintf("kind(0x%04x)", uint16(k))
	}
}

// Tier is a named attribute-rating bucket shared between threshold and
// colour records. The set is fixed by the game data.
type Tier uint16

const (
	TierUnset Tier = iota
	TierLow
	TierPoor
	TierAverage
	TierGood
	TierExcellent

	tierCount
)

var tierNames = [...]string{
	TierUnset:     "Unset",
	TierLow:       "Low",
	TierPoor:      "Poor",
	TierAverage:   "Average",
	TierGood:      "Good",
	TierExcellent: "Excellent",
}

func (t Tier) Valid() bool {
	return t < tierCount
}

func (t Tier) String() string {
	if t.Valid() {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint16(t))
}

// TierByName resolves a tier from its display name.
func TierByName(name string) (Tier, bool) {
	for t, n := range tierNames {
		if n == name {
			return Tier(t), true
		}
	}
	return 0, false
}

// Attribute display scale. Thresholds address positions on the 0-20
// rating scale the game shows to the user.
const (
	ScaleMin = 0
	ScaleMax = 20
)

// Record is a decoded, editable view of one bundle entry payload.
type Record interface {
	Kind() Kind
}

// ThresholdTable maps attribute value ranges to tiers. Rows are kept in
// on-disk order; Validate enforces that they are contiguous and cover the
// whole display scale.
type ThresholdTable struct {
	Rows []ThresholdRow
}

type ThresholdRow struct {
	Start int
	End   int
	Tier  Tier
}

func (*ThresholdTable) Kind() Kind { return KindThreshold }

// ColourPreset holds one RGBA colour per tier. Alpha is meaningful: the
// game uses it for unset-attribute rendering.
type ColourPreset struct {
	Rows []ColourRow
}

type ColourRow struct {
	Tier       Tier
	R, G, B, A uint8
}

func (*ColourPreset) Kind() Kind { return KindColour }

// Colour returns the row for a tier, if present.
func (p *ColourPreset) Colour(t Tier) (ColourRow, bool) {
	for _, r := range p.Rows {
		if r.Tier == t {
			return r, true
		}
	}
	return ColourRow{}, false
}

// HighlightFlags toggles role-highlight rendering per UI group.
type HighlightFlags struct {
	Rows []HighlightRow
}

type HighlightRow struct {
	Group   int
	Enabled bool
}

func (*HighlightFlags) Kind() Kind { return KindHighlight }
