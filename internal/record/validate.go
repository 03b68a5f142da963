package record

import "fmt"

// Validate checks the range invariant: rows in order, contiguous,
// non-overlapping, together covering the whole display scale. Any edit
// producing a table that fails this must be rejected before a single
// byte is written.
func (t *ThresholdTable) Validate() error {
	if len(t.Rows) == 0 {
		return &InvariantError{Invariant: "range", Detail: "table has no rows"}
	}

	for i, row := range t.Rows {
		if row.Start > row.End {
			return &InvariantError{
				Invariant: "range",
				Detail:    fmt.Sprintf("%s range (%d,%d) is inverted", row.Tier, row.Start, row.End),
			}
		}
		if i == 0 {
			if row.Start != ScaleMin {
				return &InvariantError{
					Invariant: "range",
					Detail:    fmt.Sprintf("first range starts at %d, scale starts at %d", row.Start, ScaleMin),
				}
			}
			continue
		}
		prev := t.Rows[i-1]
		if row.Start != prev.End+1 {
			return &InvariantError{
				Invariant: "range",
				Detail: fmt.Sprintf("%s range (%d,%d) does not follow %s range (%d,%d)",
					row.Tier, row.Start, row.End, prev.Tier, prev.Start, prev.End),
			}
		}
	}

	if last := t.Rows[len(t.Rows)-1]; last.End != ScaleMax {
		return &InvariantError{
			Invariant: "range",
			Detail:    fmt.Sprintf("last range ends at %d, scale ends at %d", last.End, ScaleMax),
		}
	}

	seen := make(map[Tier]bool, len(t.Rows))
	for _, row := range t.Rows {
		if seen[row.Tier] {
			return &InvariantError{
				Invariant: "range",
				Detail:    fmt.Sprintf("tier %s appears in more than one range", row.Tier),
			}
		}
		seen[row.Tier] = true
	}

	return nil
}

// Correspondence checks that a colour preset and a threshold table agree
// on the tier set: every tier in the table has exactly one colour, and
// the preset carries no orphan colours.
func Correspondence(t *ThresholdTable, c *ColourPreset) error {
	inTable := make(map[Tier]bool, len(t.Rows))
	for _, row := range t.Rows {
		inTable[row.Tier] = true
	}

	colours := make(map[Tier]int, len(c.Rows))
	for _, row := range c.Rows {
		colours[row.Tier]++
	}

	for tier := range inTable {
		switch colours[tier] {
		case 0:
			return &InvariantError{
				Invariant: "tier correspondence",
				Detail:    fmt.Sprintf("tier %s has no colour", tier),
			}
		case 1:
		default:
			return &InvariantError{
				Invariant: "tier correspondence",
				Detail:    fmt.Sprintf("tier %s has %d colours", tier, colours[tier]),
			}
		}
	}
	for tier := range colours {
		if !inTable[tier] {
			return &InvariantError{
				Invariant: "tier correspondence",
				Detail:    fmt.Sprintf("colour for tier %s has no threshold range", tier),
			}
		}
	}

	return nil
}
