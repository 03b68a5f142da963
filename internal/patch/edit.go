package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mw90/attrpatch/internal/record"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Edit is one pending change from the editing surface: an entry name, a
// field path inside its decoded value, and the new value. Field paths:
//
//	range/<tier>/start   range/<tier>/end   threshold boundaries
//	label/<index>                           tier name of the nth range
//	colour/<tier>/<r|g|b|a>                 one colour channel
//	highlight/<group>                       role-highlight toggle
//	rows/insert/<index>  rows/remove/<index> add or drop a row
//
// Row edits change the encoded length and therefore require the batch's
// allowResize flag; otherwise the plan fails the fixed-size policy.
type Edit struct {
	Entry string `yaml:"entry"`
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

// Batch is one save request: the edits to apply atomically, and whether
// the explicit length-change path may be used.
type Batch struct {
	AllowResize bool   `yaml:"allowResize"`
	Edits       []Edit `yaml:"edits"`
}

// LoadBatch reads a batch from a YAML edits file.
func LoadBatch(fsys afero.Fs, path string) (*Batch, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading edits file: %w", err)
	}
	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing edits file %s: %w", path, err)
	}
	return &b, nil
}

// apply mutates a decoded record according to one edit. Value bounds are
// checked here so a bad edit is reported with its own index; the encoder
// re-checks everything before bytes are produced.
func apply(rec record.Record, field string, value any) error {
	parts := strings.Split(field, "/")

	switch parts[0] {
	case "range":
		return applyRange(rec, parts, value)
	case "label":
		return applyLabel(rec, parts, value)
	case "colour":
		return applyColour(rec, parts, value)
	case "highlight":
		return applyHighlight(rec, parts, value)
	case "rows":
		return applyRows(rec, parts, value)
	default:
		return fmt.Errorf("unknown field %q", field)
	}
}

func applyRange(rec record.Record, parts []string, value any) error {
	t, ok := rec.(*record.ThresholdTable)
	if !ok {
		return fmt.Errorf("entry is a %s record, field addresses a threshold range", rec.Kind())
	}
	if len(parts) != 3 {
		return fmt.Errorf("range field wants range/<tier>/<start|end>")
	}
	tier, ok := record.TierByName(parts[1])
	if !ok {
		return fmt.Errorf("unknown tier %q", parts[1])
	}
	v, err := intValue(value)
	if err != nil {
		return err
	}
	if v < record.ScaleMin || v > record.ScaleMax {
		return &record.ValueOutOfRangeError{
			Field: strings.Join(parts, "/"), Value: v, Min: record.ScaleMin, Max: record.ScaleMax,
		}
	}

	for i := range t.Rows {
		if t.Rows[i].Tier != tier {
			continue
		}
		switch parts[2] {
		case "start":
			t.Rows[i].Start = v
		case "end":
			t.Rows[i].End = v
		default:
			return fmt.Errorf("range field wants start or end, got %q", parts[2])
		}
		return nil
	}
	return fmt.Errorf("no range labelled %s", tier)
}

func applyLabel(rec record.Record, parts []string, value any) error {
	t, ok := rec.(*record.ThresholdTable)
	if !ok {
		return fmt.Errorf("entry is a %s record, field addresses a range label", rec.Kind())
	}
	if len(parts) != 2 {
		return fmt.Errorf("label field wants label/<index>")
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil || i < 0 || i >= len(t.Rows) {
		return fmt.Errorf("label index %q out of range (table has %d rows)", parts[1], len(t.Rows))
	}
	tier, ok := record.TierByName(fmt.Sprint(value))
	if !ok {
		return fmt.Errorf("unknown tier %q", value)
	}
	t.Rows[i].Tier = tier
	return nil
}

func applyColour(rec record.Record, parts []string, value any) error {
	c, ok := rec.(*record.ColourPreset)
	if !ok {
		return fmt.Errorf("entry is a %s record, field addresses a colour channel", rec.Kind())
	}
	if len(parts) != 3 {
		return fmt.Errorf("colour field wants colour/<tier>/<r|g|b|a>")
	}
	tier, ok := record.TierByName(parts[1])
	if !ok {
		return fmt.Errorf("unknown tier %q", parts[1])
	}
	v, err := intValue(value)
	if err != nil {
		return err
	}
	if v < 0 || v > 255 {
		return &record.ValueOutOfRangeError{Field: strings.Join(parts, "/"), Value: v, Min: 0, Max: 255}
	}

	for i := range c.Rows {
		if c.Rows[i].Tier != tier {
			continue
		}
		switch parts[2] {
		case "r":
			c.Rows[i].R = uint8(v)
		case "g":
			c.Rows[i].G = uint8(v)
		case "b":
			c.Rows[i].B = uint8(v)
		case "a":
			c.Rows[i].A = uint8(v)
		default:
			return fmt.Errorf("colour field wants r, g, b or a, got %q", parts[2])
		}
		return nil
	}
	return fmt.Errorf("preset has no colour for tier %s", tier)
}

func applyHighlight(rec record.Record, parts []string, value any) error {
	h, ok := rec.(*record.HighlightFlags)
	if !ok {
		return fmt.Errorf("entry is a %s record, field addresses a highlight toggle", rec.Kind())
	}
	if len(parts) != 2 {
		return fmt.Errorf("highlight field wants highlight/<group>")
	}
	group, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("highlight group %q is not a number", parts[1])
	}
	enabled, err := boolValue(value)
	if err != nil {
		return err
	}

	for i := range h.Rows {
		if h.Rows[i].Group == group {
			h.Rows[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("no highlight group %d", group)
}

func applyRows(rec record.Record, parts []string, value any) error {
	if len(parts) != 3 {
		return fmt.Errorf("rows field wants rows/<insert|remove>/<index>")
	}
	i, err := strconv.Atoi(parts[2])
	if err != nil || i < 0 {
		return fmt.Errorf("row index %q is not valid", parts[2])
	}

	switch parts[1] {
	case "insert":
		return insertRow(rec, i, value)
	case "remove":
		return removeRow(rec, i)
	default:
		return fmt.Errorf("rows field wants insert or remove, got %q", parts[1])
	}
}

// insertRow adds a blank row at the index. Boundaries and channels start
// zeroed; the same batch is expected to fill them in, and the plan-time
// invariant checks catch anything left incoherent.
func insertRow(rec record.Record, i int, value any) error {
	switch r := rec.(type) {
	case *record.ThresholdTable:
		tier, ok := record.TierByName(fmt.Sprint(value))
		if !ok {
			return fmt.Errorf("unknown tier %q", value)
		}
		if i > len(r.Rows) {
			return fmt.Errorf("row index %d out of range (table has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], append([]record.ThresholdRow{{Tier: tier}}, r.Rows[i:]...)...)
		return nil
	case *record.ColourPreset:
		tier, ok := record.TierByName(fmt.Sprint(value))
		if !ok {
			return fmt.Errorf("unknown tier %q", value)
		}
		if i > len(r.Rows) {
			return fmt.Errorf("row index %d out of range (preset has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], append([]record.ColourRow{{Tier: tier, A: 255}}, r.Rows[i:]...)...)
		return nil
	case *record.HighlightFlags:
		group, err := intValue(value)
		if err != nil {
			return err
		}
		if i > len(r.Rows) {
			return fmt.Errorf("row index %d out of range (record has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], append([]record.HighlightRow{{Group: group}}, r.Rows[i:]...)...)
		return nil
	default:
		return fmt.Errorf("entry is a %s record", rec.Kind())
	}
}

func removeRow(rec record.Record, i int) error {
	switch r := rec.(type) {
	case *record.ThresholdTable:
		if i >= len(r.Rows) {
			return fmt.Errorf("row index %d out of range (table has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], r.Rows[i+1:]...)
	case *record.ColourPreset:
		if i >= len(r.Rows) {
			return fmt.Errorf("row index %d out of range (preset has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], r.Rows[i+1:]...)
	case *record.HighlightFlags:
		if i >= len(r.Rows) {
			return fmt.Errorf("row index %d out of range (record has %d rows)", i, len(r.Rows))
		}
		r.Rows = append(r.Rows[:i], r.Rows[i+1:]...)
	default:
		return fmt.Errorf("entry is a %s record", rec.Kind())
	}
	return nil
}

func intValue(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value %v is not a number", v)
	}
}

func boolValue(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("value %q is not a boolean", x)
		}
		return b, nil
	default:
		return false, fmt.Errorf("value %v is not a boolean", v)
	}
}
