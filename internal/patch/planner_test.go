package patch

import (
	"encoding/binary"
	"testing"

	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/record"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thresholdPayload(t *testing.T, rows []record.ThresholdRow) []byte {
	t.Helper()
	out := make([]byte, 8+8*len(rows))
	binary.LittleEndian.PutUint16(out, uint16(record.KindThreshold))
	binary.LittleEndian.PutUint16(out[2:], 0x5151)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(rows)))
	p := 8
	for _, r := range rows {
		binary.LittleEndian.PutUint16(out[p:], uint16(r.Start))
		binary.LittleEndian.PutUint16(out[p+2:], uint16(r.End))
		binary.LittleEndian.PutUint16(out[p+4:], uint16(r.Tier))
		p += 8
	}
	return out
}

func colourPayload(t *testing.T, rows []record.ColourRow) []byte {
	t.Helper()
	out := make([]byte, 8+8*len(rows))
	binary.LittleEndian.PutUint16(out, uint16(record.KindColour))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(rows)))
	p := 8
	for _, r := range rows {
		binary.LittleEndian.PutUint16(out[p:], uint16(r.Tier))
		out[p+2], out[p+3], out[p+4], out[p+5] = r.R, r.G, r.B, r.A
		p += 8
	}
	return out
}

func highlightPayload(t *testing.T, rows []record.HighlightRow) []byte {
	t.Helper()
	out := make([]byte, 8+4*len(rows))
	binary.LittleEndian.PutUint16(out, uint16(record.KindHighlight))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(rows)))
	p := 8
	for _, r := range rows {
		binary.LittleEndian.PutUint16(out[p:], uint16(r.Group))
		if r.Enabled {
			out[p+2] = 1
		}
		p += 4
	}
	return out
}

func fixtureRows() []record.ThresholdRow {
	return []record.ThresholdRow{
		{Start: 0, End: 5, Tier: record.TierPoor},
		{Start: 6, End: 10, Tier: record.TierAverage},
		{Start: 11, End: 15, Tier: record.TierGood},
		{Start: 16, End: 20, Tier: record.TierExcellent},
	}
}

func fixtureColours() []record.ColourRow {
	return []record.ColourRow{
		{Tier: record.TierPoor, R: 200, G: 60, B: 60, A: 255},
		{Tier: record.TierAverage, R: 220, G: 180, B: 40, A: 255},
		{Tier: record.TierGood, R: 120, G: 200, B: 80, A: 255},
		{Tier: record.TierExcellent, R: 40, G: 220, B: 120, A: 255},
	}
}

// fixtureSources builds the two-bundle layout the game uses: the data
// collection bundle with thresholds and highlights, the style bundle
// with colour presets.
func fixtureSources(t *testing.T) []*bundle.Container {
	t.Helper()

	data := &bundle.Builder{Checksums: true}
	data.Add("AttributeThresholds", thresholdPayload(t, fixtureRows()))
	data.Add("RoleHighlights", highlightPayload(t, []record.HighlightRow{
		{Group: 1, Enabled: true},
		{Group: 2, Enabled: true},
	}))
	data.Add("UnrelatedRecord", []byte("bytes this tool does not model"))
	dataImg, err := data.Bytes()
	require.NoError(t, err)

	styles := &bundle.Builder{Checksums: true}
	styles.Add("AttributeColoursDefault", colourPayload(t, fixtureColours()))
	styles.Add("AttributeColoursAlternative", colourPayload(t, fixtureColours()))
	stylesImg, err := styles.Bytes()
	require.NoError(t, err)

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "data.fmb", dataImg, 0o644))
	require.NoError(t, afero.WriteFile(fsys, "styles.fmb", stylesImg, 0o644))

	c1, err := bundle.Open(fsys, "data.fmb")
	require.NoError(t, err)
	c2, err := bundle.Open(fsys, "styles.fmb")
	require.NoError(t, err)
	return []*bundle.Container{c1, c2}
}

func TestPlan_ContiguousBoundaryShift(t *testing.T) {
	t.Parallel()

	// (6,10)->(6,12) and (11,15)->(13,15): contiguity preserved
	batch := &Batch{Edits: []Edit{
		{Entry: "AttributeThresholds", Field: "range/Average/end", Value: 12},
		{Entry: "AttributeThresholds", Field: "range/Good/start", Value: 13},
	}}

	tx, err := Plan(fixtureSources(t), batch)
	require.NoError(t, err)
	require.Len(t, tx.Ops, 1)
	assert.Equal(t, Planned, tx.State)

	op := tx.Ops[0]
	assert.Equal(t, "data.fmb", op.File)
	assert.Equal(t, "AttributeThresholds", op.Entry)
	assert.Len(t, op.Replacement.Stored, len(op.Original))

	rec, err := record.Decode(record.KindThreshold, op.Replacement.Stored)
	require.NoError(t, err)
	rows := rec.(*record.ThresholdTable).Rows
	assert.Equal(t, 12, rows[1].End)
	assert.Equal(t, 13, rows[2].Start)
}

func TestPlan_OneSidedShiftRejected(t *testing.T) {
	t.Parallel()

	// (6,10)->(6,14) without adjusting the next range
	batch := &Batch{Edits: []Edit{
		{Entry: "AttributeThresholds", Field: "range/Average/end", Value: 14},
	}}

	_, err := Plan(fixtureSources(t), batch)
	var pe *PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.EditIndex)
	assert.Equal(t, "AttributeThresholds", pe.Entry)

	var ie *record.InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "range", ie.Invariant)
}

func TestPlan_ChannelOutOfRange(t *testing.T) {
	t.Parallel()

	batch := &Batch{Edits: []Edit{
		{Entry: "AttributeColoursDefault", Field: "colour/Good/g", Value: 300},
	}}

	_, err := Plan(fixtureSources(t), batch)
	var oor *record.ValueOutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 300, oor.Value)
	assert.Equal(t, 255, oor.Max)
}

func TestPlan_UnknownTarget(t *testing.T) {
	t.Parallel()

	batch := &Batch{Edits: []Edit{
		{Entry: "NoSuchEntry", Field: "range/Good/start", Value: 1},
	}}

	_, err := Plan(fixtureSources(t), batch)
	var ut *UnknownTargetError
	require.ErrorAs(t, err, &ut)
	assert.Equal(t, "NoSuchEntry", ut.Entry)
}

func TestPlan_FieldKindMismatch(t *testing.T) {
	t.Parallel()

	batch := &Batch{Edits: []Edit{
		{Entry: "AttributeColoursDefault", Field: "range/Good/start", Value: 1},
	}}

	_, err := Plan(fixtureSources(t), batch)
	var pe *PlanError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "threshold range")
}

func TestPlan_RelabelBreaksCorrespondence(t *testing.T) {
	t.Parallel()

	// Renaming Poor to Unset leaves both presets without an Unset colour
	batch := &Batch{Edits: []Edit{
		{Entry: "AttributeThresholds", Field: "label/0", Value: "Unset"},
	}}

	_, err := Plan(fixtureSources(t), batch)
	var ie *record.InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "tier correspondence", ie.Invariant)
}

func TestPlan_HighlightToggle(t *testing.T) {
	t.Parallel()

	batch := &Batch{Edits: []Edit{
		{Entry: "RoleHighlights", Field: "highlight/2", Value: false},
	}}

	tx, err := Plan(fixtureSources(t), batch)
	require.NoError(t, err)
	require.Len(t, tx.Ops, 1)

	rec, err := record.Decode(record.KindHighlight, tx.Ops[0].Replacement.Stored)
	require.NoError(t, err)
	rows := rec.(*record.HighlightFlags).Rows
	assert.True(t, rows[0].Enabled)
	assert.False(t, rows[1].Enabled)
}

func TestPlan_RowRemovalNeedsResize(t *testing.T) {
	t.Parallel()

	edits := []Edit{
		{Entry: "AttributeThresholds", Field: "rows/remove/3", Value: nil},
		{Entry: "AttributeThresholds", Field: "range/Good/end", Value: 20},
		{Entry: "AttributeColoursDefault", Field: "rows/remove/3", Value: nil},
		{Entry: "AttributeColoursAlternative", Field: "rows/remove/3", Value: nil},
	}

	_, err := Plan(fixtureSources(t), &Batch{Edits: edits})
	var lm *record.LengthMismatchError
	require.ErrorAs(t, err, &lm)

	tx, err := Plan(fixtureSources(t), &Batch{AllowResize: true, Edits: edits})
	require.NoError(t, err)
	assert.True(t, tx.AllowResize)
	require.Len(t, tx.Ops, 3)
	assert.ElementsMatch(t, []string{"data.fmb", "styles.fmb"},
		tx.Files())

	rec, err := record.Decode(record.KindThreshold, tx.Ops[0].Replacement.Stored)
	require.NoError(t, err)
	rows := rec.(*record.ThresholdTable).Rows
	require.Len(t, rows, 3)
	assert.Equal(t, 20, rows[2].End)
}

func TestPlan_NoEditsNoOps(t *testing.T) {
	t.Parallel()

	tx, err := Plan(fixtureSources(t), &Batch{})
	require.NoError(t, err)
	assert.Empty(t, tx.Ops)
}

func TestLoadBatch(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	doc := `
allowResize: true
edits:
  - entry: AttributeThresholds
    field: range/Average/end
    value: 12
  - entry: RoleHighlights
    field: highlight/1
    value: false
`
	require.NoError(t, afero.WriteFile(fsys, "edits.yaml", []byte(doc), 0o644))

	batch, err := LoadBatch(fsys, "edits.yaml")
	require.NoError(t, err)
	assert.True(t, batch.AllowResize)
	require.Len(t, batch.Edits, 2)
	assert.Equal(t, "range/Average/end", batch.Edits[0].Field)
	assert.Equal(t, 12, batch.Edits[0].Value)
	assert.Equal(t, false, batch.Edits[1].Value)
}
