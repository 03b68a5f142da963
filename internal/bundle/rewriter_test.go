package bundle

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, fsys afero.Fs, path string, img []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, img, 0o644))
}

func TestRewrite_SpliceSameLength(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	img := buildImage(t, false, map[string][]byte{
		"keep":  []byte("untouched bytes"),
		"patch": []byte("AAAAAAAA"),
	}, "keep", "patch")
	writeImage(t, fsys, "test.fmb", img)

	err := Rewrite(fsys, "test.fmb", map[string]Replacement{
		"patch": {Stored: []byte("BBBBBBBB")},
	}, false)
	require.NoError(t, err)

	c, err := Open(fsys, "test.fmb")
	require.NoError(t, err)
	assert.Equal(t, int64(len(img)), c.Size)

	e, err := c.Entry("patch")
	require.NoError(t, err)
	got, err := c.Payload(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBBBBBB"), got)

	e, err = c.Entry("keep")
	require.NoError(t, err)
	got, err = c.Payload(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("untouched bytes"), got)
}

func TestRewrite_UpdatesChecksum(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	img := buildImage(t, true, map[string][]byte{"rec": []byte("12345678")}, "rec")
	writeImage(t, fsys, "v2.fmb", img)

	err := Rewrite(fsys, "v2.fmb", map[string]Replacement{
		"rec": {Stored: []byte("87654321")},
	}, false)
	require.NoError(t, err)

	// Payload verifies the stored checksum on FMB2
	c, err := Open(fsys, "v2.fmb")
	require.NoError(t, err)
	e, err := c.Entry("rec")
	require.NoError(t, err)
	got, err := c.Payload(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("87654321"), got)
}

func TestRewrite_ResizeRejectedByDefault(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	img := buildImage(t, false, map[string][]byte{"rec": []byte("12345678")}, "rec")
	writeImage(t, fsys, "test.fmb", img)

	err := Rewrite(fsys, "test.fmb", map[string]Replacement{
		"rec": {Stored: []byte("longer than before")},
	}, false)
	var re *ResizeNotAllowedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "rec", re.Entry)

	// nothing written
	after, err := afero.ReadFile(fsys, "test.fmb")
	require.NoError(t, err)
	assert.Equal(t, img, after)
}

func TestRewrite_ResizeShiftsFollowingEntries(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	img := buildImage(t, true, map[string][]byte{
		"first":  []byte("first payload"),
		"second": []byte("second payload"),
		"third":  []byte("third payload"),
	}, "first", "second", "third")
	writeImage(t, fsys, "test.fmb", img)

	grown := []byte("second payload but considerably longer now")
	err := Rewrite(fsys, "test.fmb", map[string]Replacement{
		"second": {Stored: grown},
	}, true)
	require.NoError(t, err)

	c, err := Open(fsys, "test.fmb")
	require.NoError(t, err)
	require.Len(t, c.Entries, 3)

	// directory order unchanged
	assert.Equal(t, "first", c.Entries[0].Name)
	assert.Equal(t, "second", c.Entries[1].Name)
	assert.Equal(t, "third", c.Entries[2].Name)

	want := map[string][]byte{
		"first":  []byte("first payload"),
		"second": grown,
		"third":  []byte("third payload"),
	}
	for name, raw := range want {
		e, err := c.Entry(name)
		require.NoError(t, err)
		got, err := c.Payload(e)
		require.NoError(t, err, name)
		assert.Equal(t, raw, got, name)
	}

	// third moved past the grown second entry
	second, _ := c.Entry("second")
	third, _ := c.Entry("third")
	assert.Equal(t, second.Offset+second.Length, third.Offset)
}

func TestRewrite_UnknownEntry(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()

	img := buildImage(t, false, map[string][]byte{"rec": []byte("data")}, "rec")
	writeImage(t, fsys, "test.fmb", img)

	err := Rewrite(fsys, "test.fmb", map[string]Replacement{
		"ghost": {Stored: []byte("data")},
	}, false)
	var nf *EntryNotFoundError
	require.ErrorAs(t, err, &nf)
}
