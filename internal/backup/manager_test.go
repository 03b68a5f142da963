package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/patch"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The manifest is a real SQLite file, so these tests run against the OS
// filesystem in a temp dir rather than a MemMapFs.

type fixture struct {
	fs        afero.Fs
	dir       string
	store     *Store
	files     []string
	originals map[string][]byte
}

func newFixture(t *testing.T, fileCount int) *fixture {
	t.Helper()
	dir := t.TempDir()
	fsys := afero.NewOsFs()

	f := &fixture{
		fs:        fsys,
		dir:       dir,
		originals: make(map[string][]byte),
	}
	for i := 0; i < fileCount; i++ {
		b := &bundle.Builder{Checksums: true}
		b.Add("rec", []byte(fmt.Sprintf("original payload %d", i)))
		img, err := b.Bytes()
		require.NoError(t, err)

		path := filepath.Join(dir, fmt.Sprintf("file%d.fmb", i))
		require.NoError(t, afero.WriteFile(fsys, path, img, 0o644))
		f.files = append(f.files, path)
		f.originals[path] = img
	}

	store, err := OpenStore(fsys, filepath.Join(dir, "backup"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store
	return f
}

func (f *fixture) transaction(t *testing.T) *patch.Transaction {
	t.Helper()
	tx := &patch.Transaction{CreatedAt: time.Now(), State: patch.Planned}
	for i, path := range f.files {
		tx.Ops = append(tx.Ops, patch.Operation{
			File:  path,
			Entry: "rec",
			Replacement: bundle.Replacement{
				Stored: []byte(fmt.Sprintf("modified payload %d", i)),
			},
		})
	}
	return tx
}

func (f *fixture) readAll(t *testing.T) map[string][]byte {
	t.Helper()
	got := make(map[string][]byte)
	for _, path := range f.files {
		data, err := afero.ReadFile(f.fs, path)
		require.NoError(t, err)
		got[path] = data
	}
	return got
}

func TestCommit_AllFilesWritten(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	require.NoError(t, m.Commit(tx))
	assert.Equal(t, patch.Committed, tx.State)

	for i, path := range f.files {
		c, err := bundle.Open(f.fs, path)
		require.NoError(t, err)
		e, err := c.Entry("rec")
		require.NoError(t, err)
		got, err := c.Payload(e)
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("modified payload %d", i)), got)
	}

	// every target was snapshotted with its pre-commit bytes
	infos, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		stored, err := afero.ReadFile(f.fs, info.StoredPath)
		require.NoError(t, err)
		assert.Equal(t, f.originals[info.Source], stored)
		assert.Equal(t, HashBytes(stored), info.Hash)
	}
}

// failWriteFs fails any write-open of paths containing the marker,
// simulating an I/O error partway through the write phase.
type failWriteFs struct {
	afero.Fs
	marker string
}

func (f *failWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.Contains(name, f.marker) && flag&os.O_WRONLY != 0 {
		return nil, fmt.Errorf("disk error writing %s", name)
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *failWriteFs) Create(name string) (afero.File, error) {
	if strings.Contains(name, f.marker) {
		return nil, fmt.Errorf("disk error writing %s", name)
	}
	return f.Fs.Create(name)
}

func TestCommit_FailureMidwayRollsBackEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)

	tx := f.transaction(t)
	m := NewManager(&failWriteFs{Fs: f.fs, marker: "file1.fmb"}, f.store)

	err := m.Commit(tx)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, patch.RolledBack, tx.State)

	// every target is byte-identical to its pre-transaction state
	assert.Equal(t, f.originals, f.readAll(t))
}

func TestCommit_SnapshotFailureNeverWrites(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	require.NoError(t, f.fs.Remove(f.files[1]))

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)

	err := m.Commit(tx)
	var be *BackupError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, patch.Aborted, tx.State)

	// the file that existed is untouched
	data, err := afero.ReadFile(f.fs, f.files[0])
	require.NoError(t, err)
	assert.Equal(t, f.originals[f.files[0]], data)
}

func TestCommit_TargetDeletedAfterSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	m.OnFile = func(path string) {
		// the running game (or the user) removes the second bundle
		// between the snapshot and its write
		if path == f.files[1] {
			require.NoError(t, f.fs.Remove(path))
		}
	}

	err := m.Commit(tx)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, patch.RolledBack, tx.State)

	// the first file was written and rolled back to its original bytes;
	// the deleted file stays absent, absence being its state at failure
	data, err := afero.ReadFile(f.fs, f.files[0])
	require.NoError(t, err)
	assert.Equal(t, f.originals[f.files[0]], data)

	_, err = f.fs.Stat(f.files[1])
	assert.True(t, os.IsNotExist(err))
}

func TestCommit_RequiresPlannedState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tx := f.transaction(t)
	tx.State = patch.Committed
	m := NewManager(f.fs, f.store)
	require.Error(t, m.Commit(tx))
}

func TestAbort(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	require.NoError(t, m.Abort(tx))
	assert.Equal(t, patch.Aborted, tx.State)
	require.Error(t, m.Commit(tx))

	written := f.transaction(t)
	written.State = patch.Writing
	require.Error(t, m.Abort(written))
}

func TestRestore_VerifiesRecordedHash(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	require.NoError(t, m.Commit(tx))

	infos, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	id := infos[0].ID

	require.NoError(t, m.Restore(id))
	data, err := afero.ReadFile(f.fs, f.files[0])
	require.NoError(t, err)
	assert.Equal(t, f.originals[f.files[0]], data)
	assert.Equal(t, infos[0].Hash, HashBytes(data))

	// restore does not consume the snapshot
	require.NoError(t, m.Restore(id))
}

func TestRestore_CorruptSnapshotRefused(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	require.NoError(t, m.Commit(tx))

	committed, err := afero.ReadFile(f.fs, f.files[0])
	require.NoError(t, err)

	infos, err := f.store.List()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(f.fs, infos[0].StoredPath, []byte("tampered"), 0o644))

	err = m.Restore(infos[0].ID)
	var be *BackupError
	require.ErrorAs(t, err, &be)

	// the live file is untouched by a refused restore
	data, err := afero.ReadFile(f.fs, f.files[0])
	require.NoError(t, err)
	assert.Equal(t, committed, data)
}

func TestRestore_UnknownSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	m := NewManager(f.fs, f.store)
	err := m.Restore("nope_20200101-000000")
	var nf *SnapshotNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRestore_MissingStoredCopy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tx := f.transaction(t)
	m := NewManager(f.fs, f.store)
	require.NoError(t, m.Commit(tx))

	infos, err := f.store.List()
	require.NoError(t, err)
	require.NoError(t, f.fs.Remove(infos[0].StoredPath))

	err = m.Restore(infos[0].ID)
	var nf *SnapshotNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestPathLocks_SerializeSamePath(t *testing.T) {
	t.Parallel()

	var locks pathLocks
	paths := []string{"/b.fmb", "/a.fmb"}

	locks.acquire(paths)

	acquired := make(chan struct{})
	go func() {
		locks.acquire([]string{"/a.fmb"})
		close(acquired)
		locks.release([]string{"/a.fmb"})
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired a held path lock")
	case <-time.After(50 * time.Millisecond):
	}

	locks.release(paths)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock never handed over after release")
	}
}
