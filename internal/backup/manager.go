package backup

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/patch"
	"github.com/spf13/afero"
)

// Manager drives a transaction through snapshot, write and rollback. It
// owns the target files for the duration of a commit: a path-level lock
// keeps a second transaction against the same bundle from interleaving
// writes with one already in flight.
type Manager struct {
	fs    afero.Fs
	store *Store
	locks pathLocks

	// OnFile, when set, is called before each target file is rewritten.
	// The CLI uses it to drive the progress bar.
	OnFile func(path string)
}

func NewManager(fsys afero.Fs, store *Store) *Manager {
	return &Manager{fs: fsys, store: store}
}

// Commit applies a planned transaction: snapshot every target, then
// rewrite them one by one. If any write fails, every file written so far
// is restored from the just-taken snapshot before the error surfaces, so
// a failed commit leaves the disk byte-identical to its prior state. A
// target that vanished before its own write began is left absent: its
// absence at that point is the prior state.
func (m *Manager) Commit(tx *patch.Transaction) error {
	if tx.State != patch.Planned {
		return fmt.Errorf("transaction is %s, only a planned transaction can commit", tx.State)
	}
	if len(tx.Ops) == 0 {
		tx.State = patch.Committed
		return nil
	}

	files := tx.Files()
	m.locks.acquire(files)
	defer m.locks.release(files)

	snapshots := make(map[string]*Info, len(files))
	for _, file := range files {
		info, err := m.store.Take(file)
		if err != nil {
			tx.State = patch.Aborted
			return err
		}
		snapshots[file] = info
		slog.Debug("snapshot taken", "source", file, "snapshot", info.ID, "hash", info.Hash)
	}
	tx.State = patch.Snapshotted

	tx.State = patch.Writing
	var written []string
	for _, file := range files {
		if m.OnFile != nil {
			m.OnFile(file)
		}
		if err := bundle.Rewrite(m.fs, file, tx.Replacements(file), tx.AllowResize); err != nil {
			m.rollback(snapshots, written)
			tx.State = patch.RolledBack
			return &IOError{Op: "write", Path: file, Err: err}
		}
		written = append(written, file)
	}

	tx.State = patch.Committed
	return nil
}

// rollback restores the files that were already rewritten. Restore
// failures here are logged rather than returned: the primary write error
// is what the caller needs to see.
func (m *Manager) rollback(snapshots map[string]*Info, written []string) {
	for _, file := range written {
		info := snapshots[file]
		if err := m.store.restore(info); err != nil {
			slog.Error("rollback failed", "file", file, "snapshot", info.ID, "error", err)
			continue
		}
		slog.Info("rolled back", "file", file, "snapshot", info.ID)
	}
}

// Abort discards a transaction before any byte has been written. Once
// the write phase has begun there is nothing to abort; only the
// automatic rollback path applies.
func (m *Manager) Abort(tx *patch.Transaction) error {
	switch tx.State {
	case patch.Planned, patch.Snapshotted:
		tx.State = patch.Aborted
		return nil
	default:
		return fmt.Errorf("transaction is %s and can no longer be aborted", tx.State)
	}
}

// Restore rolls a target file back to an arbitrary prior snapshot,
// holding the same path lock a commit would.
func (m *Manager) Restore(id string) error {
	info, err := m.store.manifest.Lookup(id)
	if err != nil {
		return err
	}
	paths := []string{info.Source}
	m.locks.acquire(paths)
	defer m.locks.release(paths)
	return m.store.restore(info)
}

// pathLocks serializes transactions per absolute target path. Paths are
// always locked in sorted order so two transactions over overlapping
// file sets cannot deadlock.
type pathLocks struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

func (l *pathLocks) get(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paths == nil {
		l.paths = make(map[string]*sync.Mutex)
	}
	m, ok := l.paths[path]
	if !ok {
		m = &sync.Mutex{}
		l.paths[path] = m
	}
	return m
}

func (l *pathLocks) acquire(paths []string) {
	ordered := append([]string(nil), paths...)
	sort.Strings(ordered)
	for _, p := range ordered {
		l.get(p).Lock()
	}
}

func (l *pathLocks) release(paths []string) {
	ordered := append([]string(nil), paths...)
	sort.Strings(ordered)
	for i := len(ordered) - 1; i >= 0; i-- {
		l.get(ordered[i]).Unlock()
	}
}
