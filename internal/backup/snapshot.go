package backup

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Store keeps byte-identical copies of bundle files under a backup
// directory. Each snapshot is a directory keyed by
// {originalFileName}_{timestamp} holding the copy, with a manifest row
// for the source path, timestamp and content hash.
type Store struct {
	fs       afero.Fs
	dir      string
	manifest *Manifest

	now func() time.Time
}

// OpenStore opens the snapshot store rooted at dir, creating the
// directory and manifest database as needed. The manifest lives on the
// real filesystem regardless of fsys; fsys covers the snapshot copies so
// tests can fault-inject them.
func OpenStore(fsys afero.Fs, dir string) (*Store, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory %s: %w", dir, err)
	}
	manifest, err := OpenManifest(filepath.Join(dir, "manifest.db"))
	if err != nil {
		return nil, err
	}
	return &Store{fs: fsys, dir: dir, manifest: manifest, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.manifest.Close()
}

// List returns the recorded snapshots, newest first.
func (s *Store) List() ([]Info, error) {
	return s.manifest.List()
}

// HashBytes is the content hash used for snapshot identity.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Take snapshots one source file: copies its bytes into a fresh snapshot
// directory and records the manifest row. Nothing about the source is
// modified.
func (s *Store) Take(source string) (*Info, error) {
	data, err := afero.ReadFile(s.fs, source)
	if err != nil {
		return nil, &BackupError{Path: source, Err: err}
	}

	name := filepath.Base(source)
	stamp := s.now().UTC().Format("20060102-150405")
	id := fmt.Sprintf("%s_%s", name, stamp)
	snapDir := filepath.Join(s.dir, id)
	for seq := 2; ; seq++ {
		if _, err := s.fs.Stat(snapDir); os.IsNotExist(err) {
			break
		}
		id = fmt.Sprintf("%s_%s-%d", name, stamp, seq)
		snapDir = filepath.Join(s.dir, id)
	}

	if err := s.fs.MkdirAll(snapDir, 0o755); err != nil {
		return nil, &BackupError{Path: source, Err: err}
	}
	stored := filepath.Join(snapDir, name)
	if err := afero.WriteFile(s.fs, stored, data, 0o644); err != nil {
		return nil, &BackupError{Path: source, Err: err}
	}

	info := Info{
		ID:         id,
		Source:     source,
		StoredPath: stored,
		CreatedAt:  s.now().UTC(),
		Hash:       HashBytes(data),
		Size:       int64(len(data)),
	}
	if err := s.manifest.Record(info); err != nil {
		return nil, &BackupError{Path: source, Err: err}
	}
	return &info, nil
}

// Restore overwrites a snapshot's source file with its stored bytes,
// after verifying them against the hash recorded at snapshot time.
// Restoring consumes nothing: the snapshot stays available.
func (s *Store) Restore(id string) error {
	info, err := s.manifest.Lookup(id)
	if err != nil {
		return err
	}
	return s.restore(info)
}

func (s *Store) restore(info *Info) error {
	data, err := afero.ReadFile(s.fs, info.StoredPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &SnapshotNotFoundError{ID: info.ID}
		}
		return &BackupError{Path: info.StoredPath, Err: err}
	}
	if got := HashBytes(data); got != info.Hash {
		return &BackupError{
			Path: info.StoredPath,
			Err:  fmt.Errorf("stored copy hash %s does not match recorded %s", got, info.Hash),
		}
	}
	if err := afero.WriteFile(s.fs, info.Source, data, 0o644); err != nil {
		return &IOError{Op: "restore", Path: info.Source, Err: err}
	}
	return nil
}
