package backup

import "fmt"

// BackupError indicates the snapshot phase failed (disk full, permission
// denied, corrupt stored copy). A transaction that fails here never
// proceeds to writing.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backing up %s: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// SnapshotNotFoundError indicates a restore request for a snapshot that
// no longer exists, either in the manifest or on disk.
type SnapshotNotFoundError struct {
	ID string
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot %q not found", e.ID)
}

// IOError indicates a write-phase or restore-phase environment failure:
// the target vanished, is locked by the running game, or the disk gave
// out mid-commit. By the time it surfaces, rollback has already run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
