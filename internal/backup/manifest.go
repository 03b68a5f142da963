package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Info is one manifest row: where a snapshot came from, where its bytes
// live, and the content hash used to verify it on restore.
type Info struct {
	ID         string
	Source     string
	StoredPath string
	CreatedAt  time.Time
	Hash       string
	Size       int64
}

// Manifest records snapshot metadata in a SQLite database next to the
// snapshot directories.
type Manifest struct {
	db *sql.DB
}

const manifestSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	stored_path TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	hash        TEXT NOT NULL,
	size        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_source ON snapshots(source);
`

// OpenManifest opens (creating if needed) the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=30000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing manifest connection: %w", err)
	}
	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

// Record inserts one snapshot row.
func (m *Manifest) Record(info Info) error {
	_, err := m.db.Exec(
		`INSERT INTO snapshots (id, source, stored_path, created_at, hash, size) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Source, info.StoredPath, info.CreatedAt.UTC().Format(time.RFC3339), info.Hash, info.Size,
	)
	if err != nil {
		return fmt.Errorf("recording snapshot %s: %w", info.ID, err)
	}
	return nil
}

// Lookup fetches one snapshot row by id.
func (m *Manifest) Lookup(id string) (*Info, error) {
	row := m.db.QueryRow(
		`SELECT id, source, stored_path, created_at, hash, size FROM snapshots WHERE id = ?`, id)

	info, err := scanInfo(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SnapshotNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("looking up snapshot %s: %w", id, err)
	}
	return info, nil
}

// List returns all snapshots, newest first.
func (m *Manifest) List() ([]Info, error) {
	rows, err := m.db.Query(
		`SELECT id, source, stored_path, created_at, hash, size FROM snapshots ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info, err := scanInfo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		infos = append(infos, *info)
	}
	return infos, rows.Err()
}

func scanInfo(scan func(...any) error) (*Info, error) {
	var info Info
	var created string
	if err := scan(&info.ID, &info.Source, &info.StoredPath, &created, &info.Hash, &info.Size); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot timestamp %q: %w", created, err)
	}
	info.CreatedAt = t
	return &info, nil
}
