package bundle

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/spf13/afero"
)

// Replacement is a new stored payload for one directory entry. RawLen is
// the uncompressed size and is only consulted for compressed entries.
type Replacement struct {
	Stored []byte
	RawLen uint32
}

// ResizeNotAllowedError reports a replacement whose stored length differs
// from the directory length while the fixed-size rewrite policy is in
// force. The planner enforces this before a transaction ever reaches the
// rewriter; this is the last structural check before bytes hit the disk.
type ResizeNotAllowedError struct {
	Path  string
	Entry string
	Old   int
	New   int
}

func (e *ResizeNotAllowedError) Error() string {
	return fmt.Sprintf("%s: entry %q would change size %d -> %d without resize enabled",
		e.Path, e.Entry, e.Old, e.New)
}

// Rewrite applies stored-payload replacements to the bundle at path and
// writes the result through a temporary file followed by a rename, so a
// kill mid-write never leaves a half-written bundle behind.
//
// When every replacement keeps its original length the payload bytes are
// spliced at their existing offsets and only the touched directory fields
// (raw length, checksum) are updated. With allowResize set, the payload
// region is repacked instead: entries keep their relative payload order,
// subsequent offsets shift, and the directory is rewritten consistently.
func Rewrite(fsys afero.Fs, path string, repl map[string]Replacement, allowResize bool) error {
	c, err := Open(fsys, path)
	if err != nil {
		return err
	}

	for name := range repl {
		if _, err := c.Entry(name); err != nil {
			return err
		}
	}

	resize := false
	for i := range c.Entries {
		e := &c.Entries[i]
		r, ok := repl[e.Name]
		if !ok {
			continue
		}
		if len(r.Stored) != int(e.Length) {
			if !allowResize {
				return &ResizeNotAllowedError{Path: path, Entry: e.Name, Old: int(e.Length), New: len(r.Stored)}
			}
			resize = true
		}
	}

	var out []byte
	if resize {
		out = c.repack(repl)
	} else {
		out = c.splice(repl)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fsys, tmp, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		fsys.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// splice overwrites payloads in place. Lengths are unchanged, so offsets
// and all untouched bytes stay exactly where they were.
func (c *Container) splice(repl map[string]Replacement) []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)

	for i := range c.Entries {
		e := &c.Entries[i]
		r, ok := repl[e.Name]
		if !ok {
			continue
		}
		copy(out[e.Offset:], r.Stored)
		c.patchDirFields(out, e, r)
	}
	return out
}

// repack rebuilds the payload region. Directory order is preserved as-is;
// payloads keep their current on-disk order and are laid out back to back
// from the data offset.
func (c *Container) repack(repl map[string]Replacement) []byte {
	byOffset := make([]*Entry, len(c.Entries))
	for i := range c.Entries {
		byOffset[i] = &c.Entries[i]
	}
	sort.SliceStable(byOffset, func(i, j int) bool {
		return byOffset[i].Offset < byOffset[j].Offset
	})

	payloads := make(map[string][]byte, len(c.Entries))
	next := c.DataOffset
	for _, e := range byOffset {
		stored := c.Stored(e)
		if r, ok := repl[e.Name]; ok {
			stored = r.Stored
		}
		payloads[e.Name] = stored
		e.Offset = next
		e.Length = uint32(len(stored))
		next += uint32(len(stored))
	}

	out := make([]byte, next)
	copy(out, c.data[:c.DataOffset])

	for i := range c.Entries {
		e := &c.Entries[i]
		stored := payloads[e.Name]
		copy(out[e.Offset:], stored)

		binary.LittleEndian.PutUint32(out[e.offsetPos:], e.Offset)
		binary.LittleEndian.PutUint32(out[e.lengthPos:], e.Length)
		if r, ok := repl[e.Name]; ok {
			c.patchDirFields(out, e, r)
		}
	}
	return out
}

func (c *Container) patchDirFields(out []byte, e *Entry, r Replacement) {
	if e.Compressed() {
		binary.LittleEndian.PutUint32(out[e.rawLenPos:], r.RawLen)
	}
	if c.Checksums {
		binary.LittleEndian.PutUint32(out[e.crcPos:], crc32.ChecksumIEEE(r.Stored))
	}
}
