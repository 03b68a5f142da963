package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
)

// Format versions. FMB1 is the original directory layout; FMB2 adds a
// CRC32 per entry, covering the stored (possibly compressed) payload.
var (
	MagicV1 = [4]byte{'F', 'M', 'B', '1'}
	MagicV2 = [4]byte{'F', 'M', 'B', '2'}
)

const (
	headerSize = 16

	// FlagCompressed marks an entry whose stored payload is a single LZ4
	// block. The directory then carries the uncompressed size alongside.
	FlagCompressed uint16 = 1 << 0
)

type bundleHead struct {
	Magic      [4]byte
	EntryCount uint32
	DataOffset uint32
	Reserved   uint32
}

// Entry describes one addressable record in the container directory.
// Offsets and lengths refer to the stored payload bytes; RawLen is only
// meaningful for compressed entries.
type Entry struct {
	Name     string
	Offset   uint32
	Length   uint32
	Flags    uint16
	RawLen   uint32
	Checksum uint32

	// byte positions of the mutable directory fields, for in-place rewrite
	lengthPos int
	offsetPos int
	rawLenPos int
	crcPos    int
}

func (e *Entry) Compressed() bool {
	return e.Flags&FlagCompressed != 0
}

// Container is a fully loaded bundle file: header, directory and data.
// Entries keep their on-disk directory order, which is not necessarily
// sorted by offset and must survive a rewrite untouched.
type Container struct {
	Path       string
	Size       int64
	Checksums  bool
	DataOffset uint32
	Entries    []Entry

	data []byte
}

// Open reads and parses a bundle file from fsys.
func Open(fsys afero.Fs, path string) (*Container, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.Path = path
	return c, nil
}

// Parse parses an in-memory bundle image.
func Parse(data []byte) (*Container, error) {
	var bh bundleHead
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &bh); err != nil {
		return nil, &TruncatedError{Declared: headerSize, Actual: int64(len(data))}
	}

	var checksums bool
	switch bh.Magic {
	case MagicV1:
		checksums = false
	case MagicV2:
		checksums = true
	default:
		return nil, &FormatError{Reason: fmt.Sprintf("unrecognised magic %q", bh.Magic)}
	}

	if int64(bh.DataOffset) > int64(len(data)) {
		return nil, &FormatError{Reason: fmt.Sprintf("data offset %d beyond file size %d", bh.DataOffset, len(data))}
	}
	if bh.DataOffset < headerSize {
		return nil, &FormatError{Reason: fmt.Sprintf("data offset %d overlaps header", bh.DataOffset)}
	}

	c := &Container{
		Size:       int64(len(data)),
		Checksums:  checksums,
		DataOffset: bh.DataOffset,
		Entries:    make([]Entry, 0, bh.EntryCount),
		data:       data,
	}

	p := headerSize
	dirEnd := int(bh.DataOffset)
	for i := uint32(0); i < bh.EntryCount; i++ {
		e, next, err := readDirEntry(data, p, dirEnd, checksums)
		if err != nil {
			return nil, err
		}
		if int64(e.Offset)+int64(e.Length) > int64(len(data)) {
			return nil, &TruncatedError{
				Entry:    e.Name,
				Declared: int64(e.Offset) + int64(e.Length),
				Actual:   int64(len(data)),
			}
		}
		if e.Offset < bh.DataOffset {
			return nil, &FormatError{Reason: fmt.Sprintf("entry %q payload at %d overlaps directory", e.Name, e.Offset)}
		}
		c.Entries = append(c.Entries, e)
		p = next
	}

	return c, nil
}

func readDirEntry(data []byte, p, dirEnd int, checksums bool) (Entry, int, error) {
	var e Entry

	if p+2 > dirEnd {
		return e, 0, &FormatError{Reason: "directory runs past data offset"}
	}
	nameLen := int(binary.LittleEndian.Uint16(data[p:]))
	p += 2

	// fixed part after the name: offset, length, flags
	need := nameLen + 4 + 4 + 2
	if p+need > dirEnd {
		return e, 0, &FormatError{Reason: "directory entry runs past data offset"}
	}
	e.Name = string(data[p : p+nameLen])
	p += nameLen

	e.offsetPos = p
	e.Offset = binary.LittleEndian.Uint32(data[p:])
	p += 4

	e.lengthPos = p
	e.Length = binary.LittleEndian.Uint32(data[p:])
	p += 4

	e.Flags = binary.LittleEndian.Uint16(data[p:])
	p += 2

	if e.Flags&FlagCompressed != 0 {
		if p+4 > dirEnd {
			return e, 0, &FormatError{Reason: fmt.Sprintf("entry %q missing raw length", e.Name)}
		}
		e.rawLenPos = p
		e.RawLen = binary.LittleEndian.Uint32(data[p:])
		p += 4
	}

	if checksums {
		if p+4 > dirEnd {
			return e, 0, &FormatError{Reason: fmt.Sprintf("entry %q missing checksum", e.Name)}
		}
		e.crcPos = p
		e.Checksum = binary.LittleEndian.Uint32(data[p:])
		p += 4
	}

	return e, p, nil
}

// Entry looks up a directory entry by name.
func (c *Container) Entry(name string) (*Entry, error) {
	for i := range c.Entries {
		if c.Entries[i].Name == name {
			return &c.Entries[i], nil
		}
	}
	return nil, &EntryNotFoundError{Path: c.Path, Name: name}
}

// Stored returns the payload bytes exactly as they sit in the file,
// compressed or not.
func (c *Container) Stored(e *Entry) []byte {
	return c.data[e.Offset : e.Offset+e.Length]
}

// Payload returns the record bytes for an entry, decompressing LZ4
// entries and verifying the stored checksum on FMB2 containers.
func (c *Container) Payload(e *Entry) ([]byte, error) {
	stored := c.Stored(e)

	if c.Checksums {
		if sum := crc32.ChecksumIEEE(stored); sum != e.Checksum {
			return nil, &FormatError{
				Path:   c.Path,
				Reason: fmt.Sprintf("entry %q checksum mismatch: directory %08x, payload %08x", e.Name, e.Checksum, sum),
			}
		}
	}

	if !e.Compressed() {
		return stored, nil
	}

	raw := make([]byte, e.RawLen)
	n, err := lz4.UncompressBlock(stored, raw)
	if err != nil {
		return nil, &FormatError{Path: c.Path, Reason: fmt.Sprintf("entry %q: lz4: %v", e.Name, err)}
	}
	if n != int(e.RawLen) {
		return nil, &FormatError{
			Path:   c.Path,
			Reason: fmt.Sprintf("entry %q decompressed to %d bytes, directory says %d", e.Name, n, e.RawLen),
		}
	}
	return raw, nil
}

// CompressPayload produces the stored form of raw record bytes for an
// entry, matching its compression flag.
func CompressPayload(e *Entry, raw []byte) ([]byte, error) {
	if !e.Compressed() {
		return raw, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(raw)))
	var comp lz4.Compressor
	n, err := comp.CompressBlock(raw, buf)
	if err != nil {
		return nil, fmt.Errorf("compressing entry %q: %w", e.Name, err)
	}
	if n == 0 {
		// incompressible; LZ4 block format has no stored-raw escape here,
		// so fail loudly rather than write something the game cannot read
		return nil, fmt.Errorf("entry %q: payload not compressible", e.Name)
	}
	return buf[:n], nil
}
