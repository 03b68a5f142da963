package bundle

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/pierrec/lz4/v4"
)

// Builder assembles a bundle image from scratch. It exists for fixtures
// and round-trip tests; the patch pipeline itself never creates bundles,
// it only rewrites ones the game shipped.
type Builder struct {
	Checksums bool
	entries   []builderEntry
}

type builderEntry struct {
	name     string
	raw      []byte
	compress bool
}

func (b *Builder) Add(name string, raw []byte) *Builder {
	b.entries = append(b.entries, builderEntry{name: name, raw: raw})
	return b
}

func (b *Builder) AddCompressed(name string, raw []byte) *Builder {
	b.entries = append(b.entries, builderEntry{name: name, raw: raw, compress: true})
	return b
}

// Bytes lays out header, directory and payloads in insertion order.
func (b *Builder) Bytes() ([]byte, error) {
	type stored struct {
		data   []byte
		rawLen uint32
		flags  uint16
	}

	payloads := make([]stored, len(b.entries))
	dirSize := 0
	for i, e := range b.entries {
		s := stored{data: e.raw}
		if e.compress {
			buf := make([]byte, lz4.CompressBlockBound(len(e.raw)))
			var comp lz4.Compressor
			n, err := comp.CompressBlock(e.raw, buf)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("compressing entry %q: %v", e.name, err)
			}
			s.data = buf[:n]
			s.rawLen = uint32(len(e.raw))
			s.flags = FlagCompressed
		}
		payloads[i] = s

		dirSize += 2 + len(e.name) + 4 + 4 + 2
		if e.compress {
			dirSize += 4
		}
		if b.Checksums {
			dirSize += 4
		}
	}

	dataOffset := headerSize + dirSize
	total := dataOffset
	for _, s := range payloads {
		total += len(s.data)
	}

	out := make([]byte, total)
	magic := MagicV1
	if b.Checksums {
		magic = MagicV2
	}
	copy(out, magic[:])
	binary.LittleEndian.PutUint32(out[4:], uint32(len(b.entries)))
	binary.LittleEndian.PutUint32(out[8:], uint32(dataOffset))

	p := headerSize
	off := uint32(dataOffset)
	for i, e := range b.entries {
		s := payloads[i]

		binary.LittleEndian.PutUint16(out[p:], uint16(len(e.name)))
		p += 2
		copy(out[p:], e.name)
		p += len(e.name)
		binary.LittleEndian.PutUint32(out[p:], off)
		p += 4
		binary.LittleEndian.PutUint32(out[p:], uint32(len(s.data)))
		p += 4
		binary.LittleEndian.PutUint16(out[p:], s.flags)
		p += 2
		if s.flags&FlagCompressed != 0 {
			binary.LittleEndian.PutUint32(out[p:], s.rawLen)
			p += 4
		}
		if b.Checksums {
			binary.LittleEndian.PutUint32(out[p:], crc32.ChecksumIEEE(s.data))
			p += 4
		}

		copy(out[off:], s.data)
		off += uint32(len(s.data))
	}

	return out, nil
}
