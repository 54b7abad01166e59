package romfs

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

const hashSeed = 123456789

// Hash computes the RomFS name hash of a child of the directory at parent.
// name is the UTF-16LE encoding of the child's name.
func Hash(parent uint32, name []byte) uint32 {
	h := parent ^ hashSeed
	for i := 0; i+1 < len(name); i += 2 {
		h = bits.RotateLeft32(h, -5) ^ uint32(binary.LittleEndian.Uint16(name[i:]))
	}
	return h
}

// chainLink is the part of a record a hash chain walk needs
type chainLink struct {
	parent uint32
	next   uint32
	name   []byte
}

// LookupDir returns the offset of the directory called name whose parent
// directory is at offset parent.
func (img *Image) LookupDir(parent uint32, name string) (uint32, error) {
	return img.lookup(TableDirHash, img.dirHash, img.dirBound(), parent, name, func(off uint32) (chainLink, error) {
		d, err := img.Dir(off)
		return chainLink{parent: d.Parent, next: d.NextHash, name: d.name}, err
	})
}

// LookupFile returns the offset of the file called name in the directory
// at offset parent.
func (img *Image) LookupFile(parent uint32, name string) (uint32, error) {
	return img.lookup(TableFileHash, img.fileHash, img.fileBound(), parent, name, func(off uint32) (chainLink, error) {
		f, err := img.File(off)
		return chainLink{parent: f.Parent, next: f.NextHash, name: f.name}, err
	})
}

// lookup walks the collision chain of the bucket name hashes into. Every
// candidate is compared on both parent and name, so a hash match alone
// never resolves. A chain longer than bound entries must loop. The empty
// name is never a child; only the root carries it.
func (img *Image) lookup(t Table, buckets []uint32, bound int, parent uint32, name string, link func(uint32) (chainLink, error)) (uint32, error) {
	raw, err := encodeName(name)
	if err != nil || name == "" || len(buckets) == 0 {
		return Sentinel, notFound(t, parent, name)
	}

	bucket := Hash(parent, raw) % uint32(len(buckets))
	for off, steps := buckets[bucket], 0; off != Sentinel; steps++ {
		if steps >= bound {
			img.log.Debug().Stringer("table", t).Uint32("bucket", bucket).Int("steps", steps).Msg("hash chain does not terminate")
			return Sentinel, malformed(t, int64(bucket)*4, "hash chain exceeds %d entries", bound)
		}
		l, err := link(off)
		if err != nil {
			return Sentinel, err
		}
		if l.parent == parent && bytes.Equal(l.name, raw) {
			return off, nil
		}
		off = l.next
	}
	return Sentinel, notFound(t, parent, name)
}
