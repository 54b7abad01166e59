// Package romfs implements read-only access to 3DS RomFS images.
//
// An image is decoded once by Decode, which loads the four metadata tables
// into memory. Directory and file records are then decoded on demand from
// those tables by their offset, which doubles as the entry's identity. VFS
// and FS expose the decoded image as a handle-based virtual filesystem and
// as an io/fs filesystem respectively; file data is read from the source
// only when a file view is read.
package romfs

import (
	"encoding/binary"
)

const (
	// HeaderSize is the size of the level-3 header, which also records it
	// as its first field.
	HeaderSize = 0x28

	// Sentinel marks the absence of an entry in any offset or chain field.
	Sentinel uint32 = 0xFFFFFFFF

	// IVFCLevel3Offset is where the RomFS image starts inside an IVFC container.
	IVFCLevel3Offset = 0x1000

	dirPrefixSize  = 0x18
	filePrefixSize = 0x20
	alignment      = 4
)

// Region is an offset/length pair relative to the start of the image
type Region struct {
	Offset uint64
	Length uint64
}

// End returns one past the last byte of the region
func (r Region) End() uint64 { return r.Offset + r.Length }

// Header is the decoded level-3 header
type Header struct {
	HeaderLen  uint32
	DirHash    Region
	DirMeta    Region
	FileHash   Region
	FileMeta   Region
	DataOffset uint64
}

func parseHeader(b []byte) Header {
	region := func(off int) Region {
		return Region{
			Offset: uint64(binary.LittleEndian.Uint32(b[off : off+4])),
			Length: uint64(binary.LittleEndian.Uint32(b[off+4 : off+8])),
		}
	}
	return Header{
		HeaderLen:  binary.LittleEndian.Uint32(b[0:4]),
		DirHash:    region(0x04),
		DirMeta:    region(0x0C),
		FileHash:   region(0x14),
		FileMeta:   region(0x1C),
		DataOffset: uint64(binary.LittleEndian.Uint32(b[0x24:0x28])),
	}
}

// validate checks the header against the source length. Regions that run
// past the end of the source are reported as truncation; anything the
// format itself forbids is malformed.
func (h Header) validate(size int64) error {
	if h.HeaderLen != HeaderSize {
		return malformed(TableHeader, 0, "header length %#x, want %#x", h.HeaderLen, HeaderSize)
	}

	tables := []struct {
		t Table
		r Region
	}{
		{TableDirHash, h.DirHash},
		{TableDirMeta, h.DirMeta},
		{TableFileHash, h.FileHash},
		{TableFileMeta, h.FileMeta},
	}
	for _, tt := range tables {
		if tt.r.Offset%alignment != 0 || tt.r.Length%alignment != 0 {
			return malformed(tt.t, int64(tt.r.Offset), "region [%#x,+%#x) is not %d-byte aligned", tt.r.Offset, tt.r.Length, alignment)
		}
		if tt.r.Offset < HeaderSize {
			return malformed(tt.t, int64(tt.r.Offset), "region overlaps the header")
		}
		if tt.r.End() > uint64(size) {
			return truncated(tt.t, int64(tt.r.Offset), "region ends at %#x, source is %#x bytes", tt.r.End(), size)
		}
	}

	if h.DirMeta.Length < dirPrefixSize {
		return malformed(TableDirMeta, int64(h.DirMeta.Offset), "table of %#x bytes cannot hold the root directory", h.DirMeta.Length)
	}

	if h.DataOffset%alignment != 0 {
		return malformed(TableData, int64(h.DataOffset), "data offset is not %d-byte aligned", alignment)
	}
	if h.DataOffset < HeaderSize {
		return malformed(TableData, int64(h.DataOffset), "data region overlaps the header")
	}
	if h.DataOffset > uint64(size) {
		return truncated(TableData, int64(h.DataOffset), "data region starts past the end of a %#x byte source", size)
	}
	return nil
}
