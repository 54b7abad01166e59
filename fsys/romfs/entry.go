package romfs

import (
	"bytes"
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DirEntry is a decoded directory record
type DirEntry struct {
	Offset      uint32
	Parent      uint32
	NextSibling uint32
	FirstDir    uint32
	FirstFile   uint32
	NextHash    uint32

	name []byte // UTF-16LE, aliases the metadata table
}

// Name returns the directory name; the root's is empty
func (d DirEntry) Name() (string, error) { return decodeName(d.name, TableDirMeta, d.Offset) }

// IsRoot reports whether this is the root directory
func (d DirEntry) IsRoot() bool { return d.Offset == 0 }

// FileEntry is a decoded file record
type FileEntry struct {
	Offset      uint32
	Parent      uint32
	NextSibling uint32
	DataOffset  uint64 // relative to the data region
	DataSize    uint64
	NextHash    uint32

	name []byte
}

// Name returns the file name
func (f FileEntry) Name() (string, error) { return decodeName(f.name, TableFileMeta, f.Offset) }

// Dir decodes the directory record at off in the directory metadata table
func (img *Image) Dir(off uint32) (DirEntry, error) {
	prefix, name, err := record(img.dirMeta, off, dirPrefixSize, TableDirMeta)
	if err != nil {
		return DirEntry{}, err
	}
	return DirEntry{
		Offset:      off,
		Parent:      binary.LittleEndian.Uint32(prefix[0x00:]),
		NextSibling: binary.LittleEndian.Uint32(prefix[0x04:]),
		FirstDir:    binary.LittleEndian.Uint32(prefix[0x08:]),
		FirstFile:   binary.LittleEndian.Uint32(prefix[0x0C:]),
		NextHash:    binary.LittleEndian.Uint32(prefix[0x10:]),
		name:        name,
	}, nil
}

// File decodes the file record at off in the file metadata table
func (img *Image) File(off uint32) (FileEntry, error) {
	prefix, name, err := record(img.fileMeta, off, filePrefixSize, TableFileMeta)
	if err != nil {
		return FileEntry{}, err
	}
	return FileEntry{
		Offset:      off,
		Parent:      binary.LittleEndian.Uint32(prefix[0x00:]),
		NextSibling: binary.LittleEndian.Uint32(prefix[0x04:]),
		DataOffset:  binary.LittleEndian.Uint64(prefix[0x08:]),
		DataSize:    binary.LittleEndian.Uint64(prefix[0x10:]),
		NextHash:    binary.LittleEndian.Uint32(prefix[0x18:]),
		name:        name,
	}, nil
}

// record splits the record at off into its fixed prefix and its name. The
// name length is the last field of the prefix.
func record(table []byte, off uint32, prefixSize int, t Table) (prefix, name []byte, err error) {
	if off%alignment != 0 {
		return nil, nil, malformed(t, int64(off), "record is not %d-byte aligned", alignment)
	}
	start := uint64(off)
	if start+uint64(prefixSize) > uint64(len(table)) {
		return nil, nil, malformed(t, int64(off), "record overruns table of %#x bytes", len(table))
	}
	prefix = table[start : start+uint64(prefixSize)]

	nameLen := uint64(binary.LittleEndian.Uint32(prefix[prefixSize-4:]))
	if nameLen%2 != 0 {
		return nil, nil, malformed(t, int64(off), "odd UTF-16 name length %d", nameLen)
	}
	end := start + uint64(prefixSize) + nameLen
	if end > uint64(len(table)) {
		return nil, nil, malformed(t, int64(off), "name of %d bytes overruns table of %#x bytes", nameLen, len(table))
	}
	return prefix, table[start+uint64(prefixSize) : end], nil
}

// decodeName rejects names that do not survive a round trip, such as
// unpaired surrogates, since lookups compare the encoded form.
func decodeName(raw []byte, t Table, off uint32) (string, error) {
	b, err := utf16le.NewDecoder().Bytes(raw)
	if err == nil {
		var back []byte
		back, err = utf16le.NewEncoder().Bytes(b)
		if err == nil && !bytes.Equal(back, raw) {
			err = errors.New("invalid UTF-16")
		}
	}
	if err != nil {
		return "", malformed(t, int64(off), "name % x: %v", raw, err)
	}
	return string(b), nil
}

func encodeName(name string) ([]byte, error) {
	return utf16le.NewEncoder().Bytes([]byte(name))
}
