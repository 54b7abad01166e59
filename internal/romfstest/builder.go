// Package romfstest builds small RomFS images in memory for tests.
//
// The builder lays out images the way the format describes them and keeps
// its own copy of the name hash, so a decoder under test is checked against
// an independent encoder. Images come back with the offsets of every record,
// which lets tests corrupt specific fields.
package romfstest

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

const sentinel = 0xFFFFFFFF

// Header field offsets
const (
	HeaderLen       = 0x00
	HeaderDirHash   = 0x04
	HeaderDirMeta   = 0x0C
	HeaderFileHash  = 0x14
	HeaderFileMeta  = 0x1C
	HeaderDataStart = 0x24

	headerSize = 0x28
)

// Directory record field offsets
const (
	DirParent      = 0x00
	DirNextSibling = 0x04
	DirFirstDir    = 0x08
	DirFirstFile   = 0x0C
	DirNextHash    = 0x10
	DirNameLen     = 0x14
	DirName        = 0x18

	dirPrefix = DirName
)

// File record field offsets
const (
	FileParent      = 0x00
	FileNextSibling = 0x04
	FileDataOffset  = 0x08
	FileDataSize    = 0x10
	FileNextHash    = 0x18
	FileNameLen     = 0x1C
	FileName        = 0x20

	filePrefix = FileName
)

type dir struct {
	name  string
	path  string
	up    *dir
	dirs  []*dir
	files []*file
	off   uint32
}

type file struct {
	name string
	path string
	up   *dir
	data []byte
	off  uint32
	pos  uint64
}

// Builder collects directories and files. Children keep the order they
// were added in, and that is the order their sibling chains get.
type Builder struct {
	// DirBuckets and FileBuckets set the hash table sizes. Zero gives one
	// bucket per entry.
	DirBuckets  int
	FileBuckets int

	// DataAlign pads the start of each file's data to a multiple of it.
	// Zero packs files back to back.
	DataAlign int

	root *dir
}

// NewBuilder returns a builder holding only the root directory
func NewBuilder() *Builder {
	return &Builder{root: &dir{}}
}

func (b *Builder) mkdir(path string) *dir {
	d := b.root
	if path == "" {
		return d
	}
next:
	for _, name := range strings.Split(path, "/") {
		for _, sub := range d.dirs {
			if sub.name == name {
				d = sub
				continue next
			}
		}
		sub := &dir{name: name, path: join(d.path, name), up: d}
		d.dirs = append(d.dirs, sub)
		d = sub
	}
	return d
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// AddDir creates the directory at path and any missing parents
func (b *Builder) AddDir(path string) *Builder {
	b.mkdir(path)
	return b
}

// AddFile adds a file at path, creating missing parent directories
func (b *Builder) AddFile(path string, data []byte) *Builder {
	parent, name := "", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		parent, name = path[:i], path[i+1:]
	}
	d := b.mkdir(parent)
	d.files = append(d.files, &file{name: name, path: path, up: d, data: data})
	return b
}

// Image is a built RomFS image
type Image struct {
	Bytes []byte

	DirHashOffset  int
	DirMetaOffset  int
	FileHashOffset int
	FileMetaOffset int
	DataOffset     int

	// Dirs and Files map slash separated paths to record offsets within
	// their metadata tables. The root directory is "".
	Dirs  map[string]uint32
	Files map[string]uint32

	// Data maps file paths to their data offset within the data region
	Data map[string]uint64
}

// DirRecord returns the absolute offset of the directory record at path
func (img *Image) DirRecord(path string) int {
	return img.DirMetaOffset + int(img.Dirs[path])
}

// FileRecord returns the absolute offset of the file record at path
func (img *Image) FileRecord(path string) int {
	return img.FileMetaOffset + int(img.Files[path])
}

// PutUint32 overwrites the little-endian word at off
func (img *Image) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(img.Bytes[off:], v)
}

// PutUint64 overwrites the little-endian double word at off
func (img *Image) PutUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(img.Bytes[off:], v)
}

// Hash is the RomFS name hash, computed over UTF-16 code units
func Hash(parent uint32, name string) uint32 {
	h := parent ^ 123456789
	for _, u := range utf16.Encode([]rune(name)) {
		h = (h>>5 | h<<27) ^ uint32(u)
	}
	return h
}

func align(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

func nameBytes(name string) []byte {
	units := utf16.Encode([]rune(name))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// Build lays out the image. Directories are stored depth first in the
// order they were added, with each directory's files stored together.
func (b *Builder) Build() *Image {
	var dirs []*dir
	var walk func(d *dir)
	walk = func(d *dir) {
		dirs = append(dirs, d)
		for _, sub := range d.dirs {
			walk(sub)
		}
	}
	walk(b.root)

	var files []*file
	for _, d := range dirs {
		files = append(files, d.files...)
	}

	dirMetaLen := 0
	for _, d := range dirs {
		d.off = uint32(dirMetaLen)
		dirMetaLen += dirPrefix + align(len(nameBytes(d.name)), 4)
	}
	fileMetaLen := 0
	var dataLen uint64
	for _, f := range files {
		f.off = uint32(fileMetaLen)
		fileMetaLen += filePrefix + align(len(nameBytes(f.name)), 4)
		dataLen = uint64(align(int(dataLen), b.DataAlign))
		f.pos = dataLen
		dataLen += uint64(len(f.data))
	}

	dirBuckets := b.DirBuckets
	if dirBuckets == 0 {
		dirBuckets = len(dirs)
	}
	fileBuckets := b.FileBuckets
	if fileBuckets == 0 {
		fileBuckets = max(len(files), 1)
	}

	img := &Image{
		Dirs:  make(map[string]uint32),
		Files: make(map[string]uint32),
		Data:  make(map[string]uint64),
	}
	img.DirHashOffset = headerSize
	img.DirMetaOffset = img.DirHashOffset + 4*dirBuckets
	img.FileHashOffset = img.DirMetaOffset + dirMetaLen
	img.FileMetaOffset = img.FileHashOffset + 4*fileBuckets
	img.DataOffset = align(img.FileMetaOffset+fileMetaLen, 16)
	img.Bytes = make([]byte, img.DataOffset+int(dataLen))

	img.PutUint32(HeaderLen, headerSize)
	img.PutUint32(HeaderDirHash, uint32(img.DirHashOffset))
	img.PutUint32(HeaderDirHash+4, uint32(4*dirBuckets))
	img.PutUint32(HeaderDirMeta, uint32(img.DirMetaOffset))
	img.PutUint32(HeaderDirMeta+4, uint32(dirMetaLen))
	img.PutUint32(HeaderFileHash, uint32(img.FileHashOffset))
	img.PutUint32(HeaderFileHash+4, uint32(4*fileBuckets))
	img.PutUint32(HeaderFileMeta, uint32(img.FileMetaOffset))
	img.PutUint32(HeaderFileMeta+4, uint32(fileMetaLen))
	img.PutUint32(HeaderDataStart, uint32(img.DataOffset))

	dirHeads := make([]uint32, dirBuckets)
	for i := range dirHeads {
		dirHeads[i] = sentinel
	}
	fileHeads := make([]uint32, fileBuckets)
	for i := range fileHeads {
		fileHeads[i] = sentinel
	}

	for _, d := range dirs {
		img.Dirs[d.path] = d.off
		rec := img.DirMetaOffset + int(d.off)

		var parent uint32
		next := uint32(sentinel)
		if d.up != nil {
			parent = d.up.off
			siblings := d.up.dirs
			for i, s := range siblings {
				if s == d && i+1 < len(siblings) {
					next = siblings[i+1].off
				}
			}
		}
		firstDir, firstFile := uint32(sentinel), uint32(sentinel)
		if len(d.dirs) > 0 {
			firstDir = d.dirs[0].off
		}
		if len(d.files) > 0 {
			firstFile = d.files[0].off
		}
		bucket := Hash(parent, d.name) % uint32(dirBuckets)
		name := nameBytes(d.name)

		img.PutUint32(rec+DirParent, parent)
		img.PutUint32(rec+DirNextSibling, next)
		img.PutUint32(rec+DirFirstDir, firstDir)
		img.PutUint32(rec+DirFirstFile, firstFile)
		img.PutUint32(rec+DirNextHash, dirHeads[bucket])
		img.PutUint32(rec+DirNameLen, uint32(len(name)))
		copy(img.Bytes[rec+dirPrefix:], name)
		dirHeads[bucket] = d.off
	}

	for _, f := range files {
		img.Files[f.path] = f.off
		img.Data[f.path] = f.pos
		rec := img.FileMetaOffset + int(f.off)

		next := uint32(sentinel)
		for i, s := range f.up.files {
			if s == f && i+1 < len(f.up.files) {
				next = f.up.files[i+1].off
			}
		}
		bucket := Hash(f.up.off, f.name) % uint32(fileBuckets)
		name := nameBytes(f.name)

		img.PutUint32(rec+FileParent, f.up.off)
		img.PutUint32(rec+FileNextSibling, next)
		img.PutUint64(rec+FileDataOffset, f.pos)
		img.PutUint64(rec+FileDataSize, uint64(len(f.data)))
		img.PutUint32(rec+FileNextHash, fileHeads[bucket])
		img.PutUint32(rec+FileNameLen, uint32(len(name)))
		copy(img.Bytes[rec+filePrefix:], name)
		copy(img.Bytes[img.DataOffset+int(f.pos):], f.data)
		fileHeads[bucket] = f.off
	}

	for i, off := range dirHeads {
		img.PutUint32(img.DirHashOffset+4*i, off)
	}
	for i, off := range fileHeads {
		img.PutUint32(img.FileHashOffset+4*i, off)
	}
	return img
}

// IVFCLevel3 is where WrapIVFC places the image
const IVFCLevel3 = 0x1000

// WrapIVFC prefixes image with an IVFC header whose hash levels are empty
func WrapIVFC(image []byte) []byte {
	out := make([]byte, IVFCLevel3+len(image))
	copy(out, "IVFC")
	binary.LittleEndian.PutUint32(out[4:], 0x10000)
	copy(out[IVFCLevel3:], image)
	return out
}
