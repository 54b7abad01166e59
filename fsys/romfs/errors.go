package romfs

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrTruncated means the source ended before a region the header declares.
	ErrTruncated = errors.New("romfs: truncated image")
	// ErrMalformed means the image contradicts itself: bad offsets,
	// overrunning names, or chains that do not terminate.
	ErrMalformed = errors.New("romfs: malformed image")
	// ErrNotFound means a path component or entry does not exist.
	ErrNotFound = fmt.Errorf("romfs: %w", fs.ErrNotExist)
)

// Table names the region of the image an error was found in
type Table uint8

const (
	TableHeader Table = iota
	TableDirHash
	TableDirMeta
	TableFileHash
	TableFileMeta
	TableData
)

func (t Table) String() string {
	switch t {
	case TableHeader:
		return "header"
	case TableDirHash:
		return "directory hash table"
	case TableDirMeta:
		return "directory metadata"
	case TableFileHash:
		return "file hash table"
	case TableFileMeta:
		return "file metadata"
	case TableData:
		return "file data"
	default:
		return "unknown table"
	}
}

// Error carries the table and offset at which decoding failed.
// It unwraps to ErrTruncated, ErrMalformed or ErrNotFound.
type Error struct {
	Err    error
	Table  Table
	Offset int64
	Msg    string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%v: %s at %#x", e.Err, e.Table, e.Offset)
	}
	return fmt.Sprintf("%v: %s at %#x: %s", e.Err, e.Table, e.Offset, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func truncated(t Table, off int64, format string, args ...any) error {
	return &Error{Err: ErrTruncated, Table: t, Offset: off, Msg: fmt.Sprintf(format, args...)}
}

func malformed(t Table, off int64, format string, args ...any) error {
	return &Error{Err: ErrMalformed, Table: t, Offset: off, Msg: fmt.Sprintf(format, args...)}
}

func notFound(t Table, parent uint32, name string) error {
	return &Error{Err: ErrNotFound, Table: t, Offset: int64(parent), Msg: fmt.Sprintf("%q", name)}
}
