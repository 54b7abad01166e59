// Package detect identifies RomFS images and their containers.
package detect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Type represents an image type
type Type int

const (
	Unknown Type = iota
	RomFS        // bare level-3 image
	IVFC         // level-3 image inside an IVFC hash tree container
)

func (t Type) String() string {
	switch t {
	case RomFS:
		return "RomFS"
	case IVFC:
		return "RomFS (IVFC)"
	default:
		return "unknown"
	}
}

var ivfcMagic = []byte{'I', 'V', 'F', 'C', 0x00, 0x00, 0x01, 0x00}

const headerSize = 0x28

// Detect identifies the image type from a reader.
// It reads only the header bytes it needs.
func Detect(r io.ReaderAt) (Type, error) {
	header := make([]byte, headerSize)
	n, err := r.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return Unknown, fmt.Errorf("reading header: %w", err)
	}
	header = header[:n]

	if len(header) >= len(ivfcMagic) && bytes.Equal(header[:len(ivfcMagic)], ivfcMagic) {
		return IVFC, nil
	}
	if isLevel3Header(header) {
		return RomFS, nil
	}
	return Unknown, nil
}

// isLevel3Header checks the header length field and that the four tables
// and the data region sit past the header on 4-byte boundaries. Sizes are
// left to the decoder.
func isLevel3Header(header []byte) bool {
	if len(header) < headerSize {
		return false
	}
	if binary.LittleEndian.Uint32(header[0:4]) != headerSize {
		return false
	}
	for _, off := range []int{0x04, 0x0C, 0x14, 0x1C, 0x24} {
		v := binary.LittleEndian.Uint32(header[off : off+4])
		if v < headerSize || v%4 != 0 {
			return false
		}
	}
	return true
}
