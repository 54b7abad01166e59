//go:build !linux && !darwin

package source

// Mapped falls back to plain file reads where mmap is unavailable
type Mapped = File

// Map opens path for reading
func Map(path string) (*Mapped, error) {
	return OpenFile(path)
}
