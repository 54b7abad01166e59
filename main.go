// romfs - Read files from 3DS RomFS images, bare or inside an IVFC container
//
// Usage:
//
//	romfs ls [-l] [-a] <image> [path]
//	romfs cat <image> <path>
//	romfs stat <image> <path>
//	romfs info <image>
//	romfs extract [-j N] <image> <dir> [path]
//	romfs mount <image> <mountpoint>
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "romfs: %v\n", err)
		os.Exit(1)
	}
}
