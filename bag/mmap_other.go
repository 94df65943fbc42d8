//go:build !unix

package bag

import "os"

// openMapped falls back to a single whole-file read on platforms without
// syscall.Mmap. The core only ever depends on the mappedRegion interface, so
// this fallback is transparent to everything above it.
func openMapped(path string) (mappedRegion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newSliceRegion(data), nil
}
