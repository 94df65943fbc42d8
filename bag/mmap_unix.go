//go:build unix

package bag

import (
	"os"
	"syscall"
)

// mmapRegion is a mappedRegion backed by a real read-only mmap of a file,
// using syscall.Mmap directly rather than a wrapper library.
type mmapRegion struct {
	file *os.File
	data []byte
}

func openMapped(path string) (mappedRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return newSliceRegion(nil), nil
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapRegion{file: f, data: data}, nil
}

func (m *mmapRegion) Bytes() []byte { return m.data }

func (m *mmapRegion) Close() error {
	err := syscall.Munmap(m.data)
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
