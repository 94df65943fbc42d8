package bag

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/pierrec/lz4/v4"
)

// decompress returns chunk's decompressed body, re-running the decompressor
// on every call: chunk bodies are not cached here; each merge-iterator chunk
// cursor keeps the body it decompressed for as long as the cursor lives.
func (c *Chunk) decompress() ([]byte, error) {
	switch c.Compression {
	case "none", "":
		return c.data, nil
	case "lz4":
		return decompressLZ4(c.data, int(c.UncompressedSize))
	case "bz2":
		return decompressBZ2(c.data, int(c.UncompressedSize))
	default:
		return nil, ErrUnsupportedCompression{Compression: c.Compression}
	}
}

// decompressLZ4 decompresses an LZ4 frame, checking it produces exactly
// size bytes.
func decompressLZ4(data []byte, size int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return drainExact(r, size)
}

// decompressBZ2 uses the standard library's bzip2 reader: no third-party bz2
// decompressor appears anywhere in the example pack, so this is the one
// stdlib-only component in the chunk reader (see DESIGN.md).
func decompressBZ2(data []byte, size int) ([]byte, error) {
	r := bzip2.NewReader(bytes.NewReader(data))
	return drainExact(r, size)
}

// drainExact reads exactly size bytes from r, then confirms the stream ends
// there: a short io.ReadFull catches the source running out early, and the
// trailing one-byte probe catches the opposite - a declared uncompressed
// size smaller than what the stream actually holds. Either shape is
// reported as ErrDecompressShortRead.
func drainExact(r io.Reader, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, ErrDecompressError
	}
	if n < size {
		return nil, ErrDecompressShortRead
	}
	var probe [1]byte
	extra, err := r.Read(probe[:])
	if extra > 0 {
		return nil, ErrDecompressShortRead
	}
	if err != nil && err != io.EOF {
		return nil, ErrDecompressError
	}
	return out, nil
}
