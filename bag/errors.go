package bag

import (
	"errors"
	"fmt"
)

var (
	// ErrNotABag indicates the file does not open with the bag magic prefix.
	ErrNotABag = errors.New("not a bag")
	// ErrUnsupportedVersion indicates a version other than 2.0.
	ErrUnsupportedVersion = errors.New("unsupported bag version")
	// ErrMalformedMagic indicates the byte following the version literal was
	// not a newline.
	ErrMalformedMagic = errors.New("malformed magic header")

	// ErrTruncatedRecord indicates a record's header or data would read past
	// end of file.
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrMalformedHeaderField indicates a header field had no '=' separator.
	ErrMalformedHeaderField = errors.New("malformed header field")

	// ErrDanglingChunkInfo indicates a CHUNK_INFO record's chunk_pos did not
	// match any previously-seen CHUNK record's file offset.
	ErrDanglingChunkInfo = errors.New("dangling chunk info")
	// ErrConnectionIDOutOfRange indicates a connection id fell outside the
	// dense range sized by the bag header's conn_count.
	ErrConnectionIDOutOfRange = errors.New("connection id out of range")

	// ErrDecompressShortRead indicates LZ4 decompression stopped with bytes
	// remaining in either the source or destination buffer.
	ErrDecompressShortRead = errors.New("decompress short read")
	// ErrDecompressError indicates the decompression library reported a
	// failure.
	ErrDecompressError = errors.New("decompress error")

	// ErrUnknownType indicates a field's type name did not resolve to a
	// primitive or an embedded type.
	ErrUnknownType = errors.New("unknown type")
	// ErrTypeMismatch indicates a checked narrowing conversion (As) failed.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrIndexOutOfRange indicates an out-of-bounds array or object access.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrChunkTimeOrderViolation indicates a chunk's inner messages were not
	// in non-decreasing timestamp order, violating the assumption the view
	// iterator relies on for time-window filtering.
	ErrChunkTimeOrderViolation = errors.New("chunk time order violation")

	// ErrBagClosed indicates an operation was attempted on a closed bag.
	ErrBagClosed = errors.New("bag is closed")
)

// ErrUnknownOpcode indicates a record's "op" header field held a byte value
// outside the defined opcode set.
type ErrUnknownOpcode struct {
	Op byte
}

func (e ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("unknown opcode: 0x%02x", e.Op)
}

// ErrUnsupportedCompression indicates a chunk declared a compression value
// this reader cannot decompress.
type ErrUnsupportedCompression struct {
	Compression string
}

func (e ErrUnsupportedCompression) Error() string {
	return "unsupported compression: " + e.Compression
}

// ErrHeaderKeyNotFound indicates a required header field was absent.
type ErrHeaderKeyNotFound struct {
	Key string
}

func (e ErrHeaderKeyNotFound) Error() string {
	return fmt.Sprintf("header key not found: %s", e.Key)
}

// ErrUnexpectedOpcode indicates a record appeared somewhere the format
// requires a different, specific opcode (for example, an inner chunk record
// that is neither MESSAGE_DATA nor CONNECTION).
type ErrUnexpectedOpcode struct {
	Want, Got OpCode
}

func (e ErrUnexpectedOpcode) Error() string {
	return fmt.Sprintf("unexpected opcode: want %s, got %s", e.Want, e.Got)
}
