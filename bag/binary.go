package bag

import "encoding/binary"

// Aliases for little-endian fixed-width reads over zero-copy byte slices.
var (
	u16 = binary.LittleEndian.Uint16
	u32 = binary.LittleEndian.Uint32
	u64 = binary.LittleEndian.Uint64
)
