package bag

import "bytes"

// record is a single framed {header, data} pair: non-owning slices into the
// mapped file, valid for the bag's lifetime.
type record struct {
	header []byte
	data   []byte
}

// cursor is a positioned read head over a byte range, producing zero-copy
// slices as it advances. It never copies; every slice it returns aliases buf.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) atEnd() bool {
	return c.pos >= len(c.buf)
}

// readU32 reads a little-endian uint32 and advances past it.
func (c *cursor) readU32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, ErrTruncatedRecord
	}
	v := u32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// readSlice returns a zero-copy slice of n bytes and advances past it.
func (c *cursor) readSlice(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, ErrTruncatedRecord
	}
	s := c.buf[c.pos : c.pos+n]
	c.pos += n
	return s, nil
}

// readRecord parses the generic framing
// {header_len:u32, header:bytes[header_len], data_len:u32, data:bytes[data_len]},
// returning zero-copy views of the header and data.
func (c *cursor) readRecord() (record, error) {
	headerLen, err := c.readU32()
	if err != nil {
		return record{}, ErrTruncatedRecord
	}
	header, err := c.readSlice(int(headerLen))
	if err != nil {
		return record{}, ErrTruncatedRecord
	}
	dataLen, err := c.readU32()
	if err != nil {
		return record{}, ErrTruncatedRecord
	}
	data, err := c.readSlice(int(dataLen))
	if err != nil {
		return record{}, ErrTruncatedRecord
	}
	return record{header: header, data: data}, nil
}

// readFields splits a record's header (or a CONNECTION record's data) into a
// dictionary of name -> raw value bytes. Each entry is
// {field_len:u32, bytes[field_len]}, containing a "name=value" pair split on
// the first '='; duplicate names: last writer wins.
func readFields(buf []byte) (map[string][]byte, error) {
	fields := make(map[string][]byte)
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < 4 {
			return nil, ErrMalformedHeaderField
		}
		fieldLen := int(u32(buf[offset:]))
		offset += 4
		if fieldLen < 0 || offset+fieldLen > len(buf) {
			return nil, ErrMalformedHeaderField
		}
		entry := buf[offset : offset+fieldLen]
		sep := bytes.IndexByte(entry, '=')
		if sep == -1 {
			return nil, ErrMalformedHeaderField
		}
		name := string(entry[:sep])
		fields[name] = entry[sep+1:]
		offset += fieldLen
	}
	return fields, nil
}

// getField looks up a single field without building the full dictionary,
// for the common case of fetching one or two keys from a header.
func getField(buf []byte, key string) ([]byte, error) {
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < 4 {
			return nil, ErrMalformedHeaderField
		}
		fieldLen := int(u32(buf[offset:]))
		offset += 4
		if fieldLen < 0 || offset+fieldLen > len(buf) {
			return nil, ErrMalformedHeaderField
		}
		entry := buf[offset : offset+fieldLen]
		sep := bytes.IndexByte(entry, '=')
		if sep == -1 {
			return nil, ErrMalformedHeaderField
		}
		if string(entry[:sep]) == key {
			return entry[sep+1:], nil
		}
		offset += fieldLen
	}
	return nil, ErrHeaderKeyNotFound{Key: key}
}

// opcodeOf returns the single-byte opcode carried by the reserved "op"
// header field.
func opcodeOf(header []byte) (OpCode, error) {
	v, err := getField(header, keyOp)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, ErrMalformedHeaderField
	}
	return OpCode(v[0]), nil
}
