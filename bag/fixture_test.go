package bag

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pierrec/lz4/v4"
)

// fixtureBuilder assembles a synthetic bag byte stream one record at a
// time, using the same wire framing the reader decodes. It exists because
// this is a reader-only library: there is no Writer type to build fixtures
// with, so tests emit the framing directly.
type fixtureBuilder struct {
	buf bytes.Buffer
}

func newFixtureBuilder() *fixtureBuilder {
	b := &fixtureBuilder{}
	b.buf.Write(Magic)
	return b
}

func (b *fixtureBuilder) bytes() []byte { return b.buf.Bytes() }

// offset is the file offset the next record will start at - the value a
// CHUNK record's file_offset takes, and what a CHUNK_INFO's chunk_pos must
// echo.
func (b *fixtureBuilder) offset() int64 { return int64(b.buf.Len()) }

func putU32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func putU64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

// header builds a packed header field list from alternating key/value byte
// slices, using the {field_len, "key=value"} encoding.
func header(keyvals ...[]byte) []byte {
	var out bytes.Buffer
	for i := 0; i < len(keyvals); i += 2 {
		key, val := keyvals[i], keyvals[i+1]
		entry := append(append(append([]byte{}, key...), '='), val...)
		var lenBuf [4]byte
		putU32(lenBuf[:], uint32(len(entry)))
		out.Write(lenBuf[:])
		out.Write(entry)
	}
	return out.Bytes()
}

func opByte(op OpCode) []byte { return []byte{byte(op)} }
func u32b(v uint32) []byte {
	var b [4]byte
	putU32(b[:], v)
	return b[:]
}
func u64b(v uint64) []byte {
	var b [8]byte
	putU64(b[:], v)
	return b[:]
}
func timeBytes(t Time) []byte {
	var b [8]byte
	putU32(b[:4], t.Secs)
	putU32(b[4:], t.Nsecs)
	return b[:]
}

// writeRecord appends one {header_len, header, data_len, data} record.
func (b *fixtureBuilder) writeRecord(hdr, data []byte) {
	b.buf.Write(u32b(uint32(len(hdr))))
	b.buf.Write(hdr)
	b.buf.Write(u32b(uint32(len(data))))
	b.buf.Write(data)
}

func (b *fixtureBuilder) writeBagHeader(connCount, chunkCount uint32, indexPos uint64) {
	hdr := header(
		[]byte("op"), opByte(OpBagHeader),
		[]byte("conn_count"), u32b(connCount),
		[]byte("chunk_count"), u32b(chunkCount),
		[]byte("index_pos"), u64b(indexPos),
	)
	b.writeRecord(hdr, nil)
}

// fixtureConnection describes one CONNECTION record to emit.
type fixtureConnection struct {
	ID       uint32
	Topic    string
	Type     string
	MD5Sum   string
	MsgDef   string
	CallerID string
	Latching bool
}

func (b *fixtureBuilder) writeConnection(c fixtureConnection) {
	hdr := header(
		[]byte("op"), opByte(OpConnection),
		[]byte("conn"), u32b(c.ID),
		[]byte("topic"), []byte(c.Topic),
	)
	dataKV := [][]byte{
		[]byte("topic"), []byte(c.Topic),
		[]byte("type"), []byte(c.Type),
		[]byte("md5sum"), []byte(c.MD5Sum),
		[]byte("message_definition"), []byte(c.MsgDef),
	}
	if c.CallerID != "" {
		dataKV = append(dataKV, []byte("callerid"), []byte(c.CallerID))
	}
	if c.Latching {
		dataKV = append(dataKV, []byte("latching"), []byte("1"))
	}
	b.writeRecord(hdr, header(dataKV...))
}

// fixtureMessage describes one MESSAGE_DATA inner record.
type fixtureMessage struct {
	Conn uint32
	Time Time
	Data []byte
}

// writeChunk builds an uncompressed or LZ4-compressed CHUNK record from a
// set of inner MESSAGE_DATA records, followed by one INDEX_DATA record per
// distinct connection and returns the chunk's file offset (for a later
// CHUNK_INFO) and per-connection message counts.
func (b *fixtureBuilder) writeChunk(compression string, msgs []fixtureMessage) (chunkOffset int64, perConn map[uint32]uint32) {
	var body bytes.Buffer
	type entry struct {
		Time   Time
		Offset uint32
	}
	entries := make(map[uint32][]entry)
	perConn = make(map[uint32]uint32)

	for _, m := range msgs {
		innerOffset := uint32(body.Len())
		hdr := header(
			[]byte("op"), opByte(OpMessageData),
			[]byte("conn"), u32b(m.Conn),
			[]byte("time"), timeBytes(m.Time),
		)
		body.Write(u32b(uint32(len(hdr))))
		body.Write(hdr)
		body.Write(u32b(uint32(len(m.Data))))
		body.Write(m.Data)

		entries[m.Conn] = append(entries[m.Conn], entry{Time: m.Time, Offset: innerOffset})
		perConn[m.Conn]++
	}

	uncompressed := body.Bytes()
	var payload []byte
	switch compression {
	case "lz4":
		var compBuf bytes.Buffer
		w := lz4.NewWriter(&compBuf)
		if _, err := w.Write(uncompressed); err != nil {
			panic(err)
		}
		if err := w.Close(); err != nil {
			panic(err)
		}
		payload = compBuf.Bytes()
	case "none", "":
		payload = uncompressed
	default:
		panic("unsupported fixture compression: " + compression)
	}

	chunkOffset = b.offset()
	chunkHdr := header(
		[]byte("op"), opByte(OpChunk),
		[]byte("compression"), []byte(compression),
		[]byte("size"), u32b(uint32(len(uncompressed))),
	)
	b.writeRecord(chunkHdr, payload)

	for connID, es := range entries {
		var data bytes.Buffer
		for _, e := range es {
			data.Write(timeBytes(e.Time))
			data.Write(u32b(e.Offset))
		}
		idxHdr := header(
			[]byte("op"), opByte(OpIndexData),
			[]byte("ver"), u32b(1),
			[]byte("conn"), u32b(connID),
			[]byte("count"), u32b(uint32(len(es))),
		)
		b.writeRecord(idxHdr, data.Bytes())
	}

	return chunkOffset, perConn
}

func (b *fixtureBuilder) writeChunkInfo(chunkPos int64, start, end Time, count uint32) {
	hdr := header(
		[]byte("op"), opByte(OpChunkInfo),
		[]byte("ver"), u32b(1),
		[]byte("chunk_pos"), u64b(uint64(chunkPos)),
		[]byte("start_time"), timeBytes(start),
		[]byte("end_time"), timeBytes(end),
		[]byte("count"), u32b(count),
	)
	b.writeRecord(hdr, nil)
}

// --- payload encoders used by decode tests to build MESSAGE_DATA bodies ---

func encodeU32(n uint32) []byte { return u32b(n) }

func encodeString(s string) []byte {
	var buf bytes.Buffer
	buf.Write(u32b(uint32(len(s))))
	buf.WriteString(s)
	return buf.Bytes()
}

func encodeFloat32Array(vals []float32) []byte {
	var buf bytes.Buffer
	buf.Write(u32b(uint32(len(vals))))
	for _, v := range vals {
		buf.Write(u32b(math.Float32bits(v)))
	}
	return buf.Bytes()
}

func encodeFloat32(v float32) []byte {
	return u32b(math.Float32bits(v))
}
