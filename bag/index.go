package bag

import (
	"fmt"
	"strings"

	"github.com/go-bagreader/bagreader/msgdef"
)

// ChunkInfo is the summary a CHUNK_INFO record attaches to a chunk: its
// message time bounds and total message count.
type ChunkInfo struct {
	StartTime    Time
	EndTime      Time
	MessageCount uint32
}

// Chunk is a record holding many serialized messages, optionally compressed
// as a whole.
type Chunk struct {
	offset           int64
	header           []byte
	data             []byte // raw chunk body: compressed, or uncompressed if Compression == "none"
	Compression      string
	UncompressedSize uint32
	Info             ChunkInfo
}

// Offset is the chunk record's file offset, used to resolve CHUNK_INFO
// records and as the merge iterator's tie-break key.
func (c *Chunk) Offset() int64 { return c.offset }

// indexEntry is one (time, offset) pair from an INDEX_DATA record's data
// payload: the recorded time of a message, and its byte offset relative to
// the start of the decompressed chunk data that contains it. Parsed eagerly
// rather than deferred to a decompressed walk of MESSAGE_DATA records (see
// DESIGN.md).
type indexEntry struct {
	Time   Time
	Offset uint32
}

// IndexBlock is a per-chunk, per-connection table of message locations:
// one per CHUNK x CONNECTION pair that has messages.
type IndexBlock struct {
	ConnectionID uint32
	Version      uint32
	MessageCount uint32
	Chunk        *Chunk
	entries      []indexEntry
}

// Connection is a logical stream: one (topic, type, md5sum) binding.
type Connection struct {
	ID                uint32
	Topic             string
	Type              string
	Scope             string
	MD5Sum            string
	MessageDefinition []byte
	CallerID          string
	Latching          bool
	Schema            *msgdef.Def
	Blocks            []*IndexBlock
}

// Bag is an open ROS bag: its connection table, chunk table, and per-
// connection index blocks, built by a single linear scan at Open time.
type Bag struct {
	region mappedRegion
	closed bool

	connections []*Connection
	byTopic     map[string][]*Connection
	chunks      []*Chunk
	chunkByPos  map[int64]*Chunk
	indexPos    uint64
}

// Open memory-maps path, validates the bag magic header, and performs a
// single forward scan over the file, building the connection, chunk, and
// index-block tables.
func Open(path string) (*Bag, error) {
	region, err := openMapped(path)
	if err != nil {
		return nil, err
	}
	b, err := openFromRegion(region)
	if err != nil {
		region.Close()
		return nil, err
	}
	return b, nil
}

// openFromRegion builds a Bag from an already-mapped region. Exposed at
// package level (via OpenBytes, below) so tests can exercise the scanner
// without touching the filesystem.
func openFromRegion(region mappedRegion) (*Bag, error) {
	buf := region.Bytes()
	if len(buf) < len(Magic) {
		return nil, ErrNotABag
	}
	if err := checkMagic(buf); err != nil {
		return nil, err
	}

	b := &Bag{
		region:     region,
		byTopic:    make(map[string][]*Connection),
		chunkByPos: make(map[int64]*Chunk),
	}

	c := newCursor(buf[len(Magic):])
	for !c.atEnd() {
		recordStart := int64(len(Magic) + c.pos)
		rec, err := c.readRecord()
		if err != nil {
			return nil, err
		}
		op, err := opcodeOf(rec.header)
		if err != nil {
			return nil, err
		}
		if err := b.applyRecord(op, rec, recordStart); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// OpenBytes builds a Bag directly from an in-memory buffer, bypassing the
// filesystem. Used by tests and by any caller that already holds bag bytes.
func OpenBytes(data []byte) (*Bag, error) {
	return openFromRegion(newSliceRegion(data))
}

// checkMagic validates the 13-byte prefix as three independent pieces, per
// spec: the literal "#ROSBAG V" (9 bytes), the version literal "2.0" (any
// other value is a supported-format mismatch, not a bag-detection failure),
// then a trailing newline.
func checkMagic(buf []byte) error {
	const prefix = "#ROSBAG V"
	if string(buf[:len(prefix)]) != prefix {
		return ErrNotABag
	}
	version := string(buf[len(prefix) : len(prefix)+3])
	if version != "2.0" {
		return ErrUnsupportedVersion
	}
	if buf[len(prefix)+3] != '\n' {
		return ErrMalformedMagic
	}
	return nil
}

// applyRecord classifies one top-level record by opcode and updates the
// bag's tables.
func (b *Bag) applyRecord(op OpCode, rec record, recordStart int64) error {
	switch op {
	case OpBagHeader:
		return b.applyBagHeader(rec)
	case OpChunk:
		return b.applyChunk(rec, recordStart)
	case OpIndexData:
		return b.applyIndexData(rec)
	case OpConnection:
		return b.applyConnection(rec)
	case OpMessageData:
		// A top-level MESSAGE_DATA record only ever appears nested inside a
		// chunk's decompressed body; at the top level it is ignored.
		return nil
	case OpChunkInfo:
		return b.applyChunkInfo(rec)
	default:
		return ErrUnknownOpcode{Op: byte(op)}
	}
}

func (b *Bag) applyBagHeader(rec record) error {
	connCount, err := getField(rec.header, keyConnCount)
	if err != nil {
		return err
	}
	chunkCount, err := getField(rec.header, keyChunkCount)
	if err != nil {
		return err
	}
	indexPos, err := getField(rec.header, keyIndexPos)
	if err != nil {
		return err
	}
	b.connections = make([]*Connection, u32(connCount))
	b.chunks = make([]*Chunk, 0, u32(chunkCount))
	b.indexPos = u64(indexPos)
	return nil
}

func (b *Bag) applyChunk(rec record, recordStart int64) error {
	compression, err := getField(rec.header, keyCompression)
	if err != nil {
		return err
	}
	size, err := getField(rec.header, keySize)
	if err != nil {
		return err
	}
	chunk := &Chunk{
		offset:           recordStart,
		header:           rec.header,
		data:             rec.data,
		Compression:      string(compression),
		UncompressedSize: u32(size),
	}
	b.chunks = append(b.chunks, chunk)
	b.chunkByPos[recordStart] = chunk
	return nil
}

func (b *Bag) applyIndexData(rec record) error {
	ver, err := getField(rec.header, keyVer)
	if err != nil {
		return err
	}
	connRaw, err := getField(rec.header, keyConn)
	if err != nil {
		return err
	}
	countRaw, err := getField(rec.header, keyCount)
	if err != nil {
		return err
	}
	connID := u32(connRaw)
	count := u32(countRaw)

	if len(b.chunks) == 0 {
		return fmt.Errorf("index data with no preceding chunk")
	}
	if int(connID) >= len(b.connections) {
		return ErrConnectionIDOutOfRange
	}

	chunk := b.chunks[len(b.chunks)-1]
	entries, err := parseIndexEntries(rec.data, int(count))
	if err != nil {
		return err
	}
	block := &IndexBlock{
		ConnectionID: connID,
		Version:      u32(ver),
		MessageCount: count,
		Chunk:        chunk,
		entries:      entries,
	}

	conn := b.connections[connID]
	if conn == nil {
		// The connection record for this id hasn't been parsed into a full
		// Connection yet; reserve a placeholder that applyConnection fills
		// in. This should not occur for well-formed bags, but index blocks
		// are cheap to carry forward on a bare placeholder rather than
		// failing eagerly.
		conn = &Connection{ID: connID}
		b.connections[connID] = conn
	}
	conn.Blocks = append(conn.Blocks, block)
	return nil
}

// parseIndexEntries decodes an INDEX_DATA record's data payload into count
// (time, offset) pairs: 8 bytes of ros_time_t followed by a u32 offset,
// repeated.
func parseIndexEntries(data []byte, count int) ([]indexEntry, error) {
	const entryWidth = 12
	if len(data) < count*entryWidth {
		return nil, ErrTruncatedRecord
	}
	entries := make([]indexEntry, count)
	for i := 0; i < count; i++ {
		off := i * entryWidth
		entries[i] = indexEntry{
			Time:   readTime(data[off:]),
			Offset: u32(data[off+8:]),
		}
	}
	return entries, nil
}

func (b *Bag) applyConnection(rec record) error {
	connRaw, err := getField(rec.header, keyConn)
	if err != nil {
		return err
	}
	topicRaw, err := getField(rec.header, keyTopic)
	if err != nil {
		return err
	}
	connID := u32(connRaw)
	topic := string(topicRaw)
	if topic == "" {
		return nil
	}
	if int(connID) >= len(b.connections) {
		return ErrConnectionIDOutOfRange
	}

	fields, err := readFields(rec.data)
	if err != nil {
		return err
	}

	msgType := string(fields[keyType])
	scope := ""
	if idx := strings.IndexByte(msgType, '/'); idx != -1 {
		scope = msgType[:idx]
	}

	var callerID string
	if v, ok := fields[keyCallerID]; ok {
		callerID = string(v)
	}
	latching := false
	if v, ok := fields[keyLatching]; ok {
		latching = string(v) == "1"
	}

	def := fields[keyMessageDefinition]
	schema, err := msgdef.Parse(string(def))
	if err != nil {
		return fmt.Errorf("connection %d (%s): %w", connID, topic, err)
	}

	existing := b.connections[connID]
	conn := &Connection{
		ID:                connID,
		Topic:             topic,
		Type:              msgType,
		Scope:             scope,
		MD5Sum:            string(fields[keyMD5Sum]),
		MessageDefinition: def,
		CallerID:          callerID,
		Latching:          latching,
		Schema:            schema,
	}
	if existing != nil {
		conn.Blocks = existing.Blocks
	}
	b.connections[connID] = conn
	b.byTopic[topic] = append(b.byTopic[topic], conn)
	return nil
}

func (b *Bag) applyChunkInfo(rec record) error {
	chunkPos, err := getField(rec.header, keyChunkPos)
	if err != nil {
		return err
	}
	startTime, err := getField(rec.header, keyStartTime)
	if err != nil {
		return err
	}
	endTime, err := getField(rec.header, keyEndTime)
	if err != nil {
		return err
	}
	count, err := getField(rec.header, keyCount)
	if err != nil {
		return err
	}

	chunk, ok := b.chunkByPos[int64(u64(chunkPos))]
	if !ok {
		return ErrDanglingChunkInfo
	}
	chunk.Info = ChunkInfo{
		StartTime:    readTime(startTime),
		EndTime:      readTime(endTime),
		MessageCount: u32(count),
	}
	return nil
}
