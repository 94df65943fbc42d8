package bag

import (
	"container/heap"
	"io"
	"sort"
)

// Message is a single decoded message yielded by a View, bound to the
// connection it arrived on.
type Message struct {
	Topic     string
	Timestamp Time
	MD5Sum    string
	RawData   []byte

	value *Value
}

// Data returns the message's decoded value tree.
func (m *Message) Data() *Value { return m.value }

// RawDataLen is the length of the message's serialized payload, before
// decoding.
func (m *Message) RawDataLen() int { return len(m.RawData) }

// ViewOption configures a View at construction time via the functional
// options idiom.
type ViewOption func(*viewConfig)

type viewConfig struct {
	topics map[string]bool
	hasLo  bool
	lo     Time
	hasHi  bool
	hi     Time
}

// WithTopics restricts a View to the given topics. Without this option, a
// View covers every topic in the bag.
func WithTopics(topics ...string) ViewOption {
	return func(c *viewConfig) {
		if c.topics == nil {
			c.topics = make(map[string]bool)
		}
		for _, t := range topics {
			c.topics[t] = true
		}
	}
}

// WithTimeRange restricts a View to messages with lo <= timestamp <= hi.
func WithTimeRange(lo, hi Time) ViewOption {
	return func(c *viewConfig) {
		c.hasLo, c.lo = true, lo
		c.hasHi, c.hi = true, hi
	}
}

// View binds to a set of connections and an optional time window, and
// yields their messages in non-decreasing timestamp order.
type View struct {
	bag           *Bag
	conns         map[uint32]*Connection
	chunks        []*Chunk
	blocksByChunk map[int64][]*IndexBlock
	startTime     Time
	endTime       Time
	cfg           viewConfig
}

// GetView builds a View over cfg's selection: all connections by default,
// narrowed by WithTopics, within the time window narrowed by
// WithTimeRange. Returns ErrBagClosed if the bag has already been closed,
// since a View reads message bytes out of the bag's mapped region.
func (b *Bag) GetView(opts ...ViewOption) (*View, error) {
	if b.closed {
		return nil, ErrBagClosed
	}

	var cfg viewConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	conns := make(map[uint32]*Connection)
	chunkSet := make(map[int64]*Chunk)
	blocksByChunk := make(map[int64][]*IndexBlock)
	var start, end Time
	first := true

	for _, conn := range b.connections {
		if conn == nil || conn.Topic == "" {
			continue
		}
		if cfg.topics != nil && !cfg.topics[conn.Topic] {
			continue
		}
		conns[conn.ID] = conn
		for _, block := range conn.Blocks {
			if block.Chunk == nil {
				continue
			}
			offset := block.Chunk.Offset()
			chunkSet[offset] = block.Chunk
			blocksByChunk[offset] = append(blocksByChunk[offset], block)
			info := block.Chunk.Info
			if first {
				start, end = info.StartTime, info.EndTime
				first = false
				continue
			}
			if info.StartTime.Before(start) {
				start = info.StartTime
			}
			if info.EndTime.After(end) {
				end = info.EndTime
			}
		}
	}

	chunks := make([]*Chunk, 0, len(chunkSet))
	for _, c := range chunkSet {
		chunks = append(chunks, c)
	}

	return &View{
		bag: b, conns: conns, chunks: chunks, blocksByChunk: blocksByChunk,
		startTime: start, endTime: end, cfg: cfg,
	}, nil
}

// StartTime is the minimum start time over every chunk touched by the
// view's selection.
func (v *View) StartTime() Time { return v.startTime }

// EndTime is the maximum end time over every chunk touched by the view's
// selection.
func (v *View) EndTime() Time { return v.endTime }

// MessageIterator yields a View's messages one at a time. Call Next until
// it returns (nil, io.EOF).
type MessageIterator struct {
	view *View
	pq   *cursorHeap
	err  error // first error hit while building cursors, returned by the next Next
}

// Messages returns a lazy iterator over v's selection, in non-decreasing
// timestamp order.
func (v *View) Messages() *MessageIterator {
	pq := &cursorHeap{}
	heap.Init(pq)
	var firstErr error
	for _, chunk := range v.chunks {
		if v.cfg.hasLo && chunk.Info.EndTime.Before(v.cfg.lo) {
			continue // chunk's whole time range precedes the window: skip decompression entirely
		}
		if v.cfg.hasHi && chunk.Info.StartTime.After(v.cfg.hi) {
			continue
		}
		cur, err := newChunkCursor(chunk, v.conns, v.blocksByChunk[chunk.Offset()])
		if err != nil {
			if firstErr == nil {
				firstErr = err // surfaced lazily, by the next call to Next
			}
			continue
		}
		ok, err := cur.advance()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			heap.Push(pq, cur)
		}
	}
	return &MessageIterator{view: v, pq: pq, err: firstErr}
}

// Next returns the next message in timestamp order, or io.EOF when the
// view is exhausted.
func (it *MessageIterator) Next() (*Message, error) {
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	for it.pq.Len() > 0 {
		cur := heap.Pop(it.pq).(*chunkCursor)
		msg := cur.current

		ok, err := cur.advance()
		if err != nil {
			return nil, err
		}
		if ok {
			heap.Push(it.pq, cur)
		}

		if !withinWindow(msg.Timestamp, it.view.cfg) {
			continue
		}
		return msg, nil
	}
	return nil, io.EOF
}

func withinWindow(t Time, cfg viewConfig) bool {
	if cfg.hasLo && t.Before(cfg.lo) {
		return false
	}
	if cfg.hasHi && t.After(cfg.hi) {
		return false
	}
	return true
}

// mergedEntry is one INDEX_DATA (time, offset) pair tagged with the
// connection it belongs to, used to walk a chunk's qualifying messages
// directly by offset instead of scanning every inner record.
type mergedEntry struct {
	Time   Time
	Offset uint32
	ConnID uint32
}

// chunkCursor visits one chunk's qualifying messages in ascending timestamp
// order. When every selected block carries INDEX_DATA entries (the normal
// case: applyIndexData always populates them), it walks a merged,
// pre-sorted list of (time, offset) pairs and decodes directly at each
// offset. Otherwise it falls back to a sequential walk of the chunk's inner
// records, filtering by connection as it goes. It decompresses the chunk
// lazily on its first advance.
type chunkCursor struct {
	chunk *Chunk
	conns map[uint32]*Connection
	data  []byte

	indexed bool // true selects the merged-entry path; false selects the fallback path
	merged  []mergedEntry
	mergeAt int

	curs *cursor // fallback path only

	current     *Message
	posAtRecord int

	hasLast  bool
	lastTime Time
}

func newChunkCursor(chunk *Chunk, conns map[uint32]*Connection, blocks []*IndexBlock) (*chunkCursor, error) {
	c := &chunkCursor{chunk: chunk, conns: conns}
	merged, ok, err := mergeBlockEntries(blocks)
	if err != nil {
		return nil, err
	}
	c.indexed = ok
	c.merged = merged
	return c, nil
}

// mergeBlockEntries validates each block's own entries are individually
// non-decreasing in time, then merges them into one list sorted by
// (time, offset) - the same tie-break the heap itself uses across chunks.
// Returns ok=false if any block lacks entries, telling the caller to fall
// back to a sequential inner-record walk.
func mergeBlockEntries(blocks []*IndexBlock) ([]mergedEntry, bool, error) {
	var merged []mergedEntry
	for _, block := range blocks {
		if block.entries == nil {
			return nil, false, nil
		}
		var last Time
		hasLast := false
		for _, e := range block.entries {
			if hasLast && e.Time.Before(last) {
				return nil, false, ErrChunkTimeOrderViolation
			}
			hasLast, last = true, e.Time
			merged = append(merged, mergedEntry{Time: e.Time, Offset: e.Offset, ConnID: block.ConnectionID})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Time != merged[j].Time {
			return merged[i].Time.Before(merged[j].Time)
		}
		return merged[i].Offset < merged[j].Offset
	})
	return merged, true, nil
}

// advance scans forward to the next qualifying message, caches it as
// current, and reports whether one was found.
func (c *chunkCursor) advance() (bool, error) {
	if c.indexed {
		return c.advanceIndexed()
	}
	return c.advanceSequential()
}

// advanceIndexed walks c.merged, decoding the message at each entry's
// offset directly - no scan over unrelated inner records.
func (c *chunkCursor) advanceIndexed() (bool, error) {
	if c.data == nil {
		data, err := c.chunk.decompress()
		if err != nil {
			return false, err
		}
		c.data = data
	}

	for c.mergeAt < len(c.merged) {
		entry := c.merged[c.mergeAt]
		c.mergeAt++

		conn, ok := c.conns[entry.ConnID]
		if !ok {
			continue
		}
		if int(entry.Offset) >= len(c.data) {
			return false, ErrTruncatedRecord
		}
		rec, err := newCursor(c.data[entry.Offset:]).readRecord()
		if err != nil {
			return false, err
		}
		val, err := decodeMessage(conn.Schema, conn.Scope, rec.data)
		if err != nil {
			return false, err
		}
		c.current = &Message{
			Topic:     conn.Topic,
			Timestamp: entry.Time,
			MD5Sum:    conn.MD5Sum,
			RawData:   rec.data,
			value:     val,
		}
		c.posAtRecord = int(entry.Offset)
		return true, nil
	}
	c.current = nil
	return false, nil
}

// advanceSequential is the fallback path: a linear scan of the chunk's
// inner records in file order, filtering by connection as it goes.
func (c *chunkCursor) advanceSequential() (bool, error) {
	if c.curs == nil {
		data, err := c.chunk.decompress()
		if err != nil {
			return false, err
		}
		c.curs = newCursor(data)
	}

	for !c.curs.atEnd() {
		recordPos := c.curs.pos
		rec, err := c.curs.readRecord()
		if err != nil {
			return false, err
		}
		op, err := opcodeOf(rec.header)
		if err != nil {
			return false, err
		}
		switch op {
		case OpConnection:
			continue // already known from the bag's initial scan
		case OpMessageData:
		default:
			return false, ErrUnexpectedOpcode{Want: OpMessageData, Got: op}
		}

		connRaw, err := getField(rec.header, keyConn)
		if err != nil {
			return false, err
		}
		conn, ok := c.conns[u32(connRaw)]
		if !ok {
			continue
		}

		timeRaw, err := getField(rec.header, keyTime)
		if err != nil {
			return false, err
		}
		ts := readTime(timeRaw)
		if c.hasLast && ts.Before(c.lastTime) {
			return false, ErrChunkTimeOrderViolation
		}
		c.hasLast, c.lastTime = true, ts

		val, err := decodeMessage(conn.Schema, conn.Scope, rec.data)
		if err != nil {
			return false, err
		}

		c.current = &Message{
			Topic:     conn.Topic,
			Timestamp: ts,
			MD5Sum:    conn.MD5Sum,
			RawData:   rec.data,
			value:     val,
		}
		c.posAtRecord = recordPos
		return true, nil
	}
	c.current = nil
	return false, nil
}

// cursorHeap holds one entry per chunk cursor still producing messages,
// keyed by (next timestamp, chunk offset, in-chunk position), using
// container/heap the same way a classic k-way merge priority queue does;
// ranking cursors instead of individual messages keeps memory bounded at
// one entry per chunk.
type cursorHeap []*chunkCursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].current, h[j].current
	if a.Timestamp.Before(b.Timestamp) {
		return true
	}
	if b.Timestamp.Before(a.Timestamp) {
		return false
	}
	if h[i].chunk.Offset() != h[j].chunk.Offset() {
		return h[i].chunk.Offset() < h[j].chunk.Offset()
	}
	return h[i].posAtRecord < h[j].posAtRecord
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*chunkCursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
