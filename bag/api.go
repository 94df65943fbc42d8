package bag

import "github.com/go-bagreader/bagreader/msgdef"

// Close unmaps the bag's backing region. It returns true the first time it
// is called and false on every subsequent call.
func (b *Bag) Close() bool {
	if b.closed {
		return false
	}
	b.closed = true
	_ = b.region.Close()
	return true
}

// Topics returns the bag's distinct, non-empty topic names, ordered by the
// lowest connection id on each topic.
func (b *Bag) Topics() []string {
	topics := make([]string, 0, len(b.byTopic))
	seen := make(map[string]bool, len(b.byTopic))
	for _, conn := range b.connections {
		if conn == nil || conn.Topic == "" || seen[conn.Topic] {
			continue
		}
		seen[conn.Topic] = true
		topics = append(topics, conn.Topic)
	}
	return topics
}

// TopicInBag reports whether topic names at least one connection in the
// bag.
func (b *Bag) TopicInBag(topic string) bool {
	return len(b.byTopic[topic]) > 0
}

// ConnectionsForTopic returns every connection publishing on topic. A topic
// may be shared by more than one connection with distinct connection ids
// (multiple connections can share one topic).
func (b *Bag) ConnectionsForTopic(topic string) []*Connection {
	return b.byTopic[topic]
}

// MsgDefForTopic returns the parsed schema for topic, taken from its first
// connection, and whether topic names any connection at all.
func (b *Bag) MsgDefForTopic(topic string) (*msgdef.Def, bool) {
	conns := b.byTopic[topic]
	if len(conns) == 0 {
		return nil, false
	}
	return conns[0].Schema, true
}
