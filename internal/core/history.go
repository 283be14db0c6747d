package core

// DefaultHistorySize is the number of recent messages kept per room.
const DefaultHistorySize = 200

// HistoryBuffer keeps the last N messages of a room in insertion order.
// It is not safe for concurrent use; Room guards it.
type HistoryBuffer struct {
	buf  []Message
	head int // index of the oldest message
	size int
}

// NewHistoryBuffer returns an empty buffer holding at most capacity messages.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &HistoryBuffer{buf: make([]Message, capacity)}
}

// Append inserts msg at the tail, evicting the oldest message when full.
func (h *HistoryBuffer) Append(msg Message) {
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = msg
		h.size++
		return
	}
	h.buf[h.head] = msg
	h.head = (h.head + 1) % len(h.buf)
}

// Snapshot returns a copy of the buffered messages, oldest first.
func (h *HistoryBuffer) Snapshot() []Message {
	out := make([]Message, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of buffered messages.
func (h *HistoryBuffer) Len() int { return h.size }

// Cap returns the maximum number of buffered messages.
func (h *HistoryBuffer) Cap() int { return len(h.buf) }
