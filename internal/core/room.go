package core

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// Member associates one identity with one room and the connection it is
// delivered on.
type Member struct {
	Identity Identity
	Room     string
	Conn     *Conn
}

// Room groups the members of one discussion scope together with its recent
// history. mu guards state; deliverMu orders deliveries by commit order.
type Room struct {
	Name string

	mu         sync.Mutex
	members    map[string]*Member // by identity ID
	history    *HistoryBuffer
	nextID     int64
	lastActive time.Time
	removed    bool

	deliverMu sync.Mutex
}

// NewRoom constructs a room with no members.
func NewRoom(name string, historySize int, now time.Time) *Room {
	return &Room{
		Name:       name,
		members:    make(map[string]*Member),
		history:    NewHistoryBuffer(historySize),
		lastActive: now,
	}
}

// commit runs mutate under the state lock and then runs the delivery step it
// returns under the delivery lock. The delivery lock is taken before the
// state lock is released, so deliveries leave the room in the same order as
// their state changes were committed while the state itself is free again.
func (r *Room) commit(mutate func() (deliver func())) {
	r.mu.Lock()
	deliver := mutate()
	r.deliverMu.Lock()
	r.mu.Unlock()
	defer r.deliverMu.Unlock()

	if deliver != nil {
		deliver()
	}
}

// member returns the member for identity when it is bound to conn.
func (r *Room) member(id Identity, conn *Conn) (*Member, bool) {
	m, ok := r.members[id.ID]
	if !ok || (conn != nil && m.Conn != conn) {
		return nil, false
	}
	return m, true
}

// conns returns the member connections at this instant. Caller holds mu.
func (r *Room) conns() []*Conn {
	return lo.MapToSlice(r.members, func(_ string, m *Member) *Conn {
		return m.Conn
	})
}

// Members returns the current member connections.
func (r *Room) Members() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns()
}

// History returns a point-in-time copy of the room's recent messages.
func (r *Room) History() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.Snapshot()
}

// Info summarizes the room for listings.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		Name:       r.Name,
		Members:    len(r.members),
		Messages:   r.history.Len(),
		LastActive: r.lastActive,
	}
}

// RoomInfo is a read-only summary of a room.
type RoomInfo struct {
	Name       string
	Members    int
	Messages   int
	LastActive time.Time
}
