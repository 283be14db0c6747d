package core

import (
	"sync"
	"sync/atomic"
)

// ConnState is the connectivity state of a connection. Only the owning
// connection writes it.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DefaultOutboxSize is the per-connection delivery buffer.
const DefaultOutboxSize = 64

// Conn is one live transport session as seen by the core. Members hold a
// Conn for delivery lookup only; closing the Conn removes its memberships.
type Conn struct {
	ID string

	events chan *Event
	done   chan struct{}
	state  atomic.Int32

	mu       sync.Mutex
	identity Identity
	rooms    map[string]struct{}
	closed   bool
	onClose  []func(*Conn)
	dropped  atomic.Int64
}

// NewConn constructs a connected Conn with an outbox of the given size.
func NewConn(id string, outbox int) *Conn {
	if outbox <= 0 {
		outbox = DefaultOutboxSize
	}
	c := &Conn{
		ID:     id,
		events: make(chan *Event, outbox),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
	c.state.Store(int32(StateConnected))
	return c
}

// Events returns the ordered stream of events for this connection.
func (c *Conn) Events() <-chan *Event { return c.events }

// Done is closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// State returns the current connectivity state.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Connected reports whether the connection can still take part in rooms.
func (c *Conn) Connected() bool { return c.State() == StateConnected }

// Identity returns the identity bound by hello, if any.
func (c *Conn) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// SetIdentity binds the identity. It fails once bound to a different one.
func (c *Conn) SetIdentity(id Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity.Valid() && c.identity.ID != id.ID {
		return BadRequest("identity already bound")
	}
	c.identity = id
	return nil
}

// Rooms returns the rooms this connection currently belongs to.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	return out
}

// Dropped returns how many deliveries were discarded because the outbox was full.
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// OnClose registers fn to run when the connection is torn down.
func (c *Conn) OnClose(fn func(*Conn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Deliver enqueues an event without blocking. It returns false when the
// connection is gone or its outbox is full.
func (c *Conn) Deliver(ev *Event) bool {
	if !c.Connected() {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Reply enqueues the answer to a command. A reply that does not fit closes
// the connection instead of being dropped. The close runs on its own
// goroutine since callers may hold a room's delivery lock.
func (c *Conn) Reply(ev *Event) bool {
	if c.Deliver(ev) {
		return true
	}
	if c.Connected() {
		go c.Close()
	}
	return false
}

// Close transitions to Disconnected and runs teardown hooks exactly once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state.Store(int32(StateDisconnected))
	hooks := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	close(c.done)
	for _, fn := range hooks {
		fn(c)
	}
}

// trackRoom records membership of room. It fails after Close so that a join
// racing with teardown cannot leave a dangling member behind.
func (c *Conn) trackRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Conn) untrackRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}
