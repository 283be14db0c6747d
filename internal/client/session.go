package client

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/vovakirdan/eventchat/internal/core"
)

// SessionState is the membership state of a chat session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionJoining
	SessionJoined
	SessionLeaving
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionJoining:
		return "joining"
	case SessionJoined:
		return "joined"
	case SessionLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// UpdateKind tags an Update.
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota
	UpdateHistory
	UpdateState
	UpdateConnection
)

// Update is one observable change of a chat session.
type Update struct {
	Kind     UpdateKind
	Message  core.Message
	Messages []core.Message
	State    SessionState
	Conn     core.ConnState
	Err      error
}

// DefaultUpdateBuffer is the Updates channel capacity used when none is given.
const DefaultUpdateBuffer = 64

// ChatSession is a per-room view over a Connection. It tracks its own
// membership and the ordered message list seen while joined. A dropped
// connection moves it to idle; rejoining is left to the caller.
type ChatSession struct {
	conn *Connection
	room string

	mu       sync.Mutex
	state    SessionState
	epoch    uint64
	messages []core.Message
	updates  chan Update
	dropped  int64
	closed   bool

	stopState  func()
	stopEvents func()
}

// NewChatSession binds a session for room to conn. Updates are buffered
// and dropped when the reader falls behind.
func NewChatSession(conn *Connection, room string, buffer int) *ChatSession {
	if buffer <= 0 {
		buffer = DefaultUpdateBuffer
	}
	s := &ChatSession{
		conn:    conn,
		room:    room,
		updates: make(chan Update, buffer),
	}
	s.stopState = conn.Subscribe(s.onState)
	s.stopEvents = conn.OnEvent(s.onEvent)
	return s
}

// Room returns the room this session is bound to.
func (s *ChatSession) Room() string { return s.room }

// State returns the membership state.
func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the messages seen since the last join.
func (s *ChatSession) Messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Updates streams state changes and messages. It is closed by Close.
// Updates that find the buffer full are dropped and counted; Messages
// remains the complete list.
func (s *ChatSession) Updates() <-chan Update { return s.updates }

// Dropped reports how many updates were discarded because the reader fell behind.
func (s *ChatSession) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Join joins the room. Joining an already joined session succeeds.
func (s *ChatSession) Join(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case SessionJoined:
		s.mu.Unlock()
		return nil
	case SessionJoining, SessionLeaving:
		s.mu.Unlock()
		return core.Rejected("session is busy")
	}
	s.setStateLocked(SessionJoining, nil)
	epoch := s.epoch
	s.mu.Unlock()

	_, err := s.conn.Join(ctx, s.room)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		if err == nil {
			return core.ErrNotConnected
		}
		return err
	}
	if err != nil {
		s.setStateLocked(SessionIdle, err)
		return err
	}
	s.setStateLocked(SessionJoined, nil)
	return nil
}

// Leave leaves the room. Leaving an idle session succeeds.
func (s *ChatSession) Leave(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case SessionIdle:
		s.mu.Unlock()
		return nil
	case SessionJoining, SessionLeaving:
		s.mu.Unlock()
		return core.Rejected("session is busy")
	}
	s.setStateLocked(SessionLeaving, nil)
	epoch := s.epoch
	s.mu.Unlock()

	err := s.conn.Leave(ctx, s.room)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The connection dropped; the server already released the membership.
		return nil
	}
	if err != nil && !errors.Is(err, core.ErrNotConnected) {
		s.setStateLocked(SessionJoined, err)
		return err
	}
	s.setStateLocked(SessionIdle, nil)
	return nil
}

// Send publishes body to the room. It fails with ErrNotJoined without
// touching the network unless the session is joined.
func (s *ChatSession) Send(ctx context.Context, body string) (core.Message, error) {
	if s.State() != SessionJoined {
		return core.Message{}, core.ErrNotJoined
	}
	return s.conn.Publish(ctx, s.room, body)
}

// Close detaches the session from its connection and closes Updates.
// It does not leave the room.
func (s *ChatSession) Close() {
	s.stopState()
	s.stopEvents()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}

func (s *ChatSession) onState(change StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(Update{Kind: UpdateConnection, Conn: change.State, Err: change.Err})
	if change.State == core.StateDisconnected && s.state != SessionIdle {
		s.setStateLocked(SessionIdle, change.Err)
	}
}

func (s *ChatSession) onEvent(ev *core.Event) {
	if ev.Room != s.room {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionJoining && s.state != SessionJoined {
		return
	}
	switch ev.Kind {
	case core.EventHistory:
		s.messages = slices.Clone(ev.Messages)
		s.emitLocked(Update{Kind: UpdateHistory, Messages: slices.Clone(ev.Messages)})
	case core.EventRoomMessage:
		s.messages = append(s.messages, ev.Message)
		s.emitLocked(Update{Kind: UpdateMessage, Message: ev.Message})
	}
}

func (s *ChatSession) setStateLocked(next SessionState, err error) {
	s.state = next
	s.epoch++
	s.emitLocked(Update{Kind: UpdateState, State: next, Err: err})
}

func (s *ChatSession) emitLocked(u Update) {
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
		s.dropped++
		s.conn.log.Warn().Str("room", s.room).Int64("dropped", s.dropped).Msg("session update dropped, reader is behind")
	}
}
