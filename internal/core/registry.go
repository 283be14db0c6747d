package core

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Options tunes the core. Zero values fall back to defaults.
type Options struct {
	HistorySize     int
	OutboxSize      int
	MaxBodyBytes    int
	RoomRetention   time.Duration
	JanitorInterval time.Duration
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 4096
	}
	if o.RoomRetention <= 0 {
		o.RoomRetention = 10 * time.Minute
	}
	if o.JanitorInterval <= 0 {
		o.JanitorInterval = time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Registry is the membership source of truth. Rooms are created lazily on
// first join and swept once empty and idle past the retention window.
type Registry struct {
	opts Options
	log  *zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts Options, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		opts:  opts.withDefaults(),
		log:   logger,
		rooms: make(map[string]*Room),
	}
}

func (r *Registry) lookup(name string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[name]
}

func (r *Registry) lookupOrCreate(name string) *Room {
	if room := r.lookup(name); room != nil {
		return room
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[name]; ok {
		return room
	}
	room := NewRoom(name, r.opts.HistorySize, r.opts.Now())
	r.rooms[name] = room
	r.log.Debug().Str("room", name).Msg("room created")
	return room
}

// Join admits identity to roomID over conn and returns a copy of the room's
// history. Joining twice is idempotent; joining from a second connection
// rebinds the membership to it. The history is also delivered to conn as an
// EventHistory carrying ref.
func (r *Registry) Join(roomID string, id Identity, conn *Conn, ref string) ([]Message, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, BadRequest("room is required")
	}
	if !id.Valid() {
		return nil, BadRequest("identity is required")
	}
	if conn == nil || !conn.Connected() {
		return nil, ErrNotConnected
	}

	for {
		room := r.lookupOrCreate(roomID)

		var (
			history []Message
			err     error
			swept   bool
		)
		room.commit(func() func() {
			if room.removed {
				swept = true
				return nil
			}
			prev, exists := room.members[id.ID]
			if !exists || prev.Conn != conn {
				if !conn.trackRoom(roomID) {
					err = ErrNotConnected
					return nil
				}
				room.members[id.ID] = &Member{Identity: id, Room: roomID, Conn: conn}
				if exists {
					prev.Conn.untrackRoom(roomID)
				}
				r.log.Info().Str("room", roomID).Str("user", id.ID).Str("conn_id", conn.ID).Msg("member joined")
			}
			room.lastActive = r.opts.Now()
			history = room.history.Snapshot()

			ev := &Event{Kind: EventHistory, Ref: ref, Room: roomID, Identity: id, Messages: slices.Clone(history)}
			return func() { conn.Reply(ev) }
		})
		if swept {
			continue
		}
		return history, err
	}
}

// Leave removes identity from roomID. Leaving a room one is not a member of
// is a no-op. When conn is non-nil only a membership bound to conn is removed
// and an EventLeft carrying ref is delivered to it.
func (r *Registry) Leave(roomID string, id Identity, conn *Conn, ref string) error {
	ack := func() {
		if conn != nil {
			conn.Reply(&Event{Kind: EventLeft, Ref: ref, Room: roomID, Identity: id})
		}
	}

	room := r.lookup(roomID)
	if room == nil {
		ack()
		return nil
	}
	room.commit(func() func() {
		if m, ok := room.member(id, conn); ok {
			delete(room.members, id.ID)
			m.Conn.untrackRoom(roomID)
			room.lastActive = r.opts.Now()
			r.log.Info().Str("room", roomID).Str("user", id.ID).Msg("member left")
		}
		return ack
	})
	return nil
}

// DropConnection removes every membership bound to conn. It runs on
// connection teardown.
func (r *Registry) DropConnection(conn *Conn) {
	for _, name := range conn.Rooms() {
		room := r.lookup(name)
		if room == nil {
			conn.untrackRoom(name)
			continue
		}
		room.commit(func() func() {
			for key, m := range room.members {
				if m.Conn == conn {
					delete(room.members, key)
					r.log.Info().Str("room", name).Str("user", key).Str("conn_id", conn.ID).Msg("member dropped")
				}
			}
			conn.untrackRoom(name)
			room.lastActive = r.opts.Now()
			return nil
		})
	}
}

// Members returns the connections currently admitted to roomID.
func (r *Registry) Members(roomID string) []*Conn {
	room := r.lookup(roomID)
	if room == nil {
		return nil
	}
	return room.Members()
}

// History returns a snapshot of roomID's history and whether the room exists.
func (r *Registry) History(roomID string) ([]Message, bool) {
	room := r.lookup(roomID)
	if room == nil {
		return nil, false
	}
	return room.History(), true
}

// Rooms lists live rooms ordered by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	rooms := lo.Values(r.rooms)
	r.mu.RUnlock()

	infos := lo.Map(rooms, func(room *Room, _ int) RoomInfo { return room.Info() })
	slices.SortFunc(infos, func(a, b RoomInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Sweep removes rooms that are empty and idle past the retention window.
func (r *Registry) Sweep() int {
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, room := range r.rooms {
		room.mu.Lock()
		if len(room.members) == 0 && now.Sub(room.lastActive) >= r.opts.RoomRetention {
			room.removed = true
			delete(r.rooms, name)
			removed++
		}
		room.mu.Unlock()
	}
	if removed > 0 {
		r.log.Debug().Int("rooms", removed).Msg("swept idle rooms")
	}
	return removed
}

// Run sweeps idle rooms until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
