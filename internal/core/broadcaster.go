package core

import (
	"strings"

	"github.com/rs/zerolog"
)

// Broadcaster accepts publish requests and fans accepted messages out to the
// room's members, the sender included.
type Broadcaster struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewBroadcaster builds a broadcaster over registry.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		logger = registry.log
	}
	return &Broadcaster{registry: registry, log: logger}
}

// Publish sequences body into roomID on behalf of id and delivers it to every
// member present at that instant. Id assignment, history append and the
// membership snapshot happen atomically per room; delivery is best-effort
// per member and a full outbox on one member never blocks the others. The
// accepted message is also delivered to conn as an EventPublished carrying ref.
func (b *Broadcaster) Publish(roomID string, id Identity, conn *Conn, body, ref string) (Message, error) {
	if conn == nil || !conn.Connected() {
		return Message{}, ErrNotConnected
	}
	if strings.TrimSpace(body) == "" {
		return Message{}, Rejected("message body is required")
	}
	if len(body) > b.registry.opts.MaxBodyBytes {
		return Message{}, Rejected("message body too large")
	}

	room := b.registry.lookup(roomID)
	if room == nil {
		return Message{}, ErrNotAMember
	}

	var (
		msg Message
		err error
	)
	room.commit(func() func() {
		if room.removed {
			err = ErrNotAMember
			return nil
		}
		if _, ok := room.member(id, conn); !ok {
			err = ErrNotAMember
			return nil
		}

		room.nextID++
		msg = Message{
			ID:        room.nextID,
			Room:      roomID,
			From:      id,
			Body:      body,
			CreatedAt: b.registry.opts.Now().UTC(),
		}
		room.history.Append(msg)
		room.lastActive = msg.CreatedAt
		recipients := room.conns()

		return func() {
			b.deliver(recipients, &Event{Kind: EventRoomMessage, Room: roomID, Message: msg})
			conn.Reply(&Event{Kind: EventPublished, Ref: ref, Room: roomID, Message: msg})
		}
	})
	if err != nil {
		return Message{}, err
	}

	b.log.Debug().Str("room", roomID).Str("user", id.ID).Int64("msg_id", msg.ID).Msg("message published")
	return msg, nil
}

func (b *Broadcaster) deliver(recipients []*Conn, ev *Event) {
	for _, c := range recipients {
		if !c.Deliver(ev) {
			b.log.Warn().
				Str("room", ev.Room).
				Str("conn_id", c.ID).
				Int64("msg_id", ev.Message.ID).
				Msg("delivery dropped")
		}
	}
}
