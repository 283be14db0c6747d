package core

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub bundles the registry and broadcaster behind the command interface the
// transports speak.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	outbox      int
	log         *zerolog.Logger
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options, logger *zerolog.Logger) *Hub {
	registry := NewRegistry(opts, logger)
	return &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, registry.log),
		outbox:      registry.opts.OutboxSize,
		log:         registry.log,
	}
}

// Registry exposes the membership registry for read-only queries.
func (h *Hub) Registry() *Registry { return h.registry }

// Broadcaster exposes the broadcaster.
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

// Connect registers a new connection. Closing it drops its memberships.
func (h *Hub) Connect(id string) *Conn {
	conn := NewConn(id, h.outbox)
	conn.OnClose(h.registry.DropConnection)
	h.log.Debug().Str("conn_id", id).Msg("connection registered")
	return conn
}

// Identify binds id to conn and acknowledges with EventIdentified.
func (h *Hub) Identify(conn *Conn, id Identity, ref string) error {
	if !id.Valid() {
		err := BadRequest("user is required")
		h.replyError(conn, ref, "", err)
		return err
	}
	if err := conn.SetIdentity(id); err != nil {
		h.replyError(conn, ref, "", err)
		return err
	}
	conn.Reply(&Event{Kind: EventIdentified, Ref: ref, Identity: id})
	return nil
}

// Handle executes cmd for conn. Success replies are delivered by the
// registry and broadcaster in commit order; failures are delivered here as
// EventError carrying the command's ref.
func (h *Hub) Handle(conn *Conn, cmd *Command) error {
	id := conn.Identity()
	if !id.Valid() {
		err := BadRequest("hello required")
		h.replyError(conn, cmd.Ref, cmd.Room, err)
		return err
	}

	var err error
	switch cmd.Kind {
	case CommandJoinRoom:
		_, err = h.registry.Join(cmd.Room, id, conn, cmd.Ref)
	case CommandLeaveRoom:
		err = h.registry.Leave(cmd.Room, id, conn, cmd.Ref)
	case CommandPublish:
		_, err = h.broadcaster.Publish(cmd.Room, id, conn, cmd.Body, cmd.Ref)
	default:
		err = BadRequest("unknown command")
	}
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", conn.ID).Str("room", cmd.Room).Msg("command failed")
		h.replyError(conn, cmd.Ref, cmd.Room, err)
	}
	return err
}

// Run drives background maintenance until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	return h.registry.Run(ctx)
}

func (h *Hub) replyError(conn *Conn, ref, room string, err error) {
	conn.Reply(&Event{Kind: EventError, Ref: ref, Room: room, Error: AsCoreError(err)})
}
