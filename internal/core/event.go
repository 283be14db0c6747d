package core

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventRoomMessage delivers a broadcast chat message to a room member.
	EventRoomMessage EventKind = iota
	// EventHistory answers a join with the room's history snapshot.
	EventHistory
	// EventLeft answers a leave.
	EventLeft
	// EventPublished answers a publish with the accepted message.
	EventPublished
	// EventIdentified answers a hello with the bound identity.
	EventIdentified
	// EventError notifies the connection about a failed request.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventRoomMessage:
		return "message"
	case EventHistory:
		return "history"
	case EventLeft:
		return "left"
	case EventPublished:
		return "published"
	case EventIdentified:
		return "identified"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to connections to describe what happened in the system.
// Ref echoes the request reference for replies and is empty for broadcasts.
type Event struct {
	Kind     EventKind
	Ref      string
	Room     string
	Identity Identity
	Message  Message
	Messages []Message // For EventHistory
	Error    *CoreError
}
