package core

// CommandKind describes what the connection wants to do.
type CommandKind int

const (
	// CommandPublish delivers a chat message to room members.
	CommandPublish CommandKind = iota
	// CommandJoinRoom admits the connection's identity to a room.
	CommandJoinRoom
	// CommandLeaveRoom removes the connection's identity from a room.
	CommandLeaveRoom
)

// Command represents an action requested over a connection. Ref is an opaque
// request reference echoed back on the reply event.
type Command struct {
	Kind CommandKind
	Ref  string
	Room string
	Body string
}
