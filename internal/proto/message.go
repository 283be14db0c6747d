package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client. ID is chosen
// by the client and echoed on the matching ack or error.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello   = "hello"
	InboundTypeJoin    = "join"
	InboundTypeLeave   = "leave"
	InboundTypePublish = "publish"

	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameHello   = "hello"
	EventNameHistory = "history"
	EventNameLeft    = "left"
	EventNameMessage = "message"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user,omitempty"`
	Name     string `json:"name,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join or leave a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// PublishData is a chat message from the client.
type PublishData struct {
	Room string `json:"room"`
	Body string `json:"body"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RawOutbound is Outbound as read by a client, with Data left undecoded.
type RawOutbound struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// User identifies a message author.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// EventMessage is one chat message. TS is unix milliseconds.
type EventMessage struct {
	ID   int64  `json:"id"`
	Room string `json:"room"`
	User User   `json:"user"`
	Body string `json:"body"`
	TS   int64  `json:"ts"`
}

// EventHello acknowledges hello with the bound identity.
type EventHello struct {
	User     User `json:"user"`
	Protocol int  `json:"protocol"`
}

// EventHistory answers a join with the room's recent messages.
type EventHistory struct {
	Accepted bool           `json:"accepted"`
	Room     string         `json:"room"`
	Messages []EventMessage `json:"history"`
}

// EventLeft answers a leave.
type EventLeft struct {
	Accepted bool   `json:"accepted"`
	Room     string `json:"room"`
}

// EventPublished answers a publish with the accepted message.
type EventPublished struct {
	Accepted bool         `json:"accepted"`
	Message  EventMessage `json:"message"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
