package core

import "time"

// Identity is an externally issued user identity. It never changes for the
// lifetime of a connection.
type Identity struct {
	ID   string
	Name string
}

// Valid reports whether the identity carries an ID.
func (i Identity) Valid() bool {
	return i.ID != ""
}

// Message is the domain model for a chat message. Messages are immutable
// once accepted by the Broadcaster.
type Message struct {
	ID        int64 // monotonic within Room
	Room      string
	From      Identity
	Body      string
	CreatedAt time.Time
}
