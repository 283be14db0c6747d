package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/eventchat/internal/proto"
)

// Session is one established transport session.
type Session interface {
	Send(ctx context.Context, in proto.Inbound) error
	Recv(ctx context.Context) (proto.RawOutbound, error)
	Close() error
}

// Dialer establishes sessions to the messaging backend.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// WSDialer dials the server's websocket endpoint.
type WSDialer struct {
	URL       string
	Header    http.Header
	ReadLimit int64
}

// Dial opens a websocket session.
func (d WSDialer) Dial(ctx context.Context) (Session, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsSession{conn: conn}, nil
}

type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Send(ctx context.Context, in proto.Inbound) error {
	return wsjson.Write(ctx, s.conn, in)
}

func (s *wsSession) Recv(ctx context.Context) (proto.RawOutbound, error) {
	var out proto.RawOutbound
	err := wsjson.Read(ctx, s.conn, &out)
	return out, err
}

func (s *wsSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
