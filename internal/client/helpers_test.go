package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
	transporthttp "github.com/vovakirdan/eventchat/internal/transport/http"
)

const waitTimeout = 3 * time.Second

func startServer(t *testing.T, cfg config.Config) (string, *core.Hub) {
	t.Helper()

	hub := core.NewHub(core.Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	disabledLogger := zerolog.New(nil)
	server := transporthttp.NewServer(hub, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws", hub
}

func fastOptions() Options {
	return Options{
		RequestTimeout:    time.Second,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectAttempts: 3,
	}
}

func connectUser(t *testing.T, url, user string) *Connection {
	t.Helper()

	conn := NewConnection(WSDialer{URL: url}, proto.HelloData{User: user, Name: user}, fastOptions(), nil)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(conn.Disconnect)
	return conn
}

// stateRecorder collects state changes in notification order.
type stateRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *stateRecorder) record(change StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()
}

func (r *stateRecorder) states() []core.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.ConnState, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.State)
	}
	return out
}

func (r *stateRecorder) last() StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return StateChange{}
	}
	return r.changes[len(r.changes)-1]
}

var errFakeClosed = errors.New("fake session closed")

// fakeSession answers hello and, when autoAck is set, every other request
// with an empty accepted reply. Frames can be injected with push.
type fakeSession struct {
	autoAck bool

	in     chan proto.RawOutbound
	sent   chan proto.Inbound
	closed chan struct{}
	once   sync.Once
}

func newFakeSession(autoAck bool) *fakeSession {
	return &fakeSession{
		autoAck: autoAck,
		in:      make(chan proto.RawOutbound, 16),
		sent:    make(chan proto.Inbound, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSession) Send(ctx context.Context, in proto.Inbound) error {
	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	select {
	case f.sent <- in:
	default:
	}

	switch {
	case in.Type == proto.InboundTypeHello:
		var hello proto.HelloData
		_ = json.Unmarshal(in.Data, &hello)
		f.push(proto.OutboundTypeAck, in.ID, proto.EventNameHello, proto.EventHello{
			User:     proto.User{ID: hello.User, Name: hello.Name},
			Protocol: proto.ProtocolVersion,
		})
	case f.autoAck && in.Type == proto.InboundTypeJoin:
		var join proto.JoinData
		_ = json.Unmarshal(in.Data, &join)
		f.push(proto.OutboundTypeAck, in.ID, proto.EventNameHistory, proto.EventHistory{Accepted: true, Room: join.Room})
	case f.autoAck && in.Type == proto.InboundTypeLeave:
		var leave proto.JoinData
		_ = json.Unmarshal(in.Data, &leave)
		f.push(proto.OutboundTypeAck, in.ID, proto.EventNameLeft, proto.EventLeft{Accepted: true, Room: leave.Room})
	}
	return nil
}

func (f *fakeSession) push(typ, id, event string, data any) {
	payload, _ := json.Marshal(data)
	f.in <- proto.RawOutbound{Type: typ, ID: id, Event: event, Data: payload}
}

func (f *fakeSession) Recv(ctx context.Context) (proto.RawOutbound, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.closed:
		return proto.RawOutbound{}, io.EOF
	case <-ctx.Done():
		return proto.RawOutbound{}, ctx.Err()
	}
}

func (f *fakeSession) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// fakeDialer hands out fake sessions; fail decides per attempt whether the
// dial is refused.
type fakeDialer struct {
	autoAck bool
	fail    func(attempt int) bool

	mu       sync.Mutex
	attempts int
	sessions []*fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.fail != nil && d.fail(d.attempts) {
		return nil, errors.New("connection refused")
	}
	s := newFakeSession(d.autoAck)
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) current() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}
