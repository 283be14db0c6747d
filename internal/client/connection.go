package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

// Options tune request and reconnect behavior.
type Options struct {
	RequestTimeout    time.Duration
	ReconnectDelay    time.Duration
	ReconnectAttempts int
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	return o
}

// StateChange is delivered to state listeners on every transition. Err is
// set when the transition was caused by a failure.
type StateChange struct {
	State core.ConnState
	Err   error
}

type reply struct {
	frame proto.RawOutbound
	err   error
}

type established struct {
	session  Session
	identity core.Identity
}

// Connection owns one logical link to the backend. It never joins rooms on
// its own; it only reconnects the transport.
type Connection struct {
	dialer Dialer
	hello  proto.HelloData
	opts   Options
	log    *zerolog.Logger

	// notifyMu keeps listener callbacks in transition order.
	notifyMu sync.Mutex

	mu             sync.Mutex
	state          core.ConnState
	identity       core.Identity
	lastErr        error
	session        Session
	cancel         context.CancelFunc
	pending        map[string]chan reply
	stateListeners map[uint64]func(StateChange)
	eventListeners map[uint64]func(*core.Event)
	nextListener   uint64
}

// NewConnection builds a disconnected connection that introduces itself with hello.
func NewConnection(dialer Dialer, hello proto.HelloData, opts Options, logger *zerolog.Logger) *Connection {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if hello.Protocol == 0 {
		hello.Protocol = proto.ProtocolVersion
	}
	return &Connection{
		dialer:         dialer,
		hello:          hello,
		opts:           opts.withDefaults(),
		log:            logger,
		state:          core.StateDisconnected,
		pending:        make(map[string]chan reply),
		stateListeners: make(map[uint64]func(StateChange)),
		eventListeners: make(map[uint64]func(*core.Event)),
	}
}

// State returns the current connectivity state.
func (c *Connection) State() core.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent transport or handshake failure.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Identity returns the identity the server bound on the last handshake.
func (c *Connection) Identity() core.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Subscribe registers fn for state changes and returns a function that
// removes it. Listeners run synchronously in transition order and must not
// call Connect or Disconnect.
func (c *Connection) Subscribe(fn func(StateChange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.stateListeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.stateListeners, id)
		c.mu.Unlock()
	}
}

// OnEvent registers fn for room events (history snapshots and messages).
func (c *Connection) OnEvent(fn func(*core.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.eventListeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.eventListeners, id)
		c.mu.Unlock()
	}
}

// Connect establishes the session, retrying dial failures within the
// reconnect budget. It is a no-op unless the connection is disconnected.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.transition(core.StateConnecting, nil, func(cur core.ConnState) bool {
		return cur == core.StateDisconnected
	}) {
		return nil
	}
	return c.establish(ctx)
}

// Disconnect closes the session and fails every in-flight request with
// ErrNotConnected. The server drops this connection's memberships.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
	c.failPending()
	c.transition(core.StateDisconnected, nil, func(cur core.ConnState) bool {
		return cur != core.StateDisconnected
	})
}

// Join joins room and returns its history snapshot.
func (c *Connection) Join(ctx context.Context, room string) ([]core.Message, error) {
	frame, err := c.request(ctx, proto.InboundTypeJoin, proto.JoinData{Room: room})
	if err != nil {
		return nil, err
	}
	hist, err := decodeData[proto.EventHistory](frame)
	if err != nil {
		return nil, err
	}
	return messagesFromProto(hist.Messages), nil
}

// Leave leaves room. Leaving a room the identity is not in succeeds.
func (c *Connection) Leave(ctx context.Context, room string) error {
	_, err := c.request(ctx, proto.InboundTypeLeave, proto.JoinData{Room: room})
	return err
}

// Publish sends body to room and returns the accepted message.
func (c *Connection) Publish(ctx context.Context, room, body string) (core.Message, error) {
	frame, err := c.request(ctx, proto.InboundTypePublish, proto.PublishData{Room: room, Body: body})
	if err != nil {
		return core.Message{}, err
	}
	ack, err := decodeData[proto.EventPublished](frame)
	if err != nil {
		return core.Message{}, err
	}
	return messageFromProto(ack.Message), nil
}

func (c *Connection) establish(parent context.Context) error {
	dialCtx, dialCancel := context.WithCancel(parent)
	c.mu.Lock()
	c.cancel = dialCancel
	c.mu.Unlock()

	res, err := c.dialWithRetry(dialCtx)
	dialCancel()
	if err != nil {
		c.setLastErr(err)
		c.transition(core.StateDisconnected, err, func(cur core.ConnState) bool {
			return cur == core.StateConnecting
		})
		return err
	}

	sessCtx, sessCancel := context.WithCancel(context.WithoutCancel(parent))
	c.mu.Lock()
	if c.state != core.StateConnecting {
		c.mu.Unlock()
		sessCancel()
		_ = res.session.Close()
		return core.ErrNotConnected
	}
	c.session = res.session
	c.identity = res.identity
	c.cancel = sessCancel
	c.lastErr = nil
	c.mu.Unlock()

	go c.readLoop(sessCtx, res.session)

	c.transition(core.StateConnected, nil, func(cur core.ConnState) bool {
		return cur == core.StateConnecting
	})
	c.log.Info().Str("user", res.identity.ID).Msg("connected")
	return nil
}

func (c *Connection) dialWithRetry(ctx context.Context) (established, error) {
	op := func() (established, error) {
		sess, err := c.dialer.Dial(ctx)
		if err != nil {
			c.setLastErr(err)
			return established{}, err
		}
		id, err := c.handshake(ctx, sess)
		if err != nil {
			_ = sess.Close()
			c.setLastErr(err)
			var ce *core.CoreError
			if errors.As(err, &ce) && !errors.Is(err, core.ErrTimeout) {
				return established{}, backoff.Permanent(err)
			}
			return established{}, err
		}
		return established{session: sess, identity: id}, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.ReconnectDelay)),
		backoff.WithMaxTries(uint(c.opts.ReconnectAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn().Err(err).Dur("retry_in", next).Msg("connect attempt failed")
		}),
	)
	if err == nil {
		return res, nil
	}
	var ce *core.CoreError
	if ctx.Err() != nil || (errors.As(err, &ce) && !errors.Is(err, core.ErrTimeout)) {
		return established{}, err
	}
	return established{}, fmt.Errorf("%w: %w", core.ErrConnectivityExhausted, err)
}

func (c *Connection) handshake(ctx context.Context, sess Session) (core.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	data, err := json.Marshal(c.hello)
	if err != nil {
		return core.Identity{}, err
	}
	ref := uuid.NewString()
	if err := sess.Send(ctx, proto.Inbound{Type: proto.InboundTypeHello, ID: ref, Data: data}); err != nil {
		return core.Identity{}, timeoutOr(ctx, err)
	}
	for {
		frame, err := sess.Recv(ctx)
		if err != nil {
			return core.Identity{}, timeoutOr(ctx, err)
		}
		if frame.ID != ref {
			continue
		}
		if frame.Type == proto.OutboundTypeError {
			return core.Identity{}, errorFromProto(frame.Error)
		}
		hello, err := decodeData[proto.EventHello](frame)
		if err != nil {
			return core.Identity{}, err
		}
		return core.Identity{ID: hello.User.ID, Name: hello.User.Name}, nil
	}
}

func (c *Connection) request(ctx context.Context, typ string, payload any) (proto.RawOutbound, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return proto.RawOutbound{}, err
	}
	ref := uuid.NewString()
	ch := make(chan reply, 1)

	c.mu.Lock()
	sess := c.session
	if c.state != core.StateConnected || sess == nil {
		c.mu.Unlock()
		return proto.RawOutbound{}, core.ErrNotConnected
	}
	c.pending[ref] = ch
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if err := sess.Send(ctx, proto.Inbound{Type: typ, ID: ref, Data: data}); err != nil {
		c.forget(ref)
		if ctx.Err() != nil {
			return proto.RawOutbound{}, timeoutOr(ctx, err)
		}
		return proto.RawOutbound{}, core.ErrNotConnected
	}

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		c.forget(ref)
		return proto.RawOutbound{}, timeoutOr(ctx, ctx.Err())
	}
}

func (c *Connection) readLoop(ctx context.Context, sess Session) {
	for {
		frame, err := sess.Recv(ctx)
		if err != nil {
			c.handleDrop(sess, err)
			return
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame proto.RawOutbound) {
	switch frame.Type {
	case proto.OutboundTypeAck:
		if frame.Event == proto.EventNameHistory {
			if hist, err := decodeData[proto.EventHistory](frame); err == nil {
				c.emit(&core.Event{
					Kind:     core.EventHistory,
					Ref:      frame.ID,
					Room:     hist.Room,
					Messages: messagesFromProto(hist.Messages),
				})
			}
		}
		c.resolve(frame.ID, reply{frame: frame})
	case proto.OutboundTypeError:
		ce := errorFromProto(frame.Error)
		if frame.ID == "" {
			c.log.Warn().Str("code", ce.Code).Msg(ce.Message)
			return
		}
		c.resolve(frame.ID, reply{frame: frame, err: ce})
	case proto.OutboundTypeEvent:
		if frame.Event != proto.EventNameMessage {
			return
		}
		msg, err := decodeData[proto.EventMessage](frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed event")
			return
		}
		m := messageFromProto(msg)
		c.emit(&core.Event{Kind: core.EventRoomMessage, Room: m.Room, Message: m})
	}
}

func (c *Connection) handleDrop(sess Session, cause error) {
	c.mu.Lock()
	if c.session != sess {
		// Disconnect already tore this session down.
		c.mu.Unlock()
		return
	}
	c.session = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.lastErr = cause
	c.mu.Unlock()

	_ = sess.Close()
	c.failPending()
	c.log.Warn().Err(cause).Msg("connection lost")

	if !c.transition(core.StateDisconnected, cause, func(cur core.ConnState) bool {
		return cur != core.StateDisconnected
	}) {
		return
	}
	go c.reconnect()
}

func (c *Connection) reconnect() {
	if !c.transition(core.StateConnecting, nil, func(cur core.ConnState) bool {
		return cur == core.StateDisconnected
	}) {
		return
	}
	if err := c.establish(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("reconnect failed")
	}
}

func (c *Connection) resolve(ref string, r reply) {
	if ref == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[ref]
	delete(c.pending, ref)
	c.mu.Unlock()
	if ok {
		ch <- r
	}
}

func (c *Connection) forget(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

func (c *Connection) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- reply{err: core.ErrNotConnected}
	}
}

func (c *Connection) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// transition moves to next when allow accepts the current state and
// notifies listeners before any later transition can notify.
func (c *Connection) transition(next core.ConnState, err error, allow func(core.ConnState) bool) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !allow(c.state) {
		c.mu.Unlock()
		return false
	}
	c.state = next
	listeners := make([]func(StateChange), 0, len(c.stateListeners))
	for _, fn := range c.stateListeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	change := StateChange{State: next, Err: err}
	for _, fn := range listeners {
		fn(change)
	}
	return true
}

func (c *Connection) emit(ev *core.Event) {
	c.mu.Lock()
	listeners := make([]func(*core.Event), 0, len(c.eventListeners))
	for _, fn := range c.eventListeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrTimeout
	}
	return err
}
