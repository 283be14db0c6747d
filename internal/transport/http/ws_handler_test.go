package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func startTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *core.Hub) {
	t.Helper()

	hub := core.NewHub(core.Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	disabledLogger := zerolog.New(nil)
	server := NewServer(hub, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, hub
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readFrame reads frames until one matches typ and event.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, event string) proto.RawOutbound {
	t.Helper()

	for {
		var outbound proto.RawOutbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("read outbound waiting for %s/%s: %v", typ, event, err)
		}
		if outbound.Type == typ && (event == "" || outbound.Event == event) {
			return outbound
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketJoinPublishAndHistory(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	connA := dialWS(t, ctx, ts)
	connB := dialWS(t, ctx, ts)

	send(t, ctx, connA, proto.InboundTypeHello, "h1", proto.HelloData{User: "a", Name: "alice"})
	hello := readFrame(t, ctx, connA, proto.OutboundTypeAck, proto.EventNameHello)
	if hello.ID != "h1" {
		t.Fatalf("unexpected hello ack: %+v", hello)
	}

	send(t, ctx, connA, proto.InboundTypeJoin, "j1", proto.JoinData{Room: "R1"})
	joinAck := readFrame(t, ctx, connA, proto.OutboundTypeAck, proto.EventNameHistory)
	var history proto.EventHistory
	if err := json.Unmarshal(joinAck.Data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if joinAck.ID != "j1" || !history.Accepted || len(history.Messages) != 0 {
		t.Fatalf("unexpected join ack: %+v", joinAck)
	}

	send(t, ctx, connA, proto.InboundTypePublish, "p1", proto.PublishData{Room: "R1", Body: "hello"})
	echo := readFrame(t, ctx, connA, proto.OutboundTypeEvent, proto.EventNameMessage)
	var msg proto.EventMessage
	if err := json.Unmarshal(echo.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Body != "hello" || msg.User.ID != "a" || msg.ID != 1 || msg.TS == 0 {
		t.Fatalf("unexpected echo: %+v", msg)
	}
	pubAck := readFrame(t, ctx, connA, proto.OutboundTypeAck, proto.EventNameMessage)
	if pubAck.ID != "p1" {
		t.Fatalf("unexpected publish ack: %+v", pubAck)
	}

	send(t, ctx, connB, proto.InboundTypeHello, "h2", proto.HelloData{User: "b", Name: "bob"})
	readFrame(t, ctx, connB, proto.OutboundTypeAck, proto.EventNameHello)
	send(t, ctx, connB, proto.InboundTypeJoin, "j2", proto.JoinData{Room: "R1"})
	joinAck = readFrame(t, ctx, connB, proto.OutboundTypeAck, proto.EventNameHistory)
	if err := json.Unmarshal(joinAck.Data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Messages) != 1 || history.Messages[0].Body != "hello" {
		t.Fatalf("unexpected history for late joiner: %+v", history)
	}
}

func TestWebSocketPublishWithoutJoin(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, ts)
	send(t, ctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{User: "a"})
	readFrame(t, ctx, conn, proto.OutboundTypeAck, proto.EventNameHello)

	send(t, ctx, conn, proto.InboundTypePublish, "p1", proto.PublishData{Room: "R1", Body: "hi"})
	errFrame := readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if errFrame.ID != "p1" || errFrame.Error == nil || errFrame.Error.Code != core.ErrCodeNotAMember {
		t.Fatalf("expected not_a_member, got %+v", errFrame)
	}

	send(t, ctx, conn, "bogus", "x1", struct{}{})
	errFrame = readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if errFrame.ID != "x1" || errFrame.Error.Code != "invalid_message" {
		t.Fatalf("expected invalid_message, got %+v", errFrame)
	}
}

func TestWebSocketCloseDropsMembership(t *testing.T) {
	ts, hub := startTestServer(t, config.Default())

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, ts)
	send(t, ctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{User: "a"})
	send(t, ctx, conn, proto.InboundTypeJoin, "j1", proto.JoinData{Room: "R1"})
	readFrame(t, ctx, conn, proto.OutboundTypeAck, proto.EventNameHistory)

	if members := hub.Registry().Members("R1"); len(members) != 1 {
		t.Fatalf("expected one member, got %d", len(members))
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Registry().Members("R1")) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("membership not cleared after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
