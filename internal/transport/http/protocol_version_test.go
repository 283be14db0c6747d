package http

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())

	cctx, closeCtx := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCtx()

	conn := dialWS(t, cctx, ts)
	send(t, cctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})

	outbound := readFrame(t, cctx, conn, proto.OutboundTypeError, "")
	if outbound.Error == nil || outbound.Error.Code != "unsupported_version" || outbound.ID != "h1" {
		t.Fatalf("expected unsupported_version error, got %+v", outbound)
	}
}
