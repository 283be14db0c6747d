package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventchat/internal/auth"
	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

// envelopeOverhead leaves room for the JSON envelope around a message body.
const envelopeOverhead = 1 << 10

// WSHandler upgrades HTTP connections and bridges them to core.Conn.
type WSHandler struct {
	hub       *core.Hub
	jwt       *auth.JWTConfig
	required  bool
	readLimit int64
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	h := &WSHandler{
		hub:       hub,
		required:  cfg.JWTRequired,
		readLimit: int64(cfg.MaxMessageBytes + envelopeOverhead),
		log:       logger,
	}
	if cfg.JWTSecret != "" {
		h.jwt = &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}
	}
	return h
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(h.readLimit)

	client := h.hub.Connect(uuid.NewString())
	defer client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if inbound.Type == proto.InboundTypeHello {
			if protoErr := h.handleHello(client, inbound); protoErr != nil {
				if err := writeError(ctx, conn, inbound.ID, protoErr); err != nil {
					return err
				}
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := writeError(ctx, conn, inbound.ID, protoErr); err != nil {
				return err
			}
			continue
		}
		h.hub.Handle(client, cmd)
	}
}

func (h *WSHandler) handleHello(client *core.Conn, inbound proto.Inbound) *proto.Error {
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed hello"}
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}

	identity := core.Identity{ID: hello.User, Name: hello.Name}
	switch {
	case hello.Token != "" && h.jwt != nil:
		claims, err := auth.ValidateToken(h.jwt, hello.Token)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("invalid hello token")
			return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
		}
		identity = claims.Identity()
	case h.required:
		return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token required"}
	}
	if identity.Name == "" {
		identity.Name = identity.ID
	}

	// Identify replies through the connection's event stream.
	if err := h.hub.Identify(client, identity, inbound.ID); err == nil {
		h.log.Info().Str("conn_id", client.ID).Str("user", identity.ID).Msg("connection identified")
	}
	return nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		select {
		case event := <-client.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, id string, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		ID:    id,
		Error: protoErr,
	})
}
