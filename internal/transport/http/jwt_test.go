package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func makeJWT(secret, aud, iss, sub, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}
	if name != "" {
		claims["name"] = name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func jwtConfig(secret string) config.Config {
	cfg := config.Default()
	cfg.JWTSecret = secret
	cfg.JWTIssuer = ""
	cfg.JWTRequired = true
	return cfg
}

func TestWebSocketJWTSuccess(t *testing.T) {
	secret := "testsecret"
	ts, _ := startTestServer(t, jwtConfig(secret))

	token, err := makeJWT(secret, "", "", "user1", "Alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, ts)
	// The token's subject wins over the claimed user.
	send(t, ctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{User: "mallory", Token: token})

	ack := readFrame(t, ctx, conn, proto.OutboundTypeAck, proto.EventNameHello)
	var hello proto.EventHello
	if err := json.Unmarshal(ack.Data, &hello); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	if hello.User.ID != "user1" || hello.User.Name != "Alice" {
		t.Fatalf("unexpected identity: %+v", hello.User)
	}

	send(t, ctx, conn, proto.InboundTypeJoin, "j1", proto.JoinData{Room: "general"})
	readFrame(t, ctx, conn, proto.OutboundTypeAck, proto.EventNameHistory)
}

func TestWebSocketJWTInvalid(t *testing.T) {
	ts, _ := startTestServer(t, jwtConfig("testsecret"))

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, ts)
	send(t, ctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{Token: "invalid"})

	outbound := readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if outbound.Error == nil || outbound.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized error, got %+v", outbound)
	}
}

func TestWebSocketJWTRequired(t *testing.T) {
	ts, _ := startTestServer(t, jwtConfig("testsecret"))

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, ts)
	send(t, ctx, conn, proto.InboundTypeHello, "h1", proto.HelloData{User: "alice"})

	outbound := readFrame(t, ctx, conn, proto.OutboundTypeError, "")
	if outbound.Error == nil || outbound.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized error, got %+v", outbound)
	}
}
