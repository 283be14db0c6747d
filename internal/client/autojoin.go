package client

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventchat/internal/core"
)

// AutoJoin joins every session whenever conn becomes connected, including
// after a reconnect. It returns a function that stops the policy.
func AutoJoin(ctx context.Context, conn *Connection, logger *zerolog.Logger, sessions ...*ChatSession) func() {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	joinAll := func() {
		for _, s := range sessions {
			go func(s *ChatSession) {
				if err := s.Join(ctx); err != nil {
					logger.Warn().Err(err).Str("room", s.Room()).Msg("auto-join failed")
				}
			}(s)
		}
	}

	stop := conn.Subscribe(func(change StateChange) {
		if change.State == core.StateConnected {
			joinAll()
		}
	})
	if conn.State() == core.StateConnected {
		joinAll()
	}
	return stop
}
