package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/eventchat/internal/client"
	"github.com/vovakirdan/eventchat/internal/proto"
)

func newSmokeCmd(root *rootOptions) *cobra.Command {
	var (
		url     string
		user    string
		room    string
		text    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Join a room, publish once and wait for the broadcast",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn := client.NewConnection(client.WSDialer{URL: url}, proto.HelloData{User: user},
				client.Options{RequestTimeout: cfg.RequestTimeout, ReconnectAttempts: 1}, logger)
			if err := conn.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Disconnect()

			session := client.NewChatSession(conn, room, 0)
			defer session.Close()
			if err := session.Join(ctx); err != nil {
				return fmt.Errorf("join: %w", err)
			}
			sent, err := session.Send(ctx, text)
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			out := cmd.OutOrStdout()
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				for _, m := range session.Messages() {
					if m.ID != sent.ID {
						continue
					}
					fmt.Fprintf(out, "message: room=%s user=%s id=%d body=%q ts=%s\n",
						m.Room, m.From.ID, m.ID, m.Body, m.CreatedAt.Format(time.RFC3339Nano))
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("waiting for broadcast: %w", ctx.Err())
				case <-session.Updates():
				case <-ticker.C:
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&url, "url", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&user, "user", "tester", "user id to announce with hello")
	flags.StringVar(&room, "room", "general", "room name")
	flags.StringVar(&text, "text", "hello from smoke test", "message body to publish")
	flags.DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	return cmd
}
