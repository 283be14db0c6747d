package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/eventchat/internal/client"
	"github.com/vovakirdan/eventchat/internal/proto"
)

type chatOptions struct {
	url   string
	user  string
	name  string
	room  string
	token string
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn := client.NewConnection(
				client.WSDialer{URL: opts.url, ReadLimit: int64(cfg.MaxMessageBytes) * 4},
				proto.HelloData{User: opts.user, Name: opts.name, Token: opts.token},
				client.Options{
					RequestTimeout:    cfg.RequestTimeout,
					ReconnectDelay:    cfg.ReconnectDelay,
					ReconnectAttempts: cfg.ReconnectAttempts,
				},
				logger,
			)
			session := client.NewChatSession(conn, opts.room, 0)
			defer session.Close()

			stopAutoJoin := client.AutoJoin(ctx, conn, logger, session)
			defer stopAutoJoin()

			if err := conn.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Disconnect()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connected to %s as %s in room %s\n", opts.url, conn.Identity().ID, opts.room)
			fmt.Fprintln(out, "Type messages and press Enter to send. Ctrl+C to exit.")

			go printUpdates(out, session)
			return sendLines(ctx, cmd.InOrStdin(), session)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&opts.user, "user", "cli-user", "user id")
	flags.StringVar(&opts.name, "name", "", "display name")
	flags.StringVar(&opts.room, "room", "general", "room to join")
	flags.StringVar(&opts.token, "token", "", "JWT issued by the token command")
	return cmd
}

func printUpdates(out io.Writer, session *client.ChatSession) {
	for u := range session.Updates() {
		switch u.Kind {
		case client.UpdateMessage:
			fmt.Fprintf(out, "[%s] %s: %s\n", u.Message.Room, u.Message.From.Name, u.Message.Body)
		case client.UpdateHistory:
			for _, m := range u.Messages {
				fmt.Fprintf(out, "[%s] %s: %s (history)\n", m.Room, m.From.Name, m.Body)
			}
		case client.UpdateState:
			fmt.Fprintf(out, "* room %s: %s\n", session.Room(), u.State)
		case client.UpdateConnection:
			if u.Err != nil {
				fmt.Fprintf(out, "* connection %s: %v\n", u.Conn, u.Err)
				continue
			}
			fmt.Fprintf(out, "* connection %s\n", u.Conn)
		}
	}
}

func sendLines(ctx context.Context, in io.Reader, session *client.ChatSession) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := session.Send(ctx, text); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
		}
	}
}
