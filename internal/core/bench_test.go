package core

import (
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	hub := NewHub(Options{OutboxSize: 1024}, nil)

	senderID := Identity{ID: "sender"}
	sender := hub.Connect("sender")
	if _, err := hub.Registry().Join("bench", senderID, sender, ""); err != nil {
		b.Fatalf("join: %v", err)
	}

	conns := make([]*Conn, 0, recipients)
	for i := range recipients {
		c := hub.Connect(fmt.Sprintf("c%d", i))
		if _, err := hub.Registry().Join("bench", Identity{ID: fmt.Sprintf("u%d", i)}, c, ""); err != nil {
			b.Fatalf("join: %v", err)
		}
		conns = append(conns, c)
	}

	// Drain events for everyone but the first recipient to avoid backpressure.
	target := conns[0]
	for _, c := range append(conns[1:], sender) {
		go func(cl *Conn) {
			for {
				select {
				case <-cl.Events():
				case <-cl.Done():
					return
				}
			}
		}(c)
	}
	b.Cleanup(func() {
		for _, c := range conns {
			c.Close()
		}
		sender.Close()
	})

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.Broadcaster().Publish("bench", senderID, sender, "payload", ""); err != nil {
			b.Fatalf("publish: %v", err)
		}
		<-target.Events()
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
