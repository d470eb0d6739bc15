package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/typing-arena/internal/arenaclient"
)

func main() {
	code := flag.String("code", "", "competition join code")
	name := flag.String("name", "probe", "participant name to join as")
	watch := flag.Duration("watch", 10*time.Second, "how long to print events")
	flag.Parse()

	baseURL := os.Getenv("ARENA_API_URL")
	wsURL := os.Getenv("ARENA_WS_URL")
	if baseURL == "" {
		log.Fatal("ARENA_API_URL is required")
	}
	if *code == "" {
		log.Fatal("-code is required")
	}

	client := arenaclient.NewClient(baseURL, arenaclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := client.Competition(ctx, *code)
	if err != nil {
		log.Fatalf("competition %s: %v", *code, err)
	}
	log.Printf("competition ok: id=%s name=%q status=%s rounds=%d/%d participants=%d",
		summary.ID, summary.Name, summary.Status, summary.RoundsCompleted, summary.RoundCount, len(summary.Participants))

	if wsURL == "" {
		log.Println("ARENA_WS_URL not set; skipping realtime check")
		return
	}

	conn := arenaclient.NewConn(wsURL, 5)
	conn.OnStateChange(func(state arenaclient.State) {
		log.Printf("WS state: %s", state)
	})
	conn.OnMessage(func(f arenaclient.Frame) {
		fmt.Printf("event %s %s\n", f.Type, f.Data)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := conn.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	if err := conn.Join(cctx, *code, *name); err != nil {
		log.Printf("join error: %v", err)
	}

	// Observe for a short window
	t := time.NewTimer(*watch)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = conn.Close(closeCtx)
}
