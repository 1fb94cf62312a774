package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/mill-arena/internal/wsclient"
	"github.com/park285/mill-arena/pkg/milldto"
)

func main() {
	wsURL := os.Getenv("MILL_WS_URL")
	player := os.Getenv("MILL_PLAYER")
	seekTC := os.Getenv("MILL_SEEK")

	if wsURL == "" {
		log.Fatal("MILL_WS_URL is required")
	}
	if player == "" {
		player = "millcheck"
	}

	ws := wsclient.New(wsURL, 3)
	ws.SetHeaderProvider(func() map[string]string {
		return map[string]string{"X-Player-ID": player}
	})
	ws.OnStateChange(func(state wsclient.State) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(env milldto.Envelope) {
		fmt.Printf("event type=%s payload=%s\n", env.Type, env.Payload)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	if err := ws.Send(context.Background(), milldto.Command{Type: milldto.CmdListTournaments}); err != nil {
		log.Printf("list_tournaments error: %v", err)
	}
	if seekTC != "" {
		if err := ws.Send(context.Background(), milldto.Command{Type: milldto.CmdSeek, TimeControl: seekTC, Friendly: true}); err != nil {
			log.Printf("seek error: %v", err)
		}
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	if seekTC != "" {
		_ = ws.Send(context.Background(), milldto.Command{Type: milldto.CmdCancelSeek})
	}
	_ = ws.Close(context.Background())
}
