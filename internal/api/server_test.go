package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/mill-arena/internal/challenge"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/pairing"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/presence"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/internal/seek"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

type harness struct {
	srv   *httptest.Server
	hub   *presence.Hub
	tours *tournament.Scheduler
	store *persist.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := persist.NewMemory()
	reg := registry.New()
	hub := presence.NewHub(presence.WithPendingQueue(presence.NewPendingQueue(rdb)))
	mgr := match.NewManager(reg, store, hub, match.WithSnapshotStore(match.NewSnapshotStore(rdb)))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	tours := tournament.NewScheduler(store, hub)
	eng := pairing.New(tours, mgr, reg, store, hub)
	mgr.OnFinish(eng.HandleMatchFinished)

	ch := challenge.New(mgr, reg, hub, challenge.WithPresence(hub))
	mgr.OnFinish(ch.HandleMatchFinished)

	s := New(Deps{
		Hub:        hub,
		Matches:    mgr,
		Seeks:      seek.New(mgr, reg, hub, nil),
		Challenges: ch,
		Pairing:    eng,
		Tours:      tours,
		Registry:   reg,
		Store:      store,
	}, WithCreators("root"))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, hub: hub, tours: tours, store: store}
}

func (h *harness) dial(t *testing.T, player string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?player=" + player
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", player, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	readUntil(t, conn, milldto.EventHello)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd milldto.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		t.Fatalf("write %s: %v", cmd.Type, err)
	}
}

// readUntil skips frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) milldto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var env milldto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type == typ {
			return env
		}
	}
}

func payload[T any](t *testing.T, env milldto.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

func intp(n int) *int { return &n }

func TestSeekMatchAndMove(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, milldto.Command{Type: milldto.CmdSeek, TimeControl: "3+0"})
	readUntil(t, alice, milldto.EventSeekWaiting)
	send(t, bob, milldto.Command{Type: milldto.CmdSeek, TimeControl: "3+0"})

	st := payload[milldto.MatchState](t, readUntil(t, alice, milldto.EventMatchStarted))
	readUntil(t, bob, milldto.EventMatchStarted)
	if st.Clock.WhiteMs != 180000 || st.Clock.BlackMs != 180000 {
		t.Fatalf("expected 180s clocks, got %+v", st.Clock)
	}
	white, black := alice, bob
	if st.White == "bob" {
		white, black = bob, alice
	}

	send(t, white, milldto.Command{Type: milldto.CmdMove, To: intp(0)})
	mv := payload[milldto.MoveMade](t, readUntil(t, black, milldto.EventMoveMade))
	if mv.To != 0 || mv.Side != "white" {
		t.Fatalf("unexpected move %+v", mv)
	}

	send(t, black, milldto.Command{Type: milldto.CmdMove, To: intp(0)})
	e := payload[milldto.ErrorPayload](t, readUntil(t, black, milldto.EventError))
	if e.Code != "illegal_move" || e.Command != milldto.CmdMove {
		t.Fatalf("expected illegal_move, got %+v", e)
	}

	send(t, white, milldto.Command{Type: milldto.CmdMove, To: intp(1)})
	e = payload[milldto.ErrorPayload](t, readUntil(t, white, milldto.EventError))
	if e.Code != "not_your_turn" {
		t.Fatalf("expected not_your_turn, got %+v", e)
	}

	send(t, black, milldto.Command{Type: milldto.CmdResign})
	over := payload[milldto.GameOver](t, readUntil(t, white, milldto.EventGameOver))
	if over.Reason != string(match.ReasonResign) {
		t.Fatalf("expected resignation, got %+v", over)
	}

	resp, err := http.Get(h.srv.URL + "/api/matches/" + st.ID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("closed match should still be readable from redis, status %d", resp.StatusCode)
	}
}

func TestAdminLevels(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	root := h.dial(t, "root")

	send(t, alice, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "ban", Target: "root"}})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "forbidden" {
		t.Fatalf("expected forbidden, got %+v", e)
	}

	send(t, root, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "ban", Target: "alice"}})
	res := payload[milldto.AdminResult](t, readUntil(t, root, milldto.EventAdminResult))
	if !res.OK || res.Action != "ban" {
		t.Fatalf("unexpected result %+v", res)
	}
	send(t, alice, milldto.Command{Type: milldto.CmdSeek, TimeControl: "1+0"})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "banned" {
		t.Fatalf("expected banned, got %+v", e)
	}

	send(t, root, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "promote", Target: "carol", Level: "dragon"}})
	readUntil(t, root, milldto.EventAdminResult)
	p, err := h.store.LoadPlayer(context.Background(), "carol")
	if err != nil || p.AdminLevel != 2 {
		t.Fatalf("carol should be dragon, got %+v %v", p, err)
	}

	send(t, root, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "setelo", Target: "carol", Class: "blitz", Rating: 1200}})
	readUntil(t, root, milldto.EventAdminResult)
	p, _ = h.store.LoadPlayer(context.Background(), "carol")
	if p.Class("blitz").Rating != 1200 || p.Title != "G" {
		t.Fatalf("rating/title not applied: %+v", p.Class("blitz"))
	}
}

func TestAnnouncementReachesEveryone(t *testing.T) {
	h := newHarness(t)
	root := h.dial(t, "root")
	bob := h.dial(t, "bob")

	send(t, root, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "announce", Message: "maintenance at noon"}})
	a := payload[milldto.Announcement](t, readUntil(t, bob, milldto.EventAnnouncement))
	if a.From != "root" || !strings.Contains(a.Message, "maintenance") {
		t.Fatalf("unexpected announcement %+v", a)
	}
}

func TestPendingEventsOnConnect(t *testing.T) {
	h := newHarness(t)
	h.hub.Notify("carol", milldto.EventTournamentResult, milldto.TournamentResult{TournamentID: "t1", Rank: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{PlayerHeader: []string{"carol"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	hello := payload[milldto.Hello](t, readUntil(t, conn, milldto.EventHello))
	if len(hello.Pending) != 1 || hello.Pending[0] != milldto.EventTournamentResult {
		t.Fatalf("hello should list the pending result, got %+v", hello)
	}
	res := payload[milldto.TournamentResult](t, readUntil(t, conn, milldto.EventTournamentResult))
	if res.Rank != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTournamentCommandsAndHTTP(t *testing.T) {
	h := newHarness(t)
	arena, err := h.tours.Spawn("root", time.Hour)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	alice := h.dial(t, "alice")

	send(t, alice, milldto.Command{Type: milldto.CmdJoinTournament, TournamentID: arena.ID})
	view := payload[milldto.TournamentView](t, readUntil(t, alice, milldto.EventTournamentUpdate))
	if view.Players != 1 {
		t.Fatalf("expected one player, got %+v", view)
	}
	send(t, alice, milldto.Command{Type: milldto.CmdRequestPairing, TournamentID: arena.ID})
	send(t, alice, milldto.Command{Type: milldto.CmdPause, TournamentID: arena.ID})
	if ps := payload[milldto.PauseState](t, readUntil(t, alice, milldto.EventPauseState)); !ps.Paused {
		t.Fatalf("expected paused state")
	}
	send(t, alice, milldto.Command{Type: milldto.CmdJoinTournament, TournamentID: "nope"})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "not_found" {
		t.Fatalf("expected not_found, got %+v", e)
	}
	send(t, alice, milldto.Command{Type: milldto.CmdPause, TournamentID: "nope"})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "not_found" {
		t.Fatalf("pause in an unknown arena should fail, got %+v", e)
	}
	send(t, alice, milldto.Command{Type: "dance"})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "unknown_command" {
		t.Fatalf("expected unknown_command, got %+v", e)
	}

	resp, err := http.Get(h.srv.URL + "/api/tournaments")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var views []milldto.TournamentView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil || len(views) != 1 || views[0].ID != arena.ID {
		t.Fatalf("unexpected listing %+v %v", views, err)
	}

	miss, err := http.Get(h.srv.URL + "/api/matches/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	miss.Body.Close()
	if miss.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", miss.StatusCode)
	}
}

func TestChallengeAndRematch(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, milldto.Command{Type: milldto.CmdSendChallenge, Opponent: "zed"})
	if e := payload[milldto.ErrorPayload](t, readUntil(t, alice, milldto.EventError)); e.Code != "offline" {
		t.Fatalf("expected offline, got %+v", e)
	}

	send(t, alice, milldto.Command{Type: milldto.CmdSendChallenge, Opponent: "bob", TimeControl: "2+1", Color: "white"})
	got := payload[milldto.Challenge](t, readUntil(t, bob, milldto.EventChallengeReceived))
	if got.Challenger != "alice" || got.TimeControl != "2+1" || !got.Rated {
		t.Fatalf("unexpected challenge %+v", got)
	}
	send(t, bob, milldto.Command{Type: milldto.CmdAcceptChallenge, ChallengeID: got.ID})
	st := payload[milldto.MatchState](t, readUntil(t, alice, milldto.EventMatchStarted))
	if st.White != "alice" || st.Black != "bob" {
		t.Fatalf("challenger asked for white, got %+v", st)
	}
	readUntil(t, bob, milldto.EventMatchStarted)
	readUntil(t, alice, milldto.EventChallengeAccepted)

	send(t, bob, milldto.Command{Type: milldto.CmdResign})
	readUntil(t, alice, milldto.EventGameOver)

	send(t, bob, milldto.Command{Type: milldto.CmdRequestRematch, MatchID: st.ID})
	offer := payload[milldto.RematchOffer](t, readUntil(t, alice, milldto.EventRematchOffered))
	if offer.From != "bob" || offer.MatchID != st.ID {
		t.Fatalf("unexpected offer %+v", offer)
	}
	send(t, alice, milldto.Command{Type: milldto.CmdAcceptRematch, MatchID: st.ID})
	next := payload[milldto.MatchState](t, readUntil(t, bob, milldto.EventMatchStarted))
	if next.White != "bob" || next.Black != "alice" || next.ID == st.ID {
		t.Fatalf("rematch should swap colors, got %+v", next)
	}
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for id, r := range map[string]int{"alice": 1300, "bob": 1100, "carol": 1500} {
		p := domain.NewPlayer(id, id, time.Now())
		st := p.Class(domain.ClassBlitz)
		st.Rating, st.Games = r, 10
		p.SetClass(domain.ClassBlitz, st)
		if err := h.store.SavePlayer(ctx, p); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	root := h.dial(t, "root")
	send(t, root, milldto.Command{Type: milldto.CmdAdmin, Admin: &milldto.Admin{Action: "ban", Target: "carol"}})
	readUntil(t, root, milldto.EventAdminResult)
	if bans, err := h.store.LoadBans(ctx); err != nil || len(bans) != 1 || bans[0] != "carol" {
		t.Fatalf("ban should be stored, got %v %v", bans, err)
	}

	resp, err := http.Get(h.srv.URL + "/api/leaderboard/blitz?limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var rows []milldto.LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0].Player != "alice" || rows[1].Player != "bob" || rows[0].Rank != 1 || rows[0].Rating != 1300 {
		t.Fatalf("unexpected leaderboard %+v", rows)
	}

	send(t, root, milldto.Command{Type: milldto.CmdLeaderboard, Class: "blitz", Limit: 1})
	rows = payload[[]milldto.LeaderboardEntry](t, readUntil(t, root, milldto.EventLeaderboard))
	if len(rows) != 1 || rows[0].Player != "alice" {
		t.Fatalf("unexpected leaderboard event %+v", rows)
	}

	bad, err := http.Get(h.srv.URL + "/api/leaderboard/rocket")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestMissingPlayerIsRejected(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
