// Package api is the player-facing gateway: one websocket per player carrying
// commands in and events out, plus a few read-only HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/mill-arena/internal/challenge"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/pairing"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/presence"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/internal/seek"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 16 << 10
	// PlayerHeader carries the authenticated player id set by the fronting proxy.
	PlayerHeader = "X-Player-ID"
)

// Deps are the components the gateway drives.
type Deps struct {
	Hub        *presence.Hub
	Matches    *match.Manager
	Seeks      *seek.Matchmaker
	Challenges *challenge.Manager
	Pairing    *pairing.Engine
	Tours      *tournament.Scheduler
	Registry   *registry.Registry
	Store      persist.Store
	Msgs       *msgcat.Catalog
}

type Server struct {
	hub        *presence.Hub
	matches    *match.Manager
	seeks      *seek.Matchmaker
	challenges *challenge.Manager
	pairing    *pairing.Engine
	tours      *tournament.Scheduler
	reg        *registry.Registry
	store      persist.Store
	msgs       *msgcat.Catalog

	origins  []string
	creators map[string]bool
	identify func(r *http.Request) (string, bool)
}

type Option func(*Server)

// WithOrigins sets the accepted websocket origin patterns.
func WithOrigins(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithCreators grants creator level to the given player ids.
func WithCreators(ids ...string) Option {
	return func(s *Server) {
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				s.creators[id] = true
			}
		}
	}
}

// WithIdentify replaces how a request is mapped to a player id.
func WithIdentify(fn func(r *http.Request) (string, bool)) Option {
	return func(s *Server) { s.identify = fn }
}

func New(d Deps, opts ...Option) *Server {
	s := &Server{
		hub:        d.Hub,
		matches:    d.Matches,
		seeks:      d.Seeks,
		challenges: d.Challenges,
		pairing:    d.Pairing,
		tours:      d.Tours,
		reg:        d.Registry,
		store:      d.Store,
		msgs:       d.Msgs,
		creators:   make(map[string]bool),
		identify:   playerFromRequest,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// playerFromRequest trusts the proxy header, then the query string.
func playerFromRequest(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(PlayerHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("player"))
	}
	return id, id != ""
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/tournaments", s.handleTournaments)
	mux.HandleFunc("GET /api/matches/{id}", s.handleMatch)
	mux.HandleFunc("GET /api/leaderboard/{class}", s.handleLeaderboard)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "live_matches": s.matches.Live()})
}

func (s *Server) handleTournaments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tournamentViews())
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	st, err := s.matches.StoredState(r.Context(), r.PathValue("id"))
	if errors.Is(err, match.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, milldto.ErrorPayload{Code: "not_found", Message: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, milldto.ErrorPayload{Code: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	player, ok := s.identify(r)
	if !ok {
		http.Error(w, "missing player", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("player", player), zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)
	s.serve(r.Context(), conn, player)
}

// serve owns one connection. The peer's channel is the only writer once
// the greeting is out.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, player string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peer, queued := s.hub.Attach(ctx, player)
	if err := s.greet(ctx, conn, player, queued); err != nil {
		s.hub.Detach(peer)
		_ = conn.Close(websocket.StatusInternalError, "greeting failed")
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for raw := range peer.Out() {
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, raw)
			wcancel()
			if err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		var cmd milldto.Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				obslog.L().Debug("ws_read_failed", zap.String("player", player), zap.Error(err))
			}
			break
		}
		if err := s.Dispatch(ctx, player, cmd); err != nil {
			obslog.L().Debug("command_failed", zap.String("player", player), zap.String("command", cmd.Type), zap.Error(err))
			s.hub.Notify(player, milldto.EventError, milldto.ErrorPayload{
				Command: cmd.Type,
				Code:    codeFor(err),
				Message: err.Error(),
			})
		}
	}

	s.hub.Detach(peer)
	cancel()
	<-done
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// greet writes hello, the queued events and the live match state.
func (s *Server) greet(ctx context.Context, conn *websocket.Conn, player string, queued [][]byte) error {
	hello := milldto.Hello{Player: player}
	var state *milldto.MatchState
	if sess, ok := s.matches.ActiveFor(player); ok {
		hello.MatchID = sess.ID()
		s.hub.Subscribe(match.Topic(sess.ID()), player)
		st := sess.Snapshot()
		state = &st
	}
	for _, raw := range queued {
		var env milldto.Envelope
		if json.Unmarshal(raw, &env) == nil {
			hello.Pending = append(hello.Pending, env.Type)
		}
	}
	s.hub.Subscribe(tournament.TopicAll, player)

	frames := make([][]byte, 0, len(queued)+2)
	if raw, ok := presence.Frame(milldto.EventHello, hello); ok {
		frames = append(frames, raw)
	}
	frames = append(frames, queued...)
	if state != nil {
		if raw, ok := presence.Frame(milldto.EventMatchState, state); ok {
			frames = append(frames, raw)
		}
	}
	for _, raw := range frames {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(wctx, websocket.MessageText, raw)
		cancel()
		if err != nil {
			return err
		}
	}
	obslog.L().Info("player_connected", zap.String("player", player), zap.String("match_id", hello.MatchID), zap.Int("pending", len(queued)))
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
