// Package match runs live match sessions: board, clock, first-move windows,
// finishing and the rating/persistence work that follows.
package match

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/clock"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/rating"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/pkg/milldto"
)

// FinishHook runs after a session closed and ratings were applied.
type FinishHook func(ctx context.Context, s domain.MatchSummary)

type Manager struct {
	reg      *registry.Registry
	store    persist.Store
	notifier Notifier
	snaps    *SnapshotStore
	msgs     *msgcat.Catalog
	clk      clockwork.Clock

	grace     time.Duration
	poll      time.Duration
	emitEvery time.Duration
	ioTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	hookMu sync.RWMutex
	hooks  []FinishHook

	wg sync.WaitGroup
}

type Option func(*Manager)

func WithClock(clk clockwork.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clk = clk
		}
	}
}

func WithSnapshotStore(s *SnapshotStore) Option { return func(m *Manager) { m.snaps = s } }
func WithCatalog(c *msgcat.Catalog) Option      { return func(m *Manager) { m.msgs = c } }

func WithFirstMoveGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.poll = d
		}
	}
}

func NewManager(reg *registry.Registry, store persist.Store, notifier Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if store == nil {
		store = persist.NewMemory()
	}
	m := &Manager{
		reg:       reg,
		store:     store,
		notifier:  notifier,
		clk:       clockwork.NewRealClock(),
		grace:     DefaultFirstMoveGrace,
		poll:      DefaultPollInterval,
		emitEvery: DefaultEmitInterval,
		ioTimeout: 5 * time.Second,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnFinish registers a hook called for every closed session.
func (m *Manager) OnFinish(h FinishHook) {
	m.hookMu.Lock()
	m.hooks = append(m.hooks, h)
	m.hookMu.Unlock()
}

// Start reserves both players and opens a session awaiting white's first move.
func (m *Manager) Start(ctx context.Context, p Params) (*Session, error) {
	white, black := strings.TrimSpace(p.White), strings.TrimSpace(p.Black)
	if white == "" || black == "" {
		return nil, ErrNotParticipant
	}
	if white == black {
		return nil, ErrSamePlayer
	}
	tc, err := clock.ParseTimeControl(p.TimeControl)
	if err != nil {
		return nil, err
	}
	if p.RandomColors && coinFlip() {
		white, black = black, white
	}

	id := uuid.NewString()
	if !m.reg.TryReserve(id, white, black) {
		return nil, ErrPlayerBusy
	}

	now := m.clk.Now()
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           id,
		white:        white,
		black:        black,
		timeControl:  tc.String(),
		rated:        p.Rated,
		tournamentID: p.TournamentID,
		class:        rating.ClassFor(tc.String()),
		startedAt:    now,
		clk:          m.clk,
		grace:        m.grace,
		ctx:          sctx,
		cancel:       cancel,
		board:        board.New(),
		clock:        clock.New(m.clk, tc.Initial, tc.Increment),
		status:       StatusAwaitingFirstMove,
	}
	topic := Topic(id)
	s.hooks = sessionHooks{
		emit:     func(event string, payload any) { m.notifier.Broadcast(topic, event, payload) },
		changed:  m.persistSnapshot,
		finished: m.finalize,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.notifier.Subscribe(topic, white)
	m.notifier.Subscribe(topic, black)

	s.mu.Lock()
	s.armWatcherLocked(board.White)
	state := s.snapshotLocked()
	s.mu.Unlock()

	ticker := m.clk.NewTicker(m.poll)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run(ticker, m.emitEvery)
	}()

	m.saveSnapshot(ctx, state)
	m.notifier.Broadcast(topic, milldto.EventMatchStarted, state)
	obslog.L().Info("match_start",
		zap.String("match_id", id),
		zap.String("white", white),
		zap.String("black", black),
		zap.String("time_control", s.timeControl),
		zap.Bool("rated", s.rated),
		zap.String("tournament_id", s.tournamentID),
	)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ActiveFor returns the live session player is in.
func (m *Manager) ActiveFor(player string) (*Session, bool) {
	id, ok := m.reg.MatchOf(player)
	if !ok {
		return nil, false
	}
	return m.Get(id)
}

// StoredState reads a snapshot from Redis, covering matches hosted elsewhere
// or already finished.
func (m *Manager) StoredState(ctx context.Context, id string) (*milldto.MatchState, error) {
	if s, ok := m.Get(id); ok {
		st := s.Snapshot()
		return &st, nil
	}
	if m.snaps == nil {
		return nil, ErrNotFound
	}
	return m.snaps.Load(ctx, id)
}

// Cancel aborts a live match without rating it.
func (m *Manager) Cancel(id string, reason Reason) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !s.Cancel(reason) {
		return ErrMatchClosed
	}
	return nil
}

// Live returns the number of open sessions.
func (m *Manager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown cancels every live session and waits for pollers to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()
	for _, s := range live {
		s.Cancel(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) persistSnapshot(s *Session) {
	if m.snaps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.ioTimeout)
	defer cancel()
	m.saveSnapshot(ctx, s.Snapshot())
}

func (m *Manager) saveSnapshot(ctx context.Context, st milldto.MatchState) {
	if m.snaps == nil {
		return
	}
	if err := m.snaps.Save(ctx, st); err != nil {
		obslog.L().Warn("match_snapshot_save_failed", zap.String("match_id", st.ID), zap.Error(err))
	}
}

// finalize runs once per session, outside the session lock.
func (m *Manager) finalize(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.ioTimeout)
	defer cancel()

	sum := s.Summary()
	res := s.Result()
	topic := Topic(s.id)

	over := milldto.GameOver{
		MatchID:      s.id,
		Winner:       string(res.Winner),
		Reason:       string(res.Reason),
		Rated:        s.rated,
		TournamentID: s.tournamentID,
	}

	if res.Winner != board.ResultNone {
		change, err := m.applyRatings(ctx, s, res, sum.EndedAt)
		if err != nil {
			obslog.L().Warn("rating_apply_failed", zap.String("match_id", s.id), zap.Error(err))
		}
		sum.WhiteDelta, sum.BlackDelta = change.WhiteDelta, change.BlackDelta
		sum.WhiteRating, sum.BlackRating = change.WhiteRating, change.BlackRating
		over.WhiteDelta, over.BlackDelta = change.WhiteDelta, change.BlackDelta
		over.WhiteRating, over.BlackRating = change.WhiteRating, change.BlackRating

		if err := m.store.SaveFinishedMatch(ctx, &sum); err != nil {
			obslog.L().Warn("match_save_failed", zap.String("match_id", s.id), zap.Error(err))
		}
	}
	over.Text = m.gameOverText(s, res)

	m.notifier.Broadcast(topic, milldto.EventGameOver, over)
	if res.Winner != board.ResultNone {
		for _, c := range []board.Color{board.White, board.Black} {
			delta, rt := over.WhiteDelta, over.WhiteRating
			if c == board.Black {
				delta, rt = over.BlackDelta, over.BlackRating
			}
			m.notifier.Notify(s.playerOf(c), milldto.EventRatingUpdate, map[string]any{
				"match_id": s.id,
				"class":    string(sum.Class),
				"rating":   rt,
				"delta":    delta,
				"rated":    s.rated,
			})
		}
	}
	m.saveSnapshot(ctx, s.Snapshot())

	m.reg.Release(s.id, s.white, s.black)
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	m.notifier.Unsubscribe(topic, s.white)
	m.notifier.Unsubscribe(topic, s.black)

	m.hookMu.RLock()
	hooks := append([]FinishHook(nil), m.hooks...)
	m.hookMu.RUnlock()
	for _, h := range hooks {
		h(ctx, sum)
	}
}

// applyRatings updates both players inside one store update so a concurrent
// write to either record cannot be lost.
func (m *Manager) applyRatings(ctx context.Context, s *Session, res Result, at time.Time) (rating.Change, error) {
	var change rating.Change
	err := m.store.UpdatePlayers(ctx, []string{s.white, s.black}, func(ps []*domain.PlayerRecord) error {
		var err error
		change, err = rating.Apply(rating.Game{
			MatchID: s.id,
			White:   ps[0],
			Black:   ps[1],
			Winner:  res.Winner,
			Class:   s.class,
			Rated:   s.rated,
			At:      at,
		})
		return err
	})
	if err != nil {
		return rating.Change{}, err
	}
	obslog.L().Info("rating_applied",
		zap.String("match_id", s.id),
		zap.String("class", string(s.class)),
		zap.Int("white_delta", change.WhiteDelta),
		zap.Int("black_delta", change.BlackDelta),
	)
	return change, nil
}

func (m *Manager) gameOverText(s *Session, res Result) string {
	reason := m.msgs.Text("match.reason."+string(res.Reason), nil, string(res.Reason))
	switch res.Winner {
	case board.ResultNone:
		return reason
	case board.ResultDraw:
		return m.msgs.Text("match.game_over.draw", map[string]any{"Reason": reason}, "draw")
	default:
		winner := s.white
		if res.Winner == board.ResultBlack {
			winner = s.black
		}
		return m.msgs.Text("match.game_over.win", map[string]any{"Winner": winner, "Reason": reason}, winner+" wins")
	}
}

// coinFlip uses crypto/rand; a failure keeps the requested colors.
func coinFlip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	return err == nil && n.Int64() == 1
}
