// Package challenge handles direct game offers between two players and
// rematches after a finished casual game.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/clock"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/pkg/milldto"
)

// Starter opens a match session.
type Starter interface {
	Start(ctx context.Context, p match.Params) (*match.Session, error)
}

type Notifier interface {
	Notify(player, event string, payload any)
}

// Presence reports whether a player has a live connection.
type Presence interface {
	Online(player string) bool
}

type Manager struct {
	starter  Starter
	reg      *registry.Registry
	notifier Notifier
	online   Presence
	msgs     *msgcat.Catalog
	clk      clockwork.Clock

	ttl           time.Duration
	rematchWindow time.Duration

	mu sync.Mutex
	// target -> pending challenges, oldest first
	byTarget map[string][]*Challenge
	byID     map[string]*Challenge
	timers   map[string]clockwork.Timer
	finished map[string]*rematch
	seq      uint64
}

type Option func(*Manager)

func WithClock(clk clockwork.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clk = clk
		}
	}
}

func WithCatalog(c *msgcat.Catalog) Option { return func(m *Manager) { m.msgs = c } }
func WithPresence(p Presence) Option       { return func(m *Manager) { m.online = p } }

func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithRematchWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.rematchWindow = d
		}
	}
}

func New(starter Starter, reg *registry.Registry, notifier Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	m := &Manager{
		starter:       starter,
		reg:           reg,
		notifier:      notifier,
		clk:           clockwork.NewRealClock(),
		ttl:           DefaultTTL,
		rematchWindow: DefaultRematchWindow,
		byTarget:      make(map[string][]*Challenge),
		byID:          make(map[string]*Challenge),
		timers:        make(map[string]clockwork.Timer),
		finished:      make(map[string]*rematch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create offers target a game. A target holds at most one pending challenge.
func (m *Manager) Create(ctx context.Context, challenger, target, timeControl string, rated bool, color ColorChoice) (*Challenge, error) {
	challenger, target = strings.TrimSpace(challenger), strings.TrimSpace(target)
	if challenger == "" || target == "" {
		return nil, ErrInvalidArgs
	}
	if challenger == target {
		return nil, ErrSelfChallenge
	}
	if strings.TrimSpace(timeControl) == "" {
		timeControl = DefaultTimeControl
	}
	tc, err := clock.ParseTimeControl(timeControl)
	if err != nil {
		return nil, err
	}
	if err := m.admissible(challenger, target); err != nil {
		return nil, err
	}
	if m.online != nil && !m.online.Online(target) {
		return nil, ErrOffline
	}
	if color == "" {
		color = ColorRandom
	}

	m.mu.Lock()
	list := m.byTarget[target]
	if idx := latestPendingIndex(list); idx >= 0 {
		m.mu.Unlock()
		return nil, ErrAlreadyPending
	}
	now := m.clk.Now()
	ch := &Challenge{
		ID:          m.nextID(now),
		Challenger:  challenger,
		Target:      target,
		TimeControl: tc.String(),
		Rated:       rated,
		Color:       color,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
		Status:      StatusPending,
	}
	m.byTarget[target] = append(list, ch)
	m.byID[ch.ID] = ch
	id := ch.ID
	m.timers[id] = m.clk.AfterFunc(m.ttl, func() { m.expire(id) })
	out := *ch
	m.mu.Unlock()

	text := m.msgs.Text("challenge.received", map[string]any{
		"Challenger": challenger, "TimeControl": out.TimeControl,
	}, challenger+" challenges you to a "+out.TimeControl+" game")
	m.notifier.Notify(target, milldto.EventChallengeReceived, out.View(text))
	m.notifier.Notify(challenger, milldto.EventChallengeSent, out.View(""))
	obslog.L().Info("challenge_created",
		zap.String("challenge_id", out.ID),
		zap.String("challenger", challenger),
		zap.String("target", target),
		zap.String("time_control", out.TimeControl),
		zap.Bool("rated", rated),
	)
	return &out, nil
}

// Accept starts the game for the latest pending challenge of target, or the
// one named by id. An admission refusal leaves the challenge pending; a failed
// start cancels it.
func (m *Manager) Accept(ctx context.Context, target, id string) (*match.Session, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrInvalidArgs
	}

	m.mu.Lock()
	ch, err := m.pendingLocked(target, id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.admissible(ch.Challenger, ch.Target); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.resolveLocked(ch, StatusAccepted)
	p := match.Params{
		White:       ch.Challenger,
		Black:       ch.Target,
		TimeControl: ch.TimeControl,
		Rated:       ch.Rated,
	}
	switch ch.Color {
	case ColorBlack:
		p.White, p.Black = p.Black, p.White
	case ColorRandom:
		p.RandomColors = true
	}
	out := *ch
	m.mu.Unlock()

	s, err := m.starter.Start(ctx, p)
	if err != nil {
		if errors.Is(err, match.ErrPlayerBusy) {
			err = ErrInGame
		}
		m.mu.Lock()
		ch.Status = StatusCanceled
		out = *ch
		m.mu.Unlock()
		m.notifier.Notify(out.Challenger, milldto.EventChallengeDeclined, out.View(""))
		obslog.L().Warn("challenge_start_failed", zap.String("challenge_id", out.ID), zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	ch.MatchID = s.ID()
	out = *ch
	m.mu.Unlock()

	text := m.msgs.Text("challenge.accepted", map[string]any{"Target": out.Target}, out.Target+" accepted your challenge")
	m.notifier.Notify(out.Challenger, milldto.EventChallengeAccepted, out.View(text))
	m.notifier.Notify(out.Target, milldto.EventChallengeAccepted, out.View(""))
	obslog.L().Info("challenge_accepted", zap.String("challenge_id", out.ID), zap.String("match_id", out.MatchID))
	return s, nil
}

func (m *Manager) Decline(target, id string) (*Challenge, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrInvalidArgs
	}
	m.mu.Lock()
	ch, err := m.pendingLocked(target, id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.resolveLocked(ch, StatusDeclined)
	out := *ch
	m.mu.Unlock()

	text := m.msgs.Text("challenge.declined", map[string]any{"Target": out.Target}, out.Target+" declined your challenge")
	m.notifier.Notify(out.Challenger, milldto.EventChallengeDeclined, out.View(text))
	return &out, nil
}

// Incoming lists the pending challenges addressed to target, oldest first.
func (m *Manager) Incoming(target string) []Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Challenge
	for _, ch := range m.byTarget[target] {
		if ch.Status == StatusPending {
			out = append(out, *ch)
		}
	}
	return out
}

func (m *Manager) expire(id string) {
	m.mu.Lock()
	ch, ok := m.byID[id]
	if !ok || ch.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	m.resolveLocked(ch, StatusExpired)
	out := *ch
	m.mu.Unlock()

	text := m.msgs.Text("challenge.expired", map[string]any{"Target": out.Target}, "Your challenge to "+out.Target+" expired")
	m.notifier.Notify(out.Challenger, milldto.EventChallengeExpired, out.View(text))
	m.notifier.Notify(out.Target, milldto.EventChallengeExpired, out.View(""))
	obslog.L().Info("challenge_expired", zap.String("challenge_id", out.ID))
}

func (m *Manager) pendingLocked(target, id string) (*Challenge, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		list := m.byTarget[target]
		idx := latestPendingIndex(list)
		if idx < 0 {
			return nil, ErrNoPending
		}
		return list[idx], nil
	}
	ch, ok := m.byID[id]
	if !ok || ch.Status != StatusPending {
		return nil, ErrNoPending
	}
	if ch.Target != target {
		return nil, ErrNotTarget
	}
	return ch, nil
}

// resolveLocked closes ch and drops it from the pending indexes.
func (m *Manager) resolveLocked(ch *Challenge, st Status) {
	ch.Status = st
	if t, ok := m.timers[ch.ID]; ok {
		t.Stop()
		delete(m.timers, ch.ID)
	}
	delete(m.byID, ch.ID)
	list := m.byTarget[ch.Target]
	kept := list[:0]
	for _, c := range list {
		if c != ch {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(m.byTarget, ch.Target)
	} else {
		m.byTarget[ch.Target] = kept
	}
}

func (m *Manager) admissible(players ...string) error {
	for _, p := range players {
		switch {
		case m.reg.IsBanned(p):
			return ErrBanned
		case m.reg.IsPaused(p):
			return ErrPaused
		case m.reg.InGame(p):
			return ErrInGame
		}
	}
	return nil
}

func latestPendingIndex(list []*Challenge) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Status == StatusPending {
			return i
		}
	}
	return -1
}

func (m *Manager) nextID(now time.Time) string {
	n := atomic.AddUint64(&m.seq, 1)
	return fmt.Sprintf("ch-%d-%d", now.UnixNano(), n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) {}
