// Package seek pairs casual players who ask for a game with the same time control.
package seek

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/clock"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/pkg/milldto"
)

var (
	ErrInGame = staticErr("player already has an open match")
	ErrBanned = staticErr("player is banned")
	ErrPaused = staticErr("player is paused")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Starter opens matches. *match.Manager satisfies it.
type Starter interface {
	Start(ctx context.Context, p match.Params) (*match.Session, error)
}

// Ticket is one outstanding seek.
type Ticket struct {
	ID          string    `json:"id"`
	Player      string    `json:"player"`
	TimeControl string    `json:"time_control"`
	Rated       bool      `json:"rated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Result tells the caller whether it was paired right away.
type Result struct {
	Ticket  *Ticket
	Session *match.Session
}

func (r Result) Matched() bool { return r.Session != nil }

type Matchmaker struct {
	starter  Starter
	reg      *registry.Registry
	notifier match.Notifier
	clk      clockwork.Clock

	mu    sync.Mutex
	queue []*Ticket
}

func New(starter Starter, reg *registry.Registry, notifier match.Notifier, clk clockwork.Clock) *Matchmaker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Matchmaker{starter: starter, reg: reg, notifier: notifier, clk: clk}
}

// Seek pairs player with the oldest compatible seeker or queues it. A repeated
// seek replaces the player's previous one.
func (m *Matchmaker) Seek(ctx context.Context, player, timeControl string, rated bool) (Result, error) {
	tc, err := clock.ParseTimeControl(timeControl)
	if err != nil {
		return Result{}, err
	}
	if err := m.admissible(player); err != nil {
		return Result{}, err
	}
	mine := &Ticket{
		ID:          uuid.NewString(),
		Player:      player,
		TimeControl: tc.String(),
		Rated:       rated,
		CreatedAt:   m.clk.Now(),
	}

	for {
		m.mu.Lock()
		m.removeLocked(player)
		opp := m.takeLocked(mine)
		if opp == nil {
			m.queue = append(m.queue, mine)
			m.mu.Unlock()
			m.notify(player, milldto.EventSeekWaiting, mine)
			obslog.L().Info("seek_waiting", zap.String("player", player), zap.String("time_control", mine.TimeControl), zap.Bool("rated", rated))
			return Result{Ticket: mine}, nil
		}
		m.mu.Unlock()

		s, err := m.starter.Start(ctx, match.Params{
			White:        opp.Player,
			Black:        player,
			RandomColors: true,
			TimeControl:  mine.TimeControl,
			Rated:        rated,
		})
		if errors.Is(err, match.ErrPlayerBusy) {
			// opponent entered another match between queueing and now; try the next one
			if m.reg.InGame(player) {
				return Result{}, ErrInGame
			}
			continue
		}
		if err != nil {
			return Result{}, err
		}
		obslog.L().Info("seek_matched",
			zap.String("match_id", s.ID()),
			zap.String("white", s.White()),
			zap.String("black", s.Black()),
			zap.String("time_control", mine.TimeControl),
		)
		return Result{Ticket: mine, Session: s}, nil
	}
}

// Cancel withdraws player's seek.
func (m *Matchmaker) Cancel(player string) bool {
	m.mu.Lock()
	ok := m.removeLocked(player)
	m.mu.Unlock()
	if ok {
		m.notify(player, milldto.EventSeekCanceled, map[string]any{"player": player})
	}
	return ok
}

func (m *Matchmaker) Pending(player string) (*Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.queue {
		if t.Player == player {
			cp := *t
			return &cp, true
		}
	}
	return nil, false
}

// Waiting counts queued seeks for a time control.
func (m *Matchmaker) Waiting(timeControl string) int {
	tc, err := clock.ParseTimeControl(timeControl)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.queue {
		if t.TimeControl == tc.String() {
			n++
		}
	}
	return n
}

func (m *Matchmaker) admissible(player string) error {
	switch {
	case m.reg.InGame(player):
		return ErrInGame
	case m.reg.IsBanned(player):
		return ErrBanned
	case m.reg.IsPaused(player):
		return ErrPaused
	}
	return nil
}

func (m *Matchmaker) removeLocked(player string) bool {
	for i, t := range m.queue {
		if t.Player == player {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// takeLocked removes and returns the first compatible ticket. Tickets whose
// owner became ineligible since queueing are dropped on the way.
func (m *Matchmaker) takeLocked(mine *Ticket) *Ticket {
	kept := m.queue[:0]
	var found *Ticket
	for _, t := range m.queue {
		if found == nil && t.TimeControl == mine.TimeControl && t.Rated == mine.Rated && t.Player != mine.Player {
			if m.admissible(t.Player) != nil {
				continue
			}
			found = t
			continue
		}
		kept = append(kept, t)
	}
	m.queue = kept
	return found
}

func (m *Matchmaker) notify(player, event string, payload any) {
	if m.notifier != nil {
		m.notifier.Notify(player, event, payload)
	}
}
