package challenge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/pkg/milldto"
)

type rematch struct {
	sum     domain.MatchSummary
	askedBy string
	started bool
}

func (r *rematch) opponent(player string) (string, bool) {
	switch player {
	case r.sum.White:
		return r.sum.Black, true
	case r.sum.Black:
		return r.sum.White, true
	}
	return "", false
}

// HandleMatchFinished records a closed casual game so either side can ask for
// a rematch. Tournament games and canceled sessions are skipped.
func (m *Manager) HandleMatchFinished(_ context.Context, sum domain.MatchSummary) {
	if sum.TournamentID != "" {
		return
	}
	switch match.Reason(sum.Reason) {
	case match.ReasonCanceled, match.ReasonShutdown:
		return
	}
	m.mu.Lock()
	m.pruneLocked()
	m.finished[sum.ID] = &rematch{sum: sum}
	m.mu.Unlock()
}

// RequestRematch asks for a rematch of matchID. The first request is offered
// to the opponent and returns a nil session; the opponent's matching request
// starts the new game with colors swapped.
func (m *Manager) RequestRematch(ctx context.Context, player, matchID string) (*match.Session, error) {
	m.mu.Lock()
	m.pruneLocked()
	r, ok := m.finished[matchID]
	if !ok || r.started {
		m.mu.Unlock()
		return nil, ErrNoRematch
	}
	opp, ok := r.opponent(player)
	if !ok {
		m.mu.Unlock()
		return nil, match.ErrNotParticipant
	}
	if r.askedBy == "" || r.askedBy == player {
		r.askedBy = player
		m.mu.Unlock()
		text := m.msgs.Text("rematch.offered", map[string]any{"From": player}, player+" wants a rematch")
		m.notifier.Notify(opp, milldto.EventRematchOffered, milldto.RematchOffer{MatchID: matchID, From: player, Text: text})
		return nil, nil
	}
	r.started = true
	sum := r.sum
	m.mu.Unlock()

	s, err := m.startRematch(ctx, sum)
	m.mu.Lock()
	if err != nil {
		r.started = false
	} else {
		delete(m.finished, matchID)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	obslog.L().Info("rematch_started", zap.String("previous_match_id", matchID), zap.String("match_id", s.ID()))
	return s, nil
}

func (m *Manager) startRematch(ctx context.Context, prev domain.MatchSummary) (*match.Session, error) {
	if err := m.admissible(prev.White, prev.Black); err != nil {
		return nil, err
	}
	s, err := m.starter.Start(ctx, match.Params{
		White:       prev.Black,
		Black:       prev.White,
		TimeControl: prev.TimeControl,
		Rated:       prev.Rated,
	})
	if errors.Is(err, match.ErrPlayerBusy) {
		return nil, ErrInGame
	}
	return s, err
}

func (m *Manager) DeclineRematch(player, matchID string) error {
	m.mu.Lock()
	m.pruneLocked()
	r, ok := m.finished[matchID]
	if !ok || r.started {
		m.mu.Unlock()
		return ErrNoRematch
	}
	opp, ok := r.opponent(player)
	if !ok {
		m.mu.Unlock()
		return match.ErrNotParticipant
	}
	delete(m.finished, matchID)
	m.mu.Unlock()

	text := m.msgs.Text("rematch.declined", map[string]any{"Player": player}, player+" declined the rematch")
	m.notifier.Notify(opp, milldto.EventRematchDeclined, milldto.RematchOffer{MatchID: matchID, From: player, Text: text})
	return nil
}

func (m *Manager) pruneLocked() {
	now := m.clk.Now()
	for id, r := range m.finished {
		if !r.started && now.Sub(r.sum.EndedAt) > m.rematchWindow {
			delete(m.finished, id)
		}
	}
}
