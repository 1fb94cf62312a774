package match

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/clock"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/pkg/milldto"
)

// awaiting is the payload of StatusAwaitingFirstMove.
type awaiting struct {
	side     board.Color
	deadline time.Time
}

type sessionHooks struct {
	emit     func(event string, payload any)
	changed  func(s *Session)
	finished func(s *Session)
}

// Session is one authoritative match. All mutation happens under mu.
type Session struct {
	id           string
	white        string
	black        string
	timeControl  string
	rated        bool
	tournamentID string
	class        domain.RatingClass
	startedAt    time.Time

	clk   clockwork.Clock
	grace time.Duration
	hooks sessionHooks

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	board     *board.Board
	clock     *clock.Clock
	status    Status
	awaiting  awaiting
	watcher   clockwork.Timer
	berserk   [3]bool
	drawOffer board.Color
	result    Result
	moves     []domain.MoveRecord
	endedAt   time.Time
	// finishPending is set when the session closed and finalization has not run yet.
	finishPending bool
}

func (s *Session) ID() string           { return s.id }
func (s *Session) White() string        { return s.white }
func (s *Session) Black() string        { return s.black }
func (s *Session) TournamentID() string { return s.tournamentID }
func (s *Session) Rated() bool          { return s.rated }
func (s *Session) TimeControl() string  { return s.timeControl }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Clock exposes the clock for read-only inspection.
func (s *Session) Clock() *clock.Clock { return s.clock }

// Side returns the color player plays, or None.
func (s *Session) Side(player string) board.Color {
	switch player {
	case s.white:
		return board.White
	case s.black:
		return board.Black
	default:
		return board.None
	}
}

func (s *Session) playerOf(c board.Color) string {
	if c == board.Black {
		return s.black
	}
	return s.white
}

// Move plays from→to (from ignored while placing) with an optional capture.
func (s *Session) Move(player string, from, to, capture int) (board.Outcome, error) {
	s.mu.Lock()
	out, err := s.moveLocked(player, from, to, capture)
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(err == nil, done)
	return out, err
}

func (s *Session) moveLocked(player string, from, to, capture int) (board.Outcome, error) {
	side, err := s.actorLocked(player)
	if err != nil {
		return board.Outcome{}, err
	}
	if s.board.Turn() != side {
		return board.Outcome{}, ErrNotYourTurn
	}
	out, err := s.board.ApplyMove(from, to, capture)
	if err != nil {
		return board.Outcome{}, err
	}
	log := s.board.Log()
	last := log[len(log)-1]
	s.drawOffer = board.None
	s.recordLocked(last)

	if !out.AwaitingCapture {
		s.endTurnLocked(side)
	}
	s.emitMoveLocked(last, out)
	s.evaluateLocked()
	return out, nil
}

// Capture resolves a pending capture.
func (s *Session) Capture(player string, point int) (board.Outcome, error) {
	s.mu.Lock()
	out, err := s.captureLocked(player, point)
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(err == nil, done)
	return out, err
}

func (s *Session) captureLocked(player string, point int) (board.Outcome, error) {
	side, err := s.actorLocked(player)
	if err != nil {
		return board.Outcome{}, err
	}
	if s.board.Turn() != side {
		return board.Outcome{}, ErrNotYourTurn
	}
	out, err := s.board.Capture(point)
	if err != nil {
		return board.Outcome{}, err
	}
	log := s.board.Log()
	last := log[len(log)-1]
	if n := len(s.moves); n > 0 {
		s.moves[n-1].Capture = point
	}
	s.endTurnLocked(side)
	s.emitMoveLocked(last, out)
	s.evaluateLocked()
	return out, nil
}

// actorLocked resolves player to a side and settles a clock that ran out
// before the action arrived.
func (s *Session) actorLocked(player string) (board.Color, error) {
	if s.status.Closed() {
		return board.None, ErrMatchClosed
	}
	side := s.Side(player)
	if side == board.None {
		return board.None, ErrNotParticipant
	}
	if s.status == StatusPlaying && s.clock.Expired() {
		s.finishLocked(Result{Winner: winnerAgainst(s.clock.Active()), Reason: ReasonClock}, StatusFinished)
		return board.None, ErrMatchClosed
	}
	return side, nil
}

// endTurnLocked hands the turn to the opponent: first-move bookkeeping while
// awaiting, a clock switch otherwise.
func (s *Session) endTurnLocked(side board.Color) {
	next := side.Opponent()
	if s.status == StatusAwaitingFirstMove {
		s.clock.Switch(next)
		if side == board.White && s.awaiting.side == board.White {
			s.armWatcherLocked(board.Black)
			return
		}
		if side == board.Black && s.awaiting.side == board.Black {
			s.stopWatcherLocked()
			s.status = StatusPlaying
			s.awaiting = awaiting{}
			s.clock.Resume()
			obslog.L().Info("match_playing", zap.String("match_id", s.id))
		}
		return
	}
	if !s.clock.Switch(next) {
		s.finishLocked(Result{Winner: winnerAgainst(side), Reason: ReasonClock}, StatusFinished)
	}
}

func (s *Session) evaluateLocked() {
	if s.status.Closed() {
		return
	}
	switch res := s.board.EvaluateResult(); res {
	case board.ResultNone:
	case board.ResultDraw:
		s.finishLocked(Result{Winner: res, Reason: ReasonQuietDraw}, StatusFinished)
	default:
		s.finishLocked(Result{Winner: res, Reason: ReasonPieces}, StatusFinished)
	}
}

func (s *Session) recordLocked(e board.Entry) {
	t := s.clock.Read()
	s.moves = append(s.moves, domain.MoveRecord{
		Side:    e.Side.String(),
		From:    e.From,
		To:      e.To,
		Capture: e.Capture,
		Mill:    e.Mill,
		WhiteMs: t.White.Milliseconds(),
		BlackMs: t.Black.Milliseconds(),
		At:      s.clk.Now(),
	})
}

func (s *Session) emitMoveLocked(e board.Entry, out board.Outcome) {
	s.hooks.emit(milldto.EventMoveMade, milldto.MoveMade{
		MatchID:         s.id,
		Side:            e.Side.String(),
		From:            e.From,
		To:              e.To,
		Capture:         e.Capture,
		MillFormed:      out.MillFormed,
		AwaitingCapture: out.AwaitingCapture,
		Clock:           clockView(s.clock.Snapshot()),
	})
	if out.AwaitingCapture {
		s.hooks.emit(milldto.EventAwaitingCapture, map[string]any{
			"match_id": s.id,
			"side":     e.Side.String(),
			"targets":  s.board.LegalTargets(),
		})
	}
}

// Resign ends the match in the opponent's favour.
func (s *Session) Resign(player string) error {
	s.mu.Lock()
	side, err := s.actorLocked(player)
	if err == nil {
		s.finishLocked(Result{Winner: winnerAgainst(side), Reason: ReasonResign}, StatusFinished)
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(false, done)
	return err
}

// OfferDraw records a draw offer. An offer crossing the opponent's offer is an agreement.
func (s *Session) OfferDraw(player string) error {
	s.mu.Lock()
	side, err := s.actorLocked(player)
	if err == nil {
		if s.drawOffer == side.Opponent() {
			s.finishLocked(Result{Winner: board.ResultDraw, Reason: ReasonAgreedDraw}, StatusFinished)
		} else {
			s.drawOffer = side
			s.hooks.emit(milldto.EventDrawOffered, map[string]any{"match_id": s.id, "from": player})
		}
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(err == nil, done)
	return err
}

func (s *Session) AcceptDraw(player string) error {
	s.mu.Lock()
	side, err := s.actorLocked(player)
	if err == nil {
		if s.drawOffer != side.Opponent() {
			err = ErrNoDrawOffer
		} else {
			s.finishLocked(Result{Winner: board.ResultDraw, Reason: ReasonAgreedDraw}, StatusFinished)
		}
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(false, done)
	return err
}

func (s *Session) DeclineDraw(player string) error {
	s.mu.Lock()
	side, err := s.actorLocked(player)
	if err == nil {
		if s.drawOffer != side.Opponent() {
			err = ErrNoDrawOffer
		} else {
			s.drawOffer = board.None
			s.hooks.emit(milldto.EventDrawDeclined, map[string]any{"match_id": s.id, "by": player})
		}
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(err == nil, done)
	return err
}

// Berserk halves the player's clock. Tournament games only, at most once,
// before the move log grows past two entries.
func (s *Session) Berserk(player string) error {
	s.mu.Lock()
	side, err := s.actorLocked(player)
	if err == nil {
		switch {
		case s.tournamentID == "":
			err = ErrBerserkNotAllowed
		case s.berserk[side]:
			err = ErrBerserkNotAllowed
		case s.board.MoveCount() > berserkMoveLimit:
			err = ErrBerserkNotAllowed
		default:
			s.berserk[side] = true
			s.clock.Berserk(side)
			s.hooks.emit(milldto.EventBerserk, map[string]any{
				"match_id": s.id,
				"side":     side.String(),
				"clock":    clockView(s.clock.Snapshot()),
			})
		}
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(err == nil, done)
	return err
}

// Berserked reports whether side went berserk.
func (s *Session) Berserked(side board.Color) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.berserk[side]
}

// Cancel aborts the session without a result. Closed sessions are left alone.
func (s *Session) Cancel(reason Reason) bool {
	s.mu.Lock()
	ok := !s.status.Closed()
	if ok {
		s.finishLocked(Result{Reason: reason}, StatusCanceled)
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(false, done)
	return ok
}

// finishLocked closes the session. It stops the clock and background tasks;
// finalization runs after the lock is released.
func (s *Session) finishLocked(res Result, status Status) {
	if s.status.Closed() {
		return
	}
	s.status = status
	s.result = res
	s.endedAt = s.clk.Now()
	s.clock.Pause()
	s.stopWatcherLocked()
	s.cancel()
	s.finishPending = true
	obslog.L().Info("match_end",
		zap.String("match_id", s.id),
		zap.String("status", string(status)),
		zap.String("winner", string(res.Winner)),
		zap.String("reason", string(res.Reason)),
	)
}

func (s *Session) takeFinishLocked() bool {
	done := s.finishPending
	s.finishPending = false
	return done
}

func (s *Session) after(changed, finished bool) {
	if finished {
		s.hooks.finished(s)
		return
	}
	if changed {
		s.hooks.changed(s)
	}
}

func (s *Session) armWatcherLocked(side board.Color) {
	s.stopWatcherLocked()
	s.awaiting = awaiting{side: side, deadline: s.clk.Now().Add(s.grace)}
	s.watcher = s.clk.AfterFunc(s.grace, func() { s.firstMoveTimeout(side) })
}

func (s *Session) stopWatcherLocked() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

func (s *Session) firstMoveTimeout(side board.Color) {
	s.mu.Lock()
	if s.status == StatusAwaitingFirstMove && s.awaiting.side == side && !s.clk.Now().Before(s.awaiting.deadline) {
		s.finishLocked(Result{Winner: winnerAgainst(side), Reason: ReasonFirstMove}, StatusFinished)
	}
	done := s.takeFinishLocked()
	s.mu.Unlock()
	s.after(false, done)
}

// run polls the clock until the session closes. The ticker is created by the
// caller so fake clocks see it before the first Advance.
func (s *Session) run(ticker clockwork.Ticker, emitEvery time.Duration) {
	defer ticker.Stop()
	lastEmit := s.clk.Now()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.Chan():
			s.mu.Lock()
			if s.status == StatusPlaying && s.clock.Expired() {
				s.finishLocked(Result{Winner: winnerAgainst(s.clock.Active()), Reason: ReasonClock}, StatusFinished)
			} else if s.status == StatusPlaying && now.Sub(lastEmit) >= emitEvery {
				lastEmit = now
				s.hooks.emit(milldto.EventClock, clockView(s.clock.Snapshot()))
			}
			done := s.takeFinishLocked()
			s.mu.Unlock()
			if done {
				s.after(false, true)
				return
			}
		}
	}
}

// Snapshot returns the public state of the session.
func (s *Session) Snapshot() milldto.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() milldto.MatchState {
	b := s.board.Snapshot()
	st := milldto.MatchState{
		ID:             s.id,
		White:          s.white,
		Black:          s.black,
		Status:         string(s.status),
		TimeControl:    s.timeControl,
		Rated:          s.rated,
		TournamentID:   s.tournamentID,
		Points:         b.Points,
		Phase:          string(b.Phase),
		Turn:           b.Turn,
		WhiteToPlace:   b.WhiteToPlace,
		BlackToPlace:   b.BlackToPlace,
		PendingCapture: b.PendingCapture,
		Moves:          b.Moves,
		Clock:          clockView(s.clock.Snapshot()),
		DrawOfferFrom:  s.drawOffer.String(),
		WhiteBerserk:   s.berserk[board.White],
		BlackBerserk:   s.berserk[board.Black],
		Winner:         string(s.result.Winner),
		Reason:         string(s.result.Reason),
	}
	if s.status == StatusAwaitingFirstMove {
		st.AwaitingSide = s.awaiting.side.String()
		if left := s.awaiting.deadline.Sub(s.clk.Now()); left > 0 {
			st.FirstMoveMs = left.Milliseconds()
		}
	}
	return st
}

// Summary builds the archival record of a closed session.
func (s *Session) Summary() domain.MatchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.MatchSummary{
		ID:           s.id,
		White:        s.white,
		Black:        s.black,
		Winner:       string(s.result.Winner),
		Reason:       string(s.result.Reason),
		TimeControl:  s.timeControl,
		Class:        s.class,
		Rated:        s.rated,
		TournamentID: s.tournamentID,
		WhiteBerserk: s.berserk[board.White],
		BlackBerserk: s.berserk[board.Black],
		Moves:        append([]domain.MoveRecord(nil), s.moves...),
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
	}
}

func winnerAgainst(loser board.Color) board.Result {
	if loser == board.White {
		return board.ResultBlack
	}
	return board.ResultWhite
}

func clockView(c clock.Snapshot) milldto.ClockView {
	return milldto.ClockView{WhiteMs: c.WhiteMs, BlackMs: c.BlackMs, Active: c.Active, State: string(c.State)}
}
