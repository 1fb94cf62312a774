// Package pairing keeps arena players in games: periodic Swiss-style rounds,
// single-player requeues, the post-game menu and page-presence pauses.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/rating"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

var (
	// ErrNoEligibleOpponent is the normal "try again later" outcome.
	ErrNoEligibleOpponent = staticErr("no eligible opponent")
	ErrNotParticipant     = staticErr("not a participant of this tournament")
	ErrNotActive          = staticErr("tournament is not active")
	ErrBanned             = staticErr("player is banned")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	DefaultInterval   = 3 * time.Second
	DefaultJoinDelay  = 1500 * time.Millisecond
	DefaultReadyDelay = 5 * time.Second
)

// Starter opens matches. *match.Manager satisfies it.
type Starter interface {
	Start(ctx context.Context, p match.Params) (*match.Session, error)
}

type Engine struct {
	tours    *tournament.Scheduler
	starter  Starter
	reg      *registry.Registry
	store    persist.Store
	notifier match.Notifier
	msgs     *msgcat.Catalog
	clk      clockwork.Clock

	joinDelay  time.Duration
	readyDelay time.Duration

	// roundMu serializes pairing so two paths never book the same player.
	roundMu sync.Mutex

	cron gocron.Scheduler
}

type Option func(*Engine)

func WithClock(clk clockwork.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clk = clk
		}
	}
}

func WithCatalog(c *msgcat.Catalog) Option { return func(e *Engine) { e.msgs = c } }

// WithDelays overrides the join and ready requeue delays.
func WithDelays(join, ready time.Duration) Option {
	return func(e *Engine) {
		if join > 0 {
			e.joinDelay = join
		}
		if ready > 0 {
			e.readyDelay = ready
		}
	}
}

func New(tours *tournament.Scheduler, starter Starter, reg *registry.Registry, store persist.Store, notifier match.Notifier, opts ...Option) *Engine {
	if store == nil {
		store = persist.NewMemory()
	}
	e := &Engine{
		tours:      tours,
		starter:    starter,
		reg:        reg,
		store:      store,
		notifier:   notifier,
		clk:        clockwork.NewRealClock(),
		joinDelay:  DefaultJoinDelay,
		readyDelay: DefaultReadyDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the pairing loop: sweep the menu, then pair every active arena.
func (e *Engine) Start(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = DefaultInterval
	}
	cron, err := gocron.NewScheduler(gocron.WithClock(e.clk))
	if err != nil {
		return fmt.Errorf("pairing scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { e.Tick(ctx) }),
		gocron.WithName("tournament_pairing"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("pairing job: %w", err)
	}
	cron.Start()
	e.cron = cron
	return nil
}

func (e *Engine) Stop() error {
	if e.cron == nil {
		return nil
	}
	return e.cron.Shutdown()
}

// Tick is one pass of the pairing loop.
func (e *Engine) Tick(ctx context.Context) {
	for _, p := range e.reg.SweepMenu() {
		obslog.L().Debug("menu_timeout", zap.String("player", p))
	}
	for _, t := range e.tours.Active() {
		if _, err := e.RunRound(ctx, t.ID); err != nil {
			obslog.L().Warn("pairing_round_failed", zap.String("tournament_id", t.ID), zap.Error(err))
		}
	}
}

// RunRound pairs the whole eligible pool of an active arena and starts the games.
func (e *Engine) RunRound(ctx context.Context, tournamentID string) ([]*match.Session, error) {
	t, err := e.active(tournamentID)
	if err != nil {
		return nil, err
	}
	e.roundMu.Lock()
	defer e.roundMu.Unlock()

	pool := candidatesOf(t.Participants(), e.reg.Eligible)
	rankPool(pool)
	pairs := pairPool(pool, t.LastOpponent)

	var started []*match.Session
	for _, pr := range pairs {
		if !e.reg.Eligible(pr[0]) || !e.reg.Eligible(pr[1]) {
			continue
		}
		s, err := e.startGame(ctx, t, pr[0], pr[1])
		if err != nil {
			obslog.L().Warn("pairing_start_failed", zap.String("tournament_id", t.ID), zap.Strings("players", pr[:]), zap.Error(err))
			continue
		}
		started = append(started, s)
	}
	if len(pairs) > 0 {
		obslog.L().Info("pairing_round",
			zap.String("tournament_id", t.ID),
			zap.Int("pool", len(pool)),
			zap.Int("pairs", len(pairs)),
			zap.Int("started", len(started)),
		)
	}
	return started, nil
}

// TryPairOne pairs player with the closest-scored eligible participant.
func (e *Engine) TryPairOne(ctx context.Context, tournamentID, player string) (*match.Session, error) {
	t, err := e.active(tournamentID)
	if err != nil {
		return nil, err
	}
	e.roundMu.Lock()
	defer e.roundMu.Unlock()

	me, ok := t.Participant(player)
	if !ok {
		return nil, ErrNotParticipant
	}
	if !e.reg.Eligible(player) {
		return nil, ErrNoEligibleOpponent
	}
	pool := candidatesOf(t.Participants(), func(id string) bool { return id != player && e.reg.Eligible(id) })
	opp, ok := closestOpponent(player, me.Score, pool, t.LastOpponent)
	if !ok {
		return nil, ErrNoEligibleOpponent
	}
	return e.startGame(ctx, t, player, opp)
}

func (e *Engine) startGame(ctx context.Context, t *tournament.Tournament, a, b string) (*match.Session, error) {
	s, err := e.starter.Start(ctx, match.Params{
		White:        a,
		Black:        b,
		RandomColors: true,
		TimeControl:  t.TimeControl,
		Rated:        true,
		TournamentID: t.ID,
	})
	if err != nil {
		return nil, err
	}
	t.SetLastOpponents(a, b)
	obslog.L().Info("tournament_game",
		zap.String("tournament_id", t.ID),
		zap.String("match_id", s.ID()),
		zap.String("white", s.White()),
		zap.String("black", s.Black()),
	)
	return s, nil
}

func (e *Engine) active(tournamentID string) (*tournament.Tournament, error) {
	t, ok := e.tours.Get(tournamentID)
	if !ok {
		return nil, tournament.ErrNotFound
	}
	if t.Status() != tournament.StatusActive {
		return nil, ErrNotActive
	}
	return t, nil
}

// Join enrolls player, clearing menu and pause state, and tries to pair it
// shortly after.
func (e *Engine) Join(ctx context.Context, tournamentID, player string) (*tournament.Tournament, error) {
	if e.reg.IsBanned(player) {
		return nil, ErrBanned
	}
	t, err := e.tours.ActivateIfDue(tournamentID)
	if err != nil {
		return nil, err
	}
	e.reg.LeaveMenu(player)
	e.reg.Resume(player)

	class := rating.ClassFor(t.TimeControl)
	rt := domain.DefaultRating
	p, err := e.store.LoadPlayer(ctx, player)
	switch {
	case err == nil:
		rt = p.Class(class).Rating
	case !errors.Is(err, persist.ErrNotFound):
		obslog.L().Warn("join_rating_load_failed", zap.String("player", player), zap.Error(err))
	}
	if err := t.Join(player, rt, e.clk.Now()); err != nil {
		return nil, err
	}
	e.notifier.Subscribe(tournament.Topic(t.ID), player)
	e.publish(t)
	obslog.L().Info("tournament_join", zap.String("tournament_id", t.ID), zap.String("player", player), zap.Int("players", t.Size()))

	if t.Status() == tournament.StatusActive {
		e.later(e.joinDelay, t.ID, player)
	}
	return t, nil
}

func (e *Engine) Leave(tournamentID, player string) error {
	t, ok := e.tours.Get(tournamentID)
	if !ok {
		return tournament.ErrNotFound
	}
	if !t.Leave(player) {
		return ErrNotParticipant
	}
	e.notifier.Unsubscribe(tournament.Topic(t.ID), player)
	e.publish(t)
	obslog.L().Info("tournament_leave", zap.String("tournament_id", t.ID), zap.String("player", player))
	return nil
}

// participant looks up tournamentID and checks player is enrolled in it.
func (e *Engine) participant(tournamentID, player string) (*tournament.Tournament, error) {
	t, ok := e.tours.Get(tournamentID)
	if !ok {
		return nil, tournament.ErrNotFound
	}
	if !t.Has(player) {
		return nil, ErrNotParticipant
	}
	return t, nil
}

// Pause keeps player out of pairing until Resume.
func (e *Engine) Pause(tournamentID, player string) error {
	if _, err := e.participant(tournamentID, player); err != nil {
		return err
	}
	e.reg.LeaveMenu(player)
	e.reg.Pause(player)
	e.pauseState(tournamentID, player)
	return nil
}

// Resume clears every pause flag and tries to pair player right away.
func (e *Engine) Resume(ctx context.Context, tournamentID, player string) error {
	if _, err := e.participant(tournamentID, player); err != nil {
		return err
	}
	e.reg.LeaveMenu(player)
	e.reg.Resume(player)
	e.pauseState(tournamentID, player)
	e.tryPair(ctx, tournamentID, player)
	return nil
}

// LeavePage auto-pauses a participant who left the arena page; mid-game the
// pause waits until the game ends. Outside a running arena it does nothing.
func (e *Engine) LeavePage(tournamentID, player string) error {
	t, ok := e.tours.Get(tournamentID)
	if !ok {
		return tournament.ErrNotFound
	}
	if t.Status() != tournament.StatusActive || !t.Has(player) {
		return nil
	}
	switch {
	case e.reg.InGame(player):
		e.reg.MarkPendingPause(player)
	case !e.reg.IsPaused(player):
		e.reg.AutoPause(player)
	default:
		return nil
	}
	e.pauseState(tournamentID, player)
	return nil
}

// ReturnToPage undoes an automatic pause. Manual pauses stay.
func (e *Engine) ReturnToPage(ctx context.Context, tournamentID, player string) error {
	if _, ok := e.tours.Get(tournamentID); !ok {
		return tournament.ErrNotFound
	}
	if !e.reg.ReturnToPage(player) {
		return nil
	}
	e.pauseState(tournamentID, player)
	e.tryPair(ctx, tournamentID, player)
	return nil
}

// Ready takes player out of the post-game menu and requeues it after the
// ready delay.
func (e *Engine) Ready(tournamentID, player string) error {
	t, err := e.active(tournamentID)
	if err != nil {
		return err
	}
	if !t.Has(player) {
		return ErrNotParticipant
	}
	e.reg.LeaveMenu(player)
	e.reg.Resume(player)
	e.later(e.readyDelay, tournamentID, player)
	return nil
}

// HandleMatchFinished scores a finished arena game and parks both players
// in the post-game menu. It is registered as a match finish hook.
func (e *Engine) HandleMatchFinished(ctx context.Context, sum domain.MatchSummary) {
	if sum.TournamentID == "" {
		return
	}
	t, ok := e.tours.Get(sum.TournamentID)
	if !ok {
		return
	}
	if sum.Winner != "" {
		awards, scored := t.RecordGame(tournament.GameRecord{
			MatchID:      sum.ID,
			White:        sum.White,
			Black:        sum.Black,
			Winner:       board.Result(sum.Winner),
			WhiteBerserk: sum.WhiteBerserk,
			BlackBerserk: sum.BlackBerserk,
		})
		if scored {
			for _, a := range awards {
				obslog.L().Info("tournament_points",
					zap.String("tournament_id", t.ID),
					zap.String("match_id", sum.ID),
					zap.String("player", a.Player),
					zap.String("outcome", string(a.Outcome)),
					zap.Int("points", a.Points.Points),
					zap.Int("streak", a.Streak),
				)
			}
			e.publish(t)
		}
	}
	if t.Status() != tournament.StatusActive {
		return
	}
	for _, p := range []string{sum.White, sum.Black} {
		if e.reg.ApplyPendingPause(p) {
			e.pauseState(t.ID, p)
		}
		if t.Has(p) {
			e.reg.EnterMenu(p)
		}
	}
}

func (e *Engine) tryPair(ctx context.Context, tournamentID, player string) {
	t, ok := e.tours.Get(tournamentID)
	if !ok || !t.Has(player) {
		return
	}
	if _, err := e.TryPairOne(ctx, tournamentID, player); err != nil && !errors.Is(err, ErrNoEligibleOpponent) {
		obslog.L().Debug("try_pair_skipped", zap.String("tournament_id", tournamentID), zap.String("player", player), zap.Error(err))
	}
}

// later retries pairing player after d if it is still eligible then.
func (e *Engine) later(d time.Duration, tournamentID, player string) {
	e.clk.AfterFunc(d, func() {
		if !e.reg.Eligible(player) {
			return
		}
		e.tryPair(context.Background(), tournamentID, player)
	})
}

func (e *Engine) pauseState(tournamentID, player string) {
	e.notifier.Notify(player, milldto.EventPauseState, milldto.PauseState{
		TournamentID: tournamentID,
		Paused:       e.reg.IsPaused(player),
		Pending:      e.reg.HasPendingPause(player),
	})
}

func (e *Engine) publish(t *tournament.Tournament) {
	e.notifier.Broadcast(tournament.Topic(t.ID), milldto.EventTournamentUpdate, t.View(true, e.reg.IsPaused))
}
