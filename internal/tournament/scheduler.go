package tournament

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/pkg/milldto"
)

const (
	// TopicAll carries arena list changes to every connected client.
	TopicAll = "tournaments"

	dedupeWindow      = 5 * time.Minute
	defaultPurgeDelay = 5 * time.Minute
	maxSpawnDuration  = 3 * time.Hour
	bootstrapLead     = 5 * time.Minute
)

// Topic is the per-arena broadcast topic.
func Topic(id string) string { return "tournament:" + id }

// Notifier is the slice of the presence hub the scheduler talks to.
type Notifier interface {
	Notify(player, event string, payload any)
	Broadcast(topic, event string, payload any)
}

type Scheduler struct {
	store    persist.Store
	notifier Notifier
	msgs     *msgcat.Catalog
	clk      clockwork.Clock

	purgeAfter time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	tours map[string]*Tournament

	cron gocron.Scheduler
}

type Option func(*Scheduler)

func WithClock(clk clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clk = clk
		}
	}
}

func WithCatalog(c *msgcat.Catalog) Option { return func(s *Scheduler) { s.msgs = c } }

// WithRand fixes the source used for random time controls.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.rng = r
		}
	}
}

func NewScheduler(store persist.Store, notifier Notifier, opts ...Option) *Scheduler {
	if store == nil {
		store = persist.NewMemory()
	}
	s := &Scheduler{
		store:      store,
		notifier:   notifier,
		clk:        clockwork.NewRealClock(),
		purgeAfter: defaultPurgeDelay,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d696c6c)),
		tours:      make(map[string]*Tournament),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the scheduler's notion of the current time.
func (s *Scheduler) Now() time.Time { return s.clk.Now() }

// Start runs the calendar and lifecycle jobs until Stop.
func (s *Scheduler) Start(ctx context.Context, calendarEvery, lifecycleEvery time.Duration) error {
	cron, err := gocron.NewScheduler(gocron.WithClock(s.clk))
	if err != nil {
		return fmt.Errorf("tournament scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(calendarEvery),
		gocron.NewTask(func() { s.EnsureCalendar(s.clk.Now()) }),
		gocron.WithName("tournament_calendar"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("calendar job: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(lifecycleEvery),
		gocron.NewTask(func() { s.Advance(ctx, s.clk.Now()) }),
		gocron.WithName("tournament_lifecycle"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("lifecycle job: %w", err)
	}
	cron.Start()
	s.cron = cron
	obslog.L().Info("tournament_scheduler_started",
		zap.Duration("calendar_every", calendarEvery),
		zap.Duration("lifecycle_every", lifecycleEvery),
	)
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}

func (s *Scheduler) Get(id string) (*Tournament, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tours[id]
	return t, ok
}

// List returns every known arena ordered by start time.
func (s *Scheduler) List() []*Tournament {
	s.mu.RLock()
	out := make([]*Tournament, 0, len(s.tours))
	for _, t := range s.tours {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Scheduler) Active() []*Tournament {
	var out []*Tournament
	for _, t := range s.List() {
		if t.Status() == StatusActive {
			out = append(out, t)
		}
	}
	return out
}

// ActivateIfDue returns the arena for a join, starting it when its start
// time already passed.
func (s *Scheduler) ActivateIfDue(id string) (*Tournament, error) {
	t, ok := s.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	switch t.Status() {
	case StatusFinished:
		return nil, ErrNotJoinable
	case StatusScheduled:
		if !s.clk.Now().Before(t.StartsAt) && t.activate() {
			s.announceStart(t)
		}
	}
	return t, nil
}

// Advance moves arenas through scheduled → active → finished and purges
// finished ones after the purge delay.
func (s *Scheduler) Advance(ctx context.Context, now time.Time) {
	var started, ended []*Tournament
	s.mu.Lock()
	for id, t := range s.tours {
		switch t.Status() {
		case StatusScheduled:
			if !now.Before(t.StartsAt) && t.activate() {
				started = append(started, t)
			}
		case StatusActive:
			if !now.Before(t.EndsAt) && t.finish(now) {
				ended = append(ended, t)
			}
		case StatusFinished:
			if now.Sub(t.FinishedAt()) >= s.purgeAfter {
				delete(s.tours, id)
				obslog.L().Debug("tournament_purged", zap.String("tournament_id", id))
			}
		}
	}
	s.mu.Unlock()

	for _, t := range started {
		s.announceStart(t)
	}
	for _, t := range ended {
		s.settle(ctx, t)
	}
}

// Create adds an arena of the given type outside the calendar.
func (s *Scheduler) Create(typ Type, timeControl string, start time.Time) (*Tournament, error) {
	if _, ok := Info(typ); !ok || typ == TypeCustom {
		return nil, fmt.Errorf("%w: type %q", ErrInvalid, typ)
	}
	if !validTimeControl(timeControl) {
		return nil, fmt.Errorf("%w: time control %q", ErrInvalid, timeControl)
	}
	s.mu.Lock()
	t := s.addLocked(typ, timeControl, start, 0, "")
	s.mu.Unlock()
	if !s.clk.Now().Before(start) && t.activate() {
		s.announceStart(t)
	}
	s.broadcastList(t)
	return t, nil
}

// Spawn opens a custom 1+0 arena named after creator, starting now. The
// duration is capped at three hours.
func (s *Scheduler) Spawn(creator string, d time.Duration) (*Tournament, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" || d <= 0 {
		return nil, fmt.Errorf("%w: spawn needs a creator and a positive duration", ErrInvalid)
	}
	if d > maxSpawnDuration {
		d = maxSpawnDuration
	}
	now := s.clk.Now()
	name := s.msgs.Text("tournament.custom_name", map[string]any{"Creator": creator}, creator+" Arena")

	s.mu.Lock()
	t := s.addLocked(TypeCustom, "1+0", now, d, name)
	t.Creator = creator
	s.mu.Unlock()
	t.activate()
	s.announceStart(t)
	obslog.L().Info("tournament_spawned", zap.String("tournament_id", t.ID), zap.String("creator", creator), zap.Duration("duration", d))
	return t, nil
}

// ForceEnd finishes an active arena now. ref is the id, a unique id prefix
// or the arena slug.
func (s *Scheduler) ForceEnd(ctx context.Context, ref string) (*Tournament, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil, ErrNotFound
	}
	var found *Tournament
	for _, t := range s.Active() {
		if t.ID == ref || t.Slug == ref || strings.HasPrefix(strings.ToLower(t.ID), ref) {
			found = t
			break
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	if !found.finish(s.clk.Now()) {
		return nil, ErrNotFound
	}
	s.settle(ctx, found)
	return found, nil
}

// addLocked creates an arena. A zero d uses the type's duration and an
// empty name the catalog name.
func (s *Scheduler) addLocked(typ Type, tc string, start time.Time, d time.Duration, name string) *Tournament {
	info, _ := Info(typ)
	if d <= 0 {
		d = info.Duration
	}
	if name == "" {
		name = s.displayName(typ, tc, start)
	}
	id := uuid.NewString()
	t := newTournament(id, name, slug.Make(name+" "+id[:8]), typ, tc, start, start.Add(d), info.Color)
	s.tours[id] = t
	obslog.L().Debug("tournament_created",
		zap.String("tournament_id", id),
		zap.String("type", string(typ)),
		zap.String("time_control", tc),
		zap.Time("starts_at", start),
	)
	return t
}

func (s *Scheduler) displayName(typ Type, tc string, start time.Time) string {
	info, _ := Info(typ)
	base := info.Name
	if typ == TypeWorldCup {
		base = fmt.Sprintf("%s %d", base, start.Year())
	}
	return s.msgs.Text("tournament.name", map[string]any{"Base": base, "TimeControl": tc}, base+" "+tc)
}

// settle hands out trophies and titles, archives the arena and tells every
// participant where they finished.
func (s *Scheduler) settle(ctx context.Context, t *Tournament) {
	standings := t.Standings()
	finishedAt := t.FinishedAt()

	for _, row := range standings {
		if row.Games == 0 {
			continue
		}
		kind, hasTrophy := trophyFor(t.Type, row.Rank)
		if !hasTrophy && row.Rank != 1 {
			continue
		}
		rank := row.Rank
		err := s.store.UpdatePlayer(ctx, row.PlayerID, func(p *domain.PlayerRecord) error {
			if rank == 1 {
				p.TournamentsWon[string(t.Type)]++
			}
			if hasTrophy {
				p.Trophies = append(p.Trophies, domain.Trophy{
					Kind:           kind,
					TournamentID:   t.ID,
					TournamentName: t.Name,
					TournamentType: string(t.Type),
					Rank:           rank,
					AwardedAt:      finishedAt,
				})
			}
			p.Touch(finishedAt)
			return nil
		})
		if err != nil {
			obslog.L().Warn("tournament_player_save_failed", zap.String("player", row.PlayerID), zap.Error(err))
		}
	}

	archive := &domain.ArchivedTournament{
		ID:           t.ID,
		Name:         t.Name,
		Type:         string(t.Type),
		TimeControl:  t.TimeControl,
		StartsAt:     t.StartsAt,
		EndsAt:       t.EndsAt,
		FinishedAt:   finishedAt,
		Color:        t.Color,
		Participants: len(standings),
		Leaderboard:  standings,
	}
	if err := s.store.SaveArchivedTournament(ctx, archive); err != nil {
		obslog.L().Warn("tournament_archive_failed", zap.String("tournament_id", t.ID), zap.Error(err))
	}

	winner := ""
	if len(standings) > 0 {
		winner = standings[0].PlayerID
	}
	if s.notifier != nil {
		for _, row := range standings {
			res := milldto.TournamentResult{
				TournamentID: t.ID,
				Name:         t.Name,
				Rank:         row.Rank,
				Participants: len(standings),
				Score:        row.Score,
			}
			if row.Games > 0 {
				res.Trophy, _ = trophyFor(t.Type, row.Rank)
			}
			res.Text = s.msgs.Text("tournament.result", map[string]any{
				"Rank":         row.Rank,
				"Participants": len(standings),
				"Name":         t.Name,
				"Score":        row.Score,
			}, t.Name)
			s.notifier.Notify(row.PlayerID, milldto.EventTournamentResult, res)
		}
		s.notifier.Broadcast(TopicAll, milldto.EventTournamentUpdate, map[string]any{
			"tournament": t.View(false, nil),
			"text":       s.msgs.Text("tournament.finished", map[string]any{"Name": t.Name, "Winner": winner}, t.Name),
		})
	}
	obslog.L().Info("tournament_finished",
		zap.String("tournament_id", t.ID),
		zap.String("name", t.Name),
		zap.Int("participants", len(standings)),
		zap.String("winner", winner),
	)
}

func (s *Scheduler) announceStart(t *Tournament) {
	obslog.L().Info("tournament_started", zap.String("tournament_id", t.ID), zap.String("name", t.Name))
	if s.notifier == nil {
		return
	}
	view := t.View(false, nil)
	s.notifier.Broadcast(TopicAll, milldto.EventTournamentStarted, view)
	s.notifier.Broadcast(Topic(t.ID), milldto.EventTournamentStarted, view)
}

func (s *Scheduler) broadcastList(t *Tournament) {
	if s.notifier != nil {
		s.notifier.Broadcast(TopicAll, milldto.EventTournamentUpdate, map[string]any{"tournament": t.View(false, nil)})
	}
}

func (s *Scheduler) pickTimeControl() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return TimeControls[s.rng.IntN(len(TimeControls))]
}

// activate moves a scheduled arena to active.
func (t *Tournament) activate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusScheduled {
		return false
	}
	t.status = StatusActive
	return true
}

// finish closes an active arena; later results score nothing.
func (t *Tournament) finish(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return false
	}
	t.status = StatusFinished
	t.finishedAt = now
	return true
}
