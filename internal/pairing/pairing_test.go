package pairing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

type recorder struct {
	mu     sync.Mutex
	pauses map[string][]milldto.PauseState
}

func (r *recorder) Notify(player, event string, payload any) {
	if event != milldto.EventPauseState {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pauses == nil {
		r.pauses = make(map[string][]milldto.PauseState)
	}
	r.pauses[player] = append(r.pauses[player], payload.(milldto.PauseState))
}

func (r *recorder) Broadcast(string, string, any) {}
func (r *recorder) Subscribe(string, string)      {}
func (r *recorder) Unsubscribe(string, string)    {}

func (r *recorder) lastPause(player string) (milldto.PauseState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.pauses[player]
	if len(ps) == 0 {
		return milldto.PauseState{}, false
	}
	return ps[len(ps)-1], true
}

type fixture struct {
	engine *Engine
	mgr    *match.Manager
	reg    *registry.Registry
	tours  *tournament.Scheduler
	clk    *clockwork.FakeClock
	rec    *recorder
	arena  *tournament.Tournament
}

func newFixture(t *testing.T, players ...string) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC))
	reg := registry.New(registry.WithClock(fc))
	store := persist.NewMemory()
	rec := &recorder{}
	mgr := match.NewManager(reg, store, rec, match.WithClock(fc))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	tours := tournament.NewScheduler(store, rec, tournament.WithClock(fc))
	eng := New(tours, mgr, reg, store, rec, WithClock(fc))
	mgr.OnFinish(eng.HandleMatchFinished)

	arena, err := tours.Spawn("alice", time.Hour)
	require.NoError(t, err)
	for _, p := range players {
		_, err := eng.Join(context.Background(), arena.ID, p)
		require.NoError(t, err)
	}
	return &fixture{engine: eng, mgr: mgr, reg: reg, tours: tours, clk: fc, rec: rec, arena: arena}
}

func lastFunc(m map[string]string) func(string) string {
	return func(id string) string { return m[id] }
}

func TestPairPoolFollowsRanking(t *testing.T) {
	pool := []candidate{
		{ID: "d", Score: 8, Rating: 90},
		{ID: "a", Score: 10, Rating: 120},
		{ID: "c", Score: 8, Rating: 110},
		{ID: "b", Score: 10, Rating: 100},
	}
	rankPool(pool)
	pairs := pairPool(pool, lastFunc(nil))
	assert.Equal(t, [][2]string{{"a", "b"}, {"c", "d"}}, pairs)
}

func TestPairPoolSkipsRematchBothWays(t *testing.T) {
	pool := []candidate{{ID: "a", Score: 4}, {ID: "b", Score: 4}, {ID: "c", Score: 2}, {ID: "d", Score: 0}}
	rankPool(pool)

	// only b remembers a; the check must still hold from a's side
	pairs := pairPool(pool, lastFunc(map[string]string{"b": "a"}))
	assert.Equal(t, [][2]string{{"a", "c"}, {"b", "d"}}, pairs)
}

func TestPairPoolLeavesLoneRematchUnpaired(t *testing.T) {
	pool := []candidate{{ID: "a"}, {ID: "b"}}
	pairs := pairPool(pool, lastFunc(map[string]string{"a": "b", "b": "a"}))
	assert.Empty(t, pairs)
}

func TestClosestOpponent(t *testing.T) {
	pool := []candidate{{ID: "x", Score: 0}, {ID: "y", Score: 5}, {ID: "z", Score: 7}, {ID: "w", Score: 9}}
	opp, ok := closestOpponent("me", 6, pool, lastFunc(nil))
	require.True(t, ok)
	assert.Equal(t, "y", opp)

	opp, ok = closestOpponent("me", 6, pool, lastFunc(map[string]string{"me": "y"}))
	require.True(t, ok)
	assert.Equal(t, "z", opp)

	_, ok = closestOpponent("me", 6, nil, lastFunc(nil))
	assert.False(t, ok)
}

func TestRunRoundStartsGames(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave", "erin")

	started, err := f.engine.RunRound(context.Background(), f.arena.ID)
	require.NoError(t, err)
	require.Len(t, started, 2)
	for _, s := range started {
		assert.Equal(t, f.arena.ID, s.TournamentID())
		assert.True(t, s.Rated())
		assert.Equal(t, "1+0", s.TimeControl())
		assert.Equal(t, s.Black(), f.arena.LastOpponent(s.White()))
		assert.Equal(t, s.White(), f.arena.LastOpponent(s.Black()))
	}
	assert.Equal(t, 2, f.mgr.Live())

	// everyone left is alone
	again, err := f.engine.RunRound(context.Background(), f.arena.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRunRoundRefusesInactiveArena(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	future, err := f.tours.Create(tournament.TypeDaily, "3+2", f.clk.Now().Add(2*time.Hour))
	require.NoError(t, err)

	_, err = f.engine.RunRound(context.Background(), future.ID)
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = f.engine.RunRound(context.Background(), "missing")
	assert.ErrorIs(t, err, tournament.ErrNotFound)
}

func TestTryPairOneNeedsAnOpponent(t *testing.T) {
	f := newFixture(t, "alice")
	_, err := f.engine.TryPairOne(context.Background(), f.arena.ID, "alice")
	assert.ErrorIs(t, err, ErrNoEligibleOpponent)

	_, err = f.engine.TryPairOne(context.Background(), f.arena.ID, "nobody")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestJoinRefusesBanned(t *testing.T) {
	f := newFixture(t)
	f.reg.Ban("mallory")
	_, err := f.engine.Join(context.Background(), f.arena.ID, "mallory")
	assert.ErrorIs(t, err, ErrBanned)
	assert.False(t, f.arena.Has("mallory"))
}

func TestJoinPairsAfterDelay(t *testing.T) {
	f := newFixture(t, "alice")
	_, err := f.engine.Join(context.Background(), f.arena.ID, "bob")
	require.NoError(t, err)
	assert.False(t, f.reg.InGame("bob"))

	f.clk.Advance(DefaultJoinDelay)
	require.Eventually(t, func() bool { return f.reg.InGame("alice") && f.reg.InGame("bob") }, 2*time.Second, 10*time.Millisecond)
}

func TestJoinUsesStoredClassRating(t *testing.T) {
	f := newFixture(t)
	p := domain.NewPlayer("zoe", "Zoe", f.clk.Now())
	stats := p.Stats[domain.ClassBullet]
	stats.Rating = 180
	p.Stats[domain.ClassBullet] = stats
	require.NoError(t, f.engine.store.SavePlayer(context.Background(), p))

	_, err := f.engine.Join(context.Background(), f.arena.ID, "zoe")
	require.NoError(t, err)
	got, ok := f.arena.Participant("zoe")
	require.True(t, ok)
	assert.Equal(t, 180, got.Rating)
}

// playAndLose pairs winner, has loser resign and readies both again.
func (f *fixture) playAndLose(t *testing.T, winner, loser string, berserk bool) {
	t.Helper()
	ctx := context.Background()
	s, err := f.engine.TryPairOne(ctx, f.arena.ID, winner)
	require.NoError(t, err)
	others := map[string]bool{s.White(): true, s.Black(): true}
	require.True(t, others[loser], "expected %s to meet %s, got %s vs %s", winner, loser, s.White(), s.Black())
	if berserk {
		require.NoError(t, s.Berserk(winner))
	}
	require.NoError(t, s.Resign(loser))
	require.Eventually(t, func() bool { return f.reg.InMenu(winner) && f.reg.InMenu(loser) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.engine.Ready(f.arena.ID, winner))
	require.NoError(t, f.engine.Ready(f.arena.ID, loser))
}

func TestStreakAndBerserkScoring(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")

	f.playAndLose(t, "alice", "bob", false)
	f.playAndLose(t, "alice", "carol", false)
	f.playAndLose(t, "alice", "dave", true)

	a, ok := f.arena.Participant("alice")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2, 5}, a.Series)
	assert.Equal(t, 9, a.Score)
	assert.Equal(t, 3, a.Streak)
	assert.Equal(t, 1, a.Berserks)

	b, _ := f.arena.Participant("bob")
	assert.Equal(t, []int{0}, b.Series)
	d, _ := f.arena.Participant("dave")
	assert.Equal(t, []int{0}, d.Series)
}

func TestFinishedGameParksPlayersInMenu(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	s, err := f.engine.TryPairOne(context.Background(), f.arena.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, s.Resign("bob"))
	require.Eventually(t, func() bool { return f.reg.InMenu("alice") }, 2*time.Second, 10*time.Millisecond)

	assert.False(t, f.reg.Eligible("alice"))
	_, err = f.engine.TryPairOne(context.Background(), f.arena.ID, "carol")
	assert.ErrorIs(t, err, ErrNoEligibleOpponent, "menu players are not pairable")

	f.clk.Advance(registry.DefaultMenuTimeout + time.Second)
	f.engine.Tick(context.Background())
	assert.False(t, f.reg.InMenu("alice"))
}

func TestPendingPauseAppliesAfterGame(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	s, err := f.engine.TryPairOne(context.Background(), f.arena.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, f.engine.LeavePage(f.arena.ID, "alice"))
	st, ok := f.rec.lastPause("alice")
	require.True(t, ok)
	assert.True(t, st.Pending)
	assert.False(t, st.Paused)

	require.NoError(t, s.Resign("bob"))
	require.Eventually(t, func() bool { return f.reg.IsPaused("alice") }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.reg.IsAutoPaused("alice"))

	require.NoError(t, f.engine.ReturnToPage(context.Background(), f.arena.ID, "alice"))
	assert.False(t, f.reg.IsPaused("alice"))
}

func TestManualPauseSurvivesReturnToPage(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.engine.Pause(f.arena.ID, "alice"))
	require.NoError(t, f.engine.ReturnToPage(context.Background(), f.arena.ID, "alice"))
	assert.True(t, f.reg.IsPaused("alice"))

	started, err := f.engine.RunRound(context.Background(), f.arena.ID)
	require.NoError(t, err)
	assert.Empty(t, started)

	require.NoError(t, f.engine.Resume(context.Background(), f.arena.ID, "alice"))
	assert.True(t, f.reg.InGame("alice"))
	st, _ := f.rec.lastPause("alice")
	assert.False(t, st.Paused)
}

func TestPauseNeedsAKnownArena(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	assert.ErrorIs(t, f.engine.Pause("nope", "alice"), tournament.ErrNotFound)
	assert.ErrorIs(t, f.engine.Resume(ctx, "nope", "alice"), tournament.ErrNotFound)
	assert.ErrorIs(t, f.engine.LeavePage("nope", "alice"), tournament.ErrNotFound)
	assert.ErrorIs(t, f.engine.ReturnToPage(ctx, "nope", "alice"), tournament.ErrNotFound)
	assert.False(t, f.reg.IsPaused("alice"))

	assert.ErrorIs(t, f.engine.Pause(f.arena.ID, "zed"), ErrNotParticipant)
	assert.False(t, f.reg.IsPaused("zed"))
}

func TestLeaveRemovesFromPool(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	require.NoError(t, f.engine.Leave(f.arena.ID, "bob"))
	assert.ErrorIs(t, f.engine.Leave(f.arena.ID, "bob"), ErrNotParticipant)

	_, err := f.engine.TryPairOne(context.Background(), f.arena.ID, "alice")
	assert.ErrorIs(t, err, ErrNoEligibleOpponent)
}

func TestCanceledGameScoresNothing(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	s, err := f.engine.TryPairOne(context.Background(), f.arena.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, f.mgr.Cancel(s.ID(), match.ReasonCanceled))
	require.Eventually(t, func() bool { return !f.reg.InGame("alice") }, 2*time.Second, 10*time.Millisecond)

	a, _ := f.arena.Participant("alice")
	assert.Zero(t, a.Games)
}
