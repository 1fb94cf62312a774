package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/mill-arena/internal/board"
)

func TestReadIsPureWhilePaused(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, 3*time.Minute, 2*time.Second)

	fc.Advance(time.Minute)
	got := c.Read()
	assert.Equal(t, 3*time.Minute, got.White)
	assert.Equal(t, 3*time.Minute, got.Black)
	assert.Equal(t, StatePaused, c.State())
}

func TestRunningSideDecreasesMonotonically(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute, 0)
	c.Resume()

	prev := c.Read().White
	for i := 0; i < 10; i++ {
		fc.Advance(700 * time.Millisecond)
		cur := c.Read()
		require.LessOrEqual(t, cur.White, prev)
		require.Equal(t, time.Minute, cur.Black, "idle side never moves")
		prev = cur.White
	}
	assert.Equal(t, time.Minute-7*time.Second, prev)
}

func TestSwitchDeductsAndCreditsIncrement(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, 3*time.Minute, 2*time.Second)

	// opening switches happen while paused and earn nothing
	require.True(t, c.Switch(board.Black))
	require.True(t, c.Switch(board.White))
	assert.Equal(t, 3*time.Minute, c.Read().White)

	c.Resume()
	fc.Advance(5 * time.Second)
	require.True(t, c.Switch(board.Black))

	got := c.Read()
	assert.Equal(t, 3*time.Minute-5*time.Second+2*time.Second, got.White)
	assert.Equal(t, 3*time.Minute, got.Black)
	assert.Equal(t, board.Black, c.Active())

	fc.Advance(10 * time.Second)
	require.True(t, c.Switch(board.White))
	assert.Equal(t, 3*time.Minute-8*time.Second, c.Read().Black)
}

func TestNoIncrementWithoutPriorSwitch(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute, 5*time.Second)
	c.Resume()
	fc.Advance(time.Second)
	require.True(t, c.Switch(board.Black))
	assert.Equal(t, 59*time.Second, c.Read().White)
}

func TestPauseKeepsConsumedTime(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute, time.Second)
	c.Resume()
	fc.Advance(20 * time.Second)
	c.Pause()
	fc.Advance(time.Hour)
	assert.Equal(t, 40*time.Second, c.Read().White)

	c.Resume()
	fc.Advance(10 * time.Second)
	assert.Equal(t, 30*time.Second, c.Read().White)
}

func TestExpiryLatchesAndBlocksSwitch(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, 10*time.Second, 3*time.Second)
	c.Resume()
	fc.Advance(11 * time.Second)

	assert.True(t, c.Expired())
	assert.Equal(t, time.Duration(0), c.Read().White)
	assert.False(t, c.Switch(board.Black), "expired clock refuses switches")
	assert.Equal(t, time.Duration(0), c.Read().White, "no increment after expiry")
	assert.Equal(t, StateExpired, c.State())

	c.Resume()
	assert.Equal(t, StateExpired, c.State())
}

func TestBerserkHalvesOneSide(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, 3*time.Minute, 0)
	c.Berserk(board.Black)
	got := c.Read()
	assert.Equal(t, 90*time.Second, got.Black)
	assert.Equal(t, 3*time.Minute, got.White)
}

func TestSnapshot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Minute, 2*time.Second)
	c.Resume()
	fc.Advance(1500 * time.Millisecond)
	s := c.Snapshot()
	assert.Equal(t, int64(58500), s.WhiteMs)
	assert.Equal(t, int64(60000), s.BlackMs)
	assert.Equal(t, "white", s.Active)
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, int64(2000), s.Increment)
}

func TestParseTimeControl(t *testing.T) {
	tc, err := ParseTimeControl("3+2")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, tc.Initial)
	assert.Equal(t, 2*time.Second, tc.Increment)
	assert.Equal(t, "3+2", tc.String())

	tc, err = ParseTimeControl("5")
	require.NoError(t, err)
	assert.Equal(t, "5+0", tc.String())

	tc, err = ParseTimeControl("180+180")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, tc.Initial)

	for _, bad := range []string{"", "x+1", "0+1", "3+-1", "3+y", "181+0", "3+181", "9223372036854775807+0", "1+9223372036854775807"} {
		_, err := ParseTimeControl(bad)
		assert.ErrorIs(t, err, ErrBadTimeControl, bad)
	}
}
