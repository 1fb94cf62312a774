package board

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(phase Phase, turn Color, white, black []int) *Board {
	b := New()
	for _, p := range white {
		b.points[p] = White
	}
	for _, p := range black {
		b.points[p] = Black
	}
	b.phase = phase
	b.turn = turn
	if phase != PhasePlacing {
		b.toPlace = [3]int{}
		b.placed = totalPlacements
	}
	return b
}

func TestPlacingRejectsOccupiedPoint(t *testing.T) {
	b := New()
	_, err := b.ApplyMove(NoPoint, 5, NoPoint)
	require.NoError(t, err)

	before := b.Snapshot()
	_, err = b.ApplyMove(NoPoint, 5, NoPoint)
	require.ErrorIs(t, err, ErrIllegalMove)
	assert.Equal(t, before, b.Snapshot(), "rejected move must not change the board")
	assert.Equal(t, Black, b.Turn())
}

func TestMillAwaitsCaptureThenSwitches(t *testing.T) {
	b := New()
	for _, mv := range []int{0, 3, 1, 4} {
		_, err := b.ApplyMove(NoPoint, mv, NoPoint)
		require.NoError(t, err)
	}
	out, err := b.ApplyMove(NoPoint, 2, NoPoint)
	require.NoError(t, err)
	assert.True(t, out.MillFormed)
	assert.True(t, out.AwaitingCapture)
	assert.Equal(t, White, b.Turn(), "side to move stays while capture pending")
	assert.ElementsMatch(t, []int{3, 4}, b.LegalTargets())

	_, err = b.ApplyMove(NoPoint, 10, NoPoint)
	require.ErrorIs(t, err, ErrIllegalMove, "only a capture is accepted while pending")

	_, err = b.Capture(0)
	require.ErrorIs(t, err, ErrIllegalMove, "own piece is never a target")

	out, err = b.Capture(3)
	require.NoError(t, err)
	assert.True(t, out.Captured)
	assert.Equal(t, Black, b.Turn())
	assert.Equal(t, None, b.At(3))
	assert.Equal(t, 3, b.Log()[4].Capture)
}

func TestInlineCapture(t *testing.T) {
	b := New()
	for _, mv := range []int{0, 3, 1, 4} {
		_, err := b.ApplyMove(NoPoint, mv, NoPoint)
		require.NoError(t, err)
	}
	out, err := b.ApplyMove(NoPoint, 2, 4)
	require.NoError(t, err)
	assert.True(t, out.Captured)
	assert.False(t, out.AwaitingCapture)
	assert.Equal(t, Black, b.Turn())
}

func TestCaptureWithoutMillRejected(t *testing.T) {
	b := New()
	_, err := b.ApplyMove(NoPoint, 0, NoPoint)
	require.NoError(t, err)
	_, err = b.ApplyMove(NoPoint, 3, 0)
	require.ErrorIs(t, err, ErrIllegalMove)
	assert.Equal(t, 1, b.Occupied())
}

func TestCaptureRespectsIntactMills(t *testing.T) {
	// black holds the mill 3-4-5 plus a loose piece on 10
	b := setup(PhaseMoving, White, []int{0, 1, 14, 20}, []int{3, 4, 5, 10})

	_, err := b.Clone().ApplyMove(14, 2, 4)
	require.ErrorIs(t, err, ErrIllegalMove, "piece inside an intact mill is protected")

	out, err := b.ApplyMove(14, 2, 10)
	require.NoError(t, err)
	assert.True(t, out.Captured)
	assert.Equal(t, None, b.At(10))
}

func TestCaptureAllowedWhenEveryPieceInMill(t *testing.T) {
	b := setup(PhaseMoving, White, []int{0, 1, 14, 20}, []int{3, 4, 5, 6, 7, 8})
	assert.True(t, b.CanCapture(Black, 4))

	out, err := b.ApplyMove(14, 2, 4)
	require.NoError(t, err)
	assert.True(t, out.Captured)
}

func TestMillWithoutTargetsSwitchesSide(t *testing.T) {
	b := setup(PhasePlacing, White, []int{0, 1}, nil)
	b.placed = 2
	b.toPlace[White] = 7

	out, err := b.ApplyMove(NoPoint, 2, NoPoint)
	require.NoError(t, err)
	assert.True(t, out.MillFormed)
	assert.False(t, out.AwaitingCapture)
	assert.Equal(t, Black, b.Turn())
}

func TestMovingRequiresAdjacency(t *testing.T) {
	b := setup(PhaseMoving, White, []int{0, 6, 12, 19}, []int{3, 8, 15, 22})

	_, err := b.Clone().ApplyMove(0, 23, NoPoint)
	require.ErrorIs(t, err, ErrIllegalMove)

	_, err = b.Clone().ApplyMove(3, 4, NoPoint)
	require.ErrorIs(t, err, ErrIllegalMove, "cannot move the opponent's piece")

	_, err = b.ApplyMove(0, 1, NoPoint)
	require.NoError(t, err)
}

func TestFlyingIsPerSide(t *testing.T) {
	b := setup(PhaseMoving, White, []int{0, 6, 12}, []int{3, 8, 15, 22})

	_, err := b.ApplyMove(0, 23, NoPoint)
	require.NoError(t, err, "white has three pieces and may fly")
	assert.Equal(t, PhaseFlying, b.Phase())

	_, err = b.Clone().ApplyMove(3, 20, NoPoint)
	require.ErrorIs(t, err, ErrIllegalMove, "black still has four pieces")
}

func TestLoseWithTwoPiecesAfterPlacing(t *testing.T) {
	b := setup(PhaseMoving, White, []int{0, 1, 14, 20}, []int{3, 8, 15})

	_, err := b.ApplyMove(14, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, ResultWhite, b.EvaluateResult())

	_, err = b.ApplyMove(8, 7, NoPoint)
	require.ErrorIs(t, err, ErrFinished)
}

func TestNoLossDuringPlacing(t *testing.T) {
	b := setup(PhasePlacing, White, []int{0, 1}, []int{3})
	b.placed = 3
	b.toPlace = [3]int{0, 7, 8}
	_, err := b.ApplyMove(NoPoint, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, ResultNone, b.EvaluateResult())
}

func TestQuietWindowDraw(t *testing.T) {
	b := setup(PhaseMoving, White, []int{0, 6, 12, 19}, []int{3, 8, 15, 22})
	b.quietWindow = 4
	moves := [][2]int{{0, 1}, {3, 4}, {1, 0}, {4, 3}}
	for i, mv := range moves {
		_, err := b.ApplyMove(mv[0], mv[1], NoPoint)
		require.NoError(t, err)
		if i < len(moves)-1 {
			require.Equal(t, ResultNone, b.EvaluateResult())
		}
	}
	assert.Equal(t, ResultDraw, b.EvaluateResult())
}

// Random legal games keep occupancy bounded while placing and monotone afterwards.
func TestOccupancyInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for game := 0; game < 50; game++ {
		b := New(WithQuietWindow(40))
		prevWhite, prevBlack := 0, 0
		for ply := 0; ply < 400 && b.EvaluateResult() == ResultNone; ply++ {
			if !playRandom(t, rng, b) {
				break
			}
			occ := b.Occupied()
			if b.Phase() == PhasePlacing {
				require.LessOrEqual(t, occ, totalPlacements)
			} else if prevWhite > 0 {
				require.LessOrEqual(t, b.PieceCount(White), prevWhite)
				require.LessOrEqual(t, b.PieceCount(Black), prevBlack)
			}
			if b.Phase() != PhasePlacing {
				prevWhite, prevBlack = b.PieceCount(White), b.PieceCount(Black)
			}
		}
	}
}

func playRandom(t *testing.T, rng *rand.Rand, b *Board) bool {
	t.Helper()
	if b.PendingCapture() {
		targets := b.LegalTargets()
		_, err := b.Capture(targets[rng.Intn(len(targets))])
		require.NoError(t, err)
		return true
	}
	type cand struct{ from, to int }
	var cands []cand
	for to := 0; to < Points; to++ {
		if b.At(to) != None {
			continue
		}
		if b.Phase() == PhasePlacing {
			cands = append(cands, cand{NoPoint, to})
			continue
		}
		for from := 0; from < Points; from++ {
			if b.At(from) != b.Turn() {
				continue
			}
			if _, err := b.Clone().ApplyMove(from, to, NoPoint); err == nil {
				cands = append(cands, cand{from, to})
			}
		}
	}
	if len(cands) == 0 {
		return false
	}
	c := cands[rng.Intn(len(cands))]
	out, err := b.ApplyMove(c.from, c.to, NoPoint)
	require.NoError(t, err)
	if out.MillFormed {
		require.True(t, inMill(&b.points, c.to), "reported mill must be on the board")
	}
	return true
}

func TestIllegalMoveIsWrapped(t *testing.T) {
	b := New()
	_, err := b.ApplyMove(NoPoint, 99, NoPoint)
	require.True(t, errors.Is(err, ErrIllegalMove))
}
