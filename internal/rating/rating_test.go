package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/domain"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func players(wr, br int) (*domain.PlayerRecord, *domain.PlayerRecord) {
	w := domain.NewPlayer("w", "White", epoch)
	b := domain.NewPlayer("b", "Black", epoch)
	w.SetClass(domain.ClassBlitz, domain.ClassStats{Rating: wr})
	b.SetClass(domain.ClassBlitz, domain.ClassStats{Rating: br})
	return w, b
}

func TestEqualRatingsWhiteWins(t *testing.T) {
	w, b := players(100, 100)
	ch, err := Apply(Game{MatchID: "m1", White: w, Black: b, Winner: board.ResultWhite, Class: domain.ClassBlitz, Rated: true, At: epoch})
	require.NoError(t, err)

	assert.Equal(t, 16, ch.WhiteDelta)
	assert.Equal(t, -16, ch.BlackDelta)
	assert.Equal(t, 116, w.Class(domain.ClassBlitz).Rating)
	assert.Equal(t, 84, b.Class(domain.ClassBlitz).Rating)
	assert.Equal(t, 1, w.Class(domain.ClassBlitz).Wins)
	assert.Equal(t, 1, b.Class(domain.ClassBlitz).Losses)
	assert.Equal(t, 100, w.Class(domain.ClassBullet).Rating, "other class untouched")

	require.Len(t, w.EloHistory[domain.ClassBlitz], 1)
	assert.Equal(t, 116, w.EloHistory[domain.ClassBlitz][0].Rating)
	require.Len(t, w.BestWins[domain.ClassBlitz], 1)
	assert.Equal(t, 84, w.BestWins[domain.ClassBlitz][0].OpponentRating)
}

func TestKFactorBands(t *testing.T) {
	assert.Equal(t, 32.0, KFactor(1499))
	assert.Equal(t, 24.0, KFactor(1500))
	assert.Equal(t, 24.0, KFactor(1999))
	assert.Equal(t, 16.0, KFactor(2000))
}

func TestDrawBetweenEqualsIsZero(t *testing.T) {
	dw, db := Deltas(1200, 1200, board.ResultDraw)
	assert.Zero(t, dw)
	assert.Zero(t, db)
}

func TestDecisiveGameMovesAtLeastOne(t *testing.T) {
	// the loser's expected score rounds to a zero change
	dw, db := Deltas(3000, 2000, board.ResultWhite)
	assert.Zero(t, dw, "favourite gains nothing past the farming gap")
	assert.Equal(t, -1, db)

	dw, db = Deltas(1399, 1000, board.ResultWhite)
	assert.Equal(t, 3, dw)
	assert.Equal(t, -3, db)
}

func TestAntiFarmingZeroesHigherRatedWinner(t *testing.T) {
	dw, db := Deltas(1500, 1000, board.ResultWhite)
	assert.Zero(t, dw)
	assert.Equal(t, -2, db)

	// the underdog still gains
	dw, db = Deltas(1500, 1000, board.ResultBlack)
	assert.Less(t, dw, 0)
	assert.Greater(t, db, 0)
}

func TestRatingFloor(t *testing.T) {
	w, b := players(60, 60)
	_, err := Apply(Game{White: w, Black: b, Winner: board.ResultWhite, Class: domain.ClassBlitz, Rated: true, At: epoch})
	require.NoError(t, err)
	assert.Equal(t, RatingFloor, b.Class(domain.ClassBlitz).Rating)
}

func TestFriendlyOnlyCounts(t *testing.T) {
	w, b := players(100, 100)
	ch, err := Apply(Game{White: w, Black: b, Winner: board.ResultDraw, Class: domain.ClassBlitz, Rated: false, At: epoch})
	require.NoError(t, err)
	assert.Zero(t, ch.WhiteDelta)
	assert.Equal(t, 100, w.Class(domain.ClassBlitz).Rating)
	assert.Equal(t, 1, w.Class(domain.ClassBlitz).Draws)
	assert.Equal(t, 1, b.Class(domain.ClassBlitz).Games)
	assert.Empty(t, w.EloHistory[domain.ClassBlitz])
}

func TestApplyRequiresResult(t *testing.T) {
	w, b := players(100, 100)
	_, err := Apply(Game{White: w, Black: b, Class: domain.ClassBlitz, Rated: true})
	require.ErrorIs(t, err, ErrNoWinner)
}

func TestBestWinsKeepsTopFive(t *testing.T) {
	w := domain.NewPlayer("w", "W", epoch)
	for i, r := range []int{300, 900, 100, 700, 500, 800, 200} {
		loser := domain.NewPlayer("l", "L", epoch)
		loser.SetClass(domain.ClassBullet, domain.ClassStats{Rating: r})
		recordBestWin(w, loser, Game{MatchID: string(rune('a' + i)), Class: domain.ClassBullet, At: epoch})
	}
	got := w.BestWins[domain.ClassBullet]
	require.Len(t, got, MaxBestWins)
	var ratings []int
	for _, bw := range got {
		ratings = append(ratings, bw.OpponentRating)
	}
	assert.Equal(t, []int{900, 800, 700, 500, 300}, ratings)
}

func TestTitlesArePermanent(t *testing.T) {
	p := domain.NewPlayer("p", "P", epoch)
	p.SetClass(domain.ClassBullet, domain.ClassStats{Rating: 1510})
	UpdateTitle(p)
	assert.Equal(t, "L", p.Title)
	assert.Equal(t, "L", p.HighestTitle)

	p.SetClass(domain.ClassBullet, domain.ClassStats{Rating: 990})
	UpdateTitle(p)
	assert.Equal(t, "I", p.Title)
	assert.Equal(t, "L", p.HighestTitle)
	assert.Equal(t, "L", DisplayTitle(p))

	p.SetClass(domain.ClassBullet, domain.ClassStats{Rating: 400})
	UpdateTitle(p)
	assert.Empty(t, p.Title)
	assert.Equal(t, "L", DisplayTitle(p))
}

func TestClassFor(t *testing.T) {
	for _, tc := range []string{"1+0", "1+1", "2+1"} {
		assert.Equal(t, domain.ClassBullet, ClassFor(tc), tc)
	}
	for _, tc := range []string{"3+2", "5+0", "2+0", "10+5"} {
		assert.Equal(t, domain.ClassBlitz, ClassFor(tc), tc)
	}
}

func TestTournamentPoints(t *testing.T) {
	cases := []struct {
		name    string
		outcome GameOutcome
		berserk bool
		streak  int
		want    Points
	}{
		{"plain win", Win, false, 0, Points{Points: 2, Streak: 1}},
		{"berserk win", Win, true, 0, Points{Points: 3, Streak: 1, Berserked: true}},
		{"third win", Win, false, 2, Points{Points: 4, Streak: 3, OnStreak: true}},
		{"third win berserk", Win, true, 2, Points{Points: 5, Streak: 3, OnStreak: true, Berserked: true}},
		{"draw", Draw, false, 1, Points{Points: 1}},
		{"draw on streak", Draw, false, 3, Points{Points: 2, OnStreak: true}},
		{"loss", Loss, true, 5, Points{Berserked: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TournamentPoints(tc.outcome, tc.berserk, tc.streak))
		})
	}
}
