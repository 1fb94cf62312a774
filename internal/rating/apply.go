package rating

import (
	"errors"
	"sort"
	"time"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/domain"
)

// MaxBestWins is how many best wins are kept per class.
const MaxBestWins = 5

var ErrNoWinner = errors.New("rating: game has no result")

// Game is a finished match as seen by the rating engine.
type Game struct {
	MatchID string
	White   *domain.PlayerRecord
	Black   *domain.PlayerRecord
	Winner  board.Result
	Class   domain.RatingClass
	Rated   bool
	At      time.Time
}

// Change is the effect of Apply on both players.
type Change struct {
	WhiteDelta  int `json:"white_delta"`
	BlackDelta  int `json:"black_delta"`
	WhiteRating int `json:"white_rating"`
	BlackRating int `json:"black_rating"`
}

// Apply updates both records in place. Friendly games only bump counters.
func Apply(g Game) (Change, error) {
	if g.Winner == board.ResultNone {
		return Change{}, ErrNoWinner
	}
	w, b := g.White, g.Black
	ws, bs := w.Class(g.Class), b.Class(g.Class)

	count(&ws, &bs, g.Winner)

	ch := Change{WhiteRating: ws.Rating, BlackRating: bs.Rating}
	if !g.Rated {
		w.SetClass(g.Class, ws)
		b.SetClass(g.Class, bs)
		touch(w, b, g.At)
		return ch, nil
	}

	dw, db := Deltas(ws.Rating, bs.Rating, g.Winner)
	ws.Rating = floor(ws.Rating + dw)
	bs.Rating = floor(bs.Rating + db)
	w.SetClass(g.Class, ws)
	b.SetClass(g.Class, bs)
	ch = Change{WhiteDelta: dw, BlackDelta: db, WhiteRating: ws.Rating, BlackRating: bs.Rating}

	UpdateTitle(w)
	UpdateTitle(b)

	w.EloHistory[g.Class] = append(w.EloHistory[g.Class], domain.EloEntry{
		At: g.At, Rating: ws.Rating, Delta: dw, Opponent: b.ID, MatchID: g.MatchID,
	})
	b.EloHistory[g.Class] = append(b.EloHistory[g.Class], domain.EloEntry{
		At: g.At, Rating: bs.Rating, Delta: db, Opponent: w.ID, MatchID: g.MatchID,
	})

	switch g.Winner {
	case board.ResultWhite:
		recordBestWin(w, b, g)
	case board.ResultBlack:
		recordBestWin(b, w, g)
	}
	touch(w, b, g.At)
	return ch, nil
}

func count(ws, bs *domain.ClassStats, winner board.Result) {
	ws.Games++
	bs.Games++
	switch winner {
	case board.ResultWhite:
		ws.Wins++
		bs.Losses++
	case board.ResultBlack:
		bs.Wins++
		ws.Losses++
	default:
		ws.Draws++
		bs.Draws++
	}
}

// recordBestWin keeps the top wins by the loser's rating after this game.
func recordBestWin(winner, loser *domain.PlayerRecord, g Game) {
	list := append(winner.BestWins[g.Class], domain.BestWin{
		Opponent:       loser.ID,
		OpponentName:   loser.Name,
		OpponentRating: loser.Class(g.Class).Rating,
		MatchID:        g.MatchID,
		At:             g.At,
	})
	sort.SliceStable(list, func(i, j int) bool { return list[i].OpponentRating > list[j].OpponentRating })
	if len(list) > MaxBestWins {
		list = list[:MaxBestWins]
	}
	winner.BestWins[g.Class] = list
}

func touch(w, b *domain.PlayerRecord, at time.Time) {
	w.Touch(at)
	b.Touch(at)
}
