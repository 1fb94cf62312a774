// Package tournament keeps the arena calendar, rosters, scoring and the
// end-of-arena trophies and archive.
package tournament

import (
	"sort"
	"sync"
	"time"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/rating"
	"github.com/park285/mill-arena/pkg/milldto"
)

var (
	ErrNotFound    = staticErr("tournament not found")
	ErrNotJoinable = staticErr("tournament is not open for joining")
	ErrInvalid     = staticErr("invalid tournament request")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
)

// Participant is one roster entry.
type Participant struct {
	ID       string
	Rating   int
	Score    int
	Games    int
	Wins     int
	Draws    int
	Losses   int
	Streak   int
	Berserks int
	Series   []int
	JoinedAt time.Time
}

// GameRecord is a finished tournament game as the scorer sees it.
type GameRecord struct {
	MatchID      string
	White        string
	Black        string
	Winner       board.Result
	WhiteBerserk bool
	BlackBerserk bool
}

// Award is what one player got from a scored game.
type Award struct {
	Player  string
	Outcome rating.GameOutcome
	rating.Points
}

type Tournament struct {
	ID          string
	Name        string
	Slug        string
	Type        Type
	TimeControl string
	StartsAt    time.Time
	EndsAt      time.Time
	Color       string
	Creator     string

	mu           sync.Mutex
	status       Status
	finishedAt   time.Time
	participants map[string]*Participant
	lastOpponent map[string]string
}

func newTournament(id, name, slug string, typ Type, tc string, start, end time.Time, color string) *Tournament {
	return &Tournament{
		ID:           id,
		Name:         name,
		Slug:         slug,
		Type:         typ,
		TimeControl:  tc,
		StartsAt:     start,
		EndsAt:       end,
		Color:        color,
		status:       StatusScheduled,
		participants: make(map[string]*Participant),
		lastOpponent: make(map[string]string),
	}
}

func (t *Tournament) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tournament) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// Join adds player to the roster. Joining twice keeps the earlier entry.
func (t *Tournament) Join(player string, rt int, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusFinished {
		return ErrNotJoinable
	}
	if _, ok := t.participants[player]; !ok {
		t.participants[player] = &Participant{ID: player, Rating: rt, JoinedAt: now}
	}
	return nil
}

func (t *Tournament) Leave(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.participants[player]; !ok {
		return false
	}
	delete(t.participants, player)
	return true
}

func (t *Tournament) Has(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.participants[player]
	return ok
}

// Participant returns a copy of player's entry.
func (t *Tournament) Participant(player string) (Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.participants[player]
	if !ok {
		return Participant{}, false
	}
	return p.copy(), true
}

// Participants returns copies of every entry in no particular order.
func (t *Tournament) Participants() []Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Participant, 0, len(t.participants))
	for _, p := range t.participants {
		out = append(out, p.copy())
	}
	return out
}

func (t *Tournament) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.participants)
}

func (t *Tournament) LastOpponent(player string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastOpponent[player]
}

// SetLastOpponents records a and b as each other's last opponent.
func (t *Tournament) SetLastOpponents(a, b string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastOpponent[a] = b
	t.lastOpponent[b] = a
}

// RecordGame scores a finished game for the participants still on the roster.
// Games finishing after the arena closed score nothing and report false.
func (t *Tournament) RecordGame(g GameRecord) ([]Award, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusFinished {
		return nil, false
	}
	var awards []Award
	for _, side := range []struct {
		id      string
		color   board.Color
		berserk bool
	}{{g.White, board.White, g.WhiteBerserk}, {g.Black, board.Black, g.BlackBerserk}} {
		p, ok := t.participants[side.id]
		if !ok {
			continue
		}
		outcome := outcomeFor(g.Winner, side.color)
		pts := rating.TournamentPoints(outcome, side.berserk, p.Streak)
		p.Games++
		p.Score += pts.Points
		p.Streak = pts.Streak
		p.Series = append(p.Series, pts.Points)
		if side.berserk {
			p.Berserks++
		}
		switch outcome {
		case rating.Win:
			p.Wins++
		case rating.Draw:
			p.Draws++
		default:
			p.Losses++
		}
		awards = append(awards, Award{Player: side.id, Outcome: outcome, Points: pts})
	}
	return awards, true
}

func outcomeFor(winner board.Result, side board.Color) rating.GameOutcome {
	switch {
	case winner == board.ResultDraw:
		return rating.Draw
	case winner == board.ResultWhite && side == board.White, winner == board.ResultBlack && side == board.Black:
		return rating.Win
	default:
		return rating.Loss
	}
}

// Standings orders the roster by score desc, then games asc.
func (t *Tournament) Standings() []domain.Standing {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.standingsLocked()
}

func (t *Tournament) standingsLocked() []domain.Standing {
	rows := make([]domain.Standing, 0, len(t.participants))
	for _, p := range t.participants {
		rows = append(rows, domain.Standing{
			PlayerID: p.ID,
			Name:     p.ID,
			Score:    p.Score,
			Games:    p.Games,
			Wins:     p.Wins,
			Draws:    p.Draws,
			Losses:   p.Losses,
			Series:   append([]int(nil), p.Series...),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		if rows[i].Games != rows[j].Games {
			return rows[i].Games < rows[j].Games
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// View renders the arena for clients. paused may be nil.
func (t *Tournament) View(withBoard bool, paused func(string) bool) milldto.TournamentView {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := milldto.TournamentView{
		ID:          t.ID,
		Name:        t.Name,
		Type:        string(t.Type),
		TimeControl: t.TimeControl,
		Status:      string(t.status),
		StartsAt:    t.StartsAt.UnixMilli(),
		EndsAt:      t.EndsAt.UnixMilli(),
		Color:       t.Color,
		Players:     len(t.participants),
	}
	if !withBoard {
		return v
	}
	for _, s := range t.standingsLocked() {
		row := milldto.StandingView{
			Rank:     s.Rank,
			PlayerID: s.PlayerID,
			Score:    s.Score,
			Games:    s.Games,
			Streak:   t.participants[s.PlayerID].Streak,
			Series:   s.Series,
		}
		if paused != nil {
			row.Paused = paused(s.PlayerID)
		}
		v.Leaderboard = append(v.Leaderboard, row)
	}
	return v
}

func (p *Participant) copy() Participant {
	cp := *p
	cp.Series = append([]int(nil), p.Series...)
	return cp
}
