package domain

import "time"

// RatingClass groups time controls that share one rating.
type RatingClass string

const (
	ClassBullet RatingClass = "bullet"
	ClassBlitz  RatingClass = "blitz"
)

// Classes lists every rating class in display order.
var Classes = []RatingClass{ClassBullet, ClassBlitz}

const DefaultRating = 100

type ClassStats struct {
	Rating int `json:"rating"`
	Games  int `json:"games"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

type EloEntry struct {
	At       time.Time `json:"at"`
	Rating   int       `json:"rating"`
	Delta    int       `json:"delta"`
	Opponent string    `json:"opponent"`
	MatchID  string    `json:"match_id"`
}

type BestWin struct {
	Opponent       string    `json:"opponent"`
	OpponentName   string    `json:"opponent_name"`
	OpponentRating int       `json:"opponent_rating"`
	MatchID        string    `json:"match_id"`
	At             time.Time `json:"at"`
}

type Trophy struct {
	Kind           string    `json:"kind"`
	TournamentID   string    `json:"tournament_id"`
	TournamentName string    `json:"tournament_name"`
	TournamentType string    `json:"tournament_type"`
	Rank           int       `json:"rank"`
	AwardedAt      time.Time `json:"awarded_at"`
}

type PlayerRecord struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	Stats          map[RatingClass]ClassStats `json:"stats"`
	EloHistory     map[RatingClass][]EloEntry `json:"elo_history"`
	BestWins       map[RatingClass][]BestWin  `json:"best_wins"`
	TournamentsWon map[string]int             `json:"tournaments_won"`
	Trophies       []Trophy                   `json:"trophies"`
	Title          string                     `json:"title"`
	HighestTitle   string                     `json:"highest_title"`
	AdminLevel     int                        `json:"admin_level"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// NewPlayer returns a record with the default rating in every class.
func NewPlayer(id, name string, now time.Time) *PlayerRecord {
	p := &PlayerRecord{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	p.ensure()
	return p
}

func (p *PlayerRecord) ensure() {
	if p.Stats == nil {
		p.Stats = make(map[RatingClass]ClassStats, len(Classes))
	}
	for _, c := range Classes {
		if _, ok := p.Stats[c]; !ok {
			p.Stats[c] = ClassStats{Rating: DefaultRating}
		}
	}
	if p.EloHistory == nil {
		p.EloHistory = make(map[RatingClass][]EloEntry)
	}
	if p.BestWins == nil {
		p.BestWins = make(map[RatingClass][]BestWin)
	}
	if p.TournamentsWon == nil {
		p.TournamentsWon = make(map[string]int)
	}
}

// Class returns the stats of class c, defaulting the rating.
func (p *PlayerRecord) Class(c RatingClass) ClassStats {
	p.ensure()
	return p.Stats[c]
}

func (p *PlayerRecord) SetClass(c RatingClass, s ClassStats) {
	p.ensure()
	p.Stats[c] = s
}

// Touch stamps an update. Records that were never stored also get their
// creation time.
func (p *PlayerRecord) Touch(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// Normalize fills maps missing from older stored records.
func (p *PlayerRecord) Normalize() { p.ensure() }

// BestRating is the highest rating across classes.
func (p *PlayerRecord) BestRating() int {
	p.ensure()
	best := 0
	for _, c := range Classes {
		if r := p.Stats[c].Rating; r > best {
			best = r
		}
	}
	return best
}

func (p *PlayerRecord) Clone() *PlayerRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.Stats = make(map[RatingClass]ClassStats, len(p.Stats))
	for k, v := range p.Stats {
		c.Stats[k] = v
	}
	c.EloHistory = make(map[RatingClass][]EloEntry, len(p.EloHistory))
	for k, v := range p.EloHistory {
		c.EloHistory[k] = append([]EloEntry(nil), v...)
	}
	c.BestWins = make(map[RatingClass][]BestWin, len(p.BestWins))
	for k, v := range p.BestWins {
		c.BestWins[k] = append([]BestWin(nil), v...)
	}
	c.TournamentsWon = make(map[string]int, len(p.TournamentsWon))
	for k, v := range p.TournamentsWon {
		c.TournamentsWon[k] = v
	}
	c.Trophies = append([]Trophy(nil), p.Trophies...)
	return &c
}
