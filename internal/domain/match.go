package domain

import "time"

// MoveRecord is one accepted action with the clock reading taken right after it.
type MoveRecord struct {
	Side    string    `json:"side"`
	From    int       `json:"from"`
	To      int       `json:"to"`
	Capture int       `json:"capture"`
	Mill    bool      `json:"mill"`
	WhiteMs int64     `json:"white_ms"`
	BlackMs int64     `json:"black_ms"`
	At      time.Time `json:"at"`
}

type MatchSummary struct {
	ID           string       `json:"id"`
	White        string       `json:"white"`
	Black        string       `json:"black"`
	Winner       string       `json:"winner"`
	Reason       string       `json:"reason"`
	TimeControl  string       `json:"time_control"`
	Class        RatingClass  `json:"class"`
	Rated        bool         `json:"rated"`
	TournamentID string       `json:"tournament_id,omitempty"`
	WhiteBerserk bool         `json:"white_berserk"`
	BlackBerserk bool         `json:"black_berserk"`
	Moves        []MoveRecord `json:"moves"`
	WhiteDelta   int          `json:"white_delta"`
	BlackDelta   int          `json:"black_delta"`
	WhiteRating  int          `json:"white_rating"`
	BlackRating  int          `json:"black_rating"`
	StartedAt    time.Time    `json:"started_at"`
	EndedAt      time.Time    `json:"ended_at"`
}

type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Games    int    `json:"games"`
	Wins     int    `json:"wins"`
	Draws    int    `json:"draws"`
	Losses   int    `json:"losses"`
	Series   []int  `json:"series"`
}

type ArchivedTournament struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	TimeControl  string     `json:"time_control"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       time.Time  `json:"ends_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	Color        string     `json:"color"`
	Participants int        `json:"participants"`
	Leaderboard  []Standing `json:"leaderboard"`
}
