// Package milldto holds the JSON shapes exchanged with clients over the websocket gateway.
package milldto

import "encoding/json"

// Event names pushed by the server.
const (
	EventHello             = "hello"
	EventError             = "error"
	EventSeekWaiting       = "seek_waiting"
	EventSeekCanceled      = "seek_canceled"
	EventMatchStarted      = "match_started"
	EventMatchState        = "match_state"
	EventClock             = "clock"
	EventMoveMade          = "move_made"
	EventAwaitingCapture   = "awaiting_capture"
	EventDrawOffered       = "draw_offered"
	EventDrawDeclined      = "draw_declined"
	EventBerserk           = "berserk"
	EventGameOver          = "game_over"
	EventRatingUpdate      = "rating_update"
	EventTournamentList    = "tournament_list"
	EventTournamentUpdate  = "tournament_update"
	EventTournamentStarted = "tournament_started"
	EventTournamentResult  = "tournament_result"
	EventPauseState        = "pause_state"
	EventAnnouncement      = "announcement"
	EventAdminResult       = "admin_result"
	EventLeaderboard       = "leaderboard"
	EventChallengeSent     = "challenge_sent"
	EventChallengeReceived = "challenge_received"
	EventChallengeAccepted = "challenge_accepted"
	EventChallengeDeclined = "challenge_declined"
	EventChallengeExpired  = "challenge_expired"
	EventRematchOffered    = "rematch_offered"
	EventRematchDeclined   = "rematch_declined"
)

// Envelope wraps every server event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Hello struct {
	Player  string   `json:"player"`
	MatchID string   `json:"match_id,omitempty"`
	Pending []string `json:"pending,omitempty"`
}

type ClockView struct {
	WhiteMs int64  `json:"white_ms"`
	BlackMs int64  `json:"black_ms"`
	Active  string `json:"active"`
	State   string `json:"state"`
}

// MatchState is the full public view of a match session.
type MatchState struct {
	ID             string     `json:"id"`
	White          string     `json:"white"`
	Black          string     `json:"black"`
	Status         string     `json:"status"`
	TimeControl    string     `json:"time_control"`
	Rated          bool       `json:"rated"`
	TournamentID   string     `json:"tournament_id,omitempty"`
	Points         [24]string `json:"points"`
	Phase          string     `json:"phase"`
	Turn           string     `json:"turn"`
	WhiteToPlace   int        `json:"white_to_place"`
	BlackToPlace   int        `json:"black_to_place"`
	PendingCapture bool       `json:"pending_capture"`
	Moves          int        `json:"moves"`
	Clock          ClockView  `json:"clock"`
	AwaitingSide   string     `json:"awaiting_side,omitempty"`
	FirstMoveMs    int64      `json:"first_move_ms,omitempty"`
	DrawOfferFrom  string     `json:"draw_offer_from,omitempty"`
	WhiteBerserk   bool       `json:"white_berserk"`
	BlackBerserk   bool       `json:"black_berserk"`
	Winner         string     `json:"winner,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

type MoveMade struct {
	MatchID         string    `json:"match_id"`
	Side            string    `json:"side"`
	From            int       `json:"from"`
	To              int       `json:"to"`
	Capture         int       `json:"capture"`
	MillFormed      bool      `json:"mill_formed"`
	AwaitingCapture bool      `json:"awaiting_capture"`
	Clock           ClockView `json:"clock"`
}

type GameOver struct {
	MatchID      string `json:"match_id"`
	Winner       string `json:"winner"`
	Reason       string `json:"reason"`
	Text         string `json:"text,omitempty"`
	Rated        bool   `json:"rated"`
	WhiteDelta   int    `json:"white_delta"`
	BlackDelta   int    `json:"black_delta"`
	WhiteRating  int    `json:"white_rating"`
	BlackRating  int    `json:"black_rating"`
	TournamentID string `json:"tournament_id,omitempty"`
}

type StandingView struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
	Games    int    `json:"games"`
	Streak   int    `json:"streak"`
	Paused   bool   `json:"paused"`
	Series   []int  `json:"series"`
}

type TournamentView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TimeControl string         `json:"time_control"`
	Status      string         `json:"status"`
	StartsAt    int64          `json:"starts_at"`
	EndsAt      int64          `json:"ends_at"`
	Color       string         `json:"color"`
	Players     int            `json:"players"`
	Leaderboard []StandingView `json:"leaderboard,omitempty"`
}

type TournamentResult struct {
	TournamentID string `json:"tournament_id"`
	Name         string `json:"name"`
	Rank         int    `json:"rank"`
	Participants int    `json:"participants"`
	Score        int    `json:"score"`
	Trophy       string `json:"trophy,omitempty"`
	Text         string `json:"text,omitempty"`
}

type PauseState struct {
	TournamentID string `json:"tournament_id,omitempty"`
	Paused       bool   `json:"paused"`
	Pending      bool   `json:"pending"`
}

type Announcement struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type AdminResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// LeaderboardEntry is one row of a rating class leaderboard.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Player     string `json:"player"`
	Name       string `json:"name"`
	Rating     int    `json:"rating"`
	Games      int    `json:"games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	Title      string `json:"title,omitempty"`
	TitleColor string `json:"title_color,omitempty"`
	AdminLevel int    `json:"admin_level,omitempty"`
}

// Challenge is a direct game offer from one player to another.
type Challenge struct {
	ID          string `json:"id"`
	Challenger  string `json:"challenger"`
	Target      string `json:"target"`
	TimeControl string `json:"time_control"`
	Rated       bool   `json:"rated"`
	Color       string `json:"color"`
	Status      string `json:"status"`
	ExpiresAt   int64  `json:"expires_at"`
	MatchID     string `json:"match_id,omitempty"`
	Text        string `json:"text,omitempty"`
}

type RematchOffer struct {
	MatchID string `json:"match_id"`
	From    string `json:"from"`
	Text    string `json:"text,omitempty"`
}
