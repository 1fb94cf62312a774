package milldto

// Command names accepted by the gateway.
const (
	CmdSeek            = "seek"
	CmdCancelSeek      = "cancel_seek"
	CmdMove            = "move"
	CmdCapture         = "capture"
	CmdResign          = "resign"
	CmdOfferDraw       = "offer_draw"
	CmdAcceptDraw      = "accept_draw"
	CmdDeclineDraw     = "decline_draw"
	CmdBerserk         = "berserk"
	CmdJoinTournament  = "join_tournament"
	CmdLeaveTournament = "leave_tournament"
	CmdRequestPairing  = "request_pairing"
	CmdReady           = "ready"
	CmdPause           = "pause"
	CmdResume          = "resume"
	CmdPageLeave       = "page_leave"
	CmdPageReturn      = "page_return"
	CmdListTournaments = "list_tournaments"
	CmdState           = "state"
	CmdAdmin           = "admin"
	CmdLeaderboard     = "leaderboard"
)

// Direct challenge and rematch commands.
const (
	CmdSendChallenge    = "send_challenge"
	CmdAcceptChallenge  = "accept_challenge"
	CmdDeclineChallenge = "decline_challenge"
	CmdRequestRematch   = "request_rematch"
	CmdAcceptRematch    = "accept_rematch"
	CmdDeclineRematch   = "decline_rematch"
)

// Command is the single inbound message shape; unused fields stay zero.
type Command struct {
	Type         string `json:"type"`
	MatchID      string `json:"match_id,omitempty"`
	TournamentID string `json:"tournament_id,omitempty"`
	TimeControl  string `json:"time_control,omitempty"`
	Friendly     bool   `json:"friendly,omitempty"`
	From         *int   `json:"from,omitempty"`
	To           *int   `json:"to,omitempty"`
	Capture      *int   `json:"capture,omitempty"`
	Point        *int   `json:"point,omitempty"`
	Admin        *Admin `json:"admin,omitempty"`
	Opponent     string `json:"opponent,omitempty"`
	ChallengeID  string `json:"challenge_id,omitempty"`
	Color        string `json:"color,omitempty"`
	Class        string `json:"class,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Admin carries an administrative action.
type Admin struct {
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Level       string `json:"level,omitempty"`
	Class       string `json:"class,omitempty"`
	Rating      int    `json:"rating,omitempty"`
	Type        string `json:"type,omitempty"`
	TimeControl string `json:"time_control,omitempty"`
	Minutes     int    `json:"minutes,omitempty"`
	Message     string `json:"message,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// IntOr dereferences p or returns def.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
