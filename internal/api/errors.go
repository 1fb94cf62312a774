package api

import (
	"errors"

	"github.com/park285/mill-arena/internal/access"
	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/challenge"
	"github.com/park285/mill-arena/internal/clock"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/pairing"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/seek"
	"github.com/park285/mill-arena/internal/tournament"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadRequest     = errors.New("bad request")
	ErrNoMatch        = errors.New("no active match")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{access.ErrForbidden, "forbidden"},
	{board.ErrIllegalMove, "illegal_move"},
	{board.ErrFinished, "match_closed"},
	{match.ErrMatchClosed, "match_closed"},
	{match.ErrNotYourTurn, "not_your_turn"},
	{match.ErrNotParticipant, "not_participant"},
	{match.ErrBerserkNotAllowed, "berserk_not_allowed"},
	{match.ErrNoDrawOffer, "no_draw_offer"},
	{match.ErrPlayerBusy, "busy"},
	{match.ErrSamePlayer, "bad_request"},
	{match.ErrNotFound, "not_found"},
	{clock.ErrBadTimeControl, "bad_time_control"},
	{challenge.ErrInvalidArgs, "bad_request"},
	{challenge.ErrSelfChallenge, "bad_request"},
	{challenge.ErrAlreadyPending, "already_pending"},
	{challenge.ErrNoPending, "no_challenge"},
	{challenge.ErrNotTarget, "not_target"},
	{challenge.ErrOffline, "offline"},
	{challenge.ErrInGame, "busy"},
	{challenge.ErrBanned, "banned"},
	{challenge.ErrPaused, "paused"},
	{challenge.ErrNoRematch, "no_rematch"},
	{seek.ErrInGame, "busy"},
	{seek.ErrBanned, "banned"},
	{seek.ErrPaused, "paused"},
	{pairing.ErrBanned, "banned"},
	{pairing.ErrNotParticipant, "not_participant"},
	{pairing.ErrNotActive, "not_active"},
	{tournament.ErrNotFound, "not_found"},
	{tournament.ErrNotJoinable, "not_joinable"},
	{tournament.ErrInvalid, "bad_request"},
	{persist.ErrNotFound, "not_found"},
	{ErrNoMatch, "no_match"},
	{ErrBadRequest, "bad_request"},
	{ErrUnknownCommand, "unknown_command"},
}

// codeFor maps an action error to the code sent to the client.
func codeFor(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
