package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/mill-arena/internal/board"
	"github.com/park285/mill-arena/internal/challenge"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/pairing"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

// Dispatch runs one player command. Results reach the player as events; the
// returned error is reported back as an error event by the caller.
func (s *Server) Dispatch(ctx context.Context, player string, cmd milldto.Command) error {
	switch cmd.Type {
	case milldto.CmdSeek:
		tc := strings.TrimSpace(cmd.TimeControl)
		if tc == "" {
			return fmt.Errorf("%w: time_control is required", ErrBadRequest)
		}
		_, err := s.seeks.Seek(ctx, player, tc, !cmd.Friendly)
		return err
	case milldto.CmdCancelSeek:
		s.seeks.Cancel(player)
		return nil

	case milldto.CmdSendChallenge:
		_, err := s.challenges.Create(ctx, player, cmd.Opponent, cmd.TimeControl, !cmd.Friendly, challenge.ParseColorChoice(cmd.Color))
		return err
	case milldto.CmdAcceptChallenge:
		_, err := s.challenges.Accept(ctx, player, cmd.ChallengeID)
		return err
	case milldto.CmdDeclineChallenge:
		_, err := s.challenges.Decline(player, cmd.ChallengeID)
		return err
	case milldto.CmdRequestRematch, milldto.CmdAcceptRematch:
		_, err := s.challenges.RequestRematch(ctx, player, cmd.MatchID)
		return err
	case milldto.CmdDeclineRematch:
		return s.challenges.DeclineRematch(player, cmd.MatchID)

	case milldto.CmdMove:
		sess, err := s.session(player, cmd.MatchID)
		if err != nil {
			return err
		}
		_, err = sess.Move(player,
			milldto.IntOr(cmd.From, board.NoPoint),
			milldto.IntOr(cmd.To, board.NoPoint),
			milldto.IntOr(cmd.Capture, board.NoPoint))
		return err
	case milldto.CmdCapture:
		sess, err := s.session(player, cmd.MatchID)
		if err != nil {
			return err
		}
		_, err = sess.Capture(player, milldto.IntOr(cmd.Point, board.NoPoint))
		return err
	case milldto.CmdResign, milldto.CmdOfferDraw, milldto.CmdAcceptDraw, milldto.CmdDeclineDraw, milldto.CmdBerserk:
		sess, err := s.session(player, cmd.MatchID)
		if err != nil {
			return err
		}
		return sessionAction(sess, cmd.Type, player)
	case milldto.CmdState:
		return s.sendState(ctx, player, cmd.MatchID)

	case milldto.CmdJoinTournament:
		_, err := s.pairing.Join(ctx, cmd.TournamentID, player)
		return err
	case milldto.CmdLeaveTournament:
		return s.pairing.Leave(cmd.TournamentID, player)
	case milldto.CmdRequestPairing:
		_, err := s.pairing.TryPairOne(ctx, cmd.TournamentID, player)
		if errors.Is(err, pairing.ErrNoEligibleOpponent) {
			return nil
		}
		return err
	case milldto.CmdReady:
		return s.pairing.Ready(cmd.TournamentID, player)
	case milldto.CmdPause:
		return s.pairing.Pause(cmd.TournamentID, player)
	case milldto.CmdResume:
		return s.pairing.Resume(ctx, cmd.TournamentID, player)
	case milldto.CmdPageLeave:
		return s.pairing.LeavePage(cmd.TournamentID, player)
	case milldto.CmdPageReturn:
		return s.pairing.ReturnToPage(ctx, cmd.TournamentID, player)
	case milldto.CmdListTournaments:
		s.hub.Subscribe(tournament.TopicAll, player)
		s.hub.Notify(player, milldto.EventTournamentList, s.tournamentViews())
		return nil
	case milldto.CmdLeaderboard:
		rows, err := s.leaderboard(ctx, cmd.Class, cmd.Limit)
		if err != nil {
			return err
		}
		s.hub.Notify(player, milldto.EventLeaderboard, rows)
		return nil

	case milldto.CmdAdmin:
		if cmd.Admin == nil {
			return fmt.Errorf("%w: admin payload missing", ErrBadRequest)
		}
		res, err := s.runAdmin(ctx, player, *cmd.Admin)
		if err != nil {
			return err
		}
		s.hub.Notify(player, milldto.EventAdminResult, res)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

func sessionAction(sess *match.Session, typ, player string) error {
	switch typ {
	case milldto.CmdResign:
		return sess.Resign(player)
	case milldto.CmdOfferDraw:
		return sess.OfferDraw(player)
	case milldto.CmdAcceptDraw:
		return sess.AcceptDraw(player)
	case milldto.CmdDeclineDraw:
		return sess.DeclineDraw(player)
	default:
		return sess.Berserk(player)
	}
}

// session resolves the match a command targets: the given id, or the
// player's live match when the id is empty.
func (s *Server) session(player, matchID string) (*match.Session, error) {
	if matchID = strings.TrimSpace(matchID); matchID != "" {
		sess, ok := s.matches.Get(matchID)
		if !ok {
			return nil, match.ErrNotFound
		}
		return sess, nil
	}
	sess, ok := s.matches.ActiveFor(player)
	if !ok {
		return nil, ErrNoMatch
	}
	return sess, nil
}

func (s *Server) sendState(ctx context.Context, player, matchID string) error {
	if sess, err := s.session(player, matchID); err == nil {
		s.hub.Notify(player, milldto.EventMatchState, sess.Snapshot())
		return nil
	} else if matchID == "" {
		return err
	}
	st, err := s.matches.StoredState(ctx, matchID)
	if err != nil {
		return err
	}
	s.hub.Notify(player, milldto.EventMatchState, st)
	return nil
}

func (s *Server) tournamentViews() []milldto.TournamentView {
	list := s.tours.List()
	out := make([]milldto.TournamentView, 0, len(list))
	for _, t := range list {
		out = append(out, t.View(false, s.reg.IsPaused))
	}
	return out
}
