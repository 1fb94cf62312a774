package api

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/access"
	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/rating"
	"github.com/park285/mill-arena/internal/tournament"
	"github.com/park285/mill-arena/pkg/milldto"
)

const defaultSpawnMinutes = 60

// levelOf reads the admin level of player. Configured creators are always creators.
func (s *Server) levelOf(ctx context.Context, player string) access.Level {
	if s.creators[player] {
		return access.Creator
	}
	p, err := s.store.LoadPlayer(ctx, player)
	if err != nil {
		return access.None
	}
	return access.Level(p.AdminLevel)
}

// runAdmin checks the actor's level once, then runs the action.
func (s *Server) runAdmin(ctx context.Context, actor string, a milldto.Admin) (milldto.AdminResult, error) {
	action := access.Action(strings.ToLower(strings.TrimSpace(a.Action)))
	level := s.levelOf(ctx, actor)
	if err := access.Check(level, action); err != nil {
		obslog.L().Warn("admin_denied", zap.String("actor", actor), zap.String("action", string(action)), zap.String("level", level.String()))
		return milldto.AdminResult{}, err
	}
	res := milldto.AdminResult{Action: string(action), OK: true}
	target := strings.TrimSpace(a.Target)
	needTarget := func() error {
		if target == "" {
			return fmt.Errorf("%w: target is required", ErrBadRequest)
		}
		return nil
	}

	var err error
	switch action {
	case access.ActionBan:
		if err = needTarget(); err == nil {
			s.reg.Ban(target)
			s.seeks.Cancel(target)
			s.saveBan(ctx, target, true)
			res.Detail = s.msgs.Text("admin.banned", map[string]any{"Player": target}, target+" was banned")
		}
	case access.ActionUnban:
		if err = needTarget(); err == nil {
			s.reg.Unban(target)
			s.saveBan(ctx, target, false)
		}
	case access.ActionBanList:
		res.Data = s.reg.Banned()

	case access.ActionPromote, access.ActionDemote:
		if err = needTarget(); err == nil {
			res.Detail, err = s.changeLevel(ctx, level, action, target, a.Level)
		}
	case access.ActionAnnounce:
		msg := strings.TrimSpace(a.Message)
		if msg == "" {
			err = fmt.Errorf("%w: message is required", ErrBadRequest)
			break
		}
		n := s.hub.Announce(milldto.EventAnnouncement, milldto.Announcement{
			From:    actor,
			Message: s.msgs.Text("admin.announce", map[string]any{"Message": msg}, msg),
		})
		res.Data = map[string]int{"delivered": n}

	case access.ActionSetElo:
		if err = needTarget(); err == nil {
			err = s.setRating(ctx, target, domain.RatingClass(strings.ToLower(a.Class)), a.Rating)
		}
	case access.ActionRemoveTitle:
		if err = needTarget(); err == nil {
			err = s.updatePlayer(ctx, target, func(p *domain.PlayerRecord) error {
				p.Title, p.HighestTitle = "", ""
				return nil
			})
		}
	case access.ActionReset:
		if err = needTarget(); err == nil {
			err = s.resetPlayer(ctx, target)
		}

	case access.ActionSpawnTournament:
		minutes := a.Minutes
		if minutes <= 0 {
			minutes = defaultSpawnMinutes
		}
		var t *tournament.Tournament
		if t, err = s.tours.Spawn(actor, time.Duration(minutes)*time.Minute); err == nil {
			res.Data = t.View(false, s.reg.IsPaused)
		}
	case access.ActionCreateTournament:
		var typ tournament.Type
		if typ, err = tournament.ParseType(a.Type); err != nil {
			break
		}
		start := s.tours.Now().Add(time.Duration(a.Minutes) * time.Minute)
		var t *tournament.Tournament
		if t, err = s.tours.Create(typ, a.TimeControl, start); err == nil {
			res.Data = t.View(false, s.reg.IsPaused)
		}
	case access.ActionEndTournament:
		if err = needTarget(); err == nil {
			var t *tournament.Tournament
			if t, err = s.tours.ForceEnd(ctx, target); err == nil {
				res.Data = t.View(true, s.reg.IsPaused)
			}
		}
	case access.ActionListTournaments:
		res.Data = s.tournamentViews()
	case access.ActionAbortMatch:
		if err = needTarget(); err == nil {
			err = s.matches.Cancel(target, match.ReasonCanceled)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, a.Action)
	}
	if err != nil {
		return milldto.AdminResult{}, err
	}
	obslog.L().Info("admin_action", zap.String("actor", actor), zap.String("action", string(action)), zap.String("target", target))
	return res, nil
}

// saveBan keeps the ban list across restarts. The in-memory ban is already
// in force when the store write fails.
func (s *Server) saveBan(ctx context.Context, target string, banned bool) {
	if err := s.store.SetBanned(ctx, target, banned); err != nil {
		obslog.L().Warn("ban_save_failed", zap.String("player", target), zap.Bool("banned", banned), zap.Error(err))
	}
}

func (s *Server) changeLevel(ctx context.Context, actorLevel access.Level, action access.Action, target, levelName string) (string, error) {
	next := access.None
	if action == access.ActionPromote {
		next = access.ParseLevel(levelName)
		if next == access.None {
			return "", fmt.Errorf("%w: unknown level %q", ErrBadRequest, levelName)
		}
	}
	err := s.updatePlayer(ctx, target, func(p *domain.PlayerRecord) error {
		current := access.Level(p.AdminLevel)
		if action == access.ActionPromote {
			if !access.CanPromote(actorLevel, next) || current >= actorLevel {
				return access.ErrForbidden
			}
		} else if !access.CanDemote(actorLevel, current) {
			return access.ErrForbidden
		}
		p.AdminLevel = int(next)
		return nil
	})
	if err != nil {
		return "", err
	}
	name := next.String()
	if name == "" {
		name = "a regular player"
	}
	return s.msgs.Text("admin.promoted", map[string]any{"Player": target, "Level": name}, target+" is now "+name), nil
}

func (s *Server) setRating(ctx context.Context, target string, class domain.RatingClass, value int) error {
	if !slices.Contains(domain.Classes, class) {
		return fmt.Errorf("%w: unknown class %q", ErrBadRequest, class)
	}
	if value < 0 {
		return fmt.Errorf("%w: rating must not be negative", ErrBadRequest)
	}
	return s.updatePlayer(ctx, target, func(p *domain.PlayerRecord) error {
		st := p.Class(class)
		st.Rating = value
		p.SetClass(class, st)
		rating.UpdateTitle(p)
		return nil
	})
}

// updatePlayer applies fn to target's record under the store's update lock.
func (s *Server) updatePlayer(ctx context.Context, target string, fn func(p *domain.PlayerRecord) error) error {
	return s.store.UpdatePlayer(ctx, target, func(p *domain.PlayerRecord) error {
		if err := fn(p); err != nil {
			return err
		}
		p.Touch(s.tours.Now())
		return nil
	})
}

// resetPlayer wipes ratings and history but keeps the admin level.
func (s *Server) resetPlayer(ctx context.Context, target string) error {
	return s.updatePlayer(ctx, target, func(p *domain.PlayerRecord) error {
		fresh := domain.NewPlayer(p.ID, p.Name, p.CreatedAt)
		fresh.AdminLevel = p.AdminLevel
		*p = *fresh
		return nil
	})
}
