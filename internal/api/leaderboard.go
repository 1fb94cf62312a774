package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/rating"
	"github.com/park285/mill-arena/pkg/milldto"
)

const maxLeaderboard = 100

// leaderboard ranks stored players of one rating class. Banned players are left out.
func (s *Server) leaderboard(ctx context.Context, class string, limit int) ([]milldto.LeaderboardEntry, error) {
	c := domain.RatingClass(strings.ToLower(strings.TrimSpace(class)))
	if !slices.Contains(domain.Classes, c) {
		return nil, fmt.Errorf("%w: unknown class %q", ErrBadRequest, class)
	}
	if limit <= 0 || limit > maxLeaderboard {
		limit = maxLeaderboard
	}
	players, err := s.store.TopPlayers(ctx, c, limit, s.reg.Banned())
	if err != nil {
		return nil, err
	}
	out := make([]milldto.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		st := p.Class(c)
		title := rating.DisplayTitle(p)
		out = append(out, milldto.LeaderboardEntry{
			Rank:       i + 1,
			Player:     p.ID,
			Name:       p.Name,
			Rating:     st.Rating,
			Games:      st.Games,
			Wins:       st.Wins,
			Losses:     st.Losses,
			Draws:      st.Draws,
			Title:      title,
			TitleColor: rating.ColorOf(title),
			AdminLevel: p.AdminLevel,
		})
	}
	return out, nil
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.leaderboard(r.Context(), r.PathValue("class"), limit)
	if err != nil {
		status := http.StatusInternalServerError
		if codeFor(err) == "bad_request" {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, milldto.ErrorPayload{Code: codeFor(err), Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
