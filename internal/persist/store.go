// Package persist stores players, finished matches and archived tournaments.
package persist

import (
	"context"
	"errors"

	"github.com/park285/mill-arena/internal/domain"
)

var ErrNotFound = errors.New("persist: not found")

// DefaultLeaderboardSize is how many players TopPlayers returns when asked for none.
const DefaultLeaderboardSize = 100

// Store is the durable side of the server. Callers log failures and carry on;
// in-memory state is never rolled back because a save failed.
//
// Player records change only through UpdatePlayer/UpdatePlayers, which hold the
// record for the whole read-modify-write. Players that were never stored
// arrive as fresh records with a zero CreatedAt. fn must not call back into
// the store; a non-nil error from fn discards every change.
type Store interface {
	LoadPlayer(ctx context.Context, id string) (*domain.PlayerRecord, error)
	SavePlayer(ctx context.Context, p *domain.PlayerRecord) error
	UpdatePlayer(ctx context.Context, id string, fn func(p *domain.PlayerRecord) error) error
	UpdatePlayers(ctx context.Context, ids []string, fn func(ps []*domain.PlayerRecord) error) error
	TopPlayers(ctx context.Context, class domain.RatingClass, limit int, exclude []string) ([]*domain.PlayerRecord, error)

	SaveFinishedMatch(ctx context.Context, m *domain.MatchSummary) error
	LoadArchivedTournament(ctx context.Context, id string) (*domain.ArchivedTournament, error)
	SaveArchivedTournament(ctx context.Context, t *domain.ArchivedTournament) error

	LoadBans(ctx context.Context) ([]string, error)
	SetBanned(ctx context.Context, player string, banned bool) error
}

// RecentMatches is implemented by stores that can list a player's games.
type RecentMatches interface {
	RecentMatches(ctx context.Context, player string, limit int) ([]*domain.MatchSummary, error)
}

// single adapts a one-record update to UpdatePlayers.
func single(fn func(p *domain.PlayerRecord) error) func(ps []*domain.PlayerRecord) error {
	return func(ps []*domain.PlayerRecord) error { return fn(ps[0]) }
}

// ranksAbove orders leaderboard rows: rating desc, games desc, id asc.
func ranksAbove(a, b *domain.PlayerRecord, class domain.RatingClass) bool {
	sa, sb := a.Class(class), b.Class(class)
	if sa.Rating != sb.Rating {
		return sa.Rating > sb.Rating
	}
	if sa.Games != sb.Games {
		return sa.Games > sb.Games
	}
	return a.ID < b.ID
}
