package persist

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/mill-arena/internal/domain"
)

// Memory keeps everything in process; used when no database is configured and in tests.
type Memory struct {
	mu sync.RWMutex

	players  map[string]*domain.PlayerRecord
	matches  map[string]*domain.MatchSummary
	byPlayer map[string][]string // player -> match ids, oldest first
	archives map[string]*domain.ArchivedTournament
	bans     map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		players:  make(map[string]*domain.PlayerRecord),
		matches:  make(map[string]*domain.MatchSummary),
		byPlayer: make(map[string][]string),
		archives: make(map[string]*domain.ArchivedTournament),
		bans:     make(map[string]bool),
	}
}

func (m *Memory) LoadPlayer(ctx context.Context, id string) (*domain.PlayerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) SavePlayer(ctx context.Context, p *domain.PlayerRecord) error {
	if p == nil {
		return nil
	}
	m.mu.Lock()
	m.players[p.ID] = p.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdatePlayer(ctx context.Context, id string, fn func(p *domain.PlayerRecord) error) error {
	return m.UpdatePlayers(ctx, []string{id}, single(fn))
}

// UpdatePlayers runs fn under the store lock, so concurrent updates of the
// same player apply one after the other.
func (m *Memory) UpdatePlayers(ctx context.Context, ids []string, fn func(ps []*domain.PlayerRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]*domain.PlayerRecord, len(ids))
	recs := make([]*domain.PlayerRecord, len(ids))
	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		p, ok := byID[id]
		if !ok {
			if stored, found := m.players[id]; found {
				p = stored.Clone()
			} else {
				p = domain.NewPlayer(id, id, time.Time{})
			}
			byID[id] = p
		}
		recs[i] = p
	}
	if err := fn(recs); err != nil {
		return err
	}
	for id, p := range byID {
		m.players[id] = p.Clone()
	}
	return nil
}

func (m *Memory) TopPlayers(ctx context.Context, class domain.RatingClass, limit int, exclude []string) ([]*domain.PlayerRecord, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	m.mu.RLock()
	out := make([]*domain.PlayerRecord, 0, len(m.players))
	for id, p := range m.players {
		if !skip[id] {
			out = append(out, p.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return ranksAbove(out[i], out[j], class) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LoadBans(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bans))
	for id := range m.bans {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SetBanned(ctx context.Context, player string, banned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if banned {
		m.bans[player] = true
	} else {
		delete(m.bans, player)
	}
	return nil
}

func (m *Memory) SaveFinishedMatch(ctx context.Context, s *domain.MatchSummary) error {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Moves = append([]domain.MoveRecord(nil), s.Moves...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matches[s.ID]; !exists {
		m.byPlayer[s.White] = append(m.byPlayer[s.White], s.ID)
		m.byPlayer[s.Black] = append(m.byPlayer[s.Black], s.ID)
	}
	m.matches[s.ID] = &cp
	return nil
}

func (m *Memory) RecentMatches(ctx context.Context, player string, limit int) ([]*domain.MatchSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byPlayer[player]
	items := make([]*domain.MatchSummary, 0, len(ids))
	for _, id := range ids {
		cp := *m.matches[id]
		items = append(items, &cp)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].EndedAt.After(items[j].EndedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) LoadArchivedTournament(ctx context.Context, id string) (*domain.ArchivedTournament, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.archives[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Leaderboard = append([]domain.Standing(nil), t.Leaderboard...)
	return &cp, nil
}

func (m *Memory) SaveArchivedTournament(ctx context.Context, t *domain.ArchivedTournament) error {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Leaderboard = append([]domain.Standing(nil), t.Leaderboard...)
	m.mu.Lock()
	m.archives[t.ID] = &cp
	m.mu.Unlock()
	return nil
}
