// Package registry owns the cross-cutting player sets consulted by pairing and
// matchmaking: paused, auto-paused, pending pause, post-game menu, banned and
// the player to live match index.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMenuTimeout is how long a player may sit in the post-game menu.
const DefaultMenuTimeout = 15 * time.Second

type Registry struct {
	clk         clockwork.Clock
	menuTimeout time.Duration

	// mu guards the membership sets only.
	mu           sync.Mutex
	paused       map[string]struct{}
	autoPaused   map[string]struct{}
	pendingPause map[string]struct{}
	menu         map[string]time.Time
	banned       map[string]struct{}

	gameMu sync.RWMutex
	inGame map[string]string
}

type Option func(*Registry)

func WithClock(clk clockwork.Clock) Option {
	return func(r *Registry) {
		if clk != nil {
			r.clk = clk
		}
	}
}

func WithMenuTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.menuTimeout = d
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		clk:          clockwork.NewRealClock(),
		menuTimeout:  DefaultMenuTimeout,
		paused:       make(map[string]struct{}),
		autoPaused:   make(map[string]struct{}),
		pendingPause: make(map[string]struct{}),
		menu:         make(map[string]time.Time),
		banned:       make(map[string]struct{}),
		inGame:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryReserve marks both players as in the given match. It fails without side
// effects when either is already in a match.
func (r *Registry) TryReserve(matchID string, players ...string) bool {
	r.gameMu.Lock()
	defer r.gameMu.Unlock()
	for _, p := range players {
		if _, busy := r.inGame[p]; busy {
			return false
		}
	}
	for _, p := range players {
		r.inGame[p] = matchID
	}
	return true
}

// Release clears the players' match entry if it still points at matchID.
func (r *Registry) Release(matchID string, players ...string) {
	r.gameMu.Lock()
	defer r.gameMu.Unlock()
	for _, p := range players {
		if r.inGame[p] == matchID {
			delete(r.inGame, p)
		}
	}
}

// MatchOf returns the live match of player.
func (r *Registry) MatchOf(player string) (string, bool) {
	r.gameMu.RLock()
	defer r.gameMu.RUnlock()
	id, ok := r.inGame[player]
	return id, ok
}

func (r *Registry) InGame(player string) bool {
	_, ok := r.MatchOf(player)
	return ok
}

func (r *Registry) Pause(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused[player] = struct{}{}
	delete(r.pendingPause, player)
}

// AutoPause pauses a player who left the page. It is undone by ReturnToPage.
func (r *Registry) AutoPause(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused[player] = struct{}{}
	r.autoPaused[player] = struct{}{}
	delete(r.pendingPause, player)
}

// Resume clears every pause flag of player.
func (r *Registry) Resume(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paused, player)
	delete(r.autoPaused, player)
	delete(r.pendingPause, player)
}

// ReturnToPage unpauses the player only if the pause was automatic.
func (r *Registry) ReturnToPage(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingPause, player)
	if _, ok := r.autoPaused[player]; !ok {
		return false
	}
	delete(r.autoPaused, player)
	delete(r.paused, player)
	return true
}

// MarkPendingPause defers an automatic pause until the player's game ends.
func (r *Registry) MarkPendingPause(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingPause[player] = struct{}{}
}

// ApplyPendingPause turns a pending pause into an automatic pause.
func (r *Registry) ApplyPendingPause(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendingPause[player]; !ok {
		return false
	}
	delete(r.pendingPause, player)
	r.paused[player] = struct{}{}
	r.autoPaused[player] = struct{}{}
	return true
}

func (r *Registry) IsPaused(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paused[player]
	return ok
}

func (r *Registry) IsAutoPaused(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.autoPaused[player]
	return ok
}

func (r *Registry) HasPendingPause(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingPause[player]
	return ok
}

// EnterMenu puts player in the post-game menu.
func (r *Registry) EnterMenu(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menu[player] = r.clk.Now()
}

func (r *Registry) LeaveMenu(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.menu, player)
}

func (r *Registry) InMenu(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.menu[player]
	return ok
}

// SweepMenu drops menu entries older than the menu timeout and returns them.
func (r *Registry) SweepMenu() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	var expired []string
	for p, since := range r.menu {
		if now.Sub(since) >= r.menuTimeout {
			delete(r.menu, p)
			expired = append(expired, p)
		}
	}
	return expired
}

func (r *Registry) Ban(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned[player] = struct{}{}
}

func (r *Registry) Unban(player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.banned, player)
}

func (r *Registry) IsBanned(player string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banned[player]
	return ok
}

// Banned lists banned players in id order.
func (r *Registry) Banned() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.banned))
	for p := range r.banned {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// Eligible reports whether player can be paired right now.
func (r *Registry) Eligible(player string) bool {
	if r.InGame(player) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.paused[player]; ok {
		return false
	}
	if _, ok := r.menu[player]; ok {
		return false
	}
	_, banned := r.banned[player]
	return !banned
}
