package registry

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestReserveIsAllOrNothing(t *testing.T) {
	r := New()
	if !r.TryReserve("m1", "alice", "bob") {
		t.Fatalf("first reservation should succeed")
	}
	if r.TryReserve("m2", "carol", "bob") {
		t.Fatalf("bob is busy, reservation must fail")
	}
	if r.InGame("carol") {
		t.Fatalf("failed reservation must not mark carol")
	}

	r.Release("m2", "alice")
	if !r.InGame("alice") {
		t.Fatalf("release with another match id must be ignored")
	}
	r.Release("m1", "alice", "bob")
	if r.InGame("alice") || r.InGame("bob") {
		t.Fatalf("players should be free after release")
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	wins := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if r.TryReserve(id, "alice", id) {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one reservation of alice, got %d", n)
	}
}

func TestAutoPauseRoundTrip(t *testing.T) {
	r := New()
	r.Pause("manual")
	r.AutoPause("auto")

	if r.ReturnToPage("manual") {
		t.Fatalf("manual pause must survive page return")
	}
	if !r.IsPaused("manual") {
		t.Fatalf("manual should stay paused")
	}
	if !r.ReturnToPage("auto") || r.IsPaused("auto") {
		t.Fatalf("auto pause should be cleared on return")
	}
}

func TestPendingPause(t *testing.T) {
	r := New()
	r.MarkPendingPause("p")
	if r.IsPaused("p") {
		t.Fatalf("pending pause must not pause yet")
	}
	if !r.ApplyPendingPause("p") {
		t.Fatalf("pending pause should apply")
	}
	if !r.IsPaused("p") || !r.IsAutoPaused("p") {
		t.Fatalf("applied pending pause is an auto pause")
	}
	if r.ApplyPendingPause("p") {
		t.Fatalf("pending pause applies once")
	}
}

func TestMenuSweep(t *testing.T) {
	fc := clockwork.NewFakeClock()
	r := New(WithClock(fc), WithMenuTimeout(15*time.Second))
	r.EnterMenu("a")
	fc.Advance(10 * time.Second)
	r.EnterMenu("b")
	fc.Advance(6 * time.Second)

	got := r.SweepMenu()
	sort.Strings(got)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected only a swept, got %v", got)
	}
	if !r.InMenu("b") {
		t.Fatalf("b should still be in the menu")
	}
}

func TestEligible(t *testing.T) {
	r := New()
	if !r.Eligible("x") {
		t.Fatalf("fresh player should be eligible")
	}
	r.EnterMenu("x")
	if r.Eligible("x") {
		t.Fatalf("menu player is not eligible")
	}
	r.LeaveMenu("x")
	r.Ban("x")
	if r.Eligible("x") {
		t.Fatalf("banned player is not eligible")
	}
	r.Unban("x")
	r.TryReserve("m", "x")
	if r.Eligible("x") {
		t.Fatalf("player in game is not eligible")
	}
}

func TestBannedIsSorted(t *testing.T) {
	r := New()
	r.Ban("zed")
	r.Ban("amy")
	r.Ban("kim")
	r.Unban("kim")
	got := r.Banned()
	if len(got) != 2 || got[0] != "amy" || got[1] != "zed" {
		t.Fatalf("unexpected ban list %v", got)
	}
}
