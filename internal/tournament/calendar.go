package tournament

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/obslog"
)

type weeklySlot struct {
	day  time.Weekday
	hour int
	tc   string
}

var weeklySlots = []weeklySlot{
	{time.Monday, 18, "1+0"},
	{time.Wednesday, 19, "3+2"},
	{time.Friday, 20, "5+0"},
}

type worldCupSlot struct {
	month time.Month
	day   int
	hour  int
	tc    string
}

var worldCupSlots = []worldCupSlot{
	{time.April, 15, 16, "1+0"},
	{time.August, 20, 18, "3+2"},
	{time.December, 31, 14, "5+0"},
}

// EnsureCalendar fills the schedule ahead of now. It is idempotent and
// returns the number of arenas it created.
func (s *Scheduler) EnsureCalendar(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.tours)

	s.ensureActiveLocked(now)
	s.dailyLocked(now)
	s.weeklyLocked(now)
	s.monthlyLocked(now)
	s.marathonLocked(now)
	s.worldCupLocked(now)

	created := len(s.tours) - before
	if created > 0 {
		obslog.L().Info("tournament_calendar_filled", zap.Int("created", created), zap.Int("total", len(s.tours)))
	}
	return created
}

// ensureActiveLocked keeps one arena running at all times.
func (s *Scheduler) ensureActiveLocked(now time.Time) {
	for _, t := range s.tours {
		if t.Status() == StatusActive {
			return
		}
	}
	t := s.addLocked(TypeDaily, s.pickTimeControl(), now.Add(-bootstrapLead), 0, "")
	t.activate()
}

func (s *Scheduler) dailyLocked(now time.Time) {
	for d := 0; d < 7; d++ {
		day := now.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			start := time.Date(day.Year(), day.Month(), day.Day(), h, 3, 0, 0, now.Location())
			if start.After(now) {
				s.addUniqueLocked(TypeDaily, s.pickTimeControl(), start, false)
			}
		}
	}
}

func (s *Scheduler) weeklyLocked(now time.Time) {
	for d := 0; d < 14; d++ {
		day := now.AddDate(0, 0, d)
		for _, slot := range weeklySlots {
			if day.Weekday() != slot.day {
				continue
			}
			start := time.Date(day.Year(), day.Month(), day.Day(), slot.hour, 0, 0, 0, now.Location())
			if start.After(now) {
				s.addUniqueLocked(TypeWeekly, slot.tc, start, true)
			}
		}
	}
}

func (s *Scheduler) monthlyLocked(now time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for offset := 0; offset < 2; offset++ {
		month := first.AddDate(0, offset, 0)
		for _, start := range monthlySlots(month.Year(), month.Month(), now.Location()) {
			if start.at.After(now) {
				s.addUniqueLocked(TypeMonthly, start.tc, start.at, true)
			}
		}
	}
}

type slot struct {
	at time.Time
	tc string
}

// monthlySlots draws the month's three arenas from a PRNG seeded by the
// month, so every process computes the same calendar.
func monthlySlots(year int, month time.Month, loc *time.Location) []slot {
	r := rand.New(rand.NewPCG(uint64(year*100+int(month)+7777), 0))
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if days > 28 {
		days = 28
	}
	picked := r.Perm(days)[:3]
	minutes := []int{0, 15, 30, 45}
	out := make([]slot, 0, 3)
	for i := 0; i < 3; i++ {
		hour := 10 + r.IntN(13)
		minute := minutes[r.IntN(len(minutes))]
		tc := TimeControls[r.IntN(len(TimeControls))]
		out = append(out, slot{
			at: time.Date(year, month, picked[i]+1, hour, minute, 0, 0, loc),
			tc: tc,
		})
	}
	return out
}

func (s *Scheduler) marathonLocked(now time.Time) {
	for d := 0; d < 120; d++ {
		day := now.AddDate(0, 0, d)
		if day.Day() != 1 || int(day.Month())%3 != 1 {
			continue
		}
		start := time.Date(day.Year(), day.Month(), 1, 12, 0, 0, 0, now.Location())
		if start.After(now) {
			s.addUniqueLocked(TypeMarathon, s.pickTimeControl(), start, false)
		}
	}
}

// worldCupLocked keeps the three yearly cups on the calendar, rolling each
// to the next year a week after it started.
func (s *Scheduler) worldCupLocked(now time.Time) {
	for _, wc := range worldCupSlots {
		year := now.Year()
		start := time.Date(year, wc.month, wc.day, wc.hour, 0, 0, 0, now.Location())
		if now.After(start.Add(7 * 24 * time.Hour)) {
			year++
			start = time.Date(year, wc.month, wc.day, wc.hour, 0, 0, 0, now.Location())
		}
		exists := false
		for _, t := range s.tours {
			if t.Type == TypeWorldCup && t.TimeControl == wc.tc && t.StartsAt.Year() == year && t.StartsAt.Month() == wc.month {
				exists = true
				break
			}
		}
		if !exists {
			s.addLocked(TypeWorldCup, wc.tc, start, 0, "")
		}
	}
}

// addUniqueLocked skips the arena when one of the same type (and time
// control, if matchTC) starts within five minutes of start.
func (s *Scheduler) addUniqueLocked(typ Type, tc string, start time.Time, matchTC bool) {
	for _, t := range s.tours {
		if t.Type != typ || (matchTC && t.TimeControl != tc) {
			continue
		}
		diff := t.StartsAt.Sub(start)
		if diff < 0 {
			diff = -diff
		}
		if diff < dedupeWindow {
			return
		}
	}
	s.addLocked(typ, tc, start, 0, "")
}
