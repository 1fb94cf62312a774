package pairing

import (
	"sort"

	"github.com/park285/mill-arena/internal/tournament"
)

// candidate is a pairable participant.
type candidate struct {
	ID     string
	Score  int
	Rating int
}

func candidatesOf(ps []tournament.Participant, eligible func(string) bool) []candidate {
	out := make([]candidate, 0, len(ps))
	for _, p := range ps {
		if eligible(p.ID) {
			out = append(out, candidate{ID: p.ID, Score: p.Score, Rating: p.Rating})
		}
	}
	return out
}

// rankPool sorts by score, then rating, both descending.
func rankPool(pool []candidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		if pool[i].Rating != pool[j].Rating {
			return pool[i].Rating > pool[j].Rating
		}
		return pool[i].ID < pool[j].ID
	})
}

// rematch reports whether a and b just played each other, from either side.
func rematch(a, b string, last func(string) string) bool {
	return last(a) == b || last(b) == a
}

// pairPool walks a ranked pool and pairs each unpaired player with the
// next unpaired one it did not just play. Players left without a partner wait.
func pairPool(pool []candidate, last func(string) string) [][2]string {
	paired := make(map[string]bool, len(pool))
	var out [][2]string
	for i, p := range pool {
		if paired[p.ID] {
			continue
		}
		for _, q := range pool[i+1:] {
			if paired[q.ID] || rematch(p.ID, q.ID, last) {
				continue
			}
			paired[p.ID], paired[q.ID] = true, true
			out = append(out, [2]string{p.ID, q.ID})
			break
		}
	}
	return out
}

// closestOpponent picks the candidate nearest in score to player that is not
// a rematch. ok is false when nobody qualifies.
func closestOpponent(player string, score int, pool []candidate, last func(string) string) (string, bool) {
	sort.SliceStable(pool, func(i, j int) bool {
		di, dj := abs(pool[i].Score-score), abs(pool[j].Score-score)
		if di != dj {
			return di < dj
		}
		return pool[i].ID < pool[j].ID
	})
	for _, c := range pool {
		if c.ID == player || rematch(player, c.ID, last) {
			continue
		}
		return c.ID, true
	}
	return "", false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
