package rating

// GameOutcome is one player's result in a tournament game.
type GameOutcome string

const (
	Win  GameOutcome = "win"
	Draw GameOutcome = "draw"
	Loss GameOutcome = "loss"
)

// StreakThreshold is the number of consecutive wins that doubles points.
const StreakThreshold = 3

// Points is what one tournament game earned a player.
type Points struct {
	Points    int
	Streak    int // streak after this game
	OnStreak  bool
	Berserked bool
}

// TournamentPoints scores one game. streak is the player's win streak before
// the game; berserk only adds to wins.
func TournamentPoints(outcome GameOutcome, berserk bool, streak int) Points {
	switch outcome {
	case Win:
		next := streak + 1
		onStreak := next >= StreakThreshold
		pts := 2
		switch {
		case onStreak && berserk:
			pts = 5
		case onStreak:
			pts = 4
		case berserk:
			pts = 3
		}
		return Points{Points: pts, Streak: next, OnStreak: onStreak, Berserked: berserk}
	case Draw:
		onStreak := streak >= StreakThreshold
		pts := 1
		if onStreak {
			pts = 2
		}
		return Points{Points: pts, Streak: 0, OnStreak: onStreak, Berserked: berserk}
	default:
		return Points{Points: 0, Streak: 0, Berserked: berserk}
	}
}
