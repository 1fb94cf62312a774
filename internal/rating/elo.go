// Package rating updates player ratings, counters, titles and tournament
// points once a match is over.
package rating

import (
	"math"

	"github.com/park285/mill-arena/internal/board"
)

const (
	// RatingFloor is the lowest rating a player can drop to.
	RatingFloor = 50
	// FarmingGap is the rating gap above which a higher rated winner gains nothing.
	FarmingGap = 400
)

// KFactor depends on the player's current rating only.
func KFactor(rating int) float64 {
	switch {
	case rating < 1500:
		return 32
	case rating < 2000:
		return 24
	default:
		return 16
	}
}

// Expected is the expected score of a player rated ra against rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Deltas returns the rating changes for white and black before the floor is
// applied. winner must be white, black or draw.
func Deltas(white, black int, winner board.Result) (int, int) {
	ew := Expected(white, black)
	eb := 1 - ew

	var sw, sb float64
	switch winner {
	case board.ResultWhite:
		sw, sb = 1, 0
	case board.ResultBlack:
		sw, sb = 0, 1
	default:
		sw, sb = 0.5, 0.5
	}

	dw := int(math.RoundToEven(KFactor(white) * (sw - ew)))
	db := int(math.RoundToEven(KFactor(black) * (sb - eb)))

	if winner != board.ResultDraw {
		dw = atLeastOne(dw, sw)
		db = atLeastOne(db, sb)
		gap := white - black
		if gap < 0 {
			gap = -gap
		}
		if gap >= FarmingGap {
			if winner == board.ResultWhite && white > black {
				dw = 0
			}
			if winner == board.ResultBlack && black > white {
				db = 0
			}
		}
	}
	return dw, db
}

func atLeastOne(delta int, score float64) int {
	if delta != 0 {
		return delta
	}
	if score > 0.5 {
		return 1
	}
	return -1
}

// floor applies the minimum rating.
func floor(rating int) int {
	if rating < RatingFloor {
		return RatingFloor
	}
	return rating
}
