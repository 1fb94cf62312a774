package tournament

// trophyFor returns the trophy kind earned by finishing at rank. Only
// marathons and world cups hand out trophies.
func trophyFor(t Type, rank int) (string, bool) {
	switch t {
	case TypeMarathon:
		switch {
		case rank == 1:
			return "marathon_1st", true
		case rank == 2:
			return "marathon_2nd", true
		case rank == 3:
			return "marathon_3rd", true
		case rank <= 10:
			return "marathon_top10", true
		case rank <= 100:
			return "marathon_top100", true
		case rank <= 500:
			return "marathon_top500", true
		}
	case TypeWorldCup:
		switch rank {
		case 1:
			return "world_cup_1", true
		case 2:
			return "world_cup_2", true
		case 3:
			return "world_cup_3", true
		}
	}
	return "", false
}
