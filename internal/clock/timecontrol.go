package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadTimeControl = errors.New("bad time control")

// Largest base time and increment ParseTimeControl accepts.
const (
	MaxMinutes          = 180
	MaxIncrementSeconds = 180
)

// TimeControl is "minutes+increment seconds", e.g. "3+2".
type TimeControl struct {
	Initial   time.Duration
	Increment time.Duration
}

// ParseTimeControl parses "M+S". A bare "M" means no increment.
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.TrimSpace(s)
	base, inc, hasInc := strings.Cut(s, "+")
	minutes, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil || minutes <= 0 || minutes > MaxMinutes {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
	}
	seconds := 0
	if hasInc {
		seconds, err = strconv.Atoi(strings.TrimSpace(inc))
		if err != nil || seconds < 0 || seconds > MaxIncrementSeconds {
			return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
		}
	}
	return TimeControl{
		Initial:   time.Duration(minutes) * time.Minute,
		Increment: time.Duration(seconds) * time.Second,
	}, nil
}

func (tc TimeControl) String() string {
	return fmt.Sprintf("%d+%d", int(tc.Initial/time.Minute), int(tc.Increment/time.Second))
}
