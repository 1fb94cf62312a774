package challenge

import (
	"errors"
	"strings"
	"time"

	"github.com/park285/mill-arena/pkg/milldto"
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrAlreadyPending = errors.New("target already has a pending challenge")
	ErrNoPending      = errors.New("no pending challenge")
	ErrNotTarget      = errors.New("not the target of this challenge")
	ErrOffline        = errors.New("target is not online")
	ErrInGame         = errors.New("player already has an open match")
	ErrBanned         = errors.New("player is banned")
	ErrPaused         = errors.New("player is paused")
	ErrNoRematch      = errors.New("no finished game to rematch")
)

const (
	// DefaultTimeControl is used when a challenge names none.
	DefaultTimeControl = "3+2"
	// DefaultTTL is how long a challenge waits for an answer.
	DefaultTTL = time.Minute
	// DefaultRematchWindow is how long after a game a rematch can be asked for.
	DefaultRematchWindow = 5 * time.Minute
)

type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

// ParseColorChoice reads the challenger's requested color. Anything unknown is random.
func ParseColorChoice(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// Challenge is a direct game offer. Color is the challenger's side.
type Challenge struct {
	ID          string
	Challenger  string
	Target      string
	TimeControl string
	Rated       bool
	Color       ColorChoice
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Status      Status
	MatchID     string
}

func (c *Challenge) View(text string) milldto.Challenge {
	return milldto.Challenge{
		ID:          c.ID,
		Challenger:  c.Challenger,
		Target:      c.Target,
		TimeControl: c.TimeControl,
		Rated:       c.Rated,
		Color:       string(c.Color),
		Status:      string(c.Status),
		ExpiresAt:   c.ExpiresAt.UnixMilli(),
		MatchID:     c.MatchID,
		Text:        text,
	}
}
