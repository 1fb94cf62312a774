package match

import (
	"errors"
	"time"

	"github.com/park285/mill-arena/internal/board"
)

// Status of a session. A session only moves forward through these.
type Status string

const (
	StatusAwaitingFirstMove Status = "awaiting_first_move"
	StatusPlaying           Status = "playing"
	StatusFinished          Status = "finished"
	StatusCanceled          Status = "canceled"
)

func (s Status) Closed() bool { return s == StatusFinished || s == StatusCanceled }

// Reason explains how a session ended.
type Reason string

const (
	ReasonPieces     Reason = "pieces"
	ReasonQuietDraw  Reason = "quiet"
	ReasonClock      Reason = "clock_expired"
	ReasonResign     Reason = "resign"
	ReasonAgreedDraw Reason = "agreed_draw"
	ReasonFirstMove  Reason = "first_move_timeout"
	ReasonCanceled   Reason = "canceled"
	ReasonShutdown   Reason = "shutdown"
)

var (
	ErrMatchClosed       = errors.New("match is closed")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrNotParticipant    = errors.New("not a participant")
	ErrBerserkNotAllowed = errors.New("berserk not allowed")
	ErrNoDrawOffer       = errors.New("no draw offer to answer")
	ErrPlayerBusy        = errors.New("player already in a match")
	ErrNotFound          = errors.New("match not found")
	ErrSamePlayer        = errors.New("cannot play against yourself")
)

const (
	// DefaultFirstMoveGrace is how long each side has for its first move.
	DefaultFirstMoveGrace = 20 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultEmitInterval   = time.Second
	// berserkMoveLimit is the longest move log that still allows berserk.
	berserkMoveLimit = 2
)

// Params describes a match to start.
type Params struct {
	White        string
	Black        string
	RandomColors bool
	TimeControl  string
	Rated        bool
	TournamentID string
}

// Result is the outcome of a closed session. Winner is empty for canceled sessions.
type Result struct {
	Winner board.Result `json:"winner"`
	Reason Reason       `json:"reason"`
}

// Notifier delivers events to players and topic subscribers. Implementations
// must not block and must not call back into the session.
type Notifier interface {
	Notify(player, event string, payload any)
	Broadcast(topic, event string, payload any)
	Subscribe(topic, player string)
	Unsubscribe(topic, player string)
}

// Topic is the broadcast topic of a match.
func Topic(matchID string) string { return "match:" + matchID }

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any)    {}
func (nopNotifier) Broadcast(string, string, any) {}
func (nopNotifier) Subscribe(string, string)      {}
func (nopNotifier) Unsubscribe(string, string)    {}
