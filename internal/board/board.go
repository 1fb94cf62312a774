// Package board implements the nine men's morris rules as a pure state machine.
// A Board does no I/O and is not safe for concurrent use; the match session serializes access.
package board

import (
	"errors"
	"fmt"
)

// Color identifies a side or the owner of a point.
type Color uint8

const (
	None Color = iota
	White
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return ""
	}
}

// Opponent returns the other side. None stays None.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return None
	}
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) Color {
	switch s {
	case "white", "w", "W":
		return White
	case "black", "b", "B":
		return Black
	default:
		return None
	}
}

// Phase is the global phase label of the board.
type Phase string

const (
	PhasePlacing Phase = "placing"
	PhaseMoving  Phase = "moving"
	PhaseFlying  Phase = "flying"
)

// Result is the terminal verdict of the board, empty while play continues.
type Result string

const (
	ResultNone  Result = ""
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

const (
	piecesPerSide      = 9
	totalPlacements    = 2 * piecesPerSide
	flyingThreshold    = 3
	losingThreshold    = 2
	DefaultQuietWindow = 50
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrFinished    = errors.New("board already has a result")
)

// Entry is one half-move in the log. Capture is NoPoint when nothing was taken.
type Entry struct {
	Side    Color `json:"-"`
	From    int   `json:"from"`
	To      int   `json:"to"`
	Capture int   `json:"capture"`
	Mill    bool  `json:"mill"`
}

// Outcome reports what a call to ApplyMove or Capture did.
type Outcome struct {
	Accepted        bool `json:"accepted"`
	MillFormed      bool `json:"mill_formed"`
	AwaitingCapture bool `json:"awaiting_capture"`
	Captured        bool `json:"captured"`
}

type Board struct {
	points         [Points]Color
	phase          Phase
	turn           Color
	toPlace        [3]int
	placed         int
	pendingCapture bool
	log            []Entry
	result         Result
	quietWindow    int
}

type Option func(*Board)

// WithQuietWindow overrides the number of trailing half-moves without a mill or capture that draws the game.
func WithQuietWindow(n int) Option {
	return func(b *Board) {
		if n > 0 {
			b.quietWindow = n
		}
	}
}

func New(opts ...Option) *Board {
	b := &Board{
		phase:       PhasePlacing,
		turn:        White,
		quietWindow: DefaultQuietWindow,
	}
	b.toPlace[White] = piecesPerSide
	b.toPlace[Black] = piecesPerSide
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Board) Turn() Color          { return b.turn }
func (b *Board) Phase() Phase         { return b.phase }
func (b *Board) PendingCapture() bool { return b.pendingCapture }
func (b *Board) MoveCount() int       { return len(b.log) }
func (b *Board) At(p int) Color {
	if !validPoint(p) {
		return None
	}
	return b.points[p]
}

// ToPlace returns how many pieces c still has to introduce.
func (b *Board) ToPlace(c Color) int {
	if c != White && c != Black {
		return 0
	}
	return b.toPlace[c]
}

// PieceCount returns the number of c pieces on the board.
func (b *Board) PieceCount(c Color) int { return count(&b.points, c) }

// Occupied returns the number of occupied points.
func (b *Board) Occupied() int { return count(&b.points, White) + count(&b.points, Black) }

// Log returns a copy of the move log.
func (b *Board) Log() []Entry { return append([]Entry(nil), b.log...) }

// ApplyMove plays from→to for the side to move. During placing from is ignored.
// capture may be NoPoint; when a mill is formed without a capture and a legal
// target exists the move is accepted with AwaitingCapture and the turn stays.
func (b *Board) ApplyMove(from, to, capture int) (Outcome, error) {
	if b.result != ResultNone {
		return Outcome{}, ErrFinished
	}
	if b.pendingCapture {
		return Outcome{}, fmt.Errorf("%w: capture pending", ErrIllegalMove)
	}
	if !validPoint(to) {
		return Outcome{}, fmt.Errorf("%w: destination %d off board", ErrIllegalMove, to)
	}

	next := b.points
	mover := b.turn
	switch b.phase {
	case PhasePlacing:
		if next[to] != None {
			return Outcome{}, fmt.Errorf("%w: point %d occupied", ErrIllegalMove, to)
		}
		if b.toPlace[mover] <= 0 {
			return Outcome{}, fmt.Errorf("%w: no pieces left to place", ErrIllegalMove)
		}
		next[to] = mover
		from = NoPoint
	default:
		if !validPoint(from) || next[from] != mover {
			return Outcome{}, fmt.Errorf("%w: no own piece on %d", ErrIllegalMove, from)
		}
		if next[to] != None {
			return Outcome{}, fmt.Errorf("%w: point %d occupied", ErrIllegalMove, to)
		}
		if count(&next, mover) != flyingThreshold && !Adjacent(from, to) {
			return Outcome{}, fmt.Errorf("%w: %d is not adjacent to %d", ErrIllegalMove, to, from)
		}
		next[from] = None
		next[to] = mover
	}

	mill := inMill(&next, to)
	var targets []int
	if mill {
		targets = legalTargets(&next, mover.Opponent())
	}
	if capture != NoPoint {
		if !mill {
			return Outcome{}, fmt.Errorf("%w: capture without a mill", ErrIllegalMove)
		}
		if !contains(targets, capture) {
			return Outcome{}, fmt.Errorf("%w: cannot capture %d", ErrIllegalMove, capture)
		}
	}

	// validated; commit
	b.points = next
	if b.phase == PhasePlacing {
		b.toPlace[mover]--
		b.placed++
	}
	entry := Entry{Side: mover, From: from, To: to, Capture: NoPoint, Mill: mill}
	out := Outcome{Accepted: true, MillFormed: mill}
	switch {
	case capture != NoPoint:
		b.points[capture] = None
		entry.Capture = capture
		out.Captured = true
	case mill && len(targets) > 0:
		b.pendingCapture = true
		out.AwaitingCapture = true
	}
	b.log = append(b.log, entry)
	if !b.pendingCapture {
		b.turn = mover.Opponent()
	}
	b.advancePhase()
	b.evaluate()
	return out, nil
}

// Capture resolves a pending capture for the side to move.
func (b *Board) Capture(p int) (Outcome, error) {
	if b.result != ResultNone {
		return Outcome{}, ErrFinished
	}
	if !b.pendingCapture {
		return Outcome{}, fmt.Errorf("%w: no capture pending", ErrIllegalMove)
	}
	if !contains(legalTargets(&b.points, b.turn.Opponent()), p) {
		return Outcome{}, fmt.Errorf("%w: cannot capture %d", ErrIllegalMove, p)
	}
	b.points[p] = None
	b.log[len(b.log)-1].Capture = p
	b.pendingCapture = false
	b.turn = b.turn.Opponent()
	b.advancePhase()
	b.evaluate()
	return Outcome{Accepted: true, MillFormed: true, Captured: true}, nil
}

// LegalTargets lists the points the side to move may capture right now.
// It is empty unless a capture is pending.
func (b *Board) LegalTargets() []int {
	if !b.pendingCapture {
		return nil
	}
	return legalTargets(&b.points, b.turn.Opponent())
}

// CanCapture reports whether p is a legal capture target against victim on the current position.
func (b *Board) CanCapture(victim Color, p int) bool {
	return contains(legalTargets(&b.points, victim), p)
}

// EvaluateResult returns the terminal verdict. Once set it never changes.
func (b *Board) EvaluateResult() Result {
	b.evaluate()
	return b.result
}

func (b *Board) evaluate() {
	if b.result != ResultNone || b.pendingCapture {
		return
	}
	if b.phase != PhasePlacing {
		switch {
		case count(&b.points, White) <= losingThreshold:
			b.result = ResultBlack
			return
		case count(&b.points, Black) <= losingThreshold:
			b.result = ResultWhite
			return
		}
	}
	if n := len(b.log); n >= b.quietWindow {
		for _, e := range b.log[n-b.quietWindow:] {
			if e.Mill || e.Capture != NoPoint {
				return
			}
		}
		b.result = ResultDraw
	}
}

func (b *Board) advancePhase() {
	if b.phase == PhasePlacing {
		if b.placed < totalPlacements {
			return
		}
		b.phase = PhaseMoving
	}
	if count(&b.points, White) == flyingThreshold || count(&b.points, Black) == flyingThreshold {
		b.phase = PhaseFlying
	}
}

// Clone returns an independent copy.
func (b *Board) Clone() *Board {
	c := *b
	c.log = append([]Entry(nil), b.log...)
	return &c
}

// State is a serializable view of the board.
type State struct {
	Points         [Points]string `json:"points"`
	Phase          Phase          `json:"phase"`
	Turn           string         `json:"turn"`
	WhiteToPlace   int            `json:"white_to_place"`
	BlackToPlace   int            `json:"black_to_place"`
	WhitePieces    int            `json:"white_pieces"`
	BlackPieces    int            `json:"black_pieces"`
	PendingCapture bool           `json:"pending_capture"`
	Moves          int            `json:"moves"`
	Result         Result         `json:"result,omitempty"`
}

func (b *Board) Snapshot() State {
	s := State{
		Phase:          b.phase,
		Turn:           b.turn.String(),
		WhiteToPlace:   b.toPlace[White],
		BlackToPlace:   b.toPlace[Black],
		WhitePieces:    count(&b.points, White),
		BlackPieces:    count(&b.points, Black),
		PendingCapture: b.pendingCapture,
		Moves:          len(b.log),
		Result:         b.result,
	}
	for i, c := range b.points {
		switch c {
		case White:
			s.Points[i] = "W"
		case Black:
			s.Points[i] = "B"
		}
	}
	return s
}

func count(pts *[Points]Color, c Color) int {
	n := 0
	for _, v := range pts {
		if v == c {
			n++
		}
	}
	return n
}

func inMill(pts *[Points]Color, p int) bool {
	c := pts[p]
	if c == None {
		return false
	}
	for _, idx := range millsThrough[p] {
		line := mills[idx]
		if pts[line[0]] == c && pts[line[1]] == c && pts[line[2]] == c {
			return true
		}
	}
	return false
}

// legalTargets returns victim pieces outside intact mills, or every victim piece
// when all of them sit in mills.
func legalTargets(pts *[Points]Color, victim Color) []int {
	var free, all []int
	for p, c := range pts {
		if c != victim {
			continue
		}
		all = append(all, p)
		if !inMill(pts, p) {
			free = append(free, p)
		}
	}
	if len(free) > 0 {
		return free
	}
	return all
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
