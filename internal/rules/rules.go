// Package rules wraps the chess engine behind the narrow surface the
// voting pipeline needs: legality testing, canonicalization, move
// application and outcome reporting.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrGameFinished = errors.New("game already finished")
)

type Side int

const (
	SideWhite Side = iota
	SideBlack
)

func (s Side) String() string {
	if s == SideBlack {
		return "black"
	}
	return "white"
}

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

type Result int

const (
	ResultOngoing Result = iota
	ResultWhiteWins
	ResultBlackWins
	ResultDraw
)

func (r Result) String() string {
	switch r {
	case ResultWhiteWins:
		return "white"
	case ResultBlackWins:
		return "black"
	case ResultDraw:
		return "draw"
	default:
		return "ongoing"
	}
}

// Game holds one chess position. It is not safe for concurrent use;
// the turn loop is the single writer.
type Game struct {
	g        *nchess.Game
	movesSAN []string
	movesUCI []string
}

func NewGame() *Game {
	return &Game{g: nchess.NewGame()}
}

// Reset returns the game to the initial position.
func (x *Game) Reset() {
	x.g = nchess.NewGame()
	x.movesSAN = nil
	x.movesUCI = nil
}

func (x *Game) FEN() string { return x.g.FEN() }

func (x *Game) Turn() Side {
	if x.g.Position().Turn() == nchess.Black {
		return SideBlack
	}
	return SideWhite
}

func (x *Game) Result() Result {
	switch x.g.Outcome() {
	case nchess.WhiteWon:
		return ResultWhiteWins
	case nchess.BlackWon:
		return ResultBlackWins
	case nchess.Draw:
		return ResultDraw
	default:
		return ResultOngoing
	}
}

// LegalMoves lists every legal move in the current position in SAN.
func (x *Game) LegalMoves() []string {
	pos := x.g.Position()
	valid := x.g.ValidMoves()
	notation := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(valid))
	for i := range valid {
		out = append(out, notation.Encode(pos, &valid[i]))
	}
	return out
}

// TestMove checks whether text denotes a legal move, accepting SAN and
// coordinate notation like e2e4. It returns the canonical SAN form
// without mutating the position.
func (x *Game) TestMove(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	pos := x.g.Position()
	notationSAN := nchess.AlgebraicNotation{}
	move, err := notationSAN.Decode(pos, text)
	if err != nil {
		notationUCI := nchess.UCINotation{}
		move, err = notationUCI.Decode(pos, strings.ToLower(text))
		if err != nil {
			return "", false
		}
		// UCI decode only parses squares; confirm the move exists in
		// this position before canonicalizing it.
		want := strings.ToLower(notationUCI.Encode(pos, move))
		valid := x.g.ValidMoves()
		found := false
		for i := range valid {
			if strings.ToLower(notationUCI.Encode(pos, &valid[i])) == want {
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	return notationSAN.Encode(pos, move), true
}

// Apply plays a canonical SAN move on the position.
func (x *Game) Apply(san string) error {
	if x.Result() != ResultOngoing {
		return ErrGameFinished
	}
	pos := x.g.Position()
	notationSAN := nchess.AlgebraicNotation{}
	move, err := notationSAN.Decode(pos, san)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, san)
	}
	if err := x.g.Move(move, nil); err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, san)
	}
	x.movesSAN = append(x.movesSAN, notationSAN.Encode(pos, move))
	x.movesUCI = append(x.movesUCI, strings.ToLower(nchess.UCINotation{}.Encode(pos, move)))
	return nil
}

// MovesSAN returns the SAN history of applied moves.
func (x *Game) MovesSAN() []string {
	out := make([]string, len(x.movesSAN))
	copy(out, x.movesSAN)
	return out
}

// MovesUCI returns the coordinate history of applied moves.
func (x *Game) MovesUCI() []string {
	out := make([]string, len(x.movesUCI))
	copy(out, x.movesUCI)
	return out
}

// Resolve is the per-message hot path: it canonicalizes free chat text
// against the current position, discarding anything that is not a
// legal move.
func Resolve(g *Game, raw string) (string, bool) {
	if g == nil {
		return "", false
	}
	return g.TestMove(raw)
}
