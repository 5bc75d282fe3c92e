// Package rules owns every piece of chess-legality knowledge: move generation, move application,
// terminal detection and board orientation. It holds no state of its own.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-arena/internal/domain"
)

var (
	// ErrIllegalMove covers both malformed square input and well-formed moves that are not legal.
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid position")
)

// Termination names the reason a position ends the game.
type Termination string

const (
	NotTerminal          Termination = ""
	Checkmate            Termination = "checkmate"
	Stalemate            Termination = "stalemate"
	InsufficientMaterial Termination = "insufficient_material"
)

// Move is a candidate or legal move in coordinate form.
type Move struct {
	From      string
	To        string
	Promotion string // "q", "r", "b", "n" or ""
}

// UCI returns the long algebraic form, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string { return m.From + m.To + m.Promotion }

// Applied describes a move after it has been played.
type Applied struct {
	Move
	Piece string // moving piece, FEN letter ("P", "n", ...)
	SAN   string
}

// Board is an immutable chess position.
type Board struct {
	game *nchess.Game
}

// NewBoard returns the standard starting position.
func NewBoard() *Board {
	b, err := ParseBoard(domain.StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseBoard decodes a FEN string.
func ParseBoard(fen string) (*Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		fen = domain.StartFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return &Board{game: nchess.NewGame(opt)}, nil
}

// FEN encodes the position; ParseBoard(b.FEN()) yields an identical position.
func (b *Board) FEN() string { return b.game.FEN() }

// Turn returns the side to move.
func (b *Board) Turn() domain.Color { return colorFrom(b.game.Position().Turn()) }

// LegalMoves enumerates every legal move in the position.
func (b *Board) LegalMoves() []Move {
	valid := b.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, mv := range valid {
		out = append(out, Move{
			From:      mv.S1().String(),
			To:        mv.S2().String(),
			Promotion: promotionLetter(mv.Promo()),
		})
	}
	return out
}

// ParseMove builds a legal move from two square names. A pawn move to the last rank without an
// explicit promotion piece promotes to a queen.
func (b *Board) ParseMove(from, to, promotion string) (Move, error) {
	s1, err := ParseSquare(from)
	if err != nil {
		return Move{}, err
	}
	s2, err := ParseSquare(to)
	if err != nil {
		return Move{}, err
	}
	promo := strings.ToLower(strings.TrimSpace(promotion))
	if len(promo) > 1 || (promo != "" && !strings.Contains("qrbn", promo)) {
		return Move{}, fmt.Errorf("%w: bad promotion piece %q", ErrIllegalMove, promotion)
	}
	cand := Move{From: s1.String(), To: s2.String(), Promotion: promo}
	var queening *Move
	for _, lm := range b.LegalMoves() {
		if lm.From != cand.From || lm.To != cand.To {
			continue
		}
		if lm.Promotion == cand.Promotion {
			return lm, nil
		}
		if cand.Promotion == "" && lm.Promotion == "q" {
			m := lm
			queening = &m
		}
	}
	if queening != nil {
		return *queening, nil
	}
	return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, cand.UCI())
}

// IsLegal reports whether m is in LegalMoves.
func (b *Board) IsLegal(m Move) bool {
	for _, lm := range b.LegalMoves() {
		if lm == m {
			return true
		}
	}
	return false
}

// Apply plays m and returns the resulting position. b is left unchanged.
func (b *Board) Apply(m Move) (*Board, Applied, error) {
	if !b.IsLegal(m) {
		return nil, Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, m.UCI())
	}
	next, err := ParseBoard(b.FEN())
	if err != nil {
		return nil, Applied{}, err
	}
	pos := next.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, m.UCI())
	if err != nil {
		return nil, Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	applied := Applied{
		Move:  m,
		Piece: pieceSymbol(pos.Board().Piece(mv.S1())),
		SAN:   nchess.AlgebraicNotation{}.Encode(pos, mv),
	}
	if err := next.game.Move(mv, nil); err != nil {
		return nil, Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return next, applied, nil
}

// IsCheckmate reports whether the side to move is mated.
func (b *Board) IsCheckmate() bool { return b.game.Position().Status() == nchess.Checkmate }

// IsStalemate reports whether the side to move has no legal move and is not in check.
func (b *Board) IsStalemate() bool { return b.game.Position().Status() == nchess.Stalemate }

// IsTerminal is true for checkmate, stalemate and insufficient material. Repetition and the
// fifty-move rule are not detected.
func (b *Board) IsTerminal() bool { return b.Termination() != NotTerminal }

// Termination returns why the position ends the game, if it does.
func (b *Board) Termination() Termination {
	switch {
	case b.IsCheckmate():
		return Checkmate
	case b.IsStalemate():
		return Stalemate
	case b.IsInsufficientMaterial():
		return InsufficientMaterial
	}
	return NotTerminal
}

// Piece returns the FEN letter of the piece on square, or "" when empty.
func (b *Board) Piece(square string) string {
	sq, err := ParseSquare(square)
	if err != nil {
		return ""
	}
	return pieceSymbol(b.game.Position().Board().Piece(sq))
}

// Raw exposes the underlying board for rendering.
func (b *Board) Raw() *nchess.Board { return b.game.Position().Board() }

// ParseSquare validates a square name such as "e4".
func ParseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, fmt.Errorf("%w: bad square %q", ErrIllegalMove, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func promotionLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	}
	return ""
}

func pieceSymbol(p nchess.Piece) string {
	var s string
	switch p.Type() {
	case nchess.King:
		s = "k"
	case nchess.Queen:
		s = "q"
	case nchess.Rook:
		s = "r"
	case nchess.Bishop:
		s = "b"
	case nchess.Knight:
		s = "n"
	case nchess.Pawn:
		s = "p"
	default:
		return ""
	}
	if p.Color() == nchess.White {
		return strings.ToUpper(s)
	}
	return s
}
