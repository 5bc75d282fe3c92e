package rules

import (
	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-arena/internal/domain"
)

// Cell is one display square. Label is the real square name seen at that screen position.
type Cell struct {
	Label string `json:"label"`
	Piece string `json:"piece"`
	Glyph string `json:"glyph"`
	Light bool   `json:"light"`
}

// Grid is the board as seen by one player: Rows[0] is the top rank on screen and Rows[0][0] the
// top-left square. The perspective side always has its home ranks at the bottom.
type Grid struct {
	Perspective domain.Color `json:"perspective"`
	Rows        [8][8]Cell   `json:"rows"`
}

// Squares maps every square label to its piece letter ("" when empty).
func (g Grid) Squares() map[string]string {
	out := make(map[string]string, 64)
	for _, row := range g.Rows {
		for _, c := range row {
			out[c.Label] = c.Piece
		}
	}
	return out
}

// DisplayGrid orients the board for perspective. Black's grid is White's rotated by 180°.
func (b *Board) DisplayGrid(perspective domain.Color) Grid {
	if perspective != domain.Black {
		perspective = domain.White
	}
	squares := b.Raw().SquareMap()
	g := Grid{Perspective: perspective}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			file, rank := col, 7-row
			if perspective == domain.Black {
				file, rank = 7-col, row
			}
			sq := nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
			piece := pieceSymbol(squares[sq])
			g.Rows[row][col] = Cell{
				Label: sq.String(),
				Piece: piece,
				Glyph: glyphs[piece],
				Light: isLightSquare(sq),
			}
		}
	}
	return g
}

var glyphs = map[string]string{
	"K": "♔", "Q": "♕", "R": "♖", "B": "♗", "N": "♘", "P": "♙",
	"k": "♚", "q": "♛", "r": "♜", "b": "♝", "n": "♞", "p": "♟",
}
