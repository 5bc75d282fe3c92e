package rules

import nchess "github.com/corentings/chess/v2"

// IsInsufficientMaterial reports whether neither side can possibly deliver mate: no pawns,
// rooks or queens remain, and the minor pieces are either a single knight or bishop, or only
// bishops that all stand on squares of one color.
func (b *Board) IsInsufficientMaterial() bool {
	var knights, bishops int
	bishopShades := map[bool]int{}
	for sq, p := range b.Raw().SquareMap() {
		switch p.Type() {
		case nchess.Pawn, nchess.Rook, nchess.Queen:
			return false
		case nchess.Knight:
			knights++
		case nchess.Bishop:
			bishops++
			bishopShades[isLightSquare(sq)]++
		}
	}
	if knights+bishops <= 1 {
		return true
	}
	return knights == 0 && len(bishopShades) == 1
}

func isLightSquare(sq nchess.Square) bool {
	return (int(sq.File())+int(sq.Rank()))%2 == 1
}
