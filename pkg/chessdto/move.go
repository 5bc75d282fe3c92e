package chessdto

import "time"

// MoveRecord is one ply as shown to clients.
type MoveRecord struct {
	Ply        int       `json:"ply"`
	PlayerID   string    `json:"player_id"`
	FromSquare string    `json:"from_square"`
	ToSquare   string    `json:"to_square"`
	Piece      string    `json:"piece"`
	Notation   string    `json:"notation"`
	UCI        string    `json:"uci"`
	Timestamp  time.Time `json:"timestamp"`
}

// MoveResponse answers a successful move proposal.
type MoveResponse struct {
	Move MoveRecord `json:"move"`
	Game *GameView  `json:"game"`
}
