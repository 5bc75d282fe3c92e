package chessdto

import "time"

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Square is one display cell. Label is the real square name at that screen position.
type Square struct {
	Label string `json:"label"`
	Piece string `json:"piece"`
	Glyph string `json:"glyph,omitempty"`
	Light bool   `json:"light"`
}

// BoardSnapshot is a board oriented for one viewer: Rows[0] is the top of the screen.
type BoardSnapshot struct {
	GameID       string            `json:"game_id,omitempty"`
	Perspective  string            `json:"perspective"`
	Rows         [][]Square        `json:"rows"`
	Squares      map[string]string `json:"squares"`
	FEN          string            `json:"fen"`
	Turn         string            `json:"turn"`
	IsViewerTurn bool              `json:"is_viewer_turn"`
	Terminal     bool              `json:"terminal"`
	Termination  string            `json:"termination,omitempty"`
	Result       string            `json:"result,omitempty"`
	LastMove     *MoveRecord       `json:"last_move,omitempty"`
}

// GameRecord mirrors the stored game.
type GameRecord struct {
	ID        string       `json:"id"`
	White     Player       `json:"white"`
	Black     Player       `json:"black"`
	Status    string       `json:"status"`
	Outcome   string       `json:"outcome,omitempty"`
	WinnerID  string       `json:"winner_id,omitempty"`
	Turn      string       `json:"current_turn"`
	MoveCount int          `json:"move_count"`
	Moves     []MoveRecord `json:"moves"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// GameView is what a participant receives on the game stream.
type GameView struct {
	Type       string        `json:"type"`
	Game       GameRecord    `json:"game"`
	Board      BoardSnapshot `json:"board"`
	ViewerSide string        `json:"viewer_side"`
	Opponent   Player        `json:"opponent"`
}

// SoloState is the single-player board.
type SoloState struct {
	Board     BoardSnapshot `json:"board"`
	LastMove  *MoveRecord   `json:"last_move,omitempty"`
	MoveCount int           `json:"move_count"`
}
