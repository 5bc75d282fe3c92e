package domain

import "time"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Status represents the lifecycle of a game.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusResigned  Status = "resigned"
)

// Outcome is recorded exactly once, when a game leaves StatusActive.
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeWhiteWins     Outcome = "white_wins"
	OutcomeBlackWins     Outcome = "black_wins"
	OutcomeDraw          Outcome = "draw"
	OutcomeWhiteResigned Outcome = "white_resigned"
	OutcomeBlackResigned Outcome = "black_resigned"
)

// WinsFor returns the checkmate outcome for the given side.
func WinsFor(c Color) Outcome {
	if c == White {
		return OutcomeWhiteWins
	}
	return OutcomeBlackWins
}

// ResignedBy returns the resignation outcome for the given side.
func ResignedBy(c Color) Outcome {
	if c == White {
		return OutcomeWhiteResigned
	}
	return OutcomeBlackResigned
}

// Identity is an authenticated user. The zero value is anonymous.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i Identity) Anonymous() bool { return i.ID == "" }

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Game is the authoritative record of a two-player match.
type Game struct {
	ID         string    `json:"id"`
	White      Identity  `json:"white"`
	Black      Identity  `json:"black"`
	BoardState string    `json:"board_state"`
	Turn       Color     `json:"current_turn"`
	Status     Status    `json:"status"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	WinnerID   string    `json:"winner_id,omitempty"`
	MoveCount  int       `json:"move_count"`
	Moves      []Move    `json:"moves"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Move is one ply. Never mutated after it is appended to Game.Moves.
type Move struct {
	ID        string    `json:"id"`
	Ply       int       `json:"ply"`
	PlayerID  string    `json:"player_id"`
	From      string    `json:"from_square"`
	To        string    `json:"to_square"`
	Piece     string    `json:"piece"`
	Notation  string    `json:"notation"`
	UCI       string    `json:"uci"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *Game) HasPlayer(userID string) bool {
	return userID != "" && (g.White.ID == userID || g.Black.ID == userID)
}

// SideOf returns the color played by userID, or "" if the user is not a participant.
func (g *Game) SideOf(userID string) Color {
	switch {
	case userID == "":
		return ""
	case g.White.ID == userID:
		return White
	case g.Black.ID == userID:
		return Black
	}
	return ""
}

// Player returns the identity playing the given side.
func (g *Game) Player(c Color) Identity {
	if c == White {
		return g.White
	}
	return g.Black
}

// Opponent returns the other participant of userID.
func (g *Game) Opponent(userID string) Identity {
	switch g.SideOf(userID) {
	case White:
		return g.Black
	case Black:
		return g.White
	}
	return Identity{}
}

func (g *Game) Active() bool { return g.Status == StatusActive }

// Clone returns a deep copy so callers never share the move slice.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Moves = append([]Move(nil), g.Moves...)
	return &cp
}
