package chessdto

import "time"

// GameSummary is a finished or running game in lists.
type GameSummary struct {
	ID        string    `json:"id"`
	White     Player    `json:"white"`
	Black     Player    `json:"black"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome,omitempty"`
	WinnerID  string    `json:"winner_id,omitempty"`
	Result    string    `json:"result,omitempty"`
	MoveCount int       `json:"move_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChallengeRecord struct {
	ID         string    `json:"id"`
	Challenger Player    `json:"challenger"`
	Challenged Player    `json:"challenged"`
	Status     string    `json:"status"`
	GameID     string    `json:"game_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChallengeResponse answers create/accept/decline.
type ChallengeResponse struct {
	Challenge ChallengeRecord `json:"challenge"`
	Created   bool            `json:"created"`
	Game      *GameView       `json:"game,omitempty"`
}

// LobbySnapshot is pushed to every lobby subscriber, computed for that subscriber.
type LobbySnapshot struct {
	Type              string            `json:"type"`
	Viewer            Player            `json:"viewer"`
	ActiveGameID      string            `json:"active_game_id,omitempty"`
	AvailablePlayers  []Player          `json:"available_players"`
	PendingChallenges []ChallengeRecord `json:"pending_challenges"`
	RecentGames       []GameSummary     `json:"recent_games"`
}
