package chessdto

type MoveRequest struct {
	FromSquare string `json:"from_square"`
	ToSquare   string `json:"to_square"`
	Promotion  string `json:"promotion,omitempty"`
}

type ChallengeRequest struct {
	ChallengedID string `json:"challenged_id"`
}

// SoloRequest either plays a move or, with Reset, starts over.
type SoloRequest struct {
	FromSquare string `json:"from_square"`
	ToSquare   string `json:"to_square"`
	Promotion  string `json:"promotion,omitempty"`
	Reset      bool   `json:"reset,omitempty"`
}

type TokenResponse struct {
	Token  string `json:"token"`
	Player Player `json:"player"`
}
