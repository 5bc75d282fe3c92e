package domain

import "time"

// ChallengeStatus represents a challenge lifecycle state.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

// Challenge is an invitation from one player to another. It is resolved at most once.
type Challenge struct {
	ID         string          `json:"id"`
	Challenger Identity        `json:"challenger"`
	Challenged Identity        `json:"challenged"`
	Status     ChallengeStatus `json:"status"`
	GameID     string          `json:"game_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (c *Challenge) Pending() bool { return c.Status == ChallengePending }

// Stale reports whether a pending challenge outlived ttl. A non-positive ttl never expires.
func (c *Challenge) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || !c.Pending() {
		return false
	}
	return now.Sub(c.CreatedAt) > ttl
}
