// Package store persists games, challenges and solo positions. Every state transition goes
// through an atomic conditional update so concurrent writers never lose each other's changes.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrConflict            = errors.New("store: concurrent update")
	ErrPlayerBusy          = errors.New("store: player already has an active game")
	ErrChallengeNotPending = errors.New("store: challenge is not pending")
)

const (
	// HistoryCap bounds the per-player finished game list.
	HistoryCap = 50
	// updateAttempts is how many times a conflicting update is re-run against fresh state.
	updateAttempts = 2

	challengeRetention = 24 * time.Hour
)

// UpdateFunc mutates a private copy of the current game. Returning an error aborts the update and
// the error is passed through unchanged. It may run more than once.
type UpdateFunc func(g *domain.Game) error

// Store is the persistence boundary used by the session coordinator.
type Store interface {
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	// UpdateGame applies fn atomically. When the game leaves the active state the per-player
	// active index is cleared and the game is pushed onto both players' history in the same unit.
	UpdateGame(ctx context.Context, id string, fn UpdateFunc) (*domain.Game, error)
	// ActiveGameID returns "" when the player has no active game.
	ActiveGameID(ctx context.Context, userID string) (string, error)
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error)

	// CreateChallenge stores c unless a pending challenge for the same ordered pair exists, in
	// which case the existing one is returned with created == false.
	CreateChallenge(ctx context.Context, c *domain.Challenge) (out *domain.Challenge, created bool, err error)
	GetChallenge(ctx context.Context, id string) (*domain.Challenge, error)
	PendingChallengesFor(ctx context.Context, userID string) ([]*domain.Challenge, error)
	// ResolveChallenge moves a pending challenge to declined or expired.
	ResolveChallenge(ctx context.Context, id string, status domain.ChallengeStatus) (*domain.Challenge, error)
	// CreateGameFromChallenge atomically accepts a pending challenge, stores g and marks both
	// players busy. It fails with ErrChallengeNotPending or ErrPlayerBusy.
	CreateGameFromChallenge(ctx context.Context, challengeID string, g *domain.Game) (*domain.Game, *domain.Challenge, error)

	SoloState(ctx context.Context, userID string) (string, error)
	SaveSolo(ctx context.Context, userID, fen string, ttl time.Duration) error
	ClearSolo(ctx context.Context, userID string) error

	Close() error
}

func gameKey(id string) string { return "chess:game:" + strings.TrimSpace(id) }
func activeKey(userID string) string { return "chess:index:active:" + strings.TrimSpace(userID) }
func historyKey(userID string) string { return "chess:index:history:" + strings.TrimSpace(userID) }
func challengeKey(id string) string { return "chess:challenge:" + strings.TrimSpace(id) }
func pairKey(from, to string) string { return "chess:challenge:pair:" + from + ":" + to }
func inboxKey(userID string) string { return "chess:challenge:inbox:" + strings.TrimSpace(userID) }
func soloKey(userID string) string { return "chess:solo:" + strings.TrimSpace(userID) }

// finishing reports whether an update moves a game out of the active state.
func finishing(before, after *domain.Game) bool {
	return before.Active() && !after.Active()
}

// ParseRedisURL converts redis://[:password@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
