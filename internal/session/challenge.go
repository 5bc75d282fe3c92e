package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/store"
	"go.uber.org/zap"
)

// CreateChallenge invites challenged to a game. Re-challenging the same player while the first
// invitation is pending returns that invitation with created == false.
func (c *Coordinator) CreateChallenge(ctx context.Context, challenger, challenged domain.Identity) (*domain.Challenge, bool, error) {
	challenged.ID = strings.TrimSpace(challenged.ID)
	if challenged.ID == "" {
		return nil, false, c.fail(KindNotFound, "error.not_found", nil, nil)
	}
	if challenged.ID == challenger.ID {
		return nil, false, c.fail(KindSelfChallenge, "error.self_challenge", nil, nil)
	}
	for _, who := range []domain.Identity{challenger, challenged} {
		busy, err := c.busy(ctx, who.ID)
		if err != nil {
			return nil, false, err
		}
		if busy {
			return nil, false, c.fail(KindPlayerBusy, "error.player_busy", map[string]string{"Name": displayName(who)}, nil)
		}
	}
	if challenged.Name == "" {
		challenged.Name = c.nameOf(challenged.ID)
	}

	var (
		ch      *domain.Challenge
		created bool
	)
	// A stale invitation for the same pair is expired and replaced by a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		now := c.now()
		var err error
		ch, created, err = c.store.CreateChallenge(ctx, &domain.Challenge{
			ID:         uuid.NewString(),
			Challenger: challenger,
			Challenged: challenged,
			Status:     domain.ChallengePending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return nil, false, c.storeError(err, "challenge_create", zap.String("challenger", challenger.ID), zap.String("challenged", challenged.ID))
		}
		if created || !ch.Stale(now, c.challengeTTL) {
			break
		}
		if err := c.expire(ctx, ch); err != nil {
			return nil, false, err
		}
	}
	if !created && ch.Stale(c.now(), c.challengeTTL) {
		return nil, false, c.fail(KindChallengeState, "error.challenge_state", nil, nil)
	}
	if created {
		c.logger.Info("challenge_create",
			zap.String("challenge_id", ch.ID),
			zap.String("challenger", challenger.ID),
			zap.String("challenged", challenged.ID),
		)
		c.lobbyChanged()
	}
	return ch, created, nil
}

// AcceptChallenge starts the game: the challenger plays white and the acceptor black.
func (c *Coordinator) AcceptChallenge(ctx context.Context, acceptor domain.Identity, challengeID string) (*domain.Game, *domain.Challenge, error) {
	ch, err := c.pendingFor(ctx, acceptor, challengeID)
	if err != nil {
		return nil, nil, err
	}
	if ch.Stale(c.now(), c.challengeTTL) {
		if err := c.expire(ctx, ch); err != nil {
			c.logger.Warn("challenge_expire_error", zap.String("challenge_id", ch.ID), zap.Error(err))
		}
		return nil, nil, c.fail(KindChallengeState, "error.challenge_state", nil, nil)
	}
	busy, err := c.busy(ctx, acceptor.ID)
	if err != nil {
		return nil, nil, err
	}
	if busy {
		return nil, nil, c.fail(KindPlayerBusy, "error.player_busy", map[string]string{"Name": displayName(acceptor)}, nil)
	}

	black := ch.Challenged
	if acceptor.Name != "" {
		black.Name = acceptor.Name
	}
	now := c.now()
	g, accepted, err := c.store.CreateGameFromChallenge(ctx, ch.ID, &domain.Game{
		ID:         uuid.NewString(),
		White:      ch.Challenger,
		Black:      black,
		BoardState: domain.StartFEN,
		Turn:       domain.White,
		Status:     domain.StatusActive,
		Moves:      []domain.Move{},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	switch {
	case errors.Is(err, store.ErrChallengeNotPending):
		return nil, nil, c.fail(KindChallengeState, "error.challenge_state", nil, err)
	case errors.Is(err, store.ErrPlayerBusy):
		// Only the challenger can be the busy one here; the acceptor was checked above.
		return nil, nil, c.fail(KindPlayerBusy, "error.player_busy", map[string]string{"Name": displayName(ch.Challenger)}, err)
	case errors.Is(err, store.ErrConflict):
		return nil, nil, c.fail(KindChallengeState, "error.challenge_state", nil, err)
	case err != nil:
		return nil, nil, c.storeError(err, "challenge_accept", zap.String("challenge_id", ch.ID))
	}
	c.logger.Info("challenge_accept",
		zap.String("challenge_id", accepted.ID),
		zap.String("game_id", g.ID),
		zap.String("white_id", g.White.ID),
		zap.String("black_id", g.Black.ID),
	)
	c.lobbyChanged()
	c.gameChanged(g.ID)
	return g, accepted, nil
}

// DeclineChallenge rejects a pending challenge addressed to acceptor.
func (c *Coordinator) DeclineChallenge(ctx context.Context, acceptor domain.Identity, challengeID string) (*domain.Challenge, error) {
	ch, err := c.pendingFor(ctx, acceptor, challengeID)
	if err != nil {
		return nil, err
	}
	declined, err := c.store.ResolveChallenge(ctx, ch.ID, domain.ChallengeDeclined)
	if errors.Is(err, store.ErrChallengeNotPending) || errors.Is(err, store.ErrConflict) {
		return nil, c.fail(KindChallengeState, "error.challenge_state", nil, err)
	}
	if err != nil {
		return nil, c.storeError(err, "challenge_decline", zap.String("challenge_id", ch.ID))
	}
	c.logger.Info("challenge_decline", zap.String("challenge_id", declined.ID), zap.String("user_id", acceptor.ID))
	c.lobbyChanged()
	return declined, nil
}

// PendingChallenges lists live challenges addressed to actor. Stale ones are expired on the way.
func (c *Coordinator) PendingChallenges(ctx context.Context, actor domain.Identity) ([]*domain.Challenge, error) {
	list, err := c.store.PendingChallengesFor(ctx, actor.ID)
	if err != nil {
		return nil, c.storeError(err, "challenge_list", zap.String("user_id", actor.ID))
	}
	now := c.now()
	out := list[:0]
	for _, ch := range list {
		if ch.Stale(now, c.challengeTTL) {
			if err := c.expire(ctx, ch); err != nil {
				c.logger.Warn("challenge_expire_error", zap.String("challenge_id", ch.ID), zap.Error(err))
			}
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// expire marks a stale pending challenge expired and announces the lobby change. Losing the
// race to another resolver is not an error.
func (c *Coordinator) expire(ctx context.Context, ch *domain.Challenge) error {
	_, err := c.store.ResolveChallenge(ctx, ch.ID, domain.ChallengeExpired)
	if errors.Is(err, store.ErrChallengeNotPending) {
		return nil
	}
	if err != nil {
		return c.storeError(err, "challenge_expire", zap.String("challenge_id", ch.ID))
	}
	c.logger.Info("challenge_expire", zap.String("challenge_id", ch.ID))
	c.lobbyChanged()
	return nil
}

// pendingFor finds a pending challenge addressed to acceptor. Anything else is reported as not found.
func (c *Coordinator) pendingFor(ctx context.Context, acceptor domain.Identity, challengeID string) (*domain.Challenge, error) {
	ch, err := c.store.GetChallenge(ctx, strings.TrimSpace(challengeID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.fail(KindNotFound, "error.challenge_not_found", nil, err)
	}
	if err != nil {
		return nil, c.storeError(err, "challenge_load", zap.String("challenge_id", challengeID))
	}
	if !ch.Pending() || ch.Challenged.ID != acceptor.ID || acceptor.ID == "" {
		return nil, c.fail(KindNotFound, "error.challenge_not_found", nil, nil)
	}
	return ch, nil
}

func (c *Coordinator) busy(ctx context.Context, userID string) (bool, error) {
	id, err := c.store.ActiveGameID(ctx, userID)
	if err != nil {
		return false, c.storeError(err, "active_game_lookup", zap.String("user_id", userID))
	}
	return id != "", nil
}

// nameOf looks a user up among connected players.
func (c *Coordinator) nameOf(userID string) string {
	c.mu.RLock()
	r := c.roster
	c.mu.RUnlock()
	if r == nil {
		return ""
	}
	for _, id := range r.Connected() {
		if id.ID == userID {
			return id.Name
		}
	}
	return ""
}

func displayName(id domain.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.ID
}
