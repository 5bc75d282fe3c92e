package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis keeps JSON records under chess:* keys and guards every transition with WATCH/MULTI.
type Redis struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedis dials redisURL and pings it.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

func (s *Redis) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type reader interface {
	getter
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// activeOwner returns the game id the player's active index points at. An entry whose game
// record is gone counts as free and is reported with dangling == true.
func activeOwner(ctx context.Context, c reader, userID string) (id string, dangling bool, err error) {
	id, err = c.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	n, err := c.Exists(ctx, gameKey(id)).Result()
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", true, nil
	}
	return id, false, nil
}

func getJSON(ctx context.Context, c getter, key string, v any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *Redis) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	var g domain.Game
	if err := getJSON(ctx, s.rdb, gameKey(id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Redis) UpdateGame(ctx context.Context, id string, fn UpdateFunc) (*domain.Game, error) {
	// Participants never change, so their index keys can be watched up front.
	pre, err := s.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	key := gameKey(id)
	watched := []string{key, activeKey(pre.White.ID), activeKey(pre.Black.ID)}

	var out *domain.Game
	txf := func(tx *redis.Tx) error {
		var cur domain.Game
		if err := getJSON(ctx, tx, key, &cur); err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = cur.ID
		next.Version = cur.Version + 1
		next.UpdatedAt = s.now()
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		var release []string
		if finishing(&cur, next) {
			for _, uid := range []string{cur.White.ID, cur.Black.ID} {
				owner, err := tx.Get(ctx, activeKey(uid)).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if owner == cur.ID {
					release = append(release, uid)
				}
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			for _, uid := range release {
				pipe.Del(ctx, activeKey(uid))
			}
			if finishing(&cur, next) {
				for _, uid := range []string{cur.White.ID, cur.Black.ID} {
					pipe.LPush(ctx, historyKey(uid), cur.ID)
					pipe.LTrim(ctx, historyKey(uid), 0, HistoryCap-1)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err = s.rdb.Watch(ctx, txf, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func (s *Redis) ActiveGameID(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil
	}
	id, dangling, err := activeOwner(ctx, s.rdb, userID)
	if err != nil {
		return "", err
	}
	if dangling {
		s.dropDangling(ctx, userID)
	}
	return id, nil
}

// dropDangling clears an active index entry whose game record no longer exists. A concurrent
// writer that repoints the entry wins.
func (s *Redis) dropDangling(ctx context.Context, userID string) {
	key := activeKey(userID)
	_ = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		_, dangling, err := activeOwner(ctx, tx, userID)
		if err != nil || !dangling {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

func (s *Redis) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	ids, err := s.rdb.LRange(ctx, historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Game, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGame(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Redis) CreateChallenge(ctx context.Context, c *domain.Challenge) (*domain.Challenge, bool, error) {
	pk := pairKey(c.Challenger.ID, c.Challenged.ID)
	var (
		out     *domain.Challenge
		created bool
	)
	txf := func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, pk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if existingID != "" {
			var existing domain.Challenge
			err := getJSON(ctx, tx, challengeKey(existingID), &existing)
			if err == nil && existing.Pending() {
				out, created = &existing, false
				return nil
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, challengeKey(c.ID), raw, challengeRetention)
			pipe.Set(ctx, pk, c.ID, challengeRetention)
			pipe.SAdd(ctx, inboxKey(c.Challenged.ID), c.ID)
			pipe.Expire(ctx, inboxKey(c.Challenged.ID), challengeRetention)
			return nil
		})
		if err != nil {
			return err
		}
		cp := *c
		out, created = &cp, true
		return nil
	}
	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, pk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return out, created, nil
	}
	return nil, false, ErrConflict
}

func (s *Redis) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := getJSON(ctx, s.rdb, challengeKey(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Redis) PendingChallengesFor(ctx context.Context, userID string) ([]*domain.Challenge, error) {
	ids, err := s.rdb.SMembers(ctx, inboxKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Challenge
	for _, id := range ids {
		c, err := s.GetChallenge(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.rdb.SRem(ctx, inboxKey(userID), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.Pending() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// retire queues the removal of a challenge from the pending indexes.
func retire(ctx context.Context, pipe redis.Pipeliner, c *domain.Challenge, raw []byte) {
	pipe.Set(ctx, challengeKey(c.ID), raw, challengeRetention)
	pipe.Del(ctx, pairKey(c.Challenger.ID, c.Challenged.ID))
	pipe.SRem(ctx, inboxKey(c.Challenged.ID), c.ID)
}

func (s *Redis) ResolveChallenge(ctx context.Context, id string, status domain.ChallengeStatus) (*domain.Challenge, error) {
	if status != domain.ChallengeDeclined && status != domain.ChallengeExpired {
		return nil, fmt.Errorf("store: cannot resolve challenge to %q", status)
	}
	key := challengeKey(id)
	var out *domain.Challenge
	txf := func(tx *redis.Tx) error {
		var c domain.Challenge
		if err := getJSON(ctx, tx, key, &c); err != nil {
			return err
		}
		if !c.Pending() {
			return ErrChallengeNotPending
		}
		c.Status = status
		c.UpdatedAt = s.now()
		raw, err := json.Marshal(&c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			retire(ctx, pipe, &c, raw)
			return nil
		})
		if err != nil {
			return err
		}
		out = &c
		return nil
	}
	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func (s *Redis) CreateGameFromChallenge(ctx context.Context, challengeID string, g *domain.Game) (*domain.Game, *domain.Challenge, error) {
	key := challengeKey(challengeID)
	watched := []string{key, activeKey(g.White.ID), activeKey(g.Black.ID)}
	var (
		outGame      *domain.Game
		outChallenge *domain.Challenge
	)
	txf := func(tx *redis.Tx) error {
		var c domain.Challenge
		if err := getJSON(ctx, tx, key, &c); err != nil {
			return err
		}
		if !c.Pending() {
			return ErrChallengeNotPending
		}
		for _, uid := range []string{g.White.ID, g.Black.ID} {
			owner, _, err := activeOwner(ctx, tx, uid)
			if err != nil {
				return err
			}
			if owner != "" {
				return ErrPlayerBusy
			}
		}
		now := s.now()
		game := g.Clone()
		game.Version = 1
		game.UpdatedAt = now
		c.Status = domain.ChallengeAccepted
		c.GameID = game.ID
		c.UpdatedAt = now
		rawGame, err := json.Marshal(game)
		if err != nil {
			return err
		}
		rawChallenge, err := json.Marshal(&c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(game.ID), rawGame, 0)
			pipe.Set(ctx, activeKey(game.White.ID), game.ID, 0)
			pipe.Set(ctx, activeKey(game.Black.ID), game.ID, 0)
			retire(ctx, pipe, &c, rawChallenge)
			return nil
		})
		if err != nil {
			return err
		}
		outGame, outChallenge = game, &c
		return nil
	}
	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return outGame, outChallenge, nil
	}
	return nil, nil, ErrConflict
}

func (s *Redis) SoloState(ctx context.Context, userID string) (string, error) {
	fen, err := s.rdb.Get(ctx, soloKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return fen, err
}

func (s *Redis) SaveSolo(ctx context.Context, userID, fen string, ttl time.Duration) error {
	return s.rdb.Set(ctx, soloKey(userID), fen, ttl).Err()
}

func (s *Redis) ClearSolo(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, soloKey(userID)).Err()
}
