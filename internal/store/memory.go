package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
)

// Memory is a single-process Store used when no REDIS_URL is configured and in tests.
type Memory struct {
	mu sync.RWMutex

	games      map[string]*domain.Game
	active     map[string]string   // user id -> game id
	history    map[string][]string // user id -> game ids, newest first
	challenges map[string]*domain.Challenge
	pairs      map[string]string // challenger|challenged -> pending challenge id
	solo       map[string]soloSlot

	now func() time.Time
}

type soloSlot struct {
	fen     string
	expires time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{
		games:      make(map[string]*domain.Game),
		active:     make(map[string]string),
		history:    make(map[string][]string),
		challenges: make(map[string]*domain.Challenge),
		pairs:      make(map[string]string),
		solo:       make(map[string]soloSlot),
		now:        time.Now,
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetGame(_ context.Context, id string) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (m *Memory) UpdateGame(_ context.Context, id string, fn UpdateFunc) (*domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.Version = cur.Version + 1
	next.UpdatedAt = m.now()
	if finishing(cur, next) {
		for _, uid := range []string{cur.White.ID, cur.Black.ID} {
			if m.active[uid] == cur.ID {
				delete(m.active, uid)
			}
			h := append([]string{cur.ID}, m.history[uid]...)
			if len(h) > HistoryCap {
				h = h[:HistoryCap]
			}
			m.history[uid] = h
		}
	}
	m.games[id] = next
	return next.Clone(), nil
}

func (m *Memory) ActiveGameID(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID], nil
}

func (m *Memory) RecentGames(_ context.Context, userID string, limit int) ([]*domain.Game, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.history[userID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*domain.Game, 0, len(ids))
	for _, id := range ids {
		if g, ok := m.games[id]; ok {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func memPairKey(c *domain.Challenge) string { return c.Challenger.ID + "|" + c.Challenged.ID }

func (m *Memory) CreateChallenge(_ context.Context, c *domain.Challenge) (*domain.Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.pairs[memPairKey(c)]; ok {
		if existing, ok := m.challenges[id]; ok && existing.Pending() {
			cp := *existing
			return &cp, false, nil
		}
	}
	stored := *c
	m.challenges[c.ID] = &stored
	m.pairs[memPairKey(c)] = c.ID
	cp := stored
	return &cp, true, nil
}

func (m *Memory) GetChallenge(_ context.Context, id string) (*domain.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) PendingChallengesFor(_ context.Context, userID string) ([]*domain.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Challenge
	for _, c := range m.challenges {
		if c.Pending() && c.Challenged.ID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ResolveChallenge(_ context.Context, id string, status domain.ChallengeStatus) (*domain.Challenge, error) {
	if status != domain.ChallengeDeclined && status != domain.ChallengeExpired {
		return nil, fmt.Errorf("store: cannot resolve challenge to %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !c.Pending() {
		return nil, ErrChallengeNotPending
	}
	c.Status = status
	c.UpdatedAt = m.now()
	delete(m.pairs, memPairKey(c))
	cp := *c
	return &cp, nil
}

func (m *Memory) CreateGameFromChallenge(_ context.Context, challengeID string, g *domain.Game) (*domain.Game, *domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if !c.Pending() {
		return nil, nil, ErrChallengeNotPending
	}
	if m.active[g.White.ID] != "" || m.active[g.Black.ID] != "" {
		return nil, nil, ErrPlayerBusy
	}
	now := m.now()
	game := g.Clone()
	game.Version = 1
	game.UpdatedAt = now
	m.games[game.ID] = game
	m.active[game.White.ID] = game.ID
	m.active[game.Black.ID] = game.ID
	c.Status = domain.ChallengeAccepted
	c.GameID = game.ID
	c.UpdatedAt = now
	delete(m.pairs, memPairKey(c))
	cp := *c
	return game.Clone(), &cp, nil
}

func (m *Memory) SoloState(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.solo[userID]
	if !ok || (!slot.expires.IsZero() && m.now().After(slot.expires)) {
		return "", nil
	}
	return slot.fen, nil
}

func (m *Memory) SaveSolo(_ context.Context, userID, fen string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := soloSlot{fen: fen}
	if ttl > 0 {
		slot.expires = m.now().Add(ttl)
	}
	m.solo[userID] = slot
	return nil
}

func (m *Memory) ClearSolo(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.solo, userID)
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
