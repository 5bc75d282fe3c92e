// Package notify fans change signals out to subscribers. Signals carry no payload: every
// subscriber's pump pulls a fresh snapshot computed for its own viewer and pushes that.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"go.uber.org/zap"
)

// ErrClosed is returned when subscribing to a stopped hub.
var ErrClosed = errors.New("notify: hub closed")

const lobbyGroup = "lobby"

// Sink delivers one snapshot to one client connection.
type Sink interface {
	Push(ctx context.Context, v any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, v any) error

func (f SinkFunc) Push(ctx context.Context, v any) error { return f(ctx, v) }

// Source computes snapshots. GameView must refuse viewers who are not participants.
type Source interface {
	GameView(ctx context.Context, gameID string, viewer domain.Identity) (*chessdto.GameView, error)
	LobbyView(ctx context.Context, viewer domain.Identity) (*chessdto.LobbySnapshot, error)
}

type Hub struct {
	src         Source
	logger      *zap.Logger
	pushTimeout time.Duration

	mu     sync.Mutex
	groups map[string]map[string]*Subscription // group -> subscription id -> subscription
	closed bool
}

func NewHub(src Source, logger *zap.Logger, pushTimeout time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &Hub{src: src, logger: logger, pushTimeout: pushTimeout, groups: make(map[string]map[string]*Subscription)}
}

// Subscription is one client's membership in one group.
type Subscription struct {
	ID     string
	Viewer domain.Identity

	hub    *Hub
	group  string
	gameID string
	sink   Sink
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Done is closed once the subscription is removed, whether by Close or by a failed push.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close removes the subscription from its group. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// SubscribeLobby joins viewer to the lobby group and queues an initial snapshot.
func (h *Hub) SubscribeLobby(viewer domain.Identity, sink Sink) (*Subscription, error) {
	return h.add(lobbyGroup, "", viewer, sink)
}

// SubscribeGame joins viewer to the group of gameID. Non-participants are refused with the
// source's error.
func (h *Hub) SubscribeGame(ctx context.Context, gameID string, viewer domain.Identity, sink Sink) (*Subscription, error) {
	if _, err := h.src.GameView(ctx, gameID, viewer); err != nil {
		return nil, err
	}
	return h.add(gameGroup(gameID), gameID, viewer, sink)
}

func gameGroup(gameID string) string { return "game:" + gameID }

func (h *Hub) add(group, gameID string, viewer domain.Identity, sink Sink) (*Subscription, error) {
	s := &Subscription{
		ID:     uuid.NewString(),
		Viewer: viewer,
		hub:    h,
		group:  group,
		gameID: gameID,
		sink:   sink,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Subscription)
		h.groups[group] = members
	}
	members[s.ID] = s
	h.mu.Unlock()

	h.logger.Debug("fanout_subscribe", zap.String("group", group), zap.String("user_id", viewer.ID), zap.String("subscription_id", s.ID))
	s.notify()
	go h.pump(s)
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[s.group]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.groups, s.group)
		}
	}
}

// notify coalesces: a subscriber that has not consumed the previous signal gets no second one,
// since its next snapshot will be fresh anyway.
func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// GameChanged signals every subscriber of the game.
func (h *Hub) GameChanged(gameID string) { h.broadcast(gameGroup(gameID)) }

// LobbyChanged signals every lobby subscriber.
func (h *Hub) LobbyChanged() { h.broadcast(lobbyGroup) }

func (h *Hub) broadcast(group string) {
	h.mu.Lock()
	members := make([]*Subscription, 0, len(h.groups[group]))
	for _, s := range h.groups[group] {
		members = append(members, s)
	}
	h.mu.Unlock()
	for _, s := range members {
		s.notify()
	}
}

func (h *Hub) pump(s *Subscription) {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		if err := h.deliver(s); err != nil {
			h.logger.Warn("fanout_push_error",
				zap.String("group", s.group),
				zap.String("user_id", s.Viewer.ID),
				zap.String("subscription_id", s.ID),
				zap.Error(err),
			)
			s.Close()
			return
		}
	}
}

// deliver computes and pushes one snapshot. A snapshot failure is logged and skipped; only a
// push failure is returned, because that means the connection is gone.
func (h *Hub) deliver(s *Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.pushTimeout)
	defer cancel()

	var (
		payload any
		err     error
	)
	if s.group == lobbyGroup {
		payload, err = h.src.LobbyView(ctx, s.Viewer)
	} else {
		payload, err = h.src.GameView(ctx, s.gameID, s.Viewer)
	}
	if err != nil {
		h.logger.Warn("fanout_snapshot_error", zap.String("group", s.group), zap.String("user_id", s.Viewer.ID), zap.Error(err))
		return nil
	}
	return s.sink.Push(ctx, payload)
}

// Count returns the number of subscribers in the lobby (gameID == "") or in a game group.
func (h *Hub) Count(gameID string) int {
	group := lobbyGroup
	if gameID != "" {
		group = gameGroup(gameID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[group])
}

// Close drops every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, members := range h.groups {
		for _, s := range members {
			all = append(all, s)
		}
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
