// Package session coordinates two-player games: it validates proposals against the rules engine,
// commits each accepted move exactly once through the store and tells the fan-out what changed.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/msgcat"
	"github.com/park285/cheese-chess-arena/internal/rules"
	"github.com/park285/cheese-chess-arena/internal/store"
	"go.uber.org/zap"
)

// Notifier receives change signals. Implementations must not block.
type Notifier interface {
	GameChanged(gameID string)
	LobbyChanged()
}

// ResultSink is told about every game that leaves the active state.
type ResultSink interface {
	SaveResult(ctx context.Context, g *domain.Game) error
}

// Roster lists currently connected identities.
type Roster interface {
	Connected() []domain.Identity
}

type Options struct {
	Store   store.Store
	Catalog *msgcat.Catalog
	Logger  *zap.Logger
	// ChallengeTTL is how long a challenge stays acceptable. Zero disables expiry.
	ChallengeTTL time.Duration
	// HistoryLimit bounds the lobby's recent game list.
	HistoryLimit int
	// SinkTimeout bounds each result sink call.
	SinkTimeout time.Duration
	Clock       func() time.Time
}

type Coordinator struct {
	store  store.Store
	msgs   *msgcat.Catalog
	logger *zap.Logger
	locks  *keyedMutex

	challengeTTL time.Duration
	historyLimit int
	sinkTimeout  time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	notifier Notifier
	roster   Roster
	sinks    []ResultSink

	pending sync.WaitGroup
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:        opts.Store,
		msgs:         opts.Catalog,
		logger:       opts.Logger,
		locks:        newKeyedMutex(),
		challengeTTL: opts.ChallengeTTL,
		historyLimit: opts.HistoryLimit,
		sinkTimeout:  opts.SinkTimeout,
		now:          opts.Clock,
	}
	if c.store == nil {
		c.store = store.NewMemory()
	}
	if c.msgs == nil {
		c.msgs = msgcat.Default()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.historyLimit <= 0 {
		c.historyLimit = 10
	}
	if c.sinkTimeout <= 0 {
		c.sinkTimeout = 10 * time.Second
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// AttachNotifier wires the fan-out.
func (c *Coordinator) AttachNotifier(n Notifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

// AttachRoster wires the presence tracker used for available players.
func (c *Coordinator) AttachRoster(r Roster) {
	c.mu.Lock()
	c.roster = r
	c.mu.Unlock()
}

// AttachResultSink adds a sink for finished games (archive, webhook).
func (c *Coordinator) AttachResultSink(s ResultSink) {
	if s == nil {
		return
	}
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Wait blocks until every in-flight result sink call has returned.
func (c *Coordinator) Wait() { c.pending.Wait() }

// Store exposes the underlying store for read paths such as the PGN export.
func (c *Coordinator) Store() store.Store { return c.store }

// Catalog exposes the message catalog.
func (c *Coordinator) Catalog() *msgcat.Catalog { return c.msgs }

// MoveResult describes an accepted move.
type MoveResult struct {
	Game        *domain.Game
	Move        domain.Move
	Termination rules.Termination
}

// ProposeMove validates and applies one move for actor. Checks run in a fixed order: unknown game,
// non-participant, finished game, wrong turn, illegal move. The move, the new position and any
// game-ending transition are committed as one atomic update.
func (c *Coordinator) ProposeMove(ctx context.Context, gameID string, actor domain.Identity, from, to, promotion string) (*MoveResult, error) {
	gameID = strings.TrimSpace(gameID)
	unlock := c.locks.Lock(gameID)
	defer unlock()

	var (
		played domain.Move
		term   rules.Termination
	)
	g, err := c.store.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		side, err := c.checkActor(g, actor)
		if err != nil {
			return err
		}
		if g.Turn != side {
			return c.fail(KindTurnOrder, "error.turn_order", nil, nil)
		}
		board, err := rules.ParseBoard(g.BoardState)
		if err != nil {
			return err
		}
		mv, err := board.ParseMove(from, to, promotion)
		if err != nil {
			return c.fail(KindIllegalMove, "error.illegal_move", map[string]string{"Move": strings.TrimSpace(from) + strings.TrimSpace(to)}, err)
		}
		next, applied, err := board.Apply(mv)
		if err != nil {
			return c.fail(KindIllegalMove, "error.illegal_move", map[string]string{"Move": mv.UCI()}, err)
		}

		played = domain.Move{
			ID:        uuid.NewString(),
			Ply:       len(g.Moves) + 1,
			PlayerID:  actor.ID,
			From:      applied.From,
			To:        applied.To,
			Piece:     applied.Piece,
			Notation:  applied.SAN,
			UCI:       applied.UCI(),
			Timestamp: c.now(),
		}
		g.Moves = append(g.Moves, played)
		g.MoveCount = len(g.Moves)
		g.BoardState = next.FEN()
		g.Turn = next.Turn()

		term = next.Termination()
		switch term {
		case rules.Checkmate:
			g.Status = domain.StatusCompleted
			g.Outcome = domain.WinsFor(side)
			g.WinnerID = actor.ID
		case rules.Stalemate, rules.InsufficientMaterial:
			g.Status = domain.StatusCompleted
			g.Outcome = domain.OutcomeDraw
		}
		return nil
	})
	if err != nil {
		return nil, c.storeError(err, "game_move", zap.String("game_id", gameID), zap.String("user_id", actor.ID))
	}

	c.logger.Info("game_move",
		zap.String("game_id", g.ID),
		zap.String("user_id", actor.ID),
		zap.String("uci", played.UCI),
		zap.String("san", played.Notation),
		zap.Int("ply", played.Ply),
		zap.String("status", string(g.Status)),
		zap.String("outcome", string(g.Outcome)),
	)
	c.gameChanged(g.ID)
	if !g.Active() {
		c.lobbyChanged()
		c.finish(g)
	}
	return &MoveResult{Game: g, Move: played, Termination: term}, nil
}

// Resign ends actor's game in the opponent's favor. The board is left as it was.
func (c *Coordinator) Resign(ctx context.Context, gameID string, actor domain.Identity) (*domain.Game, error) {
	gameID = strings.TrimSpace(gameID)
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.store.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		side, err := c.checkActor(g, actor)
		if err != nil {
			return err
		}
		g.Status = domain.StatusResigned
		g.Outcome = domain.ResignedBy(side)
		g.WinnerID = g.Player(side.Opposite()).ID
		return nil
	})
	if err != nil {
		return nil, c.storeError(err, "game_resign", zap.String("game_id", gameID), zap.String("user_id", actor.ID))
	}
	c.logger.Info("game_resign",
		zap.String("game_id", g.ID),
		zap.String("resigner", actor.ID),
		zap.String("winner", g.WinnerID),
	)
	c.gameChanged(g.ID)
	c.lobbyChanged()
	c.finish(g)
	return g, nil
}

// Game loads a game visible to actor.
func (c *Coordinator) Game(ctx context.Context, gameID string, actor domain.Identity) (*domain.Game, error) {
	g, err := c.store.GetGame(ctx, strings.TrimSpace(gameID))
	if err != nil {
		return nil, c.storeError(err, "game_load", zap.String("game_id", gameID))
	}
	if !g.HasPlayer(actor.ID) {
		return nil, c.fail(KindForbidden, "error.forbidden", nil, nil)
	}
	return g, nil
}

// ActiveGame returns actor's running game, or nil.
func (c *Coordinator) ActiveGame(ctx context.Context, actor domain.Identity) (*domain.Game, error) {
	id, err := c.store.ActiveGameID(ctx, actor.ID)
	if err != nil {
		return nil, c.storeError(err, "active_game_lookup", zap.String("user_id", actor.ID))
	}
	if id == "" {
		return nil, nil
	}
	g, err := c.store.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.storeError(err, "active_game_lookup", zap.String("user_id", actor.ID))
	}
	return g, nil
}

// History returns actor's most recent finished games, newest first.
func (c *Coordinator) History(ctx context.Context, actor domain.Identity, limit int) ([]*domain.Game, error) {
	if limit <= 0 {
		limit = c.historyLimit
	}
	games, err := c.store.RecentGames(ctx, actor.ID, limit)
	if err != nil {
		return nil, c.storeError(err, "history_lookup", zap.String("user_id", actor.ID))
	}
	return games, nil
}

// checkActor enforces participant and active-state rules shared by moves and resignation.
func (c *Coordinator) checkActor(g *domain.Game, actor domain.Identity) (domain.Color, error) {
	side := g.SideOf(actor.ID)
	if side == "" {
		return "", c.fail(KindForbidden, "error.forbidden", nil, nil)
	}
	if !g.Active() {
		return "", c.fail(KindGameNotActive, "error.game_not_active", nil, nil)
	}
	return side, nil
}

func (c *Coordinator) fail(kind Kind, key string, data any, cause error) *Error {
	if data == nil {
		data = map[string]string{}
	}
	return &Error{Kind: kind, Message: c.msgs.Text(key, data), cause: cause}
}

// storeError maps store failures onto the error taxonomy. Unexpected failures are logged and
// reported as internal without their text.
func (c *Coordinator) storeError(err error, event string, fields ...zap.Field) error {
	var own *Error
	switch {
	case errors.As(err, &own):
		return own
	case errors.Is(err, store.ErrNotFound):
		return c.fail(KindNotFound, "error.not_found", nil, err)
	case errors.Is(err, store.ErrConflict):
		// Lost the race twice: the other writer advanced the game first.
		return c.fail(KindTurnOrder, "error.turn_order", nil, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.fail(KindInternal, "error.internal", nil, err)
	}
	c.logger.Error(event+"_error", append(fields, zap.Error(err))...)
	return c.fail(KindInternal, "error.internal", nil, err)
}

func (c *Coordinator) gameChanged(gameID string) {
	c.mu.RLock()
	n := c.notifier
	c.mu.RUnlock()
	if n != nil {
		n.GameChanged(gameID)
	}
}

func (c *Coordinator) lobbyChanged() {
	c.mu.RLock()
	n := c.notifier
	c.mu.RUnlock()
	if n != nil {
		n.LobbyChanged()
	}
}

// finish hands a finished game to every result sink without blocking the caller.
func (c *Coordinator) finish(g *domain.Game) {
	c.mu.RLock()
	sinks := append([]ResultSink(nil), c.sinks...)
	c.mu.RUnlock()
	for _, s := range sinks {
		c.pending.Add(1)
		go func(s ResultSink, g *domain.Game) {
			defer c.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.sinkTimeout)
			defer cancel()
			if err := s.SaveResult(ctx, g); err != nil {
				c.logger.Error("game_result_sink_error", zap.String("game_id", g.ID), zap.String("outcome", string(g.Outcome)), zap.Error(err))
			}
		}(s, g.Clone())
	}
}
