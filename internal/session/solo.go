package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/rules"
	"github.com/park285/cheese-chess-arena/internal/store"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"go.uber.org/zap"
)

// Solo lets one user play both sides on a private board. There is no turn ownership, no game
// record and nothing is broadcast; the position lives in an expiring store slot.
type Solo struct {
	coord *Coordinator
	store store.Store
	ttl   time.Duration
}

func NewSolo(c *Coordinator, ttl time.Duration) *Solo {
	return &Solo{coord: c, store: c.store, ttl: ttl}
}

// State returns the actor's board, starting a fresh one when none exists.
func (s *Solo) State(ctx context.Context, actor domain.Identity) (*chessdto.SoloState, error) {
	board, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.view(board, nil), nil
}

// Move plays from→to for whichever side is to move.
func (s *Solo) Move(ctx context.Context, actor domain.Identity, from, to, promotion string) (*chessdto.SoloState, error) {
	board, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	if board.IsTerminal() {
		return nil, s.coord.fail(KindGameNotActive, "error.game_not_active", nil, nil)
	}
	mv, err := board.ParseMove(from, to, promotion)
	if err != nil {
		return nil, s.coord.fail(KindIllegalMove, "error.illegal_move", map[string]string{"Move": strings.TrimSpace(from) + strings.TrimSpace(to)}, err)
	}
	next, applied, err := board.Apply(mv)
	if err != nil {
		return nil, s.coord.fail(KindIllegalMove, "error.illegal_move", map[string]string{"Move": mv.UCI()}, err)
	}
	if err := s.store.SaveSolo(ctx, actor.ID, next.FEN(), s.ttl); err != nil {
		return nil, s.coord.storeError(err, "solo_move", zap.String("user_id", actor.ID))
	}
	last := chessdto.MoveRecord{
		PlayerID:   actor.ID,
		FromSquare: applied.From,
		ToSquare:   applied.To,
		Piece:      applied.Piece,
		Notation:   applied.SAN,
		UCI:        applied.UCI(),
		Timestamp:  s.coord.now(),
	}
	return s.view(next, &last), nil
}

// Reset discards the actor's board and starts over.
func (s *Solo) Reset(ctx context.Context, actor domain.Identity) (*chessdto.SoloState, error) {
	if err := s.store.ClearSolo(ctx, actor.ID); err != nil {
		return nil, s.coord.storeError(err, "solo_reset", zap.String("user_id", actor.ID))
	}
	return s.State(ctx, actor)
}

func (s *Solo) load(ctx context.Context, actor domain.Identity) (*rules.Board, error) {
	if actor.Anonymous() {
		return nil, s.coord.fail(KindUnauthenticated, "error.unauthenticated", nil, nil)
	}
	fen, err := s.store.SoloState(ctx, actor.ID)
	if err != nil {
		return nil, s.coord.storeError(err, "solo_load", zap.String("user_id", actor.ID))
	}
	if fen == "" {
		board := rules.NewBoard()
		if err := s.store.SaveSolo(ctx, actor.ID, board.FEN(), s.ttl); err != nil {
			return nil, s.coord.storeError(err, "solo_start", zap.String("user_id", actor.ID))
		}
		return board, nil
	}
	board, err := rules.ParseBoard(fen)
	if errors.Is(err, rules.ErrInvalidFEN) {
		// A corrupt slot is not worth failing over.
		return rules.NewBoard(), nil
	}
	return board, err
}

func (s *Solo) view(board *rules.Board, last *chessdto.MoveRecord) *chessdto.SoloState {
	snap := Snapshot(board, domain.White)
	snap.IsViewerTurn = !snap.Terminal
	snap.Result = s.coord.PositionResult(board)
	if last != nil {
		last.Ply = plyCount(board.FEN())
		snap.LastMove = last
	}
	return &chessdto.SoloState{Board: snap, LastMove: last, MoveCount: plyCount(board.FEN())}
}

// plyCount derives the number of plies played from the FEN move counters.
func plyCount(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0
	}
	n := (full - 1) * 2
	if fields[1] == "b" {
		n++
	}
	return n
}
