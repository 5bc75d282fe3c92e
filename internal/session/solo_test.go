package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
)

func TestSoloPlaysBothSides(t *testing.T) {
	c, n := newTestCoordinator(t, nil)
	solo := NewSolo(c, time.Hour)
	ctx := context.Background()

	st, err := solo.State(ctx, alice)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Board.FEN != domain.StartFEN || st.MoveCount != 0 || !st.Board.IsViewerTurn {
		t.Fatalf("fresh solo board: %+v", st.Board)
	}

	st, err = solo.Move(ctx, alice, "e2", "e4", "")
	if err != nil {
		t.Fatalf("Move white: %v", err)
	}
	if st.Board.Turn != "black" || st.MoveCount != 1 || st.LastMove == nil || st.LastMove.Notation != "e4" {
		t.Fatalf("after e4: turn=%s count=%d last=%+v", st.Board.Turn, st.MoveCount, st.LastMove)
	}
	// the same user answers for black
	st, err = solo.Move(ctx, alice, "e7", "e5", "")
	if err != nil || st.MoveCount != 2 {
		t.Fatalf("Move black: count=%d err=%v", st.MoveCount, err)
	}
	if _, err := solo.Move(ctx, alice, "e4", "e6", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal solo move err=%v", err)
	}

	// boards are per user
	other, err := solo.State(ctx, bob)
	if err != nil || other.MoveCount != 0 {
		t.Fatalf("bob's board leaked alice's moves: %+v %v", other, err)
	}

	st, err = solo.Reset(ctx, alice)
	if err != nil || st.Board.FEN != domain.StartFEN {
		t.Fatalf("Reset: %+v %v", st, err)
	}
	if _, lobby := n.counts(""); lobby != 0 {
		t.Fatalf("solo play must not signal the lobby")
	}
}

func TestSoloFinishedBoard(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	solo := NewSolo(c, time.Hour)
	ctx := context.Background()
	for _, mv := range [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}} {
		if _, err := solo.Move(ctx, alice, mv[0], mv[1], ""); err != nil {
			t.Fatalf("Move %v: %v", mv, err)
		}
	}
	st, err := solo.Move(ctx, alice, "d8", "h4", "")
	if err != nil {
		t.Fatalf("mating move: %v", err)
	}
	if !st.Board.Terminal || st.Board.Result != "Black wins by checkmate!" {
		t.Fatalf("terminal=%v result=%q", st.Board.Terminal, st.Board.Result)
	}
	if _, err := solo.Move(ctx, alice, "a2", "a3", ""); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("move on finished solo board err=%v", err)
	}
	if _, err := solo.State(ctx, domain.Identity{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous solo err=%v", err)
	}
}
