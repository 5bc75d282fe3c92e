package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(context.Background(), "sqlite::memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return a
}

func foolsMate() *domain.Game {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	moves := []struct{ from, to, san string }{
		{"f2", "f3", "f3"},
		{"e7", "e5", "e5"},
		{"g2", "g4", "g4"},
		{"d8", "h4", "Qh4#"},
	}
	g := &domain.Game{
		ID:         "g-1",
		White:      domain.Identity{ID: "u-a", Name: "Alice"},
		Black:      domain.Identity{ID: "u-b", Name: "Bob \"B\""},
		BoardState: "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
		Turn:       domain.White,
		Status:     domain.StatusCompleted,
		Outcome:    domain.OutcomeBlackWins,
		WinnerID:   "u-b",
		MoveCount:  len(moves),
		CreatedAt:  start,
		UpdatedAt:  start.Add(2 * time.Minute),
	}
	for i, m := range moves {
		player := "u-a"
		if i%2 == 1 {
			player = "u-b"
		}
		g.Moves = append(g.Moves, domain.Move{
			Ply: i + 1, PlayerID: player, From: m.from, To: m.to,
			Notation: m.san, UCI: m.from + m.to, Timestamp: start.Add(time.Duration(i) * time.Second),
		})
	}
	return g
}

func TestSaveResultAndLoad(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	g := foolsMate()

	if err := a.SaveResult(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := a.Load(ctx, g.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Result != "0-1" || rec.Termination != "checkmate" || rec.WinnerID != "u-b" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.MoveCount != 4 || len(rec.MovesSAN) != 4 || rec.MovesSAN[3] != "Qh4#" {
		t.Fatalf("unexpected moves: %+v", rec.MovesSAN)
	}
	if !rec.EndedAt.Equal(g.UpdatedAt) {
		t.Fatalf("ended at %v, want %v", rec.EndedAt, g.UpdatedAt)
	}
	n, err := a.MoveCount(ctx, g.ID)
	if err != nil || n != 4 {
		t.Fatalf("move rows = %d, %v", n, err)
	}
}

func TestSaveResultIsIdempotent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	g := foolsMate()
	for i := 0; i < 2; i++ {
		if err := a.SaveResult(ctx, g); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	n, err := a.MoveCount(ctx, g.ID)
	if err != nil || n != 4 {
		t.Fatalf("move rows = %d, %v", n, err)
	}
}

func TestSaveResultSkipsActiveGames(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	g := foolsMate()
	g.Status = domain.StatusActive
	g.Outcome = domain.OutcomeNone
	if err := a.SaveResult(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := a.Load(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadPGN(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	g := foolsMate()
	if err := a.SaveResult(ctx, g); err != nil {
		t.Fatalf("save: %v", err)
	}
	pgn, err := a.LoadPGN(ctx, g.ID)
	if err != nil {
		t.Fatalf("pgn: %v", err)
	}
	for _, want := range []string{
		`[White "Alice"]`,
		`[Black "Bob 'B'"]`,
		`[Date "2026.03.01"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
}

func TestTermination(t *testing.T) {
	g := foolsMate()
	g.Status = domain.StatusResigned
	g.Outcome = domain.OutcomeWhiteResigned
	if got := Termination(g); got != "resignation" {
		t.Fatalf("termination = %q", got)
	}
	if got := PGNResult(g); got != "0-1" {
		t.Fatalf("result = %q", got)
	}

	g.Status = domain.StatusCompleted
	g.Outcome = domain.OutcomeDraw
	g.BoardState = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	if got := Termination(g); got != "stalemate" {
		t.Fatalf("termination = %q", got)
	}
	if got := PGNResult(g); got != "1/2-1/2" {
		t.Fatalf("result = %q", got)
	}

	g.Status = domain.StatusActive
	g.Outcome = domain.OutcomeNone
	if Termination(g) != "" || PGNResult(g) != "*" {
		t.Fatal("running game must have no termination")
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open(context.Background(), "mysql://localhost/db", nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error")
	}
}
