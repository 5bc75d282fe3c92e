package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/rules"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func luminance(img image.Image, x, y int) uint32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (r + g + b) / 3 >> 8
}

func cellCenter(row, col int) (int, int) {
	rect := cellRect(row, col, image.Point{X: sideMargin, Y: topMargin})
	return rect.Min.X + SquareSize/2, rect.Min.Y + SquareSize/2
}

func TestPNGSize(t *testing.T) {
	data, err := PNG(context.Background(), rules.NewBoard(), Options{Title: "Alice vs Bob", Status: "White to move"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	if img.Bounds().Dx() != Width || img.Bounds().Dy() != Height {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestPNGOrientation(t *testing.T) {
	board := rules.NewBoard()
	white, err := PNG(context.Background(), board, Options{Perspective: domain.White})
	if err != nil {
		t.Fatalf("render white: %v", err)
	}
	black, err := PNG(context.Background(), board, Options{Perspective: domain.Black})
	if err != nil {
		t.Fatalf("render black: %v", err)
	}
	x, y := cellCenter(7, 0)
	// bottom-left holds a white rook for White and a black rook for Black
	if l := luminance(decode(t, white), x, y); l < 200 {
		t.Fatalf("white view bottom-left luminance %d, want a light piece", l)
	}
	if l := luminance(decode(t, black), x, y); l > 60 {
		t.Fatalf("black view bottom-left luminance %d, want a dark piece", l)
	}
}

func TestPNGHighlightsLastMove(t *testing.T) {
	board := rules.NewBoard()
	plain, err := PNG(context.Background(), board, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	marked, err := PNG(context.Background(), board, Options{LastFrom: "e3", LastTo: "e4"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// e4 is row 4, col 4 from White's side; sample a corner away from any piece
	rect := cellRect(4, 4, image.Point{X: sideMargin, Y: topMargin})
	a := decode(t, plain).At(rect.Min.X+2, rect.Min.Y+2)
	b := decode(t, marked).At(rect.Min.X+2, rect.Min.Y+2)
	if a == b {
		t.Fatal("expected last move square to be tinted")
	}
}

func TestPNGHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PNG(ctx, rules.NewBoard(), Options{}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestPieceSVGRejectsUnknown(t *testing.T) {
	if _, err := pieceSVG("x"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := renderPieceImage("Q", 32); err != nil {
		t.Fatalf("queen: %v", err)
	}
}
