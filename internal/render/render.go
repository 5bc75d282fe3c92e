// Package render draws a board as a PNG image, oriented for one viewer.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/rules"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	SquareSize   = 64
	boardSquares = 8
	boardSize    = SquareSize * boardSquares
	sideMargin   = 28
	topMargin    = 64
	bottomMargin = 28
	panelRadius  = 10
	panelHeight  = 28

	Width  = boardSize + sideMargin*2
	Height = boardSize + topMargin + bottomMargin
)

// Options controls the optional decorations around the board.
type Options struct {
	Perspective domain.Color
	LastFrom    string
	LastTo      string
	Title       string
	Status      string
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{22, 24, 34, 255}
	lastMoveFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// PNG renders board from opts.Perspective.
func PNG(ctx context.Context, board *rules.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	grid := board.DisplayGrid(opts.Perspective)
	origin := image.Point{X: sideMargin, Y: topMargin}
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHeader(img, opts)
	for row := range grid.Rows {
		for col, cell := range grid.Rows[row] {
			rect := cellRect(row, col, origin)
			clr := darkSquare
			if cell.Light {
				clr = lightSquare
			}
			imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Src)
			if cell.Label == opts.LastFrom || cell.Label == opts.LastTo {
				imagedraw.Draw(img, rect, image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
			}
			if cell.Piece == "" {
				continue
			}
			pieceImg, err := renderPieceImage(cell.Piece, SquareSize)
			if err != nil {
				return nil, err
			}
			imagedraw.Draw(img, rect, pieceImg, image.Point{}, imagedraw.Over)
		}
	}
	drawCoordinates(img, grid, origin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

func cellRect(row, col int, origin image.Point) image.Rectangle {
	x := origin.X + col*SquareSize
	y := origin.Y + row*SquareSize
	return image.Rect(x, y, x+SquareSize, y+SquareSize)
}

func drawHeader(img *image.RGBA, opts Options) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}
	top := (topMargin - panelHeight) / 2
	rect := image.Rect(sideMargin, top, sideMargin+boardSize, top+panelHeight)
	drawRoundedPanel(img, rect, panelRadius, hudPanelColor)

	text := strings.TrimSpace(opts.Title)
	if status := strings.TrimSpace(opts.Status); status != "" {
		if text != "" {
			text += " | "
		}
		text += status
	}
	text = truncateWithEllipsis(face, text, rect.Dx()-24)
	drawCenteredString(drawer, rect, text, hudTextPrimary)
}

func drawCoordinates(img *image.RGBA, grid rules.Grid, origin image.Point) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardEndY := origin.Y + boardSize
	for row := 0; row < boardSquares; row++ {
		label := grid.Rows[row][0].Label
		drawCenteredText(drawer, label[1:], origin.X-sideMargin/2, origin.Y+row*SquareSize+SquareSize/2+ascent/2)
	}
	for col := 0; col < boardSquares; col++ {
		label := grid.Rows[boardSquares-1][col].Label
		drawCenteredText(drawer, label[:1], origin.X+col*SquareSize+SquareSize/2, boardEndY+ascent+4)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	ellipsis := "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	if m := min(rect.Dx(), rect.Dy()) / 2; radius > m {
		radius = m
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, center := range corners {
		drawQuarterDisc(img, center, radius, rect, clr)
	}
}

// drawQuarterDisc fills the part of the disc outside the already painted cross.
func drawQuarterDisc(img *image.RGBA, center image.Point, radius int, bounds image.Rectangle, clr color.Color) {
	inner := image.Rect(bounds.Min.X+radius, bounds.Min.Y, bounds.Max.X-radius, bounds.Max.Y)
	innerV := image.Rect(bounds.Min.X, bounds.Min.Y+radius, bounds.Max.X, bounds.Max.Y-radius)
	rSquared := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > rSquared {
				continue
			}
			p := image.Pt(center.X+x, center.Y+y)
			if p.In(inner) || p.In(innerV) || !p.In(bounds) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}
