package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// piece outlines on a 45x45 canvas; %[1]s is the fill and %[2]s the stroke
var pieceShapes = map[byte]string{
	'p': `<circle cx="22.5" cy="15" r="5.5"/>
<path d="M16 37 L18.5 23 Q22.5 20 26.5 23 L29 37 Z"/>
<rect x="12" y="36" width="21" height="4" rx="1"/>`,
	'r': `<path d="M12 9 L15.5 9 L15.5 12 L19.5 12 L19.5 9 L25.5 9 L25.5 12 L29.5 12 L29.5 9 L33 9 L33 16 L12 16 Z"/>
<rect x="15" y="16" width="15" height="17"/>
<rect x="11" y="33" width="23" height="6" rx="1"/>`,
	'n': `<path d="M14 38 L31 38 L31 30 Q33 19 25 11 L22 8 L20 12 L16 15 L11 24 L13 27 L17 25 L21 23 Q18 29 14 32 Z"/>
<circle cx="19" cy="15.5" r="1.3"/>`,
	'b': `<ellipse cx="22.5" cy="20" rx="6.5" ry="9"/>
<circle cx="22.5" cy="8.5" r="2.5"/>
<path d="M17 30 L28 30 L30 34 L15 34 Z"/>
<rect x="11" y="34" width="23" height="5" rx="2"/>`,
	'q': `<path d="M9 14 L14 30 L31 30 L36 14 L29 24 L27 10 L22.5 23 L18 10 L16 24 Z"/>
<circle cx="9" cy="13" r="2.3"/>
<circle cx="18" cy="9" r="2.3"/>
<circle cx="27" cy="9" r="2.3"/>
<circle cx="36" cy="13" r="2.3"/>
<rect x="12" y="30" width="21" height="8" rx="2"/>`,
	'k': `<path d="M21 4 L24 4 L24 7 L27 7 L27 10 L24 10 L24 14 L21 14 L21 10 L18 10 L18 7 L21 7 Z"/>
<path d="M10 22 Q10 14 22.5 17 Q35 14 35 22 L31 31 L14 31 Z"/>
<rect x="12" y="31" width="21" height="7" rx="2"/>`,
}

type pieceCacheKey struct {
	piece string
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece string) ([]byte, error) {
	if len(piece) != 1 {
		return nil, fmt.Errorf("unknown piece %q", piece)
	}
	shape, ok := pieceShapes[strings.ToLower(piece)[0]]
	if !ok {
		return nil, fmt.Errorf("unknown piece %q", piece)
	}
	fill, stroke := "#111111", "#f2f2f2"
	if piece == strings.ToUpper(piece) {
		fill, stroke = "#fafafa", "#1a1a1a"
	}
	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="45" height="45" viewBox="0 0 45 45">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">`, fill, stroke)
	b.WriteString(shape)
	b.WriteString(`</g></svg>`)
	return b.Bytes(), nil
}

func renderPieceImage(piece string, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
