package canvas

import (
	"image"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/zlnvch/canvasync/models"
)

// Style is the pen a segment is drawn with. Color is ignored for the eraser.
type Style struct {
	Tool  models.Tool
	Color string
	Width float64
}

func StyleOf(op models.Operation) Style {
	return Style{Tool: op.Tool, Color: op.Color, Width: op.Width}
}

// Surface is a transparent RGBA raster that operations are drawn onto. Brush
// segments composite source-over; eraser segments remove alpha under the stroke
// (destination-out). A Surface is not safe for concurrent use.
type Surface struct {
	img *image.RGBA
	dc  *gg.Context

	// scratch coverage for eraser segments
	mask *image.RGBA
	mdc  *gg.Context
}

func NewSurface(width int, height int) *Surface {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	mask := image.NewRGBA(image.Rect(0, 0, width, height))
	s := &Surface{
		img:  img,
		dc:   gg.NewContextForRGBA(img),
		mask: mask,
		mdc:  gg.NewContextForRGBA(mask),
	}
	for _, dc := range []*gg.Context{s.dc, s.mdc} {
		dc.SetLineCapRound()
		dc.SetLineJoinRound()
	}
	s.mdc.SetRGBA(1, 1, 1, 1)
	return s
}

func (s *Surface) Image() *image.RGBA {
	return s.img
}

func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// DrawSegment draws one straight piece of a stroke with round caps.
func (s *Surface) DrawSegment(from models.Point, to models.Point, style Style) {
	if style.Tool == models.ToolEraser {
		s.eraseSegment(from, to, style.Width)
		return
	}
	s.dc.SetLineWidth(style.Width)
	s.dc.SetHexColor(style.Color)
	s.dc.DrawLine(from.X, from.Y, to.X, to.Y)
	s.dc.Stroke()
}

func (s *Surface) eraseSegment(from models.Point, to models.Point, width float64) {
	r := segmentBounds(from, to, width, s.img.Bounds())
	if r.Empty() {
		return
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := s.mask.PixOffset(r.Min.X, y)
		clear(s.mask.Pix[i : i+4*r.Dx()])
	}
	s.mdc.SetLineWidth(width)
	s.mdc.DrawLine(from.X, from.Y, to.X, to.Y)
	s.mdc.Stroke()

	// dst = dst * (1 - coverage) on every premultiplied channel
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			coverage := uint32(s.mask.Pix[s.mask.PixOffset(x, y)+3])
			if coverage == 0 {
				continue
			}
			keep := 255 - coverage
			px := s.img.Pix[s.img.PixOffset(x, y):]
			for c := 0; c < 4; c++ {
				px[c] = uint8((uint32(px[c])*keep + 127) / 255)
			}
		}
	}
}

// segmentBounds covers everything a round-capped segment can touch, plus a
// pixel either side for antialiasing, limited to within. Clamping happens
// before the int conversion so far-off coordinates cannot overflow.
func segmentBounds(from models.Point, to models.Point, width float64, within image.Rectangle) image.Rectangle {
	pad := width/2 + 2
	clamp := func(v float64, lo int, hi int) int {
		return int(math.Max(float64(lo), math.Min(float64(hi), v)))
	}
	return image.Rect(
		clamp(math.Floor(math.Min(from.X, to.X)-pad), within.Min.X, within.Max.X),
		clamp(math.Floor(math.Min(from.Y, to.Y)-pad), within.Min.Y, within.Max.Y),
		clamp(math.Ceil(math.Max(from.X, to.X)+pad), within.Min.X, within.Max.X),
		clamp(math.Ceil(math.Max(from.Y, to.Y)+pad), within.Min.Y, within.Max.Y),
	)
}

// DrawOperation draws op as consecutive segments. Operations with fewer than two
// points draw nothing.
func (s *Surface) DrawOperation(op models.Operation) {
	if len(op.Points) < models.MinPoints {
		return
	}
	style := StyleOf(op)
	for i := 1; i < len(op.Points); i++ {
		s.DrawSegment(op.Points[i-1], op.Points[i], style)
	}
}

// Replay clears the surface and draws ops in the given order. Undone operations
// are skipped so callers can pass a full log.
func (s *Surface) Replay(ops []models.Operation) {
	s.Clear()
	for _, op := range ops {
		if op.IsUndone {
			continue
		}
		s.DrawOperation(op)
	}
}

func (s *Surface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}

// Render replays ops onto a fresh width x height surface.
func Render(ops []models.Operation, width int, height int) *image.RGBA {
	s := NewSurface(width, height)
	s.Replay(ops)
	return s.Image()
}
