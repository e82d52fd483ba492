package canvas_test

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/canvasync/canvas"
	"github.com/zlnvch/canvasync/models"
)

func line(tool models.Tool, color string, width float64, seq int64, points ...models.Point) models.Operation {
	return models.Operation{
		Id:             "op",
		RoomId:         "room1",
		SequenceNumber: seq,
		Tool:           tool,
		Color:          color,
		Width:          width,
		Points:         points,
	}
}

func rgbaAt(s *canvas.Surface, x int, y int) [4]uint8 {
	img := s.Image()
	i := img.PixOffset(x, y)
	return [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
}

func TestBrushStrokePaintsAlongTheLine(t *testing.T) {
	s := canvas.NewSurface(100, 100)
	s.DrawOperation(line(models.ToolBrush, "#ff0000", 10, 1, models.Point{X: 10, Y: 50}, models.Point{X: 90, Y: 50}))

	assert.Equal(t, [4]uint8{255, 0, 0, 255}, rgbaAt(s, 50, 50))
	assert.Equal(t, [4]uint8{0, 0, 0, 0}, rgbaAt(s, 50, 10), "away from the line stays transparent")
}

func TestEraserClearsToTransparent(t *testing.T) {
	s := canvas.NewSurface(100, 100)
	s.Replay([]models.Operation{
		line(models.ToolBrush, "#ff0000", 10, 1, models.Point{X: 10, Y: 50}, models.Point{X: 90, Y: 50}),
		line(models.ToolEraser, "", 20, 2, models.Point{X: 40, Y: 20}, models.Point{X: 40, Y: 80}),
	})

	assert.Equal(t, uint8(0), rgbaAt(s, 40, 50)[3], "erased pixel has no alpha")
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, rgbaAt(s, 80, 50), "outside the eraser is untouched")
}

func TestEraserOnBlankCanvasDoesNothing(t *testing.T) {
	s := canvas.NewSurface(50, 50)
	s.DrawOperation(line(models.ToolEraser, "", 30, 1, models.Point{X: 0, Y: 0}, models.Point{X: 49, Y: 49}))

	for _, v := range s.Image().Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestEraserOffCanvasIsIgnored(t *testing.T) {
	s := canvas.NewSurface(50, 50)
	assert.NotPanics(t, func() {
		s.DrawSegment(models.Point{X: -500, Y: -500}, models.Point{X: -400, Y: -400}, canvas.Style{Tool: models.ToolEraser, Width: 10})
	})
}

func TestEraserFarOutsideCanvasStillCrossesIt(t *testing.T) {
	s := canvas.NewSurface(100, 100)
	s.Replay([]models.Operation{
		line(models.ToolBrush, "#ff0000", 10, 1, models.Point{X: 50, Y: 10}, models.Point{X: 50, Y: 90}),
		line(models.ToolEraser, "", 20, 2, models.Point{X: -models.MaxCoordinate, Y: 50}, models.Point{X: models.MaxCoordinate, Y: 50}),
	})

	assert.Equal(t, uint8(0), rgbaAt(s, 50, 50)[3], "erased where the segment crosses the canvas")
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, rgbaAt(s, 50, 20))
}

func TestReplayOrderMatters(t *testing.T) {
	brush := line(models.ToolBrush, "#00ff00", 10, 1, models.Point{X: 10, Y: 25}, models.Point{X: 40, Y: 25})
	eraser := line(models.ToolEraser, "", 10, 2, models.Point{X: 10, Y: 25}, models.Point{X: 40, Y: 25})

	erasedAfter := canvas.Render([]models.Operation{brush, eraser}, 50, 50)
	paintedAfter := canvas.Render([]models.Operation{eraser, brush}, 50, 50)

	i := erasedAfter.PixOffset(25, 25)
	assert.Equal(t, uint8(0), erasedAfter.Pix[i+3])
	assert.Equal(t, uint8(255), paintedAfter.Pix[i+3])
}

func TestReplayIsDeterministic(t *testing.T) {
	ops := []models.Operation{
		line(models.ToolBrush, "#123456", 7, 1, models.Point{X: 3, Y: 4}, models.Point{X: 60, Y: 70}, models.Point{X: 90, Y: 10}),
		line(models.ToolBrush, "#abcdef", 3.5, 2, models.Point{X: 5.5, Y: 80.25}, models.Point{X: 95, Y: 20}),
		line(models.ToolEraser, "", 12, 3, models.Point{X: 50, Y: 0}, models.Point{X: 50, Y: 100}),
	}

	first := canvas.Render(ops, 100, 100)
	second := canvas.Render(ops, 100, 100)
	assert.True(t, bytes.Equal(first.Pix, second.Pix))

	// Replaying onto a dirty surface gives the same result as a fresh one
	s := canvas.NewSurface(100, 100)
	s.DrawOperation(line(models.ToolBrush, "#ffffff", 50, 1, models.Point{X: 0, Y: 0}, models.Point{X: 100, Y: 100}))
	s.Replay(ops)
	assert.True(t, bytes.Equal(first.Pix, s.Image().Pix))
}

func TestReplaySkipsUndoneAndDegenerateOperations(t *testing.T) {
	undone := line(models.ToolBrush, "#ff0000", 10, 1, models.Point{X: 10, Y: 10}, models.Point{X: 40, Y: 10})
	undone.IsUndone = true
	single := line(models.ToolBrush, "#ff0000", 10, 2, models.Point{X: 25, Y: 25})

	img := canvas.Render([]models.Operation{undone, single}, 50, 50)
	for _, v := range img.Pix {
		require.Equal(t, uint8(0), v)
	}
}

func TestEncodePNG(t *testing.T) {
	s := canvas.NewSurface(20, 10)
	s.DrawOperation(line(models.ToolBrush, "#0000ff", 4, 1, models.Point{X: 0, Y: 5}, models.Point{X: 20, Y: 5}))

	var buf bytes.Buffer
	require.NoError(t, s.EncodePNG(&buf))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())
	assert.Equal(t, 10, decoded.Bounds().Dy())
	_, _, b, a := decoded.At(10, 5).RGBA()
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}
