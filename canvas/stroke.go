package canvas

import "github.com/zlnvch/canvasync/models"

// Stroke is a stroke being drawn. Each new point is rendered as a segment
// straight away; the points only become an operation when the stroke ends.
type Stroke struct {
	surface *Surface
	style   Style
	current Style
	points  []models.Point
	active  bool
}

func NewStroke(surface *Surface) *Stroke {
	return &Stroke{
		surface: surface,
		style:   Style{Tool: models.ToolBrush, Color: models.DefaultColor, Width: models.DefaultWidth},
	}
}

// SetStyle changes the pen for the next stroke. A stroke already in progress
// keeps the style it started with.
func (st *Stroke) SetStyle(style Style) {
	st.style = style
}

func (st *Stroke) Active() bool {
	return st.active
}

func (st *Stroke) Begin(p models.Point) {
	st.points = append(st.points[:0], p)
	st.current = st.style
	st.active = true
}

func (st *Stroke) Extend(p models.Point) {
	if !st.active {
		return
	}
	last := st.points[len(st.points)-1]
	st.points = append(st.points, p)
	st.surface.DrawSegment(last, p, st.current)
}

// End finishes the stroke. A stroke that never moved past its first point is
// discarded and ok is false.
func (st *Stroke) End(roomId string, user models.User) (newOp models.NewOperation, ok bool) {
	if !st.active {
		return models.NewOperation{}, false
	}
	st.active = false
	if len(st.points) < models.MinPoints {
		st.points = st.points[:0]
		return models.NewOperation{}, false
	}

	points := make([]models.Point, len(st.points))
	copy(points, st.points)
	st.points = st.points[:0]

	return models.NewOperation{
		RoomId:    roomId,
		UserId:    user.Id,
		UserColor: user.Color,
		Tool:      st.current.Tool,
		Color:     st.current.Color,
		Width:     st.current.Width,
		Points:    points,
	}, true
}
