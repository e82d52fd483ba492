package models

import (
	"errors"
	"math"
	"regexp"
)

const (
	DefaultColor = "#000000"
	DefaultWidth = 3

	MinPoints    = 2
	MaxPoints    = 5000
	MaxWidth     = 100
	MaxRoomIdLen = 128

	// MaxCoordinate bounds |x| and |y| so every point converts to an int
	// pixel position without overflow.
	MaxCoordinate = 1_000_000
)

var (
	hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	roomIdRegex   = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)
)

func ValidRoomId(roomId string) error {
	if roomId == "" {
		return errors.New("room id is empty")
	}
	if len(roomId) > MaxRoomIdLen {
		return errors.New("room id too long")
	}
	if !roomIdRegex.MatchString(roomId) {
		return errors.New("room id contains invalid characters")
	}
	return nil
}

func ValidColor(color string) error {
	if !hexColorRegex.MatchString(color) {
		return errors.New("invalid color")
	}
	return nil
}

// Normalize checks a submitted stroke and clears fields the tool does not use.
// A path with fewer than MinPoints points is never a valid operation.
func (op NewOperation) Normalize() (NewOperation, error) {
	if err := ValidRoomId(op.RoomId); err != nil {
		return op, err
	}
	if op.UserId == "" {
		return op, errors.New("missing user id")
	}
	if len(op.Points) < MinPoints {
		return op, errors.New("stroke needs at least two points")
	}
	if len(op.Points) > MaxPoints {
		return op, errors.New("stroke too long")
	}
	for _, p := range op.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return op, errors.New("invalid point")
		}
		if math.Abs(p.X) > MaxCoordinate || math.Abs(p.Y) > MaxCoordinate {
			return op, errors.New("point out of range")
		}
	}
	if !(op.Width > 0) || op.Width > MaxWidth {
		return op, errors.New("invalid width")
	}

	switch op.Tool {
	case ToolBrush:
		if err := ValidColor(op.Color); err != nil {
			return op, err
		}
	case ToolEraser:
		op.Color = ""
	default:
		return op, errors.New("invalid tool")
	}

	pts := make([]Point, len(op.Points))
	copy(pts, op.Points)
	op.Points = pts
	return op, nil
}

const (
	MaxUserIdLen   = 128
	MaxUserNameLen = 64
)

// NormalizeUser checks the identity a connection presents. A missing name
// falls back to the id and a missing color to DefaultColor.
func NormalizeUser(u User) (User, error) {
	if u.Id == "" {
		return u, errors.New("missing user id")
	}
	if len(u.Id) > MaxUserIdLen {
		return u, errors.New("user id too long")
	}
	if len(u.Name) > MaxUserNameLen {
		return u, errors.New("user name too long")
	}
	if u.Name == "" {
		u.Name = u.Id
	}
	if u.Color == "" {
		u.Color = DefaultColor
	}
	if err := ValidColor(u.Color); err != nil {
		return u, err
	}
	return u, nil
}
