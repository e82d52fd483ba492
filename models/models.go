package models

import "time"

type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Operation is one committed stroke. Everything but IsUndone is immutable once
// the store has assigned a SequenceNumber.
type Operation struct {
	Id             string    `json:"id"`
	RoomId         string    `json:"roomId"`
	SequenceNumber int64     `json:"sequenceNumber"`
	UserId         string    `json:"userId"`
	UserColor      string    `json:"userColor"`
	Tool           Tool      `json:"tool"`
	Color          string    `json:"color"`
	Width          float64   `json:"width"`
	Points         []Point   `json:"points"`
	IsUndone       bool      `json:"isUndone"`
	Created        time.Time `json:"created"`
}

// NewOperation is what a session submits; the store turns it into an Operation.
type NewOperation struct {
	RoomId    string
	UserId    string
	UserColor string
	Tool      Tool
	Color     string
	Width     float64
	Points    []Point
}

type Presence struct {
	RoomId    string    `json:"roomId"`
	UserId    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserColor string    `json:"userColor"`
	CursorX   float64   `json:"cursorX"`
	CursorY   float64   `json:"cursorY"`
	IsDrawing bool      `json:"isDrawing"`
	LastSeen  time.Time `json:"lastSeen"`
}

type CursorUpdate struct {
	RoomId    string
	UserId    string
	X         float64
	Y         float64
	IsDrawing bool
}

// User is the identity a connection supplies when it opens; there is no
// account behind it.
type User struct {
	Id    string `json:"userId"`
	Name  string `json:"userName"`
	Color string `json:"userColor"`
}
