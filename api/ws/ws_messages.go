package ws

import (
	"encoding/json"
	"fmt"

	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
)

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type roomMessage struct {
	RoomId string `json:"roomId"`
}

type submitMessage struct {
	RoomId   string         `json:"roomId"`
	Tool     models.Tool    `json:"tool"`
	Color    string         `json:"color"`
	Width    float64        `json:"width"`
	Points   []models.Point `json:"points"`
	ClientId string         `json:"clientId"`
}

type cursorMessage struct {
	RoomId    string  `json:"roomId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	IsDrawing bool    `json:"isDrawing"`
}

type responseMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type replayData struct {
	RoomId     string             `json:"roomId"`
	Operations []models.Operation `json:"operations"`
}

type operationData struct {
	RoomId    string           `json:"roomId"`
	Operation models.Operation `json:"operation"`
}

type presenceData struct {
	RoomId string            `json:"roomId"`
	Users  []models.Presence `json:"users"`
}

func encodeEvent(e hub.Event) ([]byte, error) {
	var data any
	switch e.Type {
	case hub.EventReplay:
		ops := e.Operations
		if ops == nil {
			ops = []models.Operation{}
		}
		data = replayData{RoomId: e.RoomId, Operations: ops}
	case hub.EventOperationAdded, hub.EventOperationChanged:
		data = operationData{RoomId: e.RoomId, Operation: e.Operation}
	case hub.EventPresence:
		users := e.Presence
		if users == nil {
			users = []models.Presence{}
		}
		data = presenceData{RoomId: e.RoomId, Users: users}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return json.Marshal(responseMessage{Type: string(e.Type), Data: data})
}
