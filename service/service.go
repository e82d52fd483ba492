package service

import (
	"github.com/zlnvch/canvasync/cache"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/mq"
	"github.com/zlnvch/canvasync/presence"
	"github.com/zlnvch/canvasync/store"
	"golang.org/x/sync/singleflight"
)

type CanvasSize struct {
	Width  int
	Height int
}

var DefaultCanvasSize = CanvasSize{Width: 1920, Height: 1080}

type Service struct {
	Store      store.OperationStore
	Presence   presence.Registry
	Hub        *hub.Hub
	Snapshots  cache.SnapshotCache
	MQ         mq.MessageQueue
	CanvasSize CanvasSize

	renders singleflight.Group
}

func NewService(
	store store.OperationStore,
	presence presence.Registry,
	hub *hub.Hub,
	snapshots cache.SnapshotCache,
	mq mq.MessageQueue,
	canvasSize CanvasSize,
) *Service {
	if canvasSize.Width <= 0 || canvasSize.Height <= 0 {
		canvasSize = DefaultCanvasSize
	}

	return &Service{
		Store:      store,
		Presence:   presence,
		Hub:        hub,
		Snapshots:  snapshots,
		MQ:         mq,
		CanvasSize: canvasSize,
	}
}
