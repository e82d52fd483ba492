package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zlnvch/canvasync/mq"
)

// SnapshotMessage asks for a room's canvas to be rendered and cached.
type SnapshotMessage struct {
	RoomId string `json:"roomId"`
}

type SnapshotRenderer interface {
	RenderSnapshot(ctx context.Context, roomId string) ([]byte, error)
}

type SnapshotConsumer struct {
	snapshotQueue mq.MessageQueue
	renderer      SnapshotRenderer
}

func NewSnapshotConsumer(snapshotQueue mq.MessageQueue, renderer SnapshotRenderer) *SnapshotConsumer {
	return &SnapshotConsumer{
		snapshotQueue: snapshotQueue,
		renderer:      renderer,
	}
}

// Rendering a large room can take a while; the message stays hidden meanwhile
const visibilityTimeout = 60

// Messages that keep failing are dropped after this many attempts
const maxReceives = 5

func (c *SnapshotConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := c.snapshotQueue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Error("Snapshot queue receive failed", "error", err)
			continue
		}

		if msg == nil {
			continue
		}

		c.handle(msg)
	}
}

func (c *SnapshotConsumer) handle(msg *mq.Message) {
	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), (visibilityTimeout-1)*time.Second)
	defer cancel()

	var snapshotMsg SnapshotMessage
	if err := json.Unmarshal([]byte(msg.Body), &snapshotMsg); err != nil {
		slog.Warn("Discarding malformed snapshot message", "body", msg.Body, "error", err)
		c.delete(msg)
		return
	}

	if _, err := c.renderer.RenderSnapshot(ctx, snapshotMsg.RoomId); err != nil {
		if msg.ReceiveCount < maxReceives {
			slog.Error("Snapshot render failed, leaving for retry", "roomId", snapshotMsg.RoomId, "attempt", msg.ReceiveCount, "error", err)
			return
		}
		slog.Error("Snapshot render failed, giving up", "roomId", snapshotMsg.RoomId, "attempt", msg.ReceiveCount, "error", err)
	}

	c.delete(msg)
}

func (c *SnapshotConsumer) delete(msg *mq.Message) {
	if err := c.snapshotQueue.Delete(context.Background(), msg); err != nil {
		slog.Error("Snapshot queue delete failed", "error", err)
	}
}
