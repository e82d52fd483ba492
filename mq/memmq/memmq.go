package memmq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zlnvch/canvasync/mq"
)

type inflight struct {
	msg      mq.Message
	deadline time.Time
}

// MemoryMessageQueue is an in-process queue with SQS-like semantics: a received
// message stays invisible until its visibility timeout passes, then comes back
// unless it was deleted.
type MemoryMessageQueue struct {
	mu       sync.Mutex
	ready    []mq.Message
	inflight map[string]inflight
	nextId   int
	notify   chan struct{}
	pollWait time.Duration
	now      func() time.Time
}

func NewMemoryMessageQueue() *MemoryMessageQueue {
	return &MemoryMessageQueue{
		inflight: make(map[string]inflight),
		notify:   make(chan struct{}, 1),
		pollWait: time.Second,
		now:      time.Now,
	}
}

func (q *MemoryMessageQueue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	q.nextId++
	q.ready = append(q.ready, mq.Message{Id: strconv.Itoa(q.nextId), Body: body})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	timer := time.NewTimer(q.pollWait)
	defer timer.Stop()

	for {
		if msg, ok := q.take(visibilityTimeout); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryMessageQueue) take(visibilityTimeout int32) (*mq.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, f := range q.inflight {
		if now.After(f.deadline) {
			delete(q.inflight, id)
			q.ready = append(q.ready, f.msg)
		}
	}
	if len(q.ready) == 0 {
		return nil, false
	}

	msg := q.ready[0]
	q.ready = q.ready[1:]
	msg.ReceiveCount++
	q.inflight[msg.Id] = inflight{
		msg:      msg,
		deadline: now.Add(time.Duration(visibilityTimeout) * time.Second),
	}
	return &msg, true
}

func (q *MemoryMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, msg.Id)
	return nil
}

// Len reports messages waiting or in flight.
func (q *MemoryMessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}
