package mq

import "context"

type MessageQueue interface {
	Send(ctx context.Context, body string) error
	// Receive waits for at most one message. A nil message with a nil error
	// means the poll came back empty.
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
	// ReceiveCount is how many times this message has been handed out,
	// including this one.
	ReceiveCount int
}
