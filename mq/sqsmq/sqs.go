package sqsmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/zlnvch/canvasync/mq"
)

// SQSMessageQueue is a long-polling consumer and producer for one queue.
type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queueURL, err := findQueueURL(ctx, client, queueName)
	if err != nil {
		return nil, err
	}

	return &SQSMessageQueue{client: client, queueURL: queueURL}, nil
}

func findQueueURL(ctx context.Context, client *sqs.Client, queueName string) (string, error) {
	queues, err := listQueues(ctx, client, queueName)
	if err != nil {
		return "", err
	}
	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			return q, nil
		}
	}
	return "", fmt.Errorf("given queue name '%s' not found in SQS", queueName)
}

func (q *SQSMessageQueue) Send(ctx context.Context, body string) error {
	return q.sendMessage(ctx, body)
}

func (q *SQSMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	return q.receiveMessage(ctx, visibilityTimeout)
}

func (q *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	return q.deleteMessage(ctx, msg)
}
