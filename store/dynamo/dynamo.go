package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/store"
)

type DynamoOperationStore struct {
	client    *dynamodb.Client
	tableName string
	now       func() time.Time
}

func NewDynamoOperationStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoOperationStore, error) {
	client, err := newDynamoDBClient(context.Background(), devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoOperationStore{client: client, tableName: tableName, now: time.Now}, nil
}

// Append takes the next value of the room's counter item (an atomic ADD, so
// concurrent appenders on any instance get distinct, increasing numbers) and
// then writes the operation under that number. A failed write leaves a gap,
// never a duplicate.
func (dynamoStore *DynamoOperationStore) Append(ctx context.Context, newOp models.NewOperation) (models.Operation, error) {
	newOp, err := store.Validate(newOp)
	if err != nil {
		return models.Operation{}, err
	}
	id, err := store.NewOperationId()
	if err != nil {
		return models.Operation{}, err
	}

	seq, err := incrementCounter(dynamoStore, ctx, sequencePKPrefix+newOp.RoomId, sequenceSK, "LastSequence", 1)
	if err != nil {
		return models.Operation{}, err
	}

	op := models.Operation{
		Id:             id,
		RoomId:         newOp.RoomId,
		SequenceNumber: seq,
		UserId:         newOp.UserId,
		UserColor:      newOp.UserColor,
		Tool:           newOp.Tool,
		Color:          newOp.Color,
		Width:          newOp.Width,
		Points:         newOp.Points,
		Created:        dynamoStore.now().Truncate(time.Millisecond),
	}

	if err := putNewItem(dynamoStore, ctx, operationToDynamo(op)); err != nil {
		return models.Operation{}, err
	}
	return op, nil
}

func (dynamoStore *DynamoOperationStore) ListActive(ctx context.Context, roomId string) ([]models.Operation, error) {
	dynamoOps, err := queryAllByPK[dynamoOperation](dynamoStore, ctx, buildOperationPK(roomId), true, isUndoneFilter(false))
	if err != nil {
		return []models.Operation{}, err
	}

	ops := make([]models.Operation, 0, len(dynamoOps))
	for _, do := range dynamoOps {
		ops = append(ops, operationFromDynamo(do))
	}
	return ops, nil
}

func (dynamoStore *DynamoOperationStore) SetUndone(ctx context.Context, operationId string, undone bool) (models.Operation, error) {
	pk, sk, err := getKeysByGSI(dynamoStore, ctx, operationIdIndex, "Id", operationId)
	if err != nil {
		return models.Operation{}, err
	}

	do, err := setAttribute[dynamoOperation](dynamoStore, ctx, pk, sk, "IsUndone", undone)
	if err != nil {
		return models.Operation{}, err
	}
	return operationFromDynamo(do), nil
}

func (dynamoStore *DynamoOperationStore) LatestActive(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return dynamoStore.latest(ctx, roomId, false)
}

func (dynamoStore *DynamoOperationStore) LatestUndone(ctx context.Context, roomId string) (models.Operation, bool, error) {
	return dynamoStore.latest(ctx, roomId, true)
}

func (dynamoStore *DynamoOperationStore) latest(ctx context.Context, roomId string, undone bool) (models.Operation, bool, error) {
	do, err := queryFirstByPK[dynamoOperation](dynamoStore, ctx, buildOperationPK(roomId), false, isUndoneFilter(undone))
	if errors.Is(err, store.ErrNotFound) {
		return models.Operation{}, false, nil
	}
	if err != nil {
		return models.Operation{}, false, err
	}
	return operationFromDynamo(do), true, nil
}
