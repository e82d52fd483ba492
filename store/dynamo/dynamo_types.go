package dynamo

import (
	"fmt"
	"strings"
	"time"

	"github.com/zlnvch/canvasync/models"
)

const (
	operationPKPrefix = "OPS#"
	sequencePKPrefix  = "ROOM#"
	sequenceSK        = "SEQUENCE"
	operationIdIndex  = "GSI_OperationId"
)

func buildOperationPK(roomId string) string {
	return operationPKPrefix + roomId
}

// Zero padded so lexical SK order is numeric order.
func buildOperationSK(seq int64) string {
	return fmt.Sprintf("%020d", seq)
}

type dynamoPoint struct {
	X float64 `dynamodbav:"X"`
	Y float64 `dynamodbav:"Y"`
}

type dynamoOperation struct {
	PK             string        `dynamodbav:"PK"`
	SK             string        `dynamodbav:"SK"`
	Id             string        `dynamodbav:"Id"`
	RoomId         string        `dynamodbav:"RoomId"`
	SequenceNumber int64         `dynamodbav:"SequenceNumber"`
	UserId         string        `dynamodbav:"UserId"`
	UserColor      string        `dynamodbav:"UserColor"`
	Tool           string        `dynamodbav:"Tool"`
	Color          string        `dynamodbav:"Color"`
	Width          float64       `dynamodbav:"Width"`
	Points         []dynamoPoint `dynamodbav:"Points"`
	IsUndone       bool          `dynamodbav:"IsUndone"`
	Created        int64         `dynamodbav:"Created"`
}

// Map domain Operation -> Dynamo
func operationToDynamo(op models.Operation) dynamoOperation {
	points := make([]dynamoPoint, len(op.Points))
	for i, p := range op.Points {
		points[i] = dynamoPoint{X: p.X, Y: p.Y}
	}

	return dynamoOperation{
		PK:             buildOperationPK(op.RoomId),
		SK:             buildOperationSK(op.SequenceNumber),
		Id:             op.Id,
		RoomId:         op.RoomId,
		SequenceNumber: op.SequenceNumber,
		UserId:         op.UserId,
		UserColor:      op.UserColor,
		Tool:           string(op.Tool),
		Color:          op.Color,
		Width:          op.Width,
		Points:         points,
		IsUndone:       op.IsUndone,
		Created:        op.Created.UnixMilli(),
	}
}

// Map Dynamo -> domain Operation
func operationFromDynamo(do dynamoOperation) models.Operation {
	points := make([]models.Point, len(do.Points))
	for i, p := range do.Points {
		points[i] = models.Point{X: p.X, Y: p.Y}
	}

	roomId := do.RoomId
	if roomId == "" {
		roomId = strings.TrimPrefix(do.PK, operationPKPrefix)
	}

	return models.Operation{
		Id:             do.Id,
		RoomId:         roomId,
		SequenceNumber: do.SequenceNumber,
		UserId:         do.UserId,
		UserColor:      do.UserColor,
		Tool:           models.Tool(do.Tool),
		Color:          do.Color,
		Width:          do.Width,
		Points:         points,
		IsUndone:       do.IsUndone,
		Created:        time.UnixMilli(do.Created),
	}
}
