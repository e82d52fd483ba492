package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/canvasync/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	var cfg aws.Config
	var err error

	if devMode {
		// Load config with dummy credentials and region for local/dev
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		// Override endpoint for DynamoDB locally
		return dynamodb.New(dynamodb.Options{
			Credentials:      cfg.Credentials,
			Region:           cfg.Region,
			EndpointResolver: dynamodb.EndpointResolverFromURL(dynamodbEndpoint),
		}), nil
	}

	// Production/Fargate: default config (uses Task Role and AWS endpoints)
	cfg, err = config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, err
	}

	return output.TableNames, nil
}

// filter is an optional FilterExpression applied after the key condition.
type filter struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

func isUndoneFilter(undone bool) *filter {
	return &filter{
		expr:   "#undone = :undone",
		names:  map[string]string{"#undone": "IsUndone"},
		values: map[string]types.AttributeValue{":undone": &types.AttributeValueMemberBOOL{Value: undone}},
	}
}

func buildPKQuery(dynamoStore *DynamoOperationStore, pk string, scanIndexForward bool, f *filter) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(scanIndexForward),
		ConsistentRead:   aws.Bool(true),
	}

	if f != nil {
		input.FilterExpression = aws.String(f.expr)
		input.ExpressionAttributeNames = f.names
		for k, v := range f.values {
			input.ExpressionAttributeValues[k] = v
		}
	}

	return input
}

// queryAllByPK returns all items of type T with the given PK, ordered by SK.
func queryAllByPK[T any](dynamoStore *DynamoOperationStore, ctx context.Context, pk string, scanIndexForward bool, f *filter) ([]T, error) {
	results := []T{}

	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, buildPKQuery(dynamoStore, pk, scanIndexForward, f))

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	return results, nil
}

// queryFirstByPK returns the first item in SK order that passes the filter.
// Limit applies before the filter, so it pages until something matches.
func queryFirstByPK[T any](dynamoStore *DynamoOperationStore, ctx context.Context, pk string, scanIndexForward bool, f *filter) (T, error) {
	var zero T

	input := buildPKQuery(dynamoStore, pk, scanIndexForward, f)
	input.Limit = aws.Int32(25)

	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return zero, fmt.Errorf("query failed: %w", err)
		}
		if len(page.Items) == 0 {
			continue
		}

		var item T
		if err := attributevalue.UnmarshalMap(page.Items[0], &item); err != nil {
			return zero, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		return item, nil
	}

	return zero, store.ErrNotFound
}

// getKeysByGSI resolves a GSI key to the main table PK and SK of its item.
func getKeysByGSI(dynamoStore *DynamoOperationStore, ctx context.Context, indexName string, pkField string, pkValue string) (string, string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(dynamoStore.tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": pkField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkValue},
		},
		ProjectionExpression: aws.String("PK, SK"),
	}

	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", "", fmt.Errorf("query GSI failed: %w", err)
		}

		for _, item := range page.Items {
			pkAttr, okPK := item["PK"].(*types.AttributeValueMemberS)
			skAttr, okSK := item["SK"].(*types.AttributeValueMemberS)
			if okPK && okSK {
				return pkAttr.Value, skAttr.Value, nil
			}
		}
	}

	return "", "", store.ErrNotFound
}

// putNewItem inserts an item only if its PK+SK does not exist yet.
func putNewItem[T any](dynamoStore *DynamoOperationStore, ctx context.Context, item T) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if _, ok := avMap["PK"]; !ok {
		return errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		return errors.New("struct missing SK field")
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Item:                avMap,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// setAttribute overwrites a single attribute of an existing item and returns
// the updated item. Returns store.ErrNotFound if the item does not exist.
func setAttribute[T any](dynamoStore *DynamoOperationStore, ctx context.Context, pk string, sk string, field string, value any) (T, error) {
	var zero T

	av, err := attributevalue.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("marshal error: %w", err)
	}

	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	out, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(dynamoStore.tableName),
		Key:                       key,
		UpdateExpression:          aws.String("SET #f = :v"),
		ExpressionAttributeNames:  map[string]string{"#f": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": av},
		ConditionExpression:       aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return zero, store.ErrNotFound
		}
		return zero, fmt.Errorf("update failed: %w", err)
	}

	var updated T
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return zero, fmt.Errorf("failed to unmarshal updated item: %w", err)
	}

	return updated, nil
}

// incrementCounter atomically adds count to a numeric field, creating the item
// on first use, and returns the new value.
func incrementCounter(
	dynamoStore *DynamoOperationStore,
	ctx context.Context,
	pk string,
	sk string,
	counterField string,
	count int,
) (int64, error) {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	out, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(dynamoStore.tableName),
		Key:              key,
		UpdateExpression: aws.String("SET #c = if_not_exists(#c, :zero) + :val"),
		ExpressionAttributeNames: map[string]string{
			"#c": counterField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val":  &types.AttributeValueMemberN{Value: strconv.Itoa(count)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter failed: %w", err)
	}

	var value int64
	if err := attributevalue.Unmarshal(out.Attributes[counterField], &value); err != nil {
		return 0, fmt.Errorf("failed to unmarshal counter: %w", err)
	}

	return value, nil
}
