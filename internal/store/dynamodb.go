package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/i474232898/nimbus/internal/weather"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ConnectDynamoDB loads the default AWS config and checks the connection with a
// light call. endpoint overrides the service URL (DynamoDB Local).
func ConnectDynamoDB(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB: %w", err)
	}
	return client, nil
}

// dynamoItem is one cache entry. The table has partition key "pk" (S) and sort
// key "fetched_at" (N), so an item written in the same millisecond as an
// existing one replaces it.
type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	FetchedAt int64  `dynamodbav:"fetched_at"`
	ID        string `dynamodbav:"id"`
	Category  string `dynamodbav:"category"`
	CacheKey  string `dynamodbav:"cache_key"`
	Payload   []byte `dynamodbav:"payload"`
}

// DynamoStore persists entries in a DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a store over table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func partitionKey(category weather.Category, key string) string {
	return string(category) + "#" + key
}

// Write puts the entry under its partition.
func (s *DynamoStore) Write(ctx context.Context, entry weather.CacheEntry) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:        partitionKey(entry.Category, entry.Key),
		FetchedAt: entry.FetchedAtMillis(),
		ID:        entry.ID.String(),
		Category:  string(entry.Category),
		CacheKey:  entry.Key,
		Payload:   entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("dynamodb store: encode: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb store: write: %w", err)
	}
	return nil
}

// ReadLatest queries the partition newest-first and takes the first item.
func (s *DynamoStore) ReadLatest(ctx context.Context, category weather.Category, key string) (weather.CacheEntry, bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey(category, key)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("dynamodb store: read: %w", err)
	}
	if len(out.Items) == 0 {
		return weather.CacheEntry{}, false, nil
	}

	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("dynamodb store: decode: %w", err)
	}
	id, err := uuid.Parse(it.ID)
	if err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("dynamodb store: decode id: %w", err)
	}
	return weather.CacheEntry{
		ID:        id,
		Category:  weather.Category(it.Category),
		Key:       it.CacheKey,
		Payload:   it.Payload,
		FetchedAt: weather.FromMillis(it.FetchedAt),
	}, true, nil
}

// PurgeExpired pages through the items at or before the cutoff and deletes them
// one by one. A failure part way leaves the remaining items for the next purge.
func (s *DynamoStore) PurgeExpired(ctx context.Context, category weather.Category, key string, now time.Time) (int, error) {
	pk := partitionKey(category, key)
	cutoff := weather.ExpiryCutoff(category, now).UnixMilli()

	removed := 0
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("pk = :pk AND fetched_at <= :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pk},
				":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
			},
			ProjectionExpression: aws.String("pk, fetched_at"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return removed, fmt.Errorf("dynamodb store: purge query: %w", err)
		}

		for _, item := range out.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"pk":         item["pk"],
					"fetched_at": item["fetched_at"],
				},
			})
			if err != nil {
				return removed, fmt.Errorf("dynamodb store: purge delete: %w", err)
			}
			removed++
		}

		if len(out.LastEvaluatedKey) == 0 {
			return removed, nil
		}
		start = out.LastEvaluatedKey
	}
}
