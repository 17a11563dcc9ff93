package cooldown

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoPutter is the slice of the DynamoDB client the store needs.
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type cooldownItem struct {
	PK          string `dynamodbav:"PK"`
	RuleID      string `dynamodbav:"RuleID"`
	RecipientID string `dynamodbav:"RecipientID"`
	AgentType   string `dynamodbav:"AgentType,omitempty"`
	LastFiredAt int64  `dynamodbav:"LastFiredAt"` // unix ms
	TTL         int64  `dynamodbav:"TTL"`
}

// DynamoStore acquires with a conditional PutItem.
type DynamoStore struct {
	client    DynamoPutter
	table     string
	retention time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed store. The table needs a string
// hash key named PK; TTL should be enabled on the TTL attribute.
func NewDynamoStore(client DynamoPutter, table string, retention time.Duration) *DynamoStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &DynamoStore{client: client, table: table, retention: retention, now: time.Now}
}

// TryAcquire implements Store.
func (s *DynamoStore) TryAcquire(ctx context.Context, key Key, cooldownHours *int) (bool, error) {
	now := s.now().UTC()
	win := window(cooldownHours)
	keep := s.retention
	if win > keep {
		keep = win
	}

	av, err := attributevalue.MarshalMap(cooldownItem{
		PK:          key.String(),
		RuleID:      key.RuleID,
		RecipientID: key.RecipientID,
		AgentType:   string(key.AgentType),
		LastFiredAt: now.UnixMilli(),
		TTL:         now.Add(keep).Unix(),
	})
	if err != nil {
		return false, unavailable("dynamodb marshal", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}
	if win > 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(PK) OR LastFiredAt <= :threshold")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":threshold": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(-win).UnixMilli(), 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, unavailable("dynamodb acquire", err)
	}
	return true, nil
}
