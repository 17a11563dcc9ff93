package cooldown

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notification-agent/internal/domain"
)

func hours(n int) *int { return &n }

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestKeyScope(t *testing.T) {
	rule := &domain.Rule{ID: "rule_7d", AgentType: domain.AgentRetention}

	assert.Equal(t, "rule_7d:u1", ScopeRule.KeyFor(rule, "u1").String())
	assert.Equal(t, "RETENTION:rule_7d:u1", ScopeRuleAgentType.KeyFor(rule, "u1").String())

	scope, err := ParseKeyScope("rule_agent_type")
	require.NoError(t, err)
	assert.Equal(t, ScopeRuleAgentType, scope)
	_, err = ParseKeyScope("global")
	assert.Error(t, err)
}

func TestRedisStore_Window(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, "cooldown", time.Hour)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()
	key := Key{Scope: ScopeRule, RuleID: "r1", RecipientID: "u1"}

	ok, err := store.TryAcquire(ctx, key, hours(24))
	require.NoError(t, err)
	assert.True(t, ok, "first fire acquires")

	clock = clock.Add(23 * time.Hour)
	ok, err = store.TryAcquire(ctx, key, hours(24))
	require.NoError(t, err)
	assert.False(t, ok, "inside window is denied")

	// a denied attempt must not move lastFiredAt
	clock = clock.Add(time.Hour)
	ok, err = store.TryAcquire(ctx, key, hours(24))
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed")

	ttl := mr.TTL("cooldown:r1:u1")
	assert.Equal(t, 24*time.Hour, ttl, "ttl is max(window, retention)")
}

func TestRedisStore_NoCooldownAlwaysAcquires(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, "cooldown", time.Hour)
	key := Key{Scope: ScopeRule, RuleID: "rule_streak_risk", RecipientID: "u1"}

	for i := 0; i < 3; i++ {
		ok, err := store.TryAcquire(context.Background(), key, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := store.TryAcquire(context.Background(), key, hours(0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("cooldown:rule_streak_risk:u1"), "fire is still recorded")
}

func TestRedisStore_ConcurrentAcquireExactlyOnce(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client, "cooldown", time.Hour)
	key := Key{Scope: ScopeRule, RuleID: "r1", RecipientID: "u1"}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryAcquire(context.Background(), key, hours(24))
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisStore_OutageWrapsSentinel(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, "cooldown", time.Hour)
	mr.Close()

	_, err := store.TryAcquire(context.Background(), Key{RuleID: "r1", RecipientID: "u1"}, hours(1))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestPostgresStore_Acquired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewPostgresStore(db)
	store.now = func() time.Time { return now }

	mock.ExpectQuery("INSERT INTO agent_cooldowns").
		WithArgs("r1:u1", "r1", "u1", "RETENTION", now, now.Add(-24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"last_fired_at"}).AddRow(now))

	key := Key{Scope: ScopeRule, AgentType: domain.AgentRetention, RuleID: "r1", RecipientID: "u1"}
	ok, err := store.TryAcquire(context.Background(), key, hours(24))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeniedWhenGuardFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO agent_cooldowns").
		WillReturnRows(sqlmock.NewRows([]string{"last_fired_at"}))

	ok, err := NewPostgresStore(db).TryAcquire(context.Background(), Key{RuleID: "r1", RecipientID: "u1"}, hours(24))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStore_NoCooldownRecordsFire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO agent_cooldowns").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ok, err := NewPostgresStore(db).TryAcquire(context.Background(), Key{RuleID: "r1", RecipientID: "u1"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Outage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO agent_cooldowns").WillReturnError(errors.New("connection refused"))

	_, err = NewPostgresStore(db).TryAcquire(context.Background(), Key{RuleID: "r1", RecipientID: "u1"}, hours(1))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// conditionalDynamo evaluates the one condition the store issues.
type conditionalDynamo struct {
	mu    sync.Mutex
	items map[string]int64 // PK -> LastFiredAt
	last  *dynamodb.PutItemInput
	err   error
}

func (f *conditionalDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	pk := in.Item["PK"].(*types.AttributeValueMemberS).Value
	fired, _ := strconv.ParseInt(in.Item["LastFiredAt"].(*types.AttributeValueMemberN).Value, 10, 64)
	if in.ConditionExpression != nil {
		threshold, _ := strconv.ParseInt(in.ExpressionAttributeValues[":threshold"].(*types.AttributeValueMemberN).Value, 10, 64)
		if prev, ok := f.items[pk]; ok && prev > threshold {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	f.items[pk] = fired
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore_ConditionalPut(t *testing.T) {
	fake := &conditionalDynamo{items: map[string]int64{}}
	store := NewDynamoStore(fake, "cooldowns", time.Hour)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	key := Key{Scope: ScopeRule, RuleID: "r1", RecipientID: "u1"}

	ok, err := store.TryAcquire(context.Background(), key, hours(2))
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(time.Hour)
	ok, err = store.TryAcquire(context.Background(), key, hours(2))
	require.NoError(t, err)
	assert.False(t, ok)

	clock = clock.Add(time.Hour)
	ok, err = store.TryAcquire(context.Background(), key, hours(2))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryAcquire(context.Background(), key, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, fake.last.ConditionExpression, "no condition without a cooldown")
}

func TestDynamoStore_Outage(t *testing.T) {
	fake := &conditionalDynamo{items: map[string]int64{}, err: errors.New("throttled")}
	_, err := NewDynamoStore(fake, "cooldowns", time.Hour).TryAcquire(context.Background(), Key{RuleID: "r1", RecipientID: "u1"}, hours(1))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
