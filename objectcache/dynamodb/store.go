// Package dynamodb provides an objectcache.Store backed by a DynamoDB table.
//
// Table schema:
//   - Partition key: pk (string) - "<group>#<key>"
//   - value (binary) - the cached bytes
//   - expires_at (number, optional) - unix seconds; enable DynamoDB TTL on it
//
// DynamoDB deletes expired items lazily, so the store also treats an item
// whose expires_at has passed as a miss.
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pdbcache \
//	  --attribute-definitions AttributeName=pk,AttributeType=S \
//	  --key-schema AttributeName=pk,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//	aws dynamodb update-time-to-live --table-name pdbcache \
//	  --time-to-live-specification Enabled=true,AttributeName=expires_at
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/pdbcache/objectcache"
)

const (
	attrPK        = "pk"
	attrValue     = "value"
	attrExpiresAt = "expires_at"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store implements objectcache.Store on DynamoDB.
type Store struct {
	client         DDBClient
	tableName      string
	consistentRead bool
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithConsistentRead makes every Get a strongly consistent read.
func WithConsistentRead() Option {
	return func(s *Store) {
		s.consistentRead = true
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new DynamoDB store.
func NewStore(client DDBClient, tableName string, optFns ...Option) *Store {
	s := &Store{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

func pk(group, key string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: group + "#" + key}
}

// Get implements objectcache.Store.
func (s *Store) Get(ctx context.Context, group, key string) ([]byte, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{attrPK: pk(group, key)},
		ConsistentRead: aws.Bool(s.consistentRead),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: get %s#%s: %w", group, key, err)
	}
	if len(resp.Item) == 0 {
		return nil, objectcache.ErrMiss
	}

	if exp, ok := resp.Item[attrExpiresAt].(*types.AttributeValueMemberN); ok {
		sec, err := strconv.ParseInt(exp.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: invalid expires_at %q: %w", exp.Value, err)
		}
		if !s.now().Before(time.Unix(sec, 0)) {
			return nil, objectcache.ErrMiss
		}
	}

	v, ok := resp.Item[attrValue].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("dynamodb: invalid value attribute")
	}
	return v.Value, nil
}

// Set implements objectcache.Store. TTLs are rounded up to whole seconds.
func (s *Store) Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error {
	item := map[string]types.AttributeValue{
		attrPK:    pk(group, key),
		attrValue: &types.AttributeValueMemberB{Value: value},
	}
	if ttl > 0 {
		exp := s.now().Add(ttl + time.Second - 1).Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)}
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb: put %s#%s: %w", group, key, err)
	}
	return nil
}

// Delete implements objectcache.Store.
func (s *Store) Delete(ctx context.Context, group, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       map[string]types.AttributeValue{attrPK: pk(group, key)},
	}); err != nil {
		return fmt.Errorf("dynamodb: delete %s#%s: %w", group, key, err)
	}
	return nil
}

var _ objectcache.Store = (*Store)(nil)
