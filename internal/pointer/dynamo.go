package pointer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// DynamoStore keeps pointer records in a DynamoDB table keyed by owner id.
// Reads are strongly consistent so a session always sees its own commit.
type DynamoStore struct {
	svc   *dynamodb.Client
	table string
}

// NewDynamoStore creates a pointer store over the given table.
func NewDynamoStore(ctx context.Context, region, table string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &DynamoStore{svc: dynamodb.NewFromConfig(cfg), table: table}, nil
}

// NewDynamoStoreWithClient wraps an existing client; used by tests.
func NewDynamoStoreWithClient(svc *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{svc: svc, table: table}
}

// Get returns the pointer for ownerID.
func (s *DynamoStore) Get(ctx context.Context, ownerID string) (*Pointer, error) {
	out, err := s.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"owner_id": &types.AttributeValueMemberS{Value: ownerID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, faults.Wrap(faults.MetadataStore, "read pointer", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var p Pointer
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("decode pointer item: %w", err)
	}
	return &p, nil
}

// Set replaces the pointer for p.OwnerID. There is no conditional check on
// the previous value: racing writers clobber each other and the later
// write wins.
func (s *DynamoStore) Set(ctx context.Context, p *Pointer) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("encode pointer item: %w", err)
	}

	_, err = s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return faults.Wrap(faults.MetadataStore, "write pointer", err)
	}
	return nil
}
