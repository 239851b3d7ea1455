// Package dynamodb is the DynamoDB backend. Each entity type lives in its own
// table keyed by the numeric "id" attribute; ids come from an atomic counter item.
package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	"repokit/internal/infrastructure/persistence/tracking"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config names the tables of one entity type.
type Config struct {
	TableName string
	// CounterTable holds one item per entity table: {"name": TableName, "next_id": N}.
	CounterTable   string
	ConsistentRead bool
	// PageSize limits the items evaluated per Scan page. Zero leaves it to DynamoDB.
	PageSize int32
}

// maxTransactItems is the TransactWriteItems limit.
const maxTransactItems = 100

// Store reads and writes one entity type.
type Store[E entity.Entity] struct {
	client    Client
	config    Config
	relations query.Relations[E]
	logger    *zap.Logger
}

// Option configures a Store.
type Option[E entity.Entity] func(*Store[E])

// WithRelation registers a loader for an includable relation.
func WithRelation[E entity.Entity](name string, loader query.RelationLoader[E]) Option[E] {
	return func(s *Store[E]) {
		s.relations[name] = loader
	}
}

func WithLogger[E entity.Entity](logger *zap.Logger) Option[E] {
	return func(s *Store[E]) {
		s.logger = logger
	}
}

// NewStore creates a store over client.
func NewStore[E entity.Entity](client Client, config Config, opts ...Option[E]) *Store[E] {
	s := &Store[E]{
		client:    client,
		config:    config,
		relations: make(query.Relations[E]),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session.
func (s *Store[E]) Open(ctx context.Context) (repository.Session[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session[E]{store: s, tracker: tracking.New[E]()}, nil
}

// scan pages through the table, decoding every item. Each page is handed to visit;
// returning false from visit stops the scan.
func (s *Store[E]) scan(ctx context.Context, tr Translation, count bool, visit func(items []E, count int32) bool) error {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.config.TableName),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	}
	if s.config.PageSize > 0 {
		input.Limit = aws.Int32(s.config.PageSize)
	}
	if tr.Expression != nil {
		input.FilterExpression = tr.Expression.Filter()
		input.ExpressionAttributeNames = tr.Expression.Names()
		input.ExpressionAttributeValues = tr.Expression.Values()
	}
	if count {
		input.Select = types.SelectCount
	}

	paginator := dynamodb.NewScanPaginator(s.client, input)
	pages := 0
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", s.config.TableName, err)
		}
		pages++
		var items []E
		if !count {
			items, err = decode[E](out.Items)
			if err != nil {
				return err
			}
		}
		if !visit(items, out.Count) {
			break
		}
	}
	s.logger.Debug("Scanned table",
		zap.String("table", s.config.TableName),
		zap.Int("pages", pages),
		zap.Bool("filtered", tr.Expression != nil),
	)
	return nil
}

func decode[E entity.Entity](items []map[string]types.AttributeValue) ([]E, error) {
	out := make([]E, 0, len(items))
	for _, item := range items {
		e := entity.New[E]()
		if err := attributevalue.UnmarshalMap(item, e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", entity.TypeName[E](), err)
		}
		out = append(out, e)
	}
	return out, nil
}

// allocate reserves n consecutive ids and returns the first.
func (s *Store[E]) allocate(ctx context.Context, n int) (int64, error) {
	update := expression.Add(expression.Name("next_id"), expression.Value(n))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build expression: %w", err)
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.CounterTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: s.config.TableName},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ids for %s: %w", s.config.TableName, err)
	}
	var counter struct {
		NextID int64 `dynamodbav:"next_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("failed to read id counter: %w", err)
	}
	return counter.NextID - int64(n) + 1, nil
}
