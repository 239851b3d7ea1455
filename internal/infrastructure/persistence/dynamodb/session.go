package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/infrastructure/persistence/tracking"
	"repokit/internal/query"
)

type session[E entity.Entity] struct {
	store   *Store[E]
	tracker *tracking.Tracker[E]
}

func (s *session[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return nil, err
	}
	tr, err := Translate(plan.Filter)
	if err != nil {
		return nil, err
	}
	if tr.Never {
		return []E{}, nil
	}
	var rows []E
	err = s.store.scan(ctx, tr, false, func(items []E, _ int32) bool {
		rows = append(rows, items...)
		return true
	})
	if err != nil {
		return nil, err
	}
	out, err := query.Execute(ctx, plan, rows, s.store.relations)
	if err != nil {
		return nil, err
	}
	if plan.Hints.Track {
		s.tracker.Track(out...)
	}
	return out, nil
}

func (s *session[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return 0, err
	}
	tr, err := Translate(plan.Filter)
	if err != nil {
		return 0, err
	}
	if tr.Never {
		return 0, nil
	}
	if !tr.Complete {
		rows, err := s.Find(ctx, plan.Unpaged().WithSort())
		return len(rows), err
	}
	total := 0
	err = s.store.scan(ctx, tr, true, func(_ []E, count int32) bool {
		total += int(count)
		return true
	})
	return total, err
}

func (s *session[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return false, err
	}
	tr, err := Translate(plan.Filter)
	if err != nil {
		return false, err
	}
	if tr.Never {
		return false, nil
	}
	p := plan.Unpaged().WithSort()
	p.Take = 1
	found := false
	var visitErr error
	err = s.store.scan(ctx, tr, false, func(items []E, _ int32) bool {
		out, err := query.Execute(ctx, p, items, s.store.relations)
		if err != nil {
			visitErr = err
			return false
		}
		found = len(out) > 0
		return !found
	})
	if err != nil {
		return false, err
	}
	return found, visitErr
}

func (s *session[E]) Add(entities ...E) { s.tracker.Stage(entities...) }

func (s *session[E]) Remove(entities ...E) { s.tracker.Remove(entities...) }

func (s *session[E]) Modified() []E { return s.tracker.Modified() }

// SaveChanges writes every pending change in one TransactWriteItems call. Every
// modified or removed row is guarded by the version it was loaded with.
func (s *session[E]) SaveChanges(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.tracker.CheckIdentity(); err != nil {
		return 0, err
	}
	changes := s.tracker.Changes()
	if changes.Len() == 0 {
		return 0, nil
	}
	if changes.Len() > maxTransactItems {
		return 0, apperrors.Invalid("save", fmt.Sprintf("a save can write at most %d items, got %d", maxTransactItems, changes.Len()))
	}
	for _, e := range changes.Added {
		if id := e.Audit().ID; id != 0 {
			return 0, apperrors.Invalid("save", fmt.Sprintf("%s %d is already persisted", entity.TypeName[E](), id))
		}
	}

	var firstID int64
	if n := len(changes.Added); n > 0 {
		var err error
		if firstID, err = s.store.allocate(ctx, n); err != nil {
			return 0, err
		}
	}

	items := make([]types.TransactWriteItem, 0, changes.Len())
	for i, e := range changes.Added {
		c := entity.Clone(e)
		c.Audit().ID = firstID + int64(i)
		c.Audit().Version = 1
		item, err := s.put(c, expression.AttributeNotExists(expression.Name("id")))
		if err != nil {
			return 0, err
		}
		items = append(items, item)
	}
	for _, e := range changes.Modified {
		c := entity.Clone(e)
		c.Audit().Version = s.loadedVersion(e) + 1
		item, err := s.put(c, versionIs(s.loadedVersion(e)))
		if err != nil {
			return 0, err
		}
		items = append(items, item)
	}
	for _, e := range changes.Removed {
		item, err := s.delete(e.Audit().ID, versionIs(s.loadedVersion(e)))
		if err != nil {
			return 0, err
		}
		items = append(items, item)
	}

	_, err := s.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return 0, s.store.translateError(err)
	}

	for i, e := range changes.Added {
		e.Audit().ID = firstID + int64(i)
		e.Audit().Version = 1
	}
	for _, e := range changes.Modified {
		e.Audit().Version = s.loadedVersion(e) + 1
	}
	s.tracker.AcceptAll()

	s.store.logger.Debug("Saved changes",
		zap.String("table", s.store.config.TableName),
		zap.Int("added", len(changes.Added)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("removed", len(changes.Removed)),
	)
	return changes.Len(), nil
}

func (s *session[E]) loadedVersion(e E) uint32 {
	if snap, ok := s.tracker.Original(e); ok {
		return snap.Audit().Version
	}
	return e.Audit().Version
}

func versionIs(v uint32) expression.ConditionBuilder {
	return expression.Name("version").Equal(expression.Value(v))
}

func (s *session[E]) put(e E, cond expression.ConditionBuilder) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(e)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal %s: %w", entity.TypeName[E](), err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(s.store.config.TableName),
			Item:                      av,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

func (s *session[E]) delete(id int64, cond expression.ConditionBuilder) (types.TransactWriteItem, error) {
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(s.store.config.TableName),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
			},
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}, nil
}

// translateError maps a failed condition check to a Conflict. Other errors are
// passed through with the service error code attached.
func (s *Store[E]) translateError(err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return apperrors.Conflict("VERSION_MISMATCH",
					fmt.Sprintf("%s was changed concurrently", entity.TypeName[E]())).
					WithOperation("save").
					WithResource(entity.TypeName[E]()).
					WithCause(err).
					Build()
			}
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn("DynamoDB write failed",
			zap.String("table", s.config.TableName),
			zap.String("code", apiErr.ErrorCode()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to write %s (%s): %w", s.config.TableName, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("failed to write %s: %w", s.config.TableName, err)
}
