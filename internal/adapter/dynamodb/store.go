// Package dynamodb implements domain.DocumentStore on a single DynamoDB table
// with optimistic, version-checked transactions.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/adapter/docmatch"
	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: Store implements domain.DocumentStore.
var _ domain.DocumentStore = (*Store)(nil)

// maxTransactItems is DynamoDB's per-transaction item limit.
const maxTransactItems = 100

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store implements domain.DocumentStore on DynamoDB.
type Store struct {
	api         API
	table       string
	maxAttempts int
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds how often a conflicting transaction is retried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New returns a store over table.
func New(api API, table string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{api: api, table: table, maxAttempts: 5, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	doc, _, err := s.get(ctx, collection, id)
	return doc, err
}

func (s *Store) get(ctx context.Context, collection, id string) (domain.Document, int64, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Document{}, 0, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	if len(out.Item) == 0 {
		return domain.Document{}, 0, domain.ErrDocumentNotFound
	}
	_, body, version, err := decodeItem(out.Item)
	if err != nil {
		return domain.Document{}, 0, err
	}
	return domain.Document{ID: id, Data: body}, version, nil
}

func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	cands, err := s.query(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	return docmatch.Finish(q, cands), nil
}

// query reads every matching item of the collection. Ordering and limits are
// applied by the caller because DynamoDB limits before filtering.
func (s *Store) query(ctx context.Context, q domain.Query, versions func(id string, v int64)) ([]docmatch.Candidate, error) {
	if err := docmatch.Validate(q.Filters); err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if f.Op == domain.OpIn && len(f.Value.([]string)) == 0 {
			return nil, nil
		}
	}

	expr := newExpression()
	keyCond := expr.name(attrCollection) + " = :collection"
	expr.values[":collection"] = &types.AttributeValueMemberS{Value: q.Collection}
	filter, err := expr.filter(q.Filters)
	if err != nil {
		return nil, err
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
		ConsistentRead:            aws.Bool(true),
	}
	if filter != "" {
		in.FilterExpression = aws.String(filter)
	}

	var cands []docmatch.Candidate
	paginator := dynamodb.NewQueryPaginator(s.api, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", q.Collection, err)
		}
		for _, av := range page.Items {
			id, body, version, err := decodeItem(av)
			if err != nil {
				return nil, err
			}
			fields, err := docmatch.Fields(body)
			if err != nil {
				return nil, fmt.Errorf("decoding %s/%s: %w", q.Collection, id, err)
			}
			if versions != nil {
				versions(id, version)
			}
			cands = append(cands, docmatch.Candidate{ID: id, Data: body, Fields: fields})
		}
	}
	return cands, nil
}

// RunTransaction runs fn against a buffered transaction and commits it with
// TransactWriteItems. Every document read or written is guarded by its
// version, so a concurrent writer cancels the commit and fn is retried.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Transaction) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		tx := newTransaction(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		err := tx.commit(ctx)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		lastErr = err
		s.logger.Debug("transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", s.maxAttempts, lastErr)
}

// BatchWrite applies ops in one TransactWriteItems call without reading first.
func (s *Store) BatchWrite(ctx context.Context, ops []domain.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxTransactItems {
		return fmt.Errorf("batch of %d writes exceeds limit of %d", len(ops), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		item, err := s.blindWrite(op)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("batch write: %w", domain.ErrDocumentExists)
		}
		return fmt.Errorf("batch write: %w", err)
	}
	return nil
}

func (s *Store) blindWrite(op domain.WriteOp) (types.TransactWriteItem, error) {
	switch op.Kind {
	case domain.WriteCreate:
		av, err := encodeItem(op.Collection, op.ID, op.Data, 1)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(s.table),
			Item:                     av,
			ConditionExpression:      aws.String("attribute_not_exists(#id)"),
			ExpressionAttributeNames: map[string]string{"#id": attrID},
		}}, nil
	case domain.WriteSet:
		av, err := encodeItem(op.Collection, op.ID, op.Data, 0)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:        aws.String(s.table),
			Key:              key(op.Collection, op.ID),
			UpdateExpression: aws.String("SET #doc = :doc ADD #version :one"),
			ExpressionAttributeNames: map[string]string{
				"#doc":     attrDoc,
				"#version": attrVersion,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":doc": av[attrDoc],
				":one": versionValue(1),
			},
		}}, nil
	case domain.WriteDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.table),
			Key:       key(op.Collection, op.ID),
		}}, nil
	default:
		return types.TransactWriteItem{}, fmt.Errorf("unknown write kind %q", op.Kind)
	}
}

// isConflict reports whether a commit lost a race and may be retried.
func isConflict(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			switch aws.ToString(r.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
		return false
	}
	var inProgress *types.TransactionInProgressException
	if errors.As(err, &inProgress) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TransactionConflictException", "ThrottlingException", "ProvisionedThroughputExceededException":
			return true
		}
	}
	return false
}

func isConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, r := range canceled.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
