// Package ddb implements the document store on a single DynamoDB table. Each
// document is one item keyed by PK (collection) and SK (document id); writes
// of a session are sent as one TransactWriteItems call.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/repository"
)

const (
	partitionKey = "PK"
	sortKey      = "SK"

	// MaxTransactionItems is the DynamoDB limit of items per transaction.
	MaxTransactionItems = 100
)

// ErrTooManyItems is returned when a session stages more distinct documents
// than one DynamoDB transaction accepts.
var ErrTooManyItems = fmt.Errorf("transaction item limit reached (%d items)", MaxTransactionItems)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is a repository.DocumentStore backed by DynamoDB.
type Store struct {
	client API
	table  string
	logger *zap.Logger
}

var _ repository.DocumentStore = (*Store)(nil)

// NewStore creates a store writing to tableName.
func NewStore(client API, tableName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, table: tableName, logger: logger}
}

// RunInTransaction runs fn with a fresh session and commits its staged writes
// when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, session repository.DocumentSession) error) error {
	sess := &session{
		store:  s,
		staged: make(map[repository.DocumentKey]*stagedWrite),
	}

	if err := fn(ctx, sess); err != nil {
		sess.discard()
		s.logger.Debug("Document transaction discarded",
			zap.Int("staged", len(sess.order)),
			zap.Error(err),
		)
		return err
	}
	return sess.commit(ctx)
}

type stagedWrite struct {
	item    map[string]types.AttributeValue
	deleted bool
	// conditional deletes require the item to exist at commit.
	conditional bool
}

type session struct {
	store *Store

	mu     sync.Mutex
	staged map[repository.DocumentKey]*stagedWrite
	order  []repository.DocumentKey
	closed bool
}

func (s *session) key(k repository.DocumentKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: k.Collection},
		sortKey:      &types.AttributeValueMemberS{Value: k.ID},
	}
}

func validateKey(k repository.DocumentKey) error {
	if strings.TrimSpace(k.Collection) == "" || strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("document key %+v: collection and id are required", k)
	}
	return nil
}

func (s *session) stage(k repository.DocumentKey, w *stagedWrite) error {
	if s.closed {
		return &apperrors.DocumentStoreTransactionError{Cause: repository.ErrTransactionClosed}
	}
	if _, ok := s.staged[k]; !ok {
		if len(s.order) >= MaxTransactionItems {
			return &apperrors.DocumentStoreTransactionError{Cause: ErrTooManyItems}
		}
		s.order = append(s.order, k)
	}
	s.staged[k] = w
	return nil
}

// Put stages doc, which must marshal to a DynamoDB map.
func (s *session) Put(ctx context.Context, k repository.DocumentKey, doc any) error {
	if err := validateKey(k); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", k.Collection, k.ID, err)
	}
	for name, v := range s.key(k) {
		item[name] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage(k, &stagedWrite{item: item})
}

// Delete stages a removal. Deleting a document the session has not written
// requires it to exist when the transaction commits.
func (s *session) Delete(ctx context.Context, k repository.DocumentKey) error {
	if err := validateKey(k); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, touched := s.staged[k]
	return s.stage(k, &stagedWrite{deleted: true, conditional: !touched})
}

// Get reads k, preferring writes staged by this session.
func (s *session) Get(ctx context.Context, k repository.DocumentKey, out any) (bool, error) {
	if err := validateKey(k); err != nil {
		return false, err
	}

	s.mu.Lock()
	w, ok := s.staged[k]
	s.mu.Unlock()
	if ok {
		if w.deleted {
			return false, nil
		}
		if err := attributevalue.UnmarshalMap(w.item, out); err != nil {
			return false, fmt.Errorf("unmarshal document %s/%s: %w", k.Collection, k.ID, err)
		}
		return true, nil
	}

	resp, err := s.store.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.store.table),
		Key:            s.key(k),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, &apperrors.DocumentStoreTransactionError{Cause: describe("get item", err)}
	}
	if len(resp.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal document %s/%s: %w", k.Collection, k.ID, err)
	}
	return true, nil
}

func (s *session) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.staged = nil
	s.order = nil
}

func (s *session) commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	if len(s.order) == 0 {
		return nil
	}

	existsCond, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name(partitionKey))).
		Build()
	if err != nil {
		return &apperrors.DocumentStoreTransactionError{Cause: err}
	}

	items := make([]types.TransactWriteItem, 0, len(s.order))
	for _, k := range s.order {
		w := s.staged[k]
		if !w.deleted {
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(s.store.table),
					Item:      w.item,
				},
			})
			continue
		}
		del := &types.Delete{
			TableName: aws.String(s.store.table),
			Key:       s.key(k),
		}
		if w.conditional {
			del.ConditionExpression = existsCond.Condition()
			del.ExpressionAttributeNames = existsCond.Names()
		}
		items = append(items, types.TransactWriteItem{Delete: del})
	}

	start := time.Now()
	token := uuid.NewString()
	_, err = s.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(token),
	})
	if err != nil {
		s.store.logger.Warn("Document transaction failed",
			zap.String("request_token", token),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
		return &apperrors.DocumentStoreTransactionError{Cause: describe("transact write items", err)}
	}

	s.store.logger.Debug("Document transaction committed",
		zap.String("request_token", token),
		zap.Int("items", len(items)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// describe annotates err with the DynamoDB error code and, for cancelled
// transactions, the per-item cancellation reasons.
func describe(op string, err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		var reasons []string
		for _, r := range canceled.CancellationReasons {
			reasons = append(reasons, aws.ToString(r.Code))
		}
		return fmt.Errorf("%s cancelled [%s]: %w", op, strings.Join(reasons, ","), err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
