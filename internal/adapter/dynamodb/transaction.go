package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/neomorfeo/procura/internal/adapter/docmatch"
	"github.com/neomorfeo/procura/internal/domain"
)

type docKey struct {
	collection string
	id         string
}

// observed is the version of a document when the transaction first saw it.
// Version 0 means it did not exist.
type observed struct {
	version int64
}

type write struct {
	data    any // nil for a delete
	body    []byte
	deleted bool
}

type transaction struct {
	store  *Store
	reads  map[docKey]observed
	writes map[docKey]*write
	order  []docKey
}

func newTransaction(s *Store) *transaction {
	return &transaction{
		store:  s,
		reads:  make(map[docKey]observed),
		writes: make(map[docKey]*write),
	}
}

func (t *transaction) observe(k docKey, version int64) {
	if _, ok := t.reads[k]; !ok {
		t.reads[k] = observed{version: version}
	}
}

func (t *transaction) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	k := docKey{collection, id}
	if w, ok := t.writes[k]; ok {
		if w.deleted {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{ID: id, Data: w.body}, nil
	}

	doc, version, err := t.store.get(ctx, collection, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		t.observe(k, 0)
		return domain.Document{}, err
	}
	if err != nil {
		return domain.Document{}, err
	}
	t.observe(k, version)
	return doc, nil
}

// Query overlays the transaction's own writes on the stored results. Only the
// returned documents join the read set; phantoms are not detected.
func (t *transaction) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	stored, err := t.store.query(ctx, q, func(id string, v int64) {
		t.observe(docKey{q.Collection, id}, v)
	})
	if err != nil {
		return nil, err
	}

	cands := make([]docmatch.Candidate, 0, len(stored))
	for _, c := range stored {
		if _, shadowed := t.writes[docKey{q.Collection, c.ID}]; !shadowed {
			cands = append(cands, c)
		}
	}
	for _, k := range t.order {
		w := t.writes[k]
		if k.collection != q.Collection || w.deleted {
			continue
		}
		fields, err := docmatch.Fields(w.body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", k.collection, k.id, err)
		}
		ok, err := docmatch.Match(fields, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			cands = append(cands, docmatch.Candidate{ID: k.id, Data: w.body, Fields: fields})
		}
	}
	return docmatch.Finish(q, cands), nil
}

func (t *transaction) Create(ctx context.Context, collection, id string, data any) error {
	if _, err := t.Get(ctx, collection, id); err == nil {
		return fmt.Errorf("creating %s/%s: %w", collection, id, domain.ErrDocumentExists)
	} else if !errors.Is(err, domain.ErrDocumentNotFound) {
		return err
	}
	return t.put(docKey{collection, id}, data)
}

func (t *transaction) Set(_ context.Context, collection, id string, data any) error {
	return t.put(docKey{collection, id}, data)
}

func (t *transaction) Delete(_ context.Context, collection, id string) error {
	t.record(docKey{collection, id}, &write{deleted: true})
	return nil
}

func (t *transaction) put(k docKey, data any) error {
	av, err := encodeItem(k.collection, k.id, data, 0)
	if err != nil {
		return err
	}
	_, body, _, err := decodeItem(av)
	if err != nil {
		return err
	}
	t.record(k, &write{data: data, body: body})
	return nil
}

func (t *transaction) record(k docKey, w *write) {
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = w
}

// commit turns the read and write sets into one TransactWriteItems call.
func (t *transaction) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(t.writes)+len(t.reads))
	for _, k := range t.order {
		item, err := t.writeItem(k, t.writes[k])
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	for k, obs := range t.reads {
		if _, written := t.writes[k]; written {
			continue
		}
		cond, names, values := versionCondition(obs)
		items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(t.store.table),
			Key:                       key(k.collection, k.id),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}})
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("transaction touches %d documents, limit is %d", len(items), maxTransactItems)
	}

	if _, err := t.store.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *transaction) writeItem(k docKey, w *write) (types.TransactWriteItem, error) {
	obs, read := t.reads[k]

	if w.deleted {
		del := &types.Delete{TableName: aws.String(t.store.table), Key: key(k.collection, k.id)}
		if read {
			cond, names, values := versionCondition(obs)
			del.ConditionExpression = aws.String(cond)
			del.ExpressionAttributeNames = names
			del.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Delete: del}, nil
	}

	if !read {
		// Blind write: no version to compare against.
		return t.store.blindWrite(domain.WriteOp{Kind: domain.WriteSet, Collection: k.collection, ID: k.id, Data: w.data})
	}

	av, err := encodeItem(k.collection, k.id, w.data, obs.version+1)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	cond, names, values := versionCondition(obs)
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(t.store.table),
		Item:                      av,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}, nil
}

// versionCondition asserts the document is still as the transaction saw it.
func versionCondition(obs observed) (string, map[string]string, map[string]types.AttributeValue) {
	if obs.version == 0 {
		return "attribute_not_exists(#id)", map[string]string{"#id": attrID}, nil
	}
	return "#version = :version",
		map[string]string{"#version": attrVersion},
		map[string]types.AttributeValue{":version": versionValue(obs.version)}
}
