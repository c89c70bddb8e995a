// Package memstore provides an in-memory domain.DocumentStore used for tests
// and ephemeral environments.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/neomorfeo/procura/internal/adapter/docmatch"
	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: Store implements domain.DocumentStore.
var _ domain.DocumentStore = (*Store)(nil)

type key struct {
	collection string
	id         string
}

// Store keeps documents as JSON bytes. Transactions take the store-wide lock
// for their whole duration and buffer writes until commit.
type Store struct {
	mu   sync.RWMutex
	docs map[key][]byte
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[key][]byte)}
}

func (s *Store) Get(_ context.Context, collection, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(nil, collection, id)
}

func (s *Store) Query(_ context.Context, q domain.Query) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(nil, q)
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{store: s, pending: make(map[key][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, v := range tx.pending {
		if v == nil {
			delete(s.docs, k)
			continue
		}
		s.docs[k] = v
	}
	return nil
}

func (s *Store) BatchWrite(ctx context.Context, ops []domain.WriteOp) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		for _, op := range ops {
			var err error
			switch op.Kind {
			case domain.WriteCreate:
				err = tx.Create(ctx, op.Collection, op.ID, op.Data)
			case domain.WriteSet:
				err = tx.Set(ctx, op.Collection, op.ID, op.Data)
			case domain.WriteDelete:
				err = tx.Delete(ctx, op.Collection, op.ID)
			default:
				err = fmt.Errorf("unknown write kind %q", op.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.docs {
		if k.collection == collection {
			n++
		}
	}
	return n
}

// lookup resolves a key against pending writes first. A nil entry in pending
// is a buffered delete.
func (s *Store) lookup(pending map[key][]byte, k key) ([]byte, bool) {
	if v, ok := pending[k]; ok {
		return v, v != nil
	}
	v, ok := s.docs[k]
	return v, ok
}

func (s *Store) get(pending map[key][]byte, collection, id string) (domain.Document, error) {
	v, ok := s.lookup(pending, key{collection, id})
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return domain.Document{ID: id, Data: bytes.Clone(v)}, nil
}

func (s *Store) query(pending map[key][]byte, q domain.Query) ([]domain.Document, error) {
	if err := docmatch.Validate(q.Filters); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var matches []docmatch.Candidate
	consider := func(k key, v []byte) error {
		if k.collection != q.Collection || seen[k.id] {
			return nil
		}
		seen[k.id] = true
		if v == nil {
			return nil
		}
		fields, err := docmatch.Fields(v)
		if err != nil {
			return fmt.Errorf("decoding %s/%s: %w", k.collection, k.id, err)
		}
		ok, err := docmatch.Match(fields, q.Filters)
		if err != nil || !ok {
			return err
		}
		matches = append(matches, docmatch.Candidate{ID: k.id, Data: v, Fields: fields})
		return nil
	}
	// Pending writes shadow committed documents.
	for k, v := range pending {
		if err := consider(k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range s.docs {
		if err := consider(k, v); err != nil {
			return nil, err
		}
	}
	return docmatch.Finish(q, matches), nil
}

type transaction struct {
	store   *Store
	pending map[key][]byte
}

func (t *transaction) Get(_ context.Context, collection, id string) (domain.Document, error) {
	return t.store.get(t.pending, collection, id)
}

func (t *transaction) Query(_ context.Context, q domain.Query) ([]domain.Document, error) {
	return t.store.query(t.pending, q)
}

func (t *transaction) Create(_ context.Context, collection, id string, data any) error {
	k := key{collection, id}
	if _, ok := t.store.lookup(t.pending, k); ok {
		return fmt.Errorf("creating %s/%s: %w", collection, id, domain.ErrDocumentExists)
	}
	return t.put(k, data)
}

func (t *transaction) Set(_ context.Context, collection, id string, data any) error {
	return t.put(key{collection, id}, data)
}

func (t *transaction) Delete(_ context.Context, collection, id string) error {
	t.pending[key{collection, id}] = nil
	return nil
}

var errNullDocument = errors.New("document body must not be null")

func (t *transaction) put(k key, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", k.collection, k.id, err)
	}
	if bytes.Equal(body, []byte("null")) {
		return fmt.Errorf("writing %s/%s: %w", k.collection, k.id, errNullDocument)
	}
	t.pending[k] = body
	return nil
}
