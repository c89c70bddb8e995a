// Package storetest holds the behavioural checks every domain.DocumentStore
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

type record struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
	Status string `json:"status"`
	Rank   int    `json:"rank"`
	Open   bool   `json:"open"`
}

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) domain.DocumentStore) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateExisting", func(t *testing.T) { testCreateExisting(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("QueryFilters", func(t *testing.T) { testQueryFilters(t, newStore(t)) })
	t.Run("QueryOrdersTimestamps", func(t *testing.T) { testQueryOrdersTimestamps(t, newStore(t)) })
	t.Run("QueryInLimit", func(t *testing.T) { testQueryInLimit(t, newStore(t)) })
	t.Run("BatchWrite", func(t *testing.T) { testBatchWrite(t, newStore(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
}

func mustCreate(t *testing.T, s domain.DocumentStore, r record) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Transaction) error {
		return tx.Create(ctx, "records", r.ID, r)
	})
	if err != nil {
		t.Fatalf("creating %s: %v", r.ID, err)
	}
}

func decode(t *testing.T, doc domain.Document) record {
	t.Helper()
	var r record
	if err := doc.Decode(&r); err != nil {
		t.Fatalf("decoding %s: %v", doc.ID, err)
	}
	return r
}

func testGetMissing(t *testing.T, s domain.DocumentStore) {
	_, err := s.Get(context.Background(), "records", "nope")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("Get missing = %v, want ErrDocumentNotFound", err)
	}
}

func testCreateAndGet(t *testing.T, s domain.DocumentStore) {
	mustCreate(t, s, record{ID: "r-1", Parent: "p", Status: "OPEN", Rank: 3})

	doc, err := s.Get(context.Background(), "records", "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.ID != "r-1" {
		t.Errorf("ID = %q", doc.ID)
	}
	if got := decode(t, doc); got.Status != "OPEN" || got.Rank != 3 {
		t.Errorf("decoded = %+v", got)
	}

	if _, err := s.Get(context.Background(), "other", "r-1"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("collections must be disjoint, got %v", err)
	}
}

func testCreateExisting(t *testing.T, s domain.DocumentStore) {
	mustCreate(t, s, record{ID: "r-1"})

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Transaction) error {
		return tx.Create(ctx, "records", "r-1", record{ID: "r-1", Status: "SECOND"})
	})
	if !errors.Is(err, domain.ErrDocumentExists) {
		t.Fatalf("second Create = %v, want ErrDocumentExists", err)
	}

	doc, _ := s.Get(context.Background(), "records", "r-1")
	if decode(t, doc).Status == "SECOND" {
		t.Error("failed Create must not overwrite")
	}
}

func testRollback(t *testing.T, s domain.DocumentStore) {
	boom := errors.New("boom")
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Transaction) error {
		if err := tx.Set(ctx, "records", "r-1", record{ID: "r-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTransaction = %v, want boom", err)
	}
	if _, err := s.Get(context.Background(), "records", "r-1"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("write survived a failed transaction: %v", err)
	}
}

func testReadYourWrites(t *testing.T, s domain.DocumentStore) {
	mustCreate(t, s, record{ID: "r-1", Status: "OPEN"})

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Transaction) error {
		if err := tx.Set(ctx, "records", "r-1", record{ID: "r-1", Status: "CLOSED"}); err != nil {
			return err
		}
		doc, err := tx.Get(ctx, "records", "r-1")
		if err != nil {
			return err
		}
		if got := decode(t, doc).Status; got != "CLOSED" {
			return fmt.Errorf("read %q inside tx, want CLOSED", got)
		}
		if err := tx.Delete(ctx, "records", "r-1"); err != nil {
			return err
		}
		if _, err := tx.Get(ctx, "records", "r-1"); !errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("deleted document still visible: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testQueryFilters(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustCreate(t, s, record{ID: "a", Parent: "p1", Status: "OPEN", Rank: 2, Open: true})
	mustCreate(t, s, record{ID: "b", Parent: "p1", Status: "CLOSED", Rank: 1})
	mustCreate(t, s, record{ID: "c", Parent: "p1", Status: "OPEN", Rank: 3, Open: true})
	mustCreate(t, s, record{ID: "d", Parent: "p2", Status: "OPEN", Rank: 4, Open: true})

	docs, err := s.Query(ctx, domain.Query{
		Collection: "records",
		Filters:    []domain.Filter{domain.Where("parent", "p1"), domain.Where("open", true)},
		OrderBy:    "rank",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "c" || docs[1].ID != "a" {
		t.Errorf("equality query = %v", ids(docs))
	}

	docs, err = s.Query(ctx, domain.Query{
		Collection: "records",
		Filters:    []domain.Filter{domain.WhereIn("status", []string{"CLOSED", "MISSING"})},
	})
	if err != nil {
		t.Fatalf("Query in: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Errorf("in query = %v", ids(docs))
	}

	docs, err = s.Query(ctx, domain.Query{Collection: "records", OrderBy: "rank", Limit: 2})
	if err != nil {
		t.Fatalf("Query limit: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "b" || docs[1].ID != "a" {
		t.Errorf("ordered limit query = %v", ids(docs))
	}

	docs, err = s.Query(ctx, domain.Query{
		Collection: "records",
		Filters:    []domain.Filter{domain.WhereIn("status", nil)},
	})
	if err != nil || len(docs) != 0 {
		t.Errorf("empty in query = %v, %v", ids(docs), err)
	}
}

type event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func testQueryOrdersTimestamps(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	events := []event{
		{ID: "a", CreatedAt: base.Add(500 * time.Millisecond)},
		{ID: "b", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(time.Second)},
		{ID: "d", CreatedAt: base.Add(1500 * time.Microsecond)},
	}
	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		for _, e := range events {
			if err := tx.Create(ctx, "events", e.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding events: %v", err)
	}

	docs, err := s.Query(ctx, domain.Query{Collection: "events", OrderBy: "createdAt"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(docs); fmt.Sprint(got) != "[b d a c]" {
		t.Errorf("oldest first = %v, want [b d a c]", got)
	}

	docs, err = s.Query(ctx, domain.Query{Collection: "events", OrderBy: "createdAt", Descending: true, Limit: 2})
	if err != nil {
		t.Fatalf("Query descending: %v", err)
	}
	if got := ids(docs); fmt.Sprint(got) != "[c a]" {
		t.Errorf("newest two = %v, want [c a]", got)
	}
}

func testQueryInLimit(t *testing.T, s domain.DocumentStore) {
	values := make([]string, domain.MaxInFilterValues+1)
	for i := range values {
		values[i] = fmt.Sprintf("v%d", i)
	}
	_, err := s.Query(context.Background(), domain.Query{
		Collection: "records",
		Filters:    []domain.Filter{domain.WhereIn("status", values)},
	})
	if err == nil {
		t.Error("IN filter above the limit must fail")
	}
}

func testBatchWrite(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustCreate(t, s, record{ID: "old"})

	err := s.BatchWrite(ctx, []domain.WriteOp{
		{Kind: domain.WriteCreate, Collection: "records", ID: "n1", Data: record{ID: "n1"}},
		{Kind: domain.WriteSet, Collection: "records", ID: "n2", Data: record{ID: "n2"}},
		{Kind: domain.WriteDelete, Collection: "records", ID: "old"},
	})
	if err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}
	for _, id := range []string{"n1", "n2"} {
		if _, err := s.Get(ctx, "records", id); err != nil {
			t.Errorf("Get %s: %v", id, err)
		}
	}
	if _, err := s.Get(ctx, "records", "old"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("old should be deleted: %v", err)
	}

	// A failing op aborts the whole batch.
	err = s.BatchWrite(ctx, []domain.WriteOp{
		{Kind: domain.WriteSet, Collection: "records", ID: "n3", Data: record{ID: "n3"}},
		{Kind: domain.WriteCreate, Collection: "records", ID: "n1", Data: record{ID: "n1"}},
	})
	if !errors.Is(err, domain.ErrDocumentExists) {
		t.Fatalf("conflicting BatchWrite = %v", err)
	}
	if _, err := s.Get(ctx, "records", "n3"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("partial batch applied: %v", err)
	}
}

func testConcurrentIncrement(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	mustCreate(t, s, record{ID: "counter"})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
				doc, err := tx.Get(ctx, "records", "counter")
				if err != nil {
					return err
				}
				var r record
				if err := doc.Decode(&r); err != nil {
					return err
				}
				r.Rank++
				return tx.Set(ctx, "records", "counter", r)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	doc, err := s.Get(ctx, "records", "counter")
	if err != nil {
		t.Fatal(err)
	}
	if got := decode(t, doc).Rank; got != workers {
		t.Errorf("counter = %d, want %d", got, workers)
	}
}

func ids(docs []domain.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
