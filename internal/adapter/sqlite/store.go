package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/procura/internal/adapter/docmatch"
	"github.com/neomorfeo/procura/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Store implements domain.DocumentStore.
var _ domain.DocumentStore = (*Store)(nil)

// Store implements domain.DocumentStore on a single SQLite table of JSON
// documents keyed by (collection, id).
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: ":memory:" databases are per connection, and
	// transactions serialize on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05.000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	return get(ctx, s.db, collection, id)
}

func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	return query(ctx, s.db, q)
}

// RunTransaction runs fn inside a database transaction. With a single
// connection there are no conflicting writers, so fn runs exactly once.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(ctx, &transaction{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
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

type transaction struct {
	tx *sql.Tx
}

func (t *transaction) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	return get(ctx, t.tx, collection, id)
}

func (t *transaction) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	return query(ctx, t.tx, q)
}

func (t *transaction) Create(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC().Format(timeFormat)
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(body), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("creating %s/%s: %w", collection, id, domain.ErrDocumentExists)
		}
		return fmt.Errorf("inserting %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *transaction) Set(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC().Format(timeFormat)
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(body), now, now,
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

func get(ctx context.Context, q querier, collection, id string) (domain.Document, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return domain.Document{ID: id, Data: json.RawMessage(data)}, nil
}

func query(ctx context.Context, q querier, dq domain.Query) ([]domain.Document, error) {
	stmt, args, err := buildQuery(dq)
	if err != nil {
		return nil, err
	}
	if stmt == "" {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", dq.Collection, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", dq.Collection, err)
		}
		docs = append(docs, domain.Document{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", dq.Collection, err)
	}
	if dq.OrderBy == "" {
		return docs, nil
	}

	cands := make([]docmatch.Candidate, len(docs))
	for i, d := range docs {
		fields, err := docmatch.Fields(d.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", dq.Collection, d.ID, err)
		}
		cands[i] = docmatch.Candidate{ID: d.ID, Data: d.Data, Fields: fields}
	}
	return docmatch.Finish(dq, cands), nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// buildQuery renders q's filters as SQL over json_extract. An IN filter with
// no values matches nothing and yields an empty statement. Ordering by a
// document field is left to the caller: stored timestamps do not sort as
// text, so they are compared the way every other store compares them.
func buildQuery(q domain.Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		switch f.Op {
		case domain.OpEqual:
			sb.WriteString(` AND json_extract(data, ?) = ?`)
			args = append(args, "$."+f.Field, sqlValue(f.Value))
		case domain.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: in requires []string, got %T", f.Field, f.Value)
			}
			if len(values) > domain.MaxInFilterValues {
				return "", nil, fmt.Errorf("filter %s: %d values exceeds limit of %d", f.Field, len(values), domain.MaxInFilterValues)
			}
			if len(values) == 0 {
				return "", nil, nil
			}
			sb.WriteString(` AND json_extract(data, ?) IN (?` + strings.Repeat(`, ?`, len(values)-1) + `)`)
			args = append(args, "$."+f.Field)
			for _, v := range values {
				args = append(args, v)
			}
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	if q.OrderBy != "" {
		// Ordered queries are sorted after the scan, see query.
		if !fieldPattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		return sb.String(), args, nil
	}

	sb.WriteString(` ORDER BY id`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	return sb.String(), args, nil
}

// sqlValue converts a filter value to what json_extract yields for it.
// Named string types such as statuses are passed as plain strings.
func sqlValue(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.String:
		return rv.String()
	default:
		return v
	}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
