package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/neomorfeo/procura/internal/domain"
)

// load reads and decodes one entity, mapping absence to NotFoundError.
func load[T any](ctx context.Context, r domain.DocumentReader, entity domain.EntityType, collection, id string) (T, error) {
	var v T
	doc, err := r.Get(ctx, collection, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return v, &domain.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return v, &domain.ExternalServiceError{Op: "get " + collection, Err: err}
	}
	if err := doc.Decode(&v); err != nil {
		return v, &domain.ExternalServiceError{Op: "decode " + collection + "/" + id, Err: err}
	}
	return v, nil
}

// queryAll runs q and decodes every result.
func queryAll[T any](ctx context.Context, r domain.DocumentReader, q domain.Query) ([]T, error) {
	docs, err := r.Query(ctx, q)
	if err != nil {
		return nil, &domain.ExternalServiceError{Op: "query " + q.Collection, Err: err}
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, &domain.ExternalServiceError{Op: "decode " + q.Collection + "/" + doc.ID, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

// classify passes domain errors through and wraps anything else, which can
// only come from the store, in an ExternalServiceError.
func classify(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &domain.ExternalServiceError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var (
		notFound   *domain.NotFoundError
		authz      *domain.AuthorizationError
		transition *domain.InvalidTransitionError
		validation *domain.ValidationError
		duplicate  *domain.DuplicateOperationError
		external   *domain.ExternalServiceError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &authz) ||
		errors.As(err, &transition) ||
		errors.As(err, &validation) ||
		errors.As(err, &duplicate) ||
		errors.As(err, &external)
}
