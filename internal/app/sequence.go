package app

import (
	"context"
	"errors"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

type counter struct {
	Key       string    `json:"key"`
	Prefix    string    `json:"prefix"`
	Period    string    `json:"period"`
	Last      int       `json:"last"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NextNumber issues the next number of scheme for the period containing now.
// The counter is read and written through tx, so numbers are unique and
// increase within a period even under concurrent callers. Numbers are never
// reused, including those of cancelled entities.
func NextNumber(ctx context.Context, tx domain.Transaction, scheme domain.NumberScheme, now time.Time) (string, error) {
	period := scheme.Period(now)
	key := scheme.CounterKey(period)

	c := counter{Key: key, Prefix: scheme.Prefix, Period: period}
	doc, err := tx.Get(ctx, domain.CollectionCounters, key)
	switch {
	case err == nil:
		if err := doc.Decode(&c); err != nil {
			return "", err
		}
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return "", err
	}

	c.Last++
	c.UpdatedAt = now.UTC()
	if err := tx.Set(ctx, domain.CollectionCounters, key, c); err != nil {
		return "", err
	}
	return scheme.Format(period, c.Last), nil
}
