// Package docmatch evaluates domain.Query filters and ordering against decoded
// JSON documents, for stores that cannot push them down.
package docmatch

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

// Validate rejects filters a store must not accept.
func Validate(filters []domain.Filter) error {
	for _, f := range filters {
		switch f.Op {
		case domain.OpEqual:
		case domain.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return fmt.Errorf("filter %s: in requires []string, got %T", f.Field, f.Value)
			}
			if len(values) > domain.MaxInFilterValues {
				return fmt.Errorf("filter %s: %d values exceeds limit of %d", f.Field, len(values), domain.MaxInFilterValues)
			}
		default:
			return fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return nil
}

// Fields decodes a document body into a generic map.
func Fields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Match reports whether fields satisfies every filter. Filters must have
// passed Validate.
func Match(fields map[string]any, filters []domain.Filter) (bool, error) {
	for _, f := range filters {
		got := Lookup(fields, f.Field)
		switch f.Op {
		case domain.OpEqual:
			ok, err := jsonEqual(got, f.Value)
			if err != nil || !ok {
				return false, err
			}
		case domain.OpIn:
			s, isString := got.(string)
			if !isString || !slices.Contains(f.Value.([]string), s) {
				return false, nil
			}
		}
	}
	return true, nil
}

// Lookup resolves a dotted path in fields, or nil.
func Lookup(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// jsonEqual compares a decoded document value with a filter value by their
// JSON encodings, so named string types and numeric kinds compare naturally.
func jsonEqual(got, want any) (bool, error) {
	if got == nil {
		return false, nil
	}
	a, err := json.Marshal(got)
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(want)
	if err != nil {
		return false, fmt.Errorf("encoding filter value: %w", err)
	}
	return bytes.Equal(a, b), nil
}

// Compare orders missing values first, then booleans, numbers and strings.
// Two RFC 3339 timestamps compare chronologically: encoding/json trims
// trailing zeros from fractional seconds, so their text does not sort.
func Compare(a, b any) int {
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		y := b.(string)
		if tx, ty, ok := timestamps(x, y); ok {
			return tx.Compare(ty)
		}
		return strings.Compare(x, y)
	}
	return 0
}

func timestamps(a, b string) (time.Time, time.Time, bool) {
	ta, err := time.Parse(time.RFC3339Nano, a)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	tb, err := time.Parse(time.RFC3339Nano, b)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return ta, tb, true
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// Candidate is a matched document with its decoded fields.
type Candidate struct {
	ID     string
	Data   []byte
	Fields map[string]any
}

// Finish sorts candidates by q's ordering, ties broken by id, and applies
// q.Limit.
func Finish(q domain.Query, cands []Candidate) []domain.Document {
	slices.SortFunc(cands, func(a, b Candidate) int {
		c := 0
		if q.OrderBy != "" {
			c = Compare(Lookup(a.Fields, q.OrderBy), Lookup(b.Fields, q.OrderBy))
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if q.Descending {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(cands) > q.Limit {
		cands = cands[:q.Limit]
	}

	docs := make([]domain.Document, len(cands))
	for i, c := range cands {
		docs[i] = domain.Document{ID: c.ID, Data: bytes.Clone(c.Data)}
	}
	return docs
}
