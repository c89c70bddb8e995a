package dynamodb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/neomorfeo/procura/internal/domain"
)

// expression accumulates placeholder names and values for one request.
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (e *expression) name(attr string) string {
	for placeholder, n := range e.names {
		if n == attr {
			return placeholder
		}
	}
	placeholder := "#n" + strconv.Itoa(len(e.names))
	e.names[placeholder] = attr
	return placeholder
}

// path renders a dotted document field under the doc attribute.
func (e *expression) path(field string) string {
	parts := []string{e.name(attrDoc)}
	for _, p := range strings.Split(field, ".") {
		parts = append(parts, e.name(p))
	}
	return strings.Join(parts, ".")
}

func (e *expression) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling filter value: %w", err)
	}
	placeholder := ":v" + strconv.Itoa(len(e.values))
	e.values[placeholder] = av
	return placeholder, nil
}

// filter renders q's filters as a FilterExpression, or "" when there are
// none. Filters must have passed docmatch.Validate.
func (e *expression) filter(filters []domain.Filter) (string, error) {
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		switch f.Op {
		case domain.OpEqual:
			v, err := e.value(f.Value)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, e.path(f.Field)+" = "+v)
		case domain.OpIn:
			values := f.Value.([]string)
			placeholders := make([]string, 0, len(values))
			for _, val := range values {
				v, err := e.value(val)
				if err != nil {
					return "", err
				}
				placeholders = append(placeholders, v)
			}
			clauses = append(clauses, e.path(f.Field)+" IN ("+strings.Join(placeholders, ", ")+")")
		}
	}
	return strings.Join(clauses, " AND "), nil
}
