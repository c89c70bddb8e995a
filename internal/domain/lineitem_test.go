package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/procura/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewLineItems(t *testing.T) {
	items, err := domain.NewLineItems([]domain.LineItemInput{
		{Description: " Steel bolts ", Quantity: dec("10"), UnitPrice: dec("2.50"), TaxRate: dec("19")},
		{Description: "Cable", Quantity: dec("3"), Unit: "m", UnitPrice: dec("1.333")},
	})
	if err != nil {
		t.Fatalf("NewLineItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}

	first := items[0]
	if first.LineNumber != 1 || first.Description != "Steel bolts" || first.Unit != "pcs" {
		t.Errorf("first line = %+v", first)
	}
	if !first.Amount.Equal(dec("25")) || !first.TaxAmount.Equal(dec("4.75")) || !first.Total.Equal(dec("29.75")) {
		t.Errorf("first amounts = %s / %s / %s", first.Amount, first.TaxAmount, first.Total)
	}
	if items[1].LineNumber != 2 || !items[1].Amount.Equal(dec("4")) {
		t.Errorf("second line = %+v", items[1])
	}

	sub, tax, total := domain.Totals(items)
	if !sub.Equal(dec("29")) || !tax.Equal(dec("4.75")) || !total.Equal(dec("33.75")) {
		t.Errorf("Totals = %s / %s / %s", sub, tax, total)
	}
}

func TestNewLineItems_Invalid(t *testing.T) {
	cases := map[string][]domain.LineItemInput{
		"empty":          nil,
		"no description": {{Quantity: dec("1"), UnitPrice: dec("1")}},
		"zero quantity":  {{Description: "x", Quantity: dec("0"), UnitPrice: dec("1")}},
		"negative price": {{Description: "x", Quantity: dec("1"), UnitPrice: dec("-1")}},
		"negative tax":   {{Description: "x", Quantity: dec("1"), UnitPrice: dec("1"), TaxRate: dec("-5")}},
	}
	for name, in := range cases {
		_, err := domain.NewLineItems(in)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: err = %v, want ValidationError", name, err)
		}
	}
}
