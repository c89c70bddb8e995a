package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItemInput is the caller-supplied part of a line item.
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // percent
}

// LineItem is owned by exactly one entity. Amounts are derived, never supplied.
type LineItem struct {
	LineNumber  int             `json:"lineNumber"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Amount      decimal.Decimal `json:"amount"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	Total       decimal.Decimal `json:"total"`
}

// NewLineItems validates inputs and numbers them contiguously from 1.
func NewLineItems(inputs []LineItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, Invalid("items", "at least one line item is required")
	}

	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(in.Description) == "" {
			return nil, Invalid(field, "description is required")
		}
		if !in.Quantity.IsPositive() {
			return nil, Invalid(field, "quantity must be positive")
		}
		if in.UnitPrice.IsNegative() {
			return nil, Invalid(field, "unit price must not be negative")
		}
		if in.TaxRate.IsNegative() {
			return nil, Invalid(field, "tax rate must not be negative")
		}

		unit := in.Unit
		if unit == "" {
			unit = "pcs"
		}

		amount := in.Quantity.Mul(in.UnitPrice).Round(2)
		tax := amount.Mul(in.TaxRate).Div(hundred).Round(2)
		items = append(items, LineItem{
			LineNumber:  i + 1,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			Unit:        unit,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRate,
			Amount:      amount,
			TaxAmount:   tax,
			Total:       amount.Add(tax),
		})
	}
	return items, nil
}

// Totals sums the subtotal, tax and grand total of items.
func Totals(items []LineItem) (subtotal, tax, total decimal.Decimal) {
	for _, it := range items {
		subtotal = subtotal.Add(it.Amount)
		tax = tax.Add(it.TaxAmount)
		total = total.Add(it.Total)
	}
	return subtotal, tax, total
}
