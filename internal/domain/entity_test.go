package domain_test

import (
	"testing"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

func TestPurchaseOrder_DeliveryStatus(t *testing.T) {
	po := domain.PurchaseOrder{Items: []domain.PurchaseOrderItem{
		{LineItem: domain.LineItem{LineNumber: 1, Quantity: dec("10")}},
		{LineItem: domain.LineItem{LineNumber: 2, Quantity: dec("5")}},
	}}
	if got := po.DeliveryStatus(); got != domain.POApproved {
		t.Errorf("nothing received: %s", got)
	}

	item, ok := po.Item(1)
	if !ok {
		t.Fatal("line 1 missing")
	}
	item.ReceivedQuantity = dec("10")
	if got := po.DeliveryStatus(); got != domain.POPartiallyDelivered {
		t.Errorf("partial: %s", got)
	}
	if !po.Items[1].RemainingQuantity().Equal(dec("5")) {
		t.Errorf("remaining = %s", po.Items[1].RemainingQuantity())
	}

	po.Items[1].ReceivedQuantity = dec("5")
	if got := po.DeliveryStatus(); got != domain.PODelivered {
		t.Errorf("complete: %s", got)
	}

	if _, ok := po.Item(3); ok {
		t.Error("line 3 should not exist")
	}
}

func TestCompareLine(t *testing.T) {
	tol := domain.DefaultPriceTolerance
	cases := []struct {
		name    string
		line    domain.MatchLine
		matched bool
		pct     string
	}{
		{"exact", domain.MatchLine{ReceivedQuantity: dec("5"), InvoicedQuantity: dec("5"), OrderedUnitPrice: dec("10"), InvoicedUnitPrice: dec("10")}, true, "0"},
		{"within tolerance", domain.MatchLine{ReceivedQuantity: dec("5"), InvoicedQuantity: dec("5"), OrderedUnitPrice: dec("100"), InvoicedUnitPrice: dec("102")}, true, "2"},
		{"price over", domain.MatchLine{ReceivedQuantity: dec("5"), InvoicedQuantity: dec("5"), OrderedUnitPrice: dec("100"), InvoicedUnitPrice: dec("97.5")}, false, "-2.5"},
		{"quantity off", domain.MatchLine{ReceivedQuantity: dec("4"), InvoicedQuantity: dec("5"), OrderedUnitPrice: dec("10"), InvoicedUnitPrice: dec("10")}, false, "0"},
		{"free line billed", domain.MatchLine{ReceivedQuantity: dec("1"), InvoicedQuantity: dec("1"), OrderedUnitPrice: dec("0"), InvoicedUnitPrice: dec("3")}, false, "100"},
	}
	for _, tc := range cases {
		got := domain.CompareLine(tc.line, tol)
		if got.Matched != tc.matched {
			t.Errorf("%s: Matched = %v, want %v", tc.name, got.Matched, tc.matched)
		}
		if !got.PriceVariancePct.Equal(dec(tc.pct)) {
			t.Errorf("%s: PriceVariancePct = %s, want %s", tc.name, got.PriceVariancePct, tc.pct)
		}
	}
}

func TestProposalPatch_Apply(t *testing.T) {
	p := domain.Proposal{Title: "Old", ClientName: "Acme", Currency: "EUR"}

	patch := domain.ProposalPatch{
		Title: domain.Some("New"),
		Items: domain.Some([]domain.LineItemInput{{Description: "Consulting", Quantity: dec("2"), UnitPrice: dec("500")}}),
	}
	if err := patch.Apply(&p); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if p.Title != "New" || p.ClientName != "Acme" || p.Currency != "EUR" {
		t.Errorf("unexpected fields: %+v", p)
	}
	if !p.Total.Equal(dec("1000")) || len(p.Items) != 1 {
		t.Errorf("items not applied: total %s", p.Total)
	}

	bad := domain.ProposalPatch{ClientName: domain.Some("")}
	if err := bad.Apply(&p); err == nil {
		t.Error("empty client name should fail")
	}
	if p.ClientName != "Acme" {
		t.Error("failed patch must not change the proposal")
	}
}

func TestStamps(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	s := domain.NewStamps("u-1", created)
	if s.CreatedAt.Location() != time.UTC || s.CreatedAt != s.UpdatedAt || s.CreatedBy != "u-1" {
		t.Errorf("NewStamps = %+v", s)
	}
	s.Touch("u-2", created.Add(time.Hour))
	if s.UpdatedBy != "u-2" || !s.UpdatedAt.Equal(created.Add(time.Hour)) || s.CreatedBy != "u-1" {
		t.Errorf("Touch = %+v", s)
	}
}
