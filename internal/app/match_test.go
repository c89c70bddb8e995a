package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

// completedReceipt creates a PO, receives qty of line 1 and completes the
// inspection.
func (h *harness) completedReceipt(t *testing.T, qty string) (domain.PurchaseOrder, domain.GoodsReceipt) {
	t.Helper()
	ctx := context.Background()
	po := h.purchaseOrder(t)
	gr, err := h.svc.GoodsReceipts.Create(ctx, receiver, receive(po.ID, qty))
	require.NoError(t, err)
	_, err = h.svc.GoodsReceipts.StartInspection(ctx, receiver, gr.ID)
	require.NoError(t, err)
	gr, err = h.svc.GoodsReceipts.Complete(ctx, receiver, gr.ID)
	require.NoError(t, err)
	return po, gr
}

func invoice(poID, grID, qty, price string) app.CreateMatchInput {
	return app.CreateMatchInput{
		PurchaseOrderID: poID,
		GoodsReceiptID:  grID,
		InvoiceNumber:   "INV-1001",
		Lines:           []domain.InvoiceLine{{LineNumber: 1, Quantity: dec(qty), UnitPrice: dec(price)}},
	}
}

func TestMatchCreate_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		qty      string
		price    string
		want     domain.MatchStatus
		variance string
	}{
		{"exact", "10", "25.00", domain.MatchMatched, "0"},
		{"price within tolerance", "10", "25.40", domain.MatchMatched, "1.6"},
		{"price over tolerance", "10", "26.00", domain.MatchDiscrepancy, "4"},
		{"short invoice", "9", "25.00", domain.MatchDiscrepancy, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			po, gr := h.completedReceipt(t, "10")

			m, err := h.svc.Matches.Create(context.Background(), clerk, invoice(po.ID, gr.ID, tt.qty, tt.price))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Status)
			assert.Equal(t, "TWM/2026/03/0001", m.Number)
			require.Len(t, m.Lines, 1)
			assert.True(t, m.Lines[0].PriceVariancePct.Equal(dec(tt.variance)), "variance = %s", m.Lines[0].PriceVariancePct)
			assert.True(t, m.Tolerance.Equal(domain.DefaultPriceTolerance))
		})
	}
}

func TestMatchCreate_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	po, gr := h.completedReceipt(t, "10")

	t.Run("permission", func(t *testing.T) {
		_, err := h.svc.Matches.Create(ctx, buyer, invoice(po.ID, gr.ID, "10", "25"))
		var aerr *domain.AuthorizationError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, domain.PermReconcile, aerr.Missing)
	})

	t.Run("receipt of another order", func(t *testing.T) {
		other := h.purchaseOrder(t)
		_, err := h.svc.Matches.Create(ctx, clerk, invoice(other.ID, gr.ID, "10", "25"))
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "goodsReceiptId", verr.Field)
	})

	t.Run("receipt not completed", func(t *testing.T) {
		pending, err := h.svc.GoodsReceipts.Create(ctx, receiver, receive(h.purchaseOrder(t).ID, "1"))
		require.NoError(t, err)
		_, err = h.svc.Matches.Create(ctx, clerk, invoice(pending.PurchaseOrderID, pending.ID, "1", "25"))
		var terr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Contains(t, terr.Reason, "PENDING")
	})

	t.Run("unknown invoice line", func(t *testing.T) {
		in := invoice(po.ID, gr.ID, "10", "25")
		in.Lines = append(in.Lines, domain.InvoiceLine{LineNumber: 4, Quantity: dec("1"), UnitPrice: dec("1")})
		_, err := h.svc.Matches.Create(ctx, clerk, in)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	assert.Zero(t, h.store.Len(domain.CollectionMatches))
}

func TestMatchApprove_Discrepancy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	po, gr := h.completedReceipt(t, "10")

	m, err := h.svc.Matches.Create(ctx, clerk, invoice(po.ID, gr.ID, "10", "30"))
	require.NoError(t, err)
	require.Equal(t, domain.MatchDiscrepancy, m.Status)
	require.Len(t, tasksOf(h.openTasks(t, buyer.ID), domain.TaskMatchApproval), 1)

	_, err = h.svc.Matches.Approve(ctx, approver, m.ID, "")
	var aerr *domain.AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.PermOverrideDiscrepancy, aerr.Missing)

	overrider := approver
	overrider.Permissions |= domain.PermOverrideDiscrepancy
	approved, err := h.svc.Matches.Approve(ctx, overrider, m.ID, "vendor surcharge agreed")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchApproved, approved.Status)
	assert.Equal(t, overrider.ID, approved.DecidedBy)
	assert.Equal(t, "vendor surcharge agreed", approved.DecisionNote)

	assert.Empty(t, tasksOf(h.openTasks(t, buyer.ID), domain.TaskMatchApproval))

	_, err = h.svc.Matches.Reject(ctx, overrider, m.ID, "")
	var terr *domain.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Cannot reject match with status: APPROVED", terr.Reason)
}

func TestMatchApprove_SelfApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	po, gr := h.completedReceipt(t, "10")

	superClerk := clerk
	superClerk.Permissions = ^domain.Permission(0)
	m, err := h.svc.Matches.Create(ctx, superClerk, invoice(po.ID, gr.ID, "10", "25"))
	require.NoError(t, err)

	_, err = h.svc.Matches.Approve(ctx, superClerk, m.ID, "")
	var aerr *domain.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	_, err = h.svc.Matches.Reject(ctx, superClerk, m.ID, "")
	require.ErrorAs(t, err, &aerr)

	rejected, err := h.svc.Matches.Reject(ctx, approver, m.ID, "duplicate invoice")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchRejected, rejected.Status)
}
