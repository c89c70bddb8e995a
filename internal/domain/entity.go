package domain

import "time"

// Stamps records who created and last changed an entity, and when.
type Stamps struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// NewStamps stamps a freshly created entity.
func NewStamps(actorID string, now time.Time) Stamps {
	now = now.UTC()
	return Stamps{CreatedAt: now, CreatedBy: actorID, UpdatedAt: now, UpdatedBy: actorID}
}

// Touch records an update.
func (s *Stamps) Touch(actorID string, now time.Time) {
	s.UpdatedAt = now.UTC()
	s.UpdatedBy = actorID
}

// Collection names in the document store.
const (
	CollectionRFQs              = "rfqs"
	CollectionOffers            = "offers"
	CollectionOfferItems        = "offerItems"
	CollectionPurchaseOrders    = "purchaseOrders"
	CollectionGoodsReceipts     = "goodsReceipts"
	CollectionGoodsReceiptItems = "goodsReceiptItems"
	CollectionProposals         = "proposals"
	CollectionMatches           = "threeWayMatches"
	CollectionTasks             = "tasks"
	CollectionAuditLogs         = "auditLogs"
	CollectionCounters          = "counters"
	CollectionIdempotencyKeys   = "idempotencyKeys"
)
