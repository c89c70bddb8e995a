package app

// Services bundles the workflow services that share one set of Deps.
type Services struct {
	PurchaseOrders *PurchaseOrderService
	RFQs           *RFQService
	Offers         *OfferService
	GoodsReceipts  *GoodsReceiptService
	Proposals      *ProposalService
	Matches        *MatchService
	Tasks          *TaskQueries
}

// NewServices wires every workflow service to deps and the task inbox to tasks.
func NewServices(deps Deps, tasks *TaskStore) *Services {
	return &Services{
		PurchaseOrders: NewPurchaseOrderService(deps),
		RFQs:           NewRFQService(deps),
		Offers:         NewOfferService(deps),
		GoodsReceipts:  NewGoodsReceiptService(deps),
		Proposals:      NewProposalService(deps),
		Matches:        NewMatchService(deps),
		Tasks:          NewTaskQueries(tasks),
	}
}
