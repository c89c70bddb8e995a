package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

// LineItemBody is one requested line. Quantities and prices are decimal strings.
type LineItemBody struct {
	Description string          `json:"description" doc:"What is being bought"`
	Quantity    decimal.Decimal `json:"quantity" doc:"Ordered quantity"`
	Unit        string          `json:"unit,omitempty" doc:"Unit of measure, pcs when empty"`
	UnitPrice   decimal.Decimal `json:"unitPrice" doc:"Net price per unit"`
	TaxRate     decimal.Decimal `json:"taxRate,omitempty" doc:"Tax rate in percent"`
}

func lineItems(body []LineItemBody) []domain.LineItemInput {
	out := make([]domain.LineItemInput, len(body))
	for i, b := range body {
		out[i] = domain.LineItemInput{
			Description: b.Description,
			Quantity:    b.Quantity,
			Unit:        b.Unit,
			UnitPrice:   b.UnitPrice,
			TaxRate:     b.TaxRate,
		}
	}
	return out
}

// --- Purchase orders ---

type CreatePurchaseOrderInput struct {
	ActorHeaders
	Body struct {
		VendorID   string         `json:"vendorId" doc:"Vendor ID"`
		VendorName string         `json:"vendorName,omitempty" doc:"Vendor display name"`
		Currency   string         `json:"currency,omitempty" doc:"ISO currency code, EUR when empty"`
		Items      []LineItemBody `json:"items" doc:"Ordered lines"`
	}
}

func (h *Handler) registerPurchaseOrders(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-purchase-order",
		Method:        http.MethodPost,
		Path:          basePath + "/purchase-orders",
		Summary:       "Create an approved purchase order",
		Tags:          []string{"Purchase orders"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreatePurchaseOrderInput) (*Output[domain.PurchaseOrder], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		po, err := h.svc.PurchaseOrders.Create(ctx, actor, app.CreatePurchaseOrderInput{
			VendorID:   in.Body.VendorID,
			VendorName: in.Body.VendorName,
			Currency:   in.Body.Currency,
			Items:      lineItems(in.Body.Items),
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.PurchaseOrder]{Body: po}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-purchase-order",
		Path:        basePath + "/purchase-orders/{id}",
		Summary:     "Get a purchase order by ID",
		Tags:        []string{"Purchase orders"},
	}, h.svc.PurchaseOrders.Get)

	transition(h, api, huma.Operation{
		OperationID: "cancel-purchase-order",
		Path:        basePath + "/purchase-orders/{id}/cancel",
		Summary:     "Cancel a purchase order before any delivery",
		Tags:        []string{"Purchase orders"},
	}, h.svc.PurchaseOrders.Cancel)
}

// --- RFQs ---

type CreateRFQInput struct {
	ActorHeaders
	Body struct {
		Title            string         `json:"title" doc:"Short title"`
		Description      string         `json:"description,omitempty" doc:"Requirements"`
		InvitedVendorIDs []string       `json:"invitedVendorIds" doc:"Vendors asked to quote"`
		Deadline         *time.Time     `json:"deadline,omitempty" doc:"Offer deadline"`
		Items            []LineItemBody `json:"items" doc:"Requested lines"`
	}
}

func (h *Handler) registerRFQs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rfq",
		Method:        http.MethodPost,
		Path:          basePath + "/rfqs",
		Summary:       "Create a draft RFQ",
		Tags:          []string{"RFQs"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreateRFQInput) (*Output[domain.RFQ], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		rfq, err := h.svc.RFQs.Create(ctx, actor, app.CreateRFQInput{
			Title:            in.Body.Title,
			Description:      in.Body.Description,
			InvitedVendorIDs: in.Body.InvitedVendorIDs,
			Deadline:         in.Body.Deadline,
			Items:            lineItems(in.Body.Items),
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.RFQ]{Body: rfq}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-rfq",
		Path:        basePath + "/rfqs/{id}",
		Summary:     "Get an RFQ by ID",
		Tags:        []string{"RFQs"},
	}, h.svc.RFQs.Get)

	transition(h, api, huma.Operation{
		OperationID: "issue-rfq",
		Path:        basePath + "/rfqs/{id}/issue",
		Summary:     "Issue an RFQ to its vendors",
		Tags:        []string{"RFQs"},
	}, h.svc.RFQs.Issue)

	transition(h, api, huma.Operation{
		OperationID: "start-rfq-evaluation",
		Path:        basePath + "/rfqs/{id}/evaluation",
		Summary:     "Start evaluating the offers of an RFQ",
		Tags:        []string{"RFQs"},
	}, h.svc.RFQs.StartEvaluation)

	transition(h, api, huma.Operation{
		OperationID: "cancel-rfq",
		Path:        basePath + "/rfqs/{id}/cancel",
		Summary:     "Cancel an RFQ and withdraw its open offers",
		Tags:        []string{"RFQs"},
	}, h.svc.RFQs.Cancel)

	get(h, api, huma.Operation{
		OperationID: "list-rfq-offers",
		Path:        basePath + "/rfqs/{id}/offers",
		Summary:     "List the offers of an RFQ",
		Tags:        []string{"RFQs"},
	}, h.svc.RFQs.ListOffers)
}

// --- Offers ---

type CreateOfferInput struct {
	ActorHeaders
	RFQID string `path:"id" doc:"RFQ ID"`
	Body  struct {
		VendorID   string         `json:"vendorId" doc:"Invited vendor ID"`
		VendorName string         `json:"vendorName,omitempty" doc:"Vendor display name"`
		Currency   string         `json:"currency,omitempty" doc:"ISO currency code, EUR when empty"`
		Items      []LineItemBody `json:"items" doc:"Offered lines"`
	}
}

// OfferView is an offer together with its lines.
type OfferView struct {
	domain.Offer
	Items []domain.OfferItem `json:"items"`
}

type EvaluateOfferInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Offer ID"`
	Body struct {
		Score int    `json:"score" doc:"Score from 0 to 100"`
		Notes string `json:"notes,omitempty" doc:"Evaluation notes"`
	}
}

type RejectOfferInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Offer ID"`
	Body struct {
		Reason string `json:"reason,omitempty" doc:"Why the offer is rejected"`
	} `required:"false"`
}

func (h *Handler) registerOffers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-offer",
		Method:        http.MethodPost,
		Path:          basePath + "/rfqs/{id}/offers",
		Summary:       "Record a vendor offer against an RFQ",
		Tags:          []string{"Offers"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreateOfferInput) (*Output[domain.Offer], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		offer, err := h.svc.Offers.Create(ctx, actor, app.CreateOfferInput{
			RFQID:      in.RFQID,
			VendorID:   in.Body.VendorID,
			VendorName: in.Body.VendorName,
			Currency:   in.Body.Currency,
			Items:      lineItems(in.Body.Items),
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.Offer]{Body: offer}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-offer",
		Path:        basePath + "/offers/{id}",
		Summary:     "Get an offer and its lines",
		Tags:        []string{"Offers"},
	}, h.offerView)

	transition(h, api, huma.Operation{
		OperationID: "review-offer",
		Path:        basePath + "/offers/{id}/review",
		Summary:     "Start reviewing an offer",
		Tags:        []string{"Offers"},
	}, h.svc.Offers.StartReview)

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-offer",
		Method:      http.MethodPost,
		Path:        basePath + "/offers/{id}/evaluate",
		Summary:     "Score an offer",
		Tags:        []string{"Offers"},
	}, func(ctx context.Context, in *EvaluateOfferInput) (*Output[domain.Offer], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		offer, err := h.svc.Offers.Evaluate(ctx, actor, in.ID, in.Body.Score, in.Body.Notes)
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.Offer]{Body: offer}, nil
	})

	transition(h, api, huma.Operation{
		OperationID: "select-offer",
		Path:        basePath + "/offers/{id}/select",
		Summary:     "Select the winning offer and complete its RFQ",
		Tags:        []string{"Offers"},
	}, h.svc.Offers.Select)

	huma.Register(api, huma.Operation{
		OperationID: "reject-offer",
		Method:      http.MethodPost,
		Path:        basePath + "/offers/{id}/reject",
		Summary:     "Reject an offer",
		Tags:        []string{"Offers"},
	}, func(ctx context.Context, in *RejectOfferInput) (*Output[domain.Offer], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		offer, err := h.svc.Offers.Reject(ctx, actor, in.ID, in.Body.Reason)
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.Offer]{Body: offer}, nil
	})

	transition(h, api, huma.Operation{
		OperationID: "withdraw-offer",
		Path:        basePath + "/offers/{id}/withdraw",
		Summary:     "Withdraw an offer on the vendor's behalf",
		Tags:        []string{"Offers"},
	}, h.svc.Offers.Withdraw)
}

func (h *Handler) offerView(ctx context.Context, id string) (OfferView, error) {
	offer, err := h.svc.Offers.Get(ctx, id)
	if err != nil {
		return OfferView{}, err
	}
	items, err := h.svc.Offers.ListItems(ctx, []string{id})
	if err != nil {
		return OfferView{}, err
	}
	return OfferView{Offer: offer, Items: items}, nil
}

// --- Goods receipts ---

type ReceiptLineBody struct {
	LineNumber       int             `json:"lineNumber" doc:"Purchase order line number"`
	ReceivedQuantity decimal.Decimal `json:"receivedQuantity" doc:"Quantity delivered"`
	Condition        string          `json:"condition,omitempty" doc:"Condition on arrival"`
}

type CreateGoodsReceiptInput struct {
	ActorHeaders
	Body struct {
		PurchaseOrderID string            `json:"purchaseOrderId" doc:"Purchase order being delivered"`
		Lines           []ReceiptLineBody `json:"lines" doc:"Delivered lines"`
		Notes           string            `json:"notes,omitempty" doc:"Free-form notes"`
	}
}

// GoodsReceiptView is a goods receipt together with its lines.
type GoodsReceiptView struct {
	domain.GoodsReceipt
	Items []domain.GoodsReceiptItem `json:"items"`
}

func (h *Handler) registerGoodsReceipts(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goods-receipt",
		Method:        http.MethodPost,
		Path:          basePath + "/goods-receipts",
		Summary:       "Record a delivery against a purchase order",
		Description:   "Repeating the call for the same purchase order, user and day returns the receipt already recorded.",
		Tags:          []string{"Goods receipts"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreateGoodsReceiptInput) (*Output[domain.GoodsReceipt], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		lines := make([]app.ReceiptLineInput, len(in.Body.Lines))
		for i, l := range in.Body.Lines {
			lines[i] = app.ReceiptLineInput{LineNumber: l.LineNumber, ReceivedQuantity: l.ReceivedQuantity, Condition: l.Condition}
		}
		gr, err := h.svc.GoodsReceipts.Create(ctx, actor, app.CreateGoodsReceiptInput{
			PurchaseOrderID: in.Body.PurchaseOrderID,
			Lines:           lines,
			Notes:           in.Body.Notes,
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.GoodsReceipt]{Body: gr}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-goods-receipt",
		Path:        basePath + "/goods-receipts/{id}",
		Summary:     "Get a goods receipt and its lines",
		Tags:        []string{"Goods receipts"},
	}, h.goodsReceiptView)

	transition(h, api, huma.Operation{
		OperationID: "start-goods-receipt-inspection",
		Path:        basePath + "/goods-receipts/{id}/start",
		Summary:     "Start inspecting a delivery",
		Tags:        []string{"Goods receipts"},
	}, h.svc.GoodsReceipts.StartInspection)

	transition(h, api, huma.Operation{
		OperationID: "complete-goods-receipt",
		Path:        basePath + "/goods-receipts/{id}/complete",
		Summary:     "Complete the inspection of a delivery",
		Tags:        []string{"Goods receipts"},
	}, h.svc.GoodsReceipts.Complete)

	transition(h, api, huma.Operation{
		OperationID: "cancel-goods-receipt",
		Path:        basePath + "/goods-receipts/{id}/cancel",
		Summary:     "Cancel a goods receipt",
		Tags:        []string{"Goods receipts"},
	}, h.svc.GoodsReceipts.Cancel)
}

func (h *Handler) goodsReceiptView(ctx context.Context, id string) (GoodsReceiptView, error) {
	gr, err := h.svc.GoodsReceipts.Get(ctx, id)
	if err != nil {
		return GoodsReceiptView{}, err
	}
	items, err := h.svc.GoodsReceipts.ListItems(ctx, id)
	if err != nil {
		return GoodsReceiptView{}, err
	}
	return GoodsReceiptView{GoodsReceipt: gr, Items: items}, nil
}

// --- Three-way matches ---

type CreateMatchInput struct {
	ActorHeaders
	Body struct {
		PurchaseOrderID string               `json:"purchaseOrderId" doc:"Purchase order"`
		GoodsReceiptID  string               `json:"goodsReceiptId" doc:"Completed goods receipt of the purchase order"`
		InvoiceNumber   string               `json:"invoiceNumber" doc:"Vendor invoice number"`
		Lines           []domain.InvoiceLine `json:"lines" doc:"Invoiced lines"`
		Tolerance       *decimal.Decimal     `json:"tolerance,omitempty" doc:"Allowed unit price variance in percent, 2 when omitted"`
	}
}

type DecideMatchInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Match ID"`
	Body struct {
		Note string `json:"note,omitempty" doc:"Decision note"`
	} `required:"false"`
}

func (h *Handler) registerMatches(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-match",
		Method:        http.MethodPost,
		Path:          basePath + "/matches",
		Summary:       "Reconcile an invoice against a purchase order and its receipt",
		Tags:          []string{"Three-way matches"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreateMatchInput) (*Output[domain.ThreeWayMatch], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		m, err := h.svc.Matches.Create(ctx, actor, app.CreateMatchInput{
			PurchaseOrderID: in.Body.PurchaseOrderID,
			GoodsReceiptID:  in.Body.GoodsReceiptID,
			InvoiceNumber:   in.Body.InvoiceNumber,
			Lines:           in.Body.Lines,
			Tolerance:       in.Body.Tolerance,
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.ThreeWayMatch]{Body: m}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-match",
		Path:        basePath + "/matches/{id}",
		Summary:     "Get a three-way match by ID",
		Tags:        []string{"Three-way matches"},
	}, h.svc.Matches.Get)

	decide := func(id, path, summary string, fn func(context.Context, domain.Actor, string, string) (domain.ThreeWayMatch, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        basePath + path,
			Summary:     summary,
			Tags:        []string{"Three-way matches"},
		}, func(ctx context.Context, in *DecideMatchInput) (*Output[domain.ThreeWayMatch], error) {
			actor, err := in.actor()
			if err != nil {
				return nil, err
			}
			m, err := fn(ctx, actor, in.ID, in.Body.Note)
			if err != nil {
				return nil, h.toHumaError(err)
			}
			return &Output[domain.ThreeWayMatch]{Body: m}, nil
		})
	}
	decide("approve-match", "/matches/{id}/approve", "Approve a match for payment", h.svc.Matches.Approve)
	decide("reject-match", "/matches/{id}/reject", "Reject a match", h.svc.Matches.Reject)
}
