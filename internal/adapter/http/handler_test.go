package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/adapter/fsm"
	adapter "github.com/neomorfeo/procura/internal/adapter/http"
	"github.com/neomorfeo/procura/internal/adapter/sqlite"
	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

const (
	buyer    = "u-buyer|Bea Buyer|MANAGE_PURCHASE_ORDERS|MANAGE_RFQS|RECORD_OFFERS|EVALUATE_OFFERS|SELECT_OFFERS"
	receiver = "u-recv|Rui Receiver|RECEIVE_GOODS"
	author   = "u-author|Ada Author|MANAGE_PROPOSALS|APPROVE_PROPOSALS"
	reviewer = "u-review|Rex Reviewer|APPROVE_PROPOSALS"
	clerk    = "u-clerk|Cleo Clerk|RECONCILE"
	nobody   = "u-nobody|No Body|"
)

// newTestServer creates a full-stack httptest.Server with SQLite in-memory
// and effects executed inline.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	tasks := app.NewTaskStore(store, time.Now)
	deps := app.Deps{
		Store: store,
		Machines: app.Machines{
			RFQ:           fsm.New(domain.RFQTransitions),
			Offer:         fsm.New(domain.OfferTransitions),
			PurchaseOrder: fsm.New(domain.PurchaseOrderTransitions),
			GoodsReceipt:  fsm.New(domain.GoodsReceiptTransitions),
			Proposal:      fsm.New(domain.ProposalTransitions),
			Match:         fsm.New(domain.MatchTransitions),
		},
		Effects:     app.NewEffectDispatcher(nil, app.NewEffectExecutor(app.NewAuditLog(store), tasks), logger),
		Idempotency: app.NewIdempotency(store, time.Now, time.Minute, logger),
		Clock:       time.Now,
		Logger:      logger,
	}

	router := adapter.NewRouter(app.NewServices(deps, tasks), logger, adapter.RouterConfig{
		ServiceName: "procura-test",
		Version:     "0.0.1",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

// doRequest performs an HTTP request with context (avoids noctx linter).
// actor is "id|name|PERM|PERM...".
func doRequest(t *testing.T, method, url, actor, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		parts := strings.SplitN(actor, "|", 3)
		req.Header.Set("X-Actor-ID", parts[0])
		req.Header.Set("X-Actor-Name", parts[1])
		req.Header.Set("X-Actor-Permissions", parts[2])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}

	return resp
}

// call performs a request, checks the status, and decodes the body into out.
func call(t *testing.T, srv *httptest.Server, method, path, actor, body string, wantStatus int, out any) {
	t.Helper()

	resp := doRequest(t, method, srv.URL+"/api/v1"+path, actor, body)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d (body: %s)", method, path, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

type problem struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Errors []struct {
		Message  string `json:"message"`
		Location string `json:"location"`
	} `json:"errors"`
}

const itemsJSON = `[{"description":"Steel bolts","quantity":"10","unit":"pcs","unitPrice":"25.00","taxRate":"21"},
	{"description":"Washers","quantity":"4","unitPrice":"2.50"}]`

func mustCreatePurchaseOrder(t *testing.T, srv *httptest.Server) domain.PurchaseOrder {
	t.Helper()

	var po domain.PurchaseOrder
	body := fmt.Sprintf(`{"vendorId":"v-1","vendorName":"Bolt Co","items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/purchase-orders", buyer, body, http.StatusCreated, &po)
	return po
}

func mustCreateIssuedRFQ(t *testing.T, srv *httptest.Server, vendors ...string) domain.RFQ {
	t.Helper()

	ids, _ := json.Marshal(vendors)
	var rfq domain.RFQ
	body := fmt.Sprintf(`{"title":"Bolts for line 3","invitedVendorIds":%s,"items":%s}`, ids, itemsJSON)
	call(t, srv, http.MethodPost, "/rfqs", buyer, body, http.StatusCreated, &rfq)
	call(t, srv, http.MethodPost, "/rfqs/"+rfq.ID+"/issue", buyer, "", http.StatusOK, &rfq)
	return rfq
}

func mustCreateOffer(t *testing.T, srv *httptest.Server, rfqID, vendor string) domain.Offer {
	t.Helper()

	var offer domain.Offer
	body := fmt.Sprintf(`{"vendorId":%q,"items":%s}`, vendor, itemsJSON)
	call(t, srv, http.MethodPost, "/rfqs/"+rfqID+"/offers", buyer, body, http.StatusCreated, &offer)
	return offer
}

// --- Purchase orders ---

func TestPurchaseOrder_CreateAndGet(t *testing.T) {
	srv := newTestServer(t)
	po := mustCreatePurchaseOrder(t, srv)

	if po.Status != domain.POApproved {
		t.Errorf("Status = %q, want %q", po.Status, domain.POApproved)
	}
	if !strings.HasPrefix(po.Number, "PO/") {
		t.Errorf("Number = %q, want PO/ prefix", po.Number)
	}
	if po.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", po.Currency)
	}
	// 10 x 25.00 + 21% tax, plus 4 x 2.50 untaxed.
	if want := "312.5"; po.Total.String() != want {
		t.Errorf("Total = %s, want %s", po.Total, want)
	}

	var got domain.PurchaseOrder
	call(t, srv, http.MethodGet, "/purchase-orders/"+po.ID, "", "", http.StatusOK, &got)
	if got.Number != po.Number {
		t.Errorf("Number = %q, want %q", got.Number, po.Number)
	}
}

func TestPurchaseOrder_GetNotFound(t *testing.T) {
	srv := newTestServer(t)

	var p problem
	call(t, srv, http.MethodGet, "/purchase-orders/nope", "", "", http.StatusNotFound, &p)
	if !strings.Contains(p.Detail, "nope") {
		t.Errorf("detail = %q, want it to name the id", p.Detail)
	}
}

func TestPurchaseOrder_CreateForbidden(t *testing.T) {
	srv := newTestServer(t)

	var p problem
	body := fmt.Sprintf(`{"vendorId":"v-1","items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/purchase-orders", nobody, body, http.StatusForbidden, &p)
	if !strings.Contains(p.Detail, "MANAGE_PURCHASE_ORDERS") {
		t.Errorf("detail = %q, want the missing permission", p.Detail)
	}
}

func TestPurchaseOrder_CreateInvalid(t *testing.T) {
	srv := newTestServer(t)

	var p problem
	call(t, srv, http.MethodPost, "/purchase-orders", buyer, `{"vendorId":"v-1","items":[]}`, http.StatusBadRequest, &p)
	if len(p.Errors) != 1 || p.Errors[0].Location != "items" {
		t.Errorf("errors = %+v, want one on items", p.Errors)
	}
}

func TestActorHeaders_InvalidPermissions(t *testing.T) {
	srv := newTestServer(t)

	body := fmt.Sprintf(`{"vendorId":"v-1","items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/purchase-orders", "u-1|Someone|NOT_A_PERMISSION", body, http.StatusBadRequest, nil)
}

// --- RFQs and offers ---

func TestRFQ_OfferLifecycle(t *testing.T) {
	srv := newTestServer(t)
	rfq := mustCreateIssuedRFQ(t, srv, "v-1", "v-2")

	if rfq.Status != domain.RFQIssued {
		t.Fatalf("Status = %q, want %q", rfq.Status, domain.RFQIssued)
	}

	first := mustCreateOffer(t, srv, rfq.ID, "v-1")
	call(t, srv, http.MethodGet, "/rfqs/"+rfq.ID, "", "", http.StatusOK, &rfq)
	if rfq.Status != domain.RFQOffersReceived || rfq.OffersReceived != 1 {
		t.Errorf("RFQ = %s with %d offers, want OFFERS_RECEIVED with 1", rfq.Status, rfq.OffersReceived)
	}

	mustCreateOffer(t, srv, rfq.ID, "v-2")

	// Every invited vendor answered: the creator gets a task.
	var tasks []domain.Task
	call(t, srv, http.MethodGet, "/tasks?open=true", buyer, "", http.StatusOK, &tasks)
	if len(tasks) != 1 || tasks[0].Category != domain.TaskRFQReadyForEvaluation {
		t.Fatalf("tasks = %+v, want one RFQ_READY_FOR_EVALUATION", tasks)
	}

	var offers []domain.Offer
	call(t, srv, http.MethodGet, "/rfqs/"+rfq.ID+"/offers", "", "", http.StatusOK, &offers)
	if len(offers) != 2 {
		t.Fatalf("got %d offers, want 2", len(offers))
	}

	var view adapter.OfferView
	call(t, srv, http.MethodGet, "/offers/"+first.ID, "", "", http.StatusOK, &view)
	if len(view.Items) != 2 || view.Items[0].LineNumber != 1 {
		t.Errorf("items = %+v, want lines 1 and 2", view.Items)
	}

	var selected domain.Offer
	call(t, srv, http.MethodPost, "/offers/"+first.ID+"/select", buyer, "", http.StatusOK, &selected)
	if selected.Status != domain.OfferSelected {
		t.Errorf("Status = %q, want %q", selected.Status, domain.OfferSelected)
	}

	call(t, srv, http.MethodGet, "/rfqs/"+rfq.ID, "", "", http.StatusOK, &rfq)
	if rfq.Status != domain.RFQCompleted || rfq.SelectedOfferID != first.ID {
		t.Errorf("RFQ = %s selecting %q, want COMPLETED selecting %q", rfq.Status, rfq.SelectedOfferID, first.ID)
	}

	call(t, srv, http.MethodGet, "/tasks?open=true", buyer, "", http.StatusOK, &tasks)
	if len(tasks) != 0 {
		t.Errorf("got %d open tasks after selection, want 0", len(tasks))
	}
}

func TestOffer_UninvitedVendor(t *testing.T) {
	srv := newTestServer(t)
	rfq := mustCreateIssuedRFQ(t, srv, "v-1")

	body := fmt.Sprintf(`{"vendorId":"v-9","items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/rfqs/"+rfq.ID+"/offers", buyer, body, http.StatusBadRequest, nil)
}

func TestOffer_DraftRFQ(t *testing.T) {
	srv := newTestServer(t)

	var rfq domain.RFQ
	body := fmt.Sprintf(`{"title":"Draft","invitedVendorIds":["v-1"],"items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/rfqs", buyer, body, http.StatusCreated, &rfq)

	var p problem
	body = fmt.Sprintf(`{"vendorId":"v-1","items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/rfqs/"+rfq.ID+"/offers", buyer, body, http.StatusUnprocessableEntity, &p)
	if p.Detail != "Cannot receive offers for RFQ with status: DRAFT" {
		t.Errorf("detail = %q", p.Detail)
	}
}

func TestOffer_EvaluateAndReject(t *testing.T) {
	srv := newTestServer(t)
	rfq := mustCreateIssuedRFQ(t, srv, "v-1", "v-2")
	offer := mustCreateOffer(t, srv, rfq.ID, "v-1")

	call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/review", buyer, "", http.StatusOK, &offer)
	call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/evaluate", buyer, `{"score":87,"notes":"fast delivery"}`, http.StatusOK, &offer)
	if offer.Status != domain.OfferEvaluated || offer.Score == nil || *offer.Score != 87 {
		t.Fatalf("offer = %s score %v, want EVALUATED with 87", offer.Status, offer.Score)
	}

	call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/reject", buyer, `{"reason":"too expensive"}`, http.StatusOK, &offer)
	if offer.Status != domain.OfferRejected {
		t.Errorf("Status = %q, want %q", offer.Status, domain.OfferRejected)
	}

	call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/select", buyer, "", http.StatusUnprocessableEntity, nil)
}

// --- Goods receipts ---

func TestGoodsReceipt_CreateIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	po := mustCreatePurchaseOrder(t, srv)

	body := fmt.Sprintf(`{"purchaseOrderId":%q,"lines":[{"lineNumber":1,"receivedQuantity":"4"}]}`, po.ID)
	var first, second domain.GoodsReceipt
	call(t, srv, http.MethodPost, "/goods-receipts", receiver, body, http.StatusCreated, &first)
	call(t, srv, http.MethodPost, "/goods-receipts", receiver, body, http.StatusCreated, &second)

	if first.ID != second.ID {
		t.Errorf("repeat call created %q, want %q", second.ID, first.ID)
	}

	call(t, srv, http.MethodGet, "/purchase-orders/"+po.ID, "", "", http.StatusOK, &po)
	if po.Status != domain.POPartiallyDelivered {
		t.Errorf("PO status = %q, want %q", po.Status, domain.POPartiallyDelivered)
	}
	if got := po.Items[0].ReceivedQuantity.String(); got != "4" {
		t.Errorf("received = %s, want 4", got)
	}

	var view adapter.GoodsReceiptView
	call(t, srv, http.MethodGet, "/goods-receipts/"+first.ID, "", "", http.StatusOK, &view)
	if len(view.Items) != 1 || view.Items[0].LineNumber != 1 {
		t.Errorf("items = %+v, want line 1", view.Items)
	}
}

func TestGoodsReceipt_OverDelivery(t *testing.T) {
	srv := newTestServer(t)
	po := mustCreatePurchaseOrder(t, srv)

	var p problem
	body := fmt.Sprintf(`{"purchaseOrderId":%q,"lines":[{"lineNumber":2,"receivedQuantity":"5"}]}`, po.ID)
	call(t, srv, http.MethodPost, "/goods-receipts", receiver, body, http.StatusBadRequest, &p)
	if len(p.Errors) != 1 || p.Errors[0].Message != "Over-delivery not allowed" {
		t.Errorf("errors = %+v, want over-delivery", p.Errors)
	}
}

// --- Three-way matches ---

func TestMatch_Reconcile(t *testing.T) {
	srv := newTestServer(t)
	po := mustCreatePurchaseOrder(t, srv)

	var gr domain.GoodsReceipt
	body := fmt.Sprintf(`{"purchaseOrderId":%q,"lines":[{"lineNumber":1,"receivedQuantity":"10"},{"lineNumber":2,"receivedQuantity":"4"}]}`, po.ID)
	call(t, srv, http.MethodPost, "/goods-receipts", receiver, body, http.StatusCreated, &gr)

	match := fmt.Sprintf(`{"purchaseOrderId":%q,"goodsReceiptId":%q,"invoiceNumber":"INV-1",
		"lines":[{"lineNumber":1,"quantity":"10","unitPrice":"25.00"},{"lineNumber":2,"quantity":"4","unitPrice":"2.50"}]}`, po.ID, gr.ID)

	var p problem
	call(t, srv, http.MethodPost, "/matches", clerk, match, http.StatusUnprocessableEntity, &p)
	if p.Detail != "Cannot reconcile GR with status: PENDING" {
		t.Errorf("detail = %q", p.Detail)
	}

	call(t, srv, http.MethodPost, "/goods-receipts/"+gr.ID+"/start", receiver, "", http.StatusOK, &gr)
	call(t, srv, http.MethodPost, "/goods-receipts/"+gr.ID+"/complete", receiver, "", http.StatusOK, &gr)

	var m domain.ThreeWayMatch
	call(t, srv, http.MethodPost, "/matches", clerk, match, http.StatusCreated, &m)
	if m.Status != domain.MatchMatched {
		t.Errorf("Status = %q, want %q", m.Status, domain.MatchMatched)
	}
	if !strings.HasPrefix(m.Number, "TWM/") {
		t.Errorf("Number = %q, want TWM/ prefix", m.Number)
	}

	call(t, srv, http.MethodPost, "/matches/"+m.ID+"/approve", clerk, "", http.StatusForbidden, nil)
}

// --- Proposals ---

func mustCreateProposal(t *testing.T, srv *httptest.Server) domain.Proposal {
	t.Helper()

	var p domain.Proposal
	body := fmt.Sprintf(`{"title":"Line 3 retrofit","clientName":"Globex","approverIds":["u-review"],"items":%s}`, itemsJSON)
	call(t, srv, http.MethodPost, "/proposals", author, body, http.StatusCreated, &p)
	return p
}

func TestProposal_ApprovalFlow(t *testing.T) {
	srv := newTestServer(t)
	p := mustCreateProposal(t, srv)

	var prob problem
	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/approve", reviewer, "", http.StatusUnprocessableEntity, &prob)
	if prob.Detail != "Cannot approve proposal with status: DRAFT" {
		t.Errorf("detail = %q", prob.Detail)
	}

	call(t, srv, http.MethodPatch, "/proposals/"+p.ID, author, `{"title":"Line 3 retrofit, phase 1"}`, http.StatusOK, &p)
	if p.Title != "Line 3 retrofit, phase 1" || p.ClientName != "Globex" {
		t.Errorf("patched proposal = %q for %q", p.Title, p.ClientName)
	}

	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/submit", author, "", http.StatusOK, &p)

	// The submitter may not approve their own proposal.
	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/approve", author, "", http.StatusForbidden, nil)

	var inbox []domain.Task
	call(t, srv, http.MethodGet, "/tasks?open=true", reviewer, "", http.StatusOK, &inbox)
	if len(inbox) != 1 || inbox[0].Category != domain.TaskProposalApproval {
		t.Fatalf("reviewer inbox = %+v, want one PROPOSAL_APPROVAL", inbox)
	}

	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/approve", reviewer, `{"comment":"ok"}`, http.StatusOK, &p)
	if p.Status != domain.ProposalApproved || len(p.Approvals) != 1 {
		t.Fatalf("proposal = %s with %d approvals, want APPROVED with 1", p.Status, len(p.Approvals))
	}

	call(t, srv, http.MethodPatch, "/proposals/"+p.ID, author, `{"title":"late edit"}`, http.StatusUnprocessableEntity, nil)

	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/send", author, "", http.StatusOK, &p)
	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/decline", author, "", http.StatusOK, &p)
	if p.Status != domain.ProposalRejected {
		t.Errorf("Status = %q, want %q", p.Status, domain.ProposalRejected)
	}
}

// --- Tasks ---

func TestTasks_OtherInboxForbidden(t *testing.T) {
	srv := newTestServer(t)

	call(t, srv, http.MethodGet, "/tasks?user=u-review", author, "", http.StatusForbidden, nil)
}

func TestTasks_Complete(t *testing.T) {
	srv := newTestServer(t)
	p := mustCreateProposal(t, srv)
	call(t, srv, http.MethodPost, "/proposals/"+p.ID+"/submit", author, "", http.StatusOK, &p)

	var inbox []domain.Task
	call(t, srv, http.MethodGet, "/tasks", reviewer, "", http.StatusOK, &inbox)
	if len(inbox) != 1 {
		t.Fatalf("got %d tasks, want 1", len(inbox))
	}

	var task domain.Task
	call(t, srv, http.MethodPost, "/tasks/"+inbox[0].ID+"/complete", reviewer, "", http.StatusOK, &task)
	if !task.Completed || task.CompletedBy != "u-review" {
		t.Errorf("task = %+v, want completed by u-review", task)
	}

	call(t, srv, http.MethodPost, "/tasks/missing/complete", reviewer, "", http.StatusNotFound, nil)
}
