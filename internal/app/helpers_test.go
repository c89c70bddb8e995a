package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/adapter/fsm"
	"github.com/neomorfeo/procura/internal/adapter/memstore"
	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var (
	buyer = domain.Actor{
		ID:   "u-buyer",
		Name: "Bea Buyer",
		Permissions: domain.PermManagePurchaseOrders | domain.PermManageRFQs | domain.PermRecordOffers |
			domain.PermEvaluateOffers | domain.PermSelectOffers,
	}
	receiver = domain.Actor{ID: "u-recv", Name: "Rui Receiver", Permissions: domain.PermReceiveGoods}
	author   = domain.Actor{ID: "u-author", Name: "Ada Author", Permissions: domain.PermManageProposals | domain.PermApproveProposals}
	reviewer = domain.Actor{ID: "u-review", Name: "Rex Reviewer", Permissions: domain.PermApproveProposals}
	clerk    = domain.Actor{ID: "u-clerk", Name: "Cleo Clerk", Permissions: domain.PermReconcile}
	approver = domain.Actor{ID: "u-approver", Name: "Abe Approver", Permissions: domain.PermApproveMatches}
	nobody   = domain.Actor{ID: "u-nobody", Name: "No Body"}
)

// --- Mocks ---

// failingAudit counts calls and always fails.
type failingAudit struct {
	mu    sync.Mutex
	calls int
}

func (f *failingAudit) LogEvent(context.Context, domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("audit backend down")
}

// failingTasks rejects every call.
type failingTasks struct{}

func (failingTasks) CreateTask(context.Context, domain.TaskSpec) (domain.Task, error) {
	return domain.Task{}, errors.New("task backend down")
}

func (failingTasks) FindTaskByEntity(context.Context, domain.EntityRef, domain.TaskCategory, []domain.TaskStatus) ([]domain.Task, error) {
	return nil, errors.New("task backend down")
}

func (failingTasks) CompleteTask(context.Context, string, string, bool) error {
	return errors.New("task backend down")
}

// recordingQueue records enqueued effects, or fails when err is set.
type recordingQueue struct {
	mu      sync.Mutex
	err     error
	effects []domain.Effect
}

func (q *recordingQueue) Enqueue(_ context.Context, _ domain.EntityRef, effect domain.Effect) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.effects = append(q.effects, effect)
	return nil
}

// --- Harness ---

type harness struct {
	store *memstore.Store
	tasks *app.TaskStore
	deps  app.Deps
	svc   *app.Services
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	audit domain.AuditSink
	tasks domain.TaskService
	queue domain.EffectQueue
}

func withAudit(a domain.AuditSink) harnessOption   { return func(c *harnessConfig) { c.audit = a } }
func withTasks(t domain.TaskService) harnessOption { return func(c *harnessConfig) { c.tasks = t } }
func withQueue(q domain.EffectQueue) harnessOption { return func(c *harnessConfig) { c.queue = q } }

func clock() time.Time { return testNow }

func machines() app.Machines {
	return app.Machines{
		RFQ:           fsm.New(domain.RFQTransitions),
		Offer:         fsm.New(domain.OfferTransitions),
		PurchaseOrder: fsm.New(domain.PurchaseOrderTransitions),
		GoodsReceipt:  fsm.New(domain.GoodsReceiptTransitions),
		Proposal:      fsm.New(domain.ProposalTransitions),
		Match:         fsm.New(domain.MatchTransitions),
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store := memstore.New()
	tasks := app.NewTaskStore(store, clock)
	cfg := harnessConfig{audit: app.NewAuditLog(store), tasks: tasks}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	deps := app.Deps{
		Store:       store,
		Machines:    machines(),
		Effects:     app.NewEffectDispatcher(cfg.queue, app.NewEffectExecutor(cfg.audit, cfg.tasks), logger),
		Idempotency: app.NewIdempotency(store, clock, time.Minute, logger),
		Clock:       clock,
		Logger:      logger,
	}
	return &harness{store: store, tasks: tasks, deps: deps, svc: app.NewServices(deps, tasks)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func items(descriptions ...string) []domain.LineItemInput {
	out := make([]domain.LineItemInput, len(descriptions))
	for i, d := range descriptions {
		out[i] = domain.LineItemInput{Description: d, Quantity: dec("10"), UnitPrice: dec("25.00"), TaxRate: dec("21")}
	}
	return out
}

// issuedRFQ creates and issues an RFQ inviting vendors.
func (h *harness) issuedRFQ(t *testing.T, vendors ...string) domain.RFQ {
	t.Helper()
	ctx := context.Background()
	rfq, err := h.svc.RFQs.Create(ctx, buyer, app.CreateRFQInput{
		Title:            "Office chairs",
		InvitedVendorIDs: vendors,
		Items:            items("Chair"),
	})
	require.NoError(t, err)
	rfq, err = h.svc.RFQs.Issue(ctx, buyer, rfq.ID)
	require.NoError(t, err)
	return rfq
}

func (h *harness) offer(t *testing.T, rfqID, vendor string) domain.Offer {
	t.Helper()
	o, err := h.svc.Offers.Create(context.Background(), buyer, app.CreateOfferInput{
		RFQID:      rfqID,
		VendorID:   vendor,
		VendorName: "Vendor " + vendor,
		Items:      items("Chair", "Delivery"),
	})
	require.NoError(t, err)
	return o
}

// purchaseOrder creates a PO with one line of quantity "10" at 25.00.
func (h *harness) purchaseOrder(t *testing.T) domain.PurchaseOrder {
	t.Helper()
	po, err := h.svc.PurchaseOrders.Create(context.Background(), buyer, app.CreatePurchaseOrderInput{
		VendorID:   "v-1",
		VendorName: "Vendor One",
		Items:      items("Chair"),
	})
	require.NoError(t, err)
	return po
}

func (h *harness) rfq(t *testing.T, id string) domain.RFQ {
	t.Helper()
	rfq, err := h.svc.RFQs.Get(context.Background(), id)
	require.NoError(t, err)
	return rfq
}

func (h *harness) openTasks(t *testing.T, userID string) []domain.Task {
	t.Helper()
	tasks, err := h.tasks.ListForUser(context.Background(), userID, true)
	require.NoError(t, err)
	return tasks
}

func tasksOf(tasks []domain.Task, category domain.TaskCategory) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// reachable reports whether target can be reached from the table's initial
// status by allowed transitions.
func reachable[S ~string](table domain.TransitionTable[S], target S) bool {
	seen := map[S]bool{table.Initial: true}
	queue := []S{table.Initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, next := range table.Edges[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// barrierStore holds the first parties transactions until all of them have
// arrived, so racing callers pass their pre-checks before any one commits.
type barrierStore struct {
	domain.DocumentStore

	parties int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrierStore(next domain.DocumentStore, parties int) *barrierStore {
	return &barrierStore{DocumentStore: next, parties: parties, release: make(chan struct{})}
}

func (s *barrierStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Transaction) error) error {
	s.mu.Lock()
	s.arrived++
	n := s.arrived
	if n == s.parties {
		close(s.release)
	}
	s.mu.Unlock()

	if n <= s.parties {
		select {
		case <-s.release:
		case <-time.After(5 * time.Second):
		}
	}
	return s.DocumentStore.RunTransaction(ctx, fn)
}

// racing returns services whose first two transactions start together.
func (h *harness) racing() *app.Services {
	deps := h.deps
	deps.Store = newBarrierStore(h.store, 2)
	return app.NewServices(deps, h.tasks)
}

// race runs a and b concurrently and returns their errors.
func race(a, b func() error) (errA, errB error) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); errA = a() }()
	go func() { defer wg.Done(); errB = b() }()
	wg.Wait()
	return errA, errB
}
