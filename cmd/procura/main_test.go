package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/config"
	"github.com/neomorfeo/procura/internal/domain"
)

func TestBuild_MemoryInline(t *testing.T) {
	cfg := &config.Config{
		Database:    config.DatabaseConfig{Backend: config.BackendMemory},
		Effects:     config.EffectsConfig{Mode: config.EffectsInline, MaxAttempts: 1},
		Idempotency: config.IdempotencyConfig{PendingTTL: time.Minute},
	}

	c, err := build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { c.close(zap.NewNop()) })

	if c.river != nil || c.db != nil {
		t.Fatal("inline memory build should hold no database or queue")
	}

	actor := domain.Actor{ID: "u-1", Permissions: domain.PermManagePurchaseOrders}
	po, err := c.services.PurchaseOrders.Create(context.Background(), actor, app.CreatePurchaseOrderInput{
		VendorID: "v-1",
		Items:    []domain.LineItemInput{{Description: "Bolts", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(3)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.store.Get(context.Background(), domain.CollectionPurchaseOrders, po.ID); err != nil {
		t.Fatalf("stored purchase order: %v", err)
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Backend: "postgres"}}

	if _, err := openStore(context.Background(), cfg, zap.NewNop(), &components{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

// TestRun exercises the real run() function end-to-end: config, OTel, the
// SQLite store, the River effect queue, the HTTP server, and graceful
// shutdown.
func TestRun(t *testing.T) {
	t.Setenv("PROCURA_CONFIG", "")
	t.Setenv("DATABASE_PATH", t.TempDir()+"/test-run.db")
	t.Setenv("PORT", "19876")
	t.Setenv("OTEL_EXPORTER", "none")
	t.Setenv("OTEL_ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	// Wait for the HTTP server to become ready.
	serverURL := "http://localhost:19876/api/v1"
	ready := false
	for i := 0; i < 50; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/purchase-orders/none", nil)
		resp, reqErr := http.DefaultClient.Do(req)
		if reqErr == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not start within 5 seconds")
	}

	// Creating an entity runs its audit effect through the queue.
	body := `{"vendorId":"v-1","items":[{"description":"Bolts","quantity":"2","unitPrice":"1.50"}]}`
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, serverURL+"/purchase-orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "u-1")
	req.Header.Set("X-Actor-Permissions", "MANAGE_PURCHASE_ORDERS")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /purchase-orders failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var po domain.PurchaseOrder
	if err := json.NewDecoder(resp.Body).Decode(&po); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if po.Status != domain.POApproved {
		t.Errorf("Status = %q, want %q", po.Status, domain.POApproved)
	}

	// Trigger graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return within 10 seconds after shutdown")
	}
}
