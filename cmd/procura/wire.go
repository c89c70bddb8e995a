package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	dynamostore "github.com/neomorfeo/procura/internal/adapter/dynamodb"
	"github.com/neomorfeo/procura/internal/adapter/fsm"
	"github.com/neomorfeo/procura/internal/adapter/memstore"
	oteladapter "github.com/neomorfeo/procura/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/procura/internal/adapter/river"
	"github.com/neomorfeo/procura/internal/adapter/sqlite"
	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/config"
	"github.com/neomorfeo/procura/internal/domain"
)

// components are the wired application and the resources it holds.
type components struct {
	store    domain.DocumentStore
	services *app.Services
	river    *riveradapter.Client // nil in inline mode
	db       *sql.DB              // nil unless SQLite backs the store or the queue
}

func (c *components) close(logger *zap.Logger) {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		logger.Warn("closing database", zap.Error(err))
	}
}

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

// build opens the configured store and effect queue and wires the services.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}

	store, err := openStore(ctx, cfg, logger, c)
	if err != nil {
		c.close(logger)
		return nil, err
	}
	c.store = oteladapter.NewTracingStore(store)

	tasks := app.NewTaskStore(c.store, time.Now)
	executor := app.NewEffectExecutor(app.NewAuditLog(c.store), tasks)

	var queue domain.EffectQueue
	if cfg.Effects.Mode == config.EffectsQueue {
		if c.db == nil {
			if c.db, err = oteladapter.OpenDB(cfg.Database.Path); err != nil {
				return nil, fmt.Errorf("opening effect queue database: %w", err)
			}
		}
		c.river, err = riveradapter.Setup(ctx, c.db, executor, logger)
		if err != nil {
			c.close(logger)
			return nil, fmt.Errorf("effect queue: %w", err)
		}
		queue = oteladapter.NewTracingQueue(riveradapter.NewQueue(c.river, cfg.Effects.MaxAttempts))
	}

	deps := app.Deps{
		Store:       c.store,
		Machines:    machines(),
		Effects:     app.NewEffectDispatcher(queue, executor, logger),
		Idempotency: app.NewIdempotency(c.store, time.Now, cfg.Idempotency.PendingTTL, logger),
		Clock:       time.Now,
		Logger:      logger,
	}
	c.services = app.NewServices(deps, tasks)
	return c, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, c *components) (domain.DocumentStore, error) {
	switch cfg.Database.Backend {
	case config.BackendSQLite:
		db, err := oteladapter.OpenDB(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		c.db = db
		store, err := sqlite.NewFromDB(db)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return store, nil

	case config.BackendDynamoDB:
		client, err := dynamostore.NewClient(ctx, dynamostore.ClientConfig{
			Region:          cfg.DynamoDB.Region,
			Endpoint:        cfg.DynamoDB.Endpoint,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb: %w", err)
		}
		if cfg.DynamoDB.CreateTable {
			if err := dynamostore.EnsureTable(ctx, client, cfg.DynamoDB.Table); err != nil {
				return nil, fmt.Errorf("dynamodb: %w", err)
			}
		}
		return dynamostore.New(client, cfg.DynamoDB.Table, logger), nil

	case config.BackendMemory:
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}
