package disputes

import (
	"context"
	"fmt"

	"supplier_dispute_backend/internal/adapters/storage"
	"supplier_dispute_backend/internal/disputes/audit"
	"supplier_dispute_backend/internal/disputes/rules"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/internal/exports"
	profileclient "supplier_dispute_backend/internal/profile/client"
	sheetclient "supplier_dispute_backend/internal/sheet/client"
	"supplier_dispute_backend/internal/warehouse"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/db"
	"supplier_dispute_backend/platform/httpkit"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
	"supplier_dispute_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is everything the dispute module reads from configuration.
type ModuleConfig interface {
	config.SheetConfig
	config.ProfileConfig
	config.WarehouseConfig
	config.AuditConfig
	config.ExportConfig
	config.MinIOConfig
	config.HTTPClientConfig
	config.RunnerConfig
}

// Module wires the orchestrator to its real boundaries.
type Module struct {
	orchestrator *Orchestrator
	recorder     *audit.Recorder
	store        audit.Store
	warehouse    *pgxpool.Pool
}

// NewModule connects every boundary and builds the orchestrator.
// The audit store must be reachable; the warehouse pool connects lazily.
func NewModule(ctx context.Context, cfg ModuleConfig, bus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	ruleset, err := rules.Load(cfg.GetRulesFile())
	if err != nil {
		return nil, err
	}

	store, err := openAuditStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	recorder, err := audit.NewRecorder(ctx, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pool, err := db.NewPool(ctx, config.DSN(cfg.GetWarehouseDatabaseURL()), db.PoolOptions{MaxConns: 4, Lazy: true})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("warehouse pool: %w", err)
	}
	repo, err := warehouse.New(pool, cfg.GetWarehouseQueryFile(), log)
	if err != nil {
		pool.Close()
		_ = store.Close()
		return nil, err
	}

	writer := exports.NewWriter(cfg.GetExportDir(), log)
	if cfg.IsMinIOEnabled() {
		if archive, err := newArchive(ctx, cfg); err != nil {
			log.Warn("export archive disabled", "error", err)
		} else {
			writer.WithArchive(archive, cfg.GetMinioBucketDisputeExports())
		}
	}

	sheet := sheetclient.New(cfg, httpkit.NewClient("sheet", cfg, log), log)
	profile := profileclient.New(cfg.GetProfileBaseURL(), cfg.GetProfileAPIKey(), httpkit.NewClient("profile", cfg, log), log)

	orch, err := New(Deps{
		Sheet:     sheet,
		Bookings:  profile,
		Logs:      repo,
		Exports:   writer,
		Audit:     recorder,
		Rules:     ruleset,
		Validator: val,
		Bus:       bus,
		Log:       log,
	}, Options{
		Concurrency: cfg.GetDisputeConcurrency(),
		RowCap:      cfg.GetWarehouseRowCap(),
		Retry: retry.Policy{
			MaxAttempts: cfg.GetRetryMaxAttempts(),
			BaseDelay:   cfg.GetRetryBaseDelay(),
			MaxDelay:    cfg.GetRetryMaxDelay(),
		},
	})
	if err != nil {
		pool.Close()
		_ = store.Close()
		return nil, err
	}

	return &Module{
		orchestrator: orch,
		recorder:     recorder,
		store:        store,
		warehouse:    pool,
	}, nil
}

func openAuditStore(ctx context.Context, cfg config.AuditConfig) (audit.Store, error) {
	if dsn := cfg.GetAuditDatabaseURL(); dsn != "" {
		store, err := audit.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres audit store: %w", err)
		}
		return store, nil
	}
	store, err := audit.OpenSQLite(ctx, cfg.GetAuditSQLitePath())
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit store: %w", err)
	}
	return store, nil
}

func newArchive(ctx context.Context, cfg config.MinIOConfig) (storage.ObjectStore, error) {
	svc, err := storage.NewMinIOService(cfg)
	if err != nil {
		return nil, err
	}
	if err := svc.EnsureBucketExists(ctx, cfg.GetMinioBucketDisputeExports()); err != nil {
		return nil, err
	}
	return svc, nil
}

// Orchestrator returns the wired orchestrator.
func (m *Module) Orchestrator() *Orchestrator { return m.orchestrator }

// Audit returns the audit recorder.
func (m *Module) Audit() *audit.Recorder { return m.recorder }

// Close releases the warehouse pool and the audit store.
func (m *Module) Close() error {
	m.warehouse.Close()
	return m.store.Close()
}
