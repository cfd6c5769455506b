package app

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"

	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/export"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
	"github.com/joseph-ayodele/zerowaste/internal/llm/gemini"
	"github.com/joseph-ayodele/zerowaste/internal/llm/openai"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/repository"
	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

// App is the wired service graph shared by the daemon and the CLI.
type App struct {
	Store      repository.Store
	Planner    *planner.Service
	Households *household.Service
	Exporter   *export.Service
}

// NewInvoker builds the configured model provider.
func NewInvoker(cfg common.LLMConfig, logger *slog.Logger) (llm.Invoker, error) {
	switch cfg.Provider {
	case "openai", "":
		return openai.NewClient(openai.Config{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}, logger), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{Model: cfg.Model}, logger), nil
	default:
		return nil, common.NewConfigurationError("unsupported LLM provider %q", cfg.Provider)
	}
}

// OpenStore connects the configured household store.
func OpenStore(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case "redis":
		return repository.OpenRedis(ctx, cfg.RedisURL, logger)
	case repository.DriverPostgres, repository.DriverSQLite, dialect.SQLite:
		drv, err := repository.Open(ctx, repository.Config{
			Driver:           cfg.Driver,
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewSQLStore(ctx, drv, logger)
		if err != nil {
			_ = drv.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// New wires the planner, household service and exporter on top of store and invoker.
func New(cfg *common.Config, store repository.Store, invoker llm.Invoker, logger *slog.Logger) *App {
	p := planner.NewService(invoker, planner.Config{
		Model:        cfg.LLM.Model,
		DefaultKey:   cfg.LLM.APIKey,
		CallTimeout:  cfg.Planner.CallTimeout,
		MaxRetries:   cfg.Planner.MaxRetries,
		RetryInitial: cfg.Planner.RetryInitial,
	}, logger)
	hh := household.NewService(p, repository.NewHouseholdRepository(store, logger), logger)
	return &App{
		Store:      store,
		Planner:    p,
		Households: hh,
		Exporter:   export.NewService(hh, logger),
	}
}

// Build loads the store and provider from cfg and wires the App.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	invoker, err := NewInvoker(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, common.WrapError(err, "open store")
	}
	return New(cfg, store, invoker, logger), nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
