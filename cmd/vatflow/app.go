package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/vatflow/internal/config"
	"github.com/Veraticus/vatflow/internal/engine"
	"github.com/Veraticus/vatflow/internal/ingest"
	"github.com/Veraticus/vatflow/internal/llm"
	"github.com/Veraticus/vatflow/internal/prep"
	"github.com/Veraticus/vatflow/internal/prompt"
	"github.com/Veraticus/vatflow/internal/refine"
	"github.com/Veraticus/vatflow/internal/rules"
	"github.com/Veraticus/vatflow/internal/storage"
	"github.com/Veraticus/vatflow/internal/tax"
)

// app wires the components every command shares. Rule table and prompt
// templates are loaded once here and handed to constructors.
type app struct {
	settings  *config.Settings
	store     *storage.SQLiteStorage
	rules     *rules.Engine
	templates *prompt.Set
	costs     *llm.CostLog
	gateway   *llm.Gateway
	logger    *slog.Logger
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context, settings *config.Settings) (*storage.SQLiteStorage, error) {
	if err := config.EnsureParentDir(settings.Database.Path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(settings.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	ruleTable, err := rules.LoadOrDefault(settings.Rules.Path)
	if err != nil {
		return nil, err
	}
	templates, err := prompt.LoadOrDefault(settings.Prompts.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings:  settings,
		rules:     rules.NewEngine(ruleTable),
		templates: templates,
		logger:    slog.Default(),
	}

	a.costs, err = llm.OpenCostLog(settings.Logging.Dir)
	if err != nil {
		return nil, err
	}

	a.gateway, err = llm.NewGateway(gatewayConfig(settings), a.costs, a.logger)
	if err != nil {
		_ = a.costs.Close()
		return nil, err
	}

	a.store, err = openStore(ctx, settings)
	if err != nil {
		_ = a.costs.Close()
		return nil, err
	}

	return a, nil
}

func gatewayConfig(s *config.Settings) llm.Config {
	return llm.Config{
		APIKey:            s.LLM.APIKey,
		DemoPrefix:        s.LLM.DemoPrefix,
		BaseURL:           s.LLM.BaseURL,
		Provider:          s.LLM.Provider,
		ModelClassify:     s.LLM.ModelClassify,
		ModelGeneral:      s.LLM.ModelGeneral,
		RetryDelay:        s.LLM.RetryDelay,
		Timeout:           s.LLM.Timeout,
		Temperature:       s.LLM.Temperature,
		MaxTokens:         s.LLM.MaxTokens,
		RequestsPerMinute: s.LLM.RequestsPerMinute,
		Pricing:           llm.CostEstimator{InPer1K: s.Pricing.InPer1K, OutPer1K: s.Pricing.OutPer1K},
	}
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.costs != nil {
		errs = append(errs, a.costs.Close())
	}
	return errors.Join(errs...)
}

func (a *app) closeQuietly() {
	if err := a.Close(); err != nil {
		a.logger.Error("Failed to close resources", "error", err)
	}
}

func (a *app) refiner() *refine.Refiner {
	return refine.NewRefiner(a.gateway, a.templates, refine.Config{
		Model:       a.gateway.GeneralModel(),
		RuleSummary: a.rules.Summary(),
		Retries:     a.settings.LLM.Retries,
	}, a.logger)
}

func (a *app) engine(progress engine.ProgressFunc) *engine.ClassificationEngine {
	cfg := engine.DefaultConfig()
	cfg.Progress = progress
	if a.settings.LLM.Timeout > 0 {
		// all retries of one escalation share this budget
		cfg.LLMTimeout = a.settings.LLM.Timeout * time.Duration(a.settings.LLM.Retries+1)
	}
	return engine.NewWithConfig(a.store, a.rules, a.refiner(), a.logger, cfg)
}

func (a *app) importer() *ingest.Importer {
	return ingest.NewImporter(a.store, a.engine(nil), a.settings.DataDir, a.logger)
}

func (a *app) entries() *ingest.EntryService {
	return ingest.NewEntryService(a.store, a.engine(nil), a.logger)
}

func (a *app) aggregator() *tax.Aggregator {
	return tax.NewAggregator(a.store, a.logger)
}

func (a *app) checklist(userID string) (*prep.Checklist, error) {
	scope, err := prep.ParseCashReceiptScope(a.settings.Signals.CashReceiptScope)
	if err != nil {
		return nil, err
	}
	detector := prep.NewDetector(a.store, scope, a.logger)
	return prep.NewChecklist(detector, a.store, a.gateway, a.templates, prep.ChecklistConfig{
		Model:   a.gateway.ClassifyModel(),
		UserID:  userID,
		Retries: a.settings.LLM.Retries,
	}, a.logger), nil
}
