// Package engine implements the classification orchestrator: rules first,
// escalating low-confidence entries to the model refiner.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
)

// EscalationThreshold is the rule confidence below which an entry is sent to
// the refiner. Entries at exactly the threshold keep the rule result.
const EscalationThreshold = 0.6

// llmSuffix marks provenance of classifications that went through the refiner.
const llmSuffix = "+llm"

// ProgressFunc is called after each entry is processed.
type ProgressFunc func(done, total int)

// Config holds configuration options for the classification engine.
type Config struct {
	Progress   ProgressFunc
	Now        func() time.Time
	LLMTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LLMTimeout: 30 * time.Second,
		Now:        time.Now,
	}
}

// Scope selects the entries to classify. Zero fields do not filter.
type Scope struct {
	FileID string
	Period string
	UserID string
	IDs    []int64
	// Force reclassifies entries that already have a classification.
	Force bool
}

// ClassificationEngine orchestrates the classification of entries.
type ClassificationEngine struct {
	storage service.Storage
	rules   RuleClassifier
	refiner Refiner
	logger  *slog.Logger
	cfg     Config
}

// New creates a new classification engine with the given dependencies.
func New(storage service.Storage, rules RuleClassifier, refiner Refiner, logger *slog.Logger) *ClassificationEngine {
	return NewWithConfig(storage, rules, refiner, logger, DefaultConfig())
}

// NewWithConfig creates a new classification engine with custom configuration.
func NewWithConfig(storage service.Storage, rules RuleClassifier, refiner Refiner, logger *slog.Logger, cfg Config) *ClassificationEngine {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultConfig().LLMTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ClassificationEngine{
		storage: storage,
		rules:   rules,
		refiner: refiner,
		logger:  common.LoggerOrDefault(logger),
		cfg:     cfg,
	}
}

// ClassifyAll classifies entries in order and persists each result,
// replacing any previous classification. It returns the number of saved
// classifications. A failure on one entry never aborts the batch; only
// cancellation stops it early.
func (e *ClassificationEngine) ClassifyAll(ctx context.Context, entries []model.NormalizedEntry) (int, error) {
	saved := 0
	escalated := 0
	total := len(entries)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Classification interrupted", "saved", saved, "remaining", total-i)
			return saved, err
		}

		classified := e.classifyOne(ctx, entry)
		if classified.ModelUsed != e.rules.Version() {
			escalated++
		}

		if err := e.storage.SaveClassification(ctx, &classified); err != nil {
			e.logger.Error("Failed to save classification",
				"entry_id", entry.ID,
				"kind", common.KindPersistenceFailure,
				"error", err)
		} else {
			saved++
		}

		if e.cfg.Progress != nil {
			e.cfg.Progress(i+1, total)
		}
	}

	e.logger.Info("Classification complete",
		"entries", total,
		"saved", saved,
		"escalated", escalated)

	return saved, nil
}

// classifyOne runs the rules and, below the threshold, the refiner.
func (e *ClassificationEngine) classifyOne(ctx context.Context, entry model.NormalizedEntry) model.ClassifiedEntry {
	pred := e.rules.Classify(entry)
	provenance := e.rules.Version()

	if pred.HasFlag(model.FlagLowConfidence) {
		e.logger.Debug("No rule matched entry",
			"entry_id", entry.ID,
			"kind", common.KindRuleMismatch,
			"vendor", entry.Vendor)
	}

	if pred.Confidence < EscalationThreshold && e.refiner != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
		result := e.refiner.Refine(callCtx, entry, pred)
		cancel()

		pred = result.Classification
		provenance += llmSuffix

		if result.Err != nil {
			e.logger.Warn("Refiner kept rule classification",
				"entry_id", entry.ID,
				"kind", common.KindOf(result.Err),
				"model", result.Model,
				"error", result.Err)
		} else {
			e.logger.Debug("Escalated entry to refiner",
				"entry_id", entry.ID,
				"model", result.Model)
		}
	}

	return model.ClassifiedEntry{
		EntryID:        entry.ID,
		Classification: pred,
		ModelUsed:      provenance,
		UpdatedAt:      e.cfg.Now(),
	}
}

// ClassifyScope fetches the entries selected by scope and classifies them.
func (e *ClassificationEngine) ClassifyScope(ctx context.Context, scope Scope) (int, error) {
	filter := model.EntryFilter{
		FileID: scope.FileID,
		Period: scope.Period,
		UserID: scope.UserID,
		IDs:    scope.IDs,
	}

	rows, err := e.storage.ListEntriesWithClassification(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to load entries: %w", err)
	}

	entries := make([]model.NormalizedEntry, 0, len(rows))
	for _, row := range rows {
		if !scope.Force && row.Classification != nil {
			continue
		}
		entries = append(entries, row.Entry)
	}

	if len(entries) == 0 {
		e.logger.Info("No entries to classify", "file_id", scope.FileID, "period", scope.Period)
		return 0, nil
	}

	return e.ClassifyAll(ctx, entries)
}

// ClassifyFile classifies every entry imported from fileID.
func (e *ClassificationEngine) ClassifyFile(ctx context.Context, fileID string) (int, error) {
	return e.ClassifyScope(ctx, Scope{FileID: fileID, Force: true})
}

// ClassifyPeriod classifies every entry dated within period.
func (e *ClassificationEngine) ClassifyPeriod(ctx context.Context, period string) (int, error) {
	return e.ClassifyScope(ctx, Scope{Period: period, Force: true})
}

// ClassifyEntries classifies the entries with the given IDs.
func (e *ClassificationEngine) ClassifyEntries(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return e.ClassifyScope(ctx, Scope{IDs: ids, Force: true})
}
