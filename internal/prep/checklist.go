package prep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/llm"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/prompt"
	"github.com/Veraticus/vatflow/internal/service"
)

// DefaultTaxType is used when no tax type is requested.
const DefaultTaxType = "VAT"

// Gateway is the part of llm.Gateway the checklist needs.
type Gateway interface {
	Call(ctx context.Context, model string, messages []llm.Message, retries int, opts llm.CallOptions) (llm.Response, error)
}

// ChecklistResult is the outcome of checklist generation.
type ChecklistResult struct {
	Period  string
	Advice  string
	Signals []model.ChecklistSignal
	Items   []model.PrepItem
	// Generated is the number of checklist items produced.
	Generated int
	// Fallback is true when the default signal pair replaced detection.
	Fallback bool
}

// ChecklistConfig configures checklist generation.
type ChecklistConfig struct {
	Model   string
	UserID  string
	Retries int
}

// Checklist turns detected signals into persisted checklist items. The model
// is asked for advice when a gateway is configured.
type Checklist struct {
	detector  *Detector
	storage   service.Storage
	gateway   Gateway
	templates *prompt.Set
	logger    *slog.Logger
	cfg       ChecklistConfig
}

// NewChecklist creates a checklist generator. gateway may be nil.
func NewChecklist(detector *Detector, storage service.Storage, gateway Gateway, templates *prompt.Set, cfg ChecklistConfig, logger *slog.Logger) *Checklist {
	if templates == nil {
		templates = prompt.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Checklist{
		detector:  detector,
		storage:   storage,
		gateway:   gateway,
		templates: templates,
		logger:    common.LoggerOrDefault(logger),
		cfg:       cfg,
	}
}

// Generate detects signals for period and stores one OPEN item per signal.
// It never fails: any error yields the default signal pair.
func (c *Checklist) Generate(ctx context.Context, period, taxType string) ChecklistResult {
	if taxType == "" {
		taxType = DefaultTaxType
	}

	result, err := c.generate(ctx, period, taxType)
	if err != nil {
		c.logger.Warn("Checklist generation failed, using default signals",
			"period", period,
			"error", err)
		signals := DefaultSignals()
		return ChecklistResult{
			Period:    period,
			Signals:   signals,
			Items:     itemsFor(period, c.cfg.UserID, signals),
			Generated: len(signals),
			Fallback:  true,
		}
	}
	return result
}

func (c *Checklist) generate(ctx context.Context, period, taxType string) (ChecklistResult, error) {
	signals, err := c.detector.Detect(ctx, period)
	if err != nil {
		return ChecklistResult{}, err
	}

	var advice string
	if c.gateway != nil {
		advice, err = c.advise(ctx, period, taxType, signals)
		if err != nil {
			return ChecklistResult{}, err
		}
	}

	items := itemsFor(period, c.cfg.UserID, signals)
	saved, err := c.storage.SavePrepItems(ctx, items)
	if err != nil {
		return ChecklistResult{}, fmt.Errorf("failed to save checklist items: %w", err)
	}

	return ChecklistResult{
		Period:    period,
		Advice:    advice,
		Signals:   signals,
		Items:     items,
		Generated: saved,
	}, nil
}

func (c *Checklist) advise(ctx context.Context, period, taxType string, signals []model.ChecklistSignal) (string, error) {
	tpl, err := c.templates.Get(prompt.ChecklistV1)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: tpl.System},
		{Role: llm.RoleUser, Content: tpl.Render(map[string]string{
			"taxType": taxType,
			"period":  period,
			"signals": FormatSignals(signals),
		})},
	}

	resp, err := c.gateway.Call(ctx, c.cfg.Model, messages, c.cfg.Retries, llm.CallOptions{})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// FormatSignals renders signals as "- CODE: desc" lines, or "- NONE".
func FormatSignals(signals []model.ChecklistSignal) string {
	if len(signals) == 0 {
		return "- NONE"
	}
	lines := make([]string, len(signals))
	for i, s := range signals {
		lines[i] = fmt.Sprintf("- %s: %s", s.Code, s.Description)
	}
	return strings.Join(lines, "\n")
}

func itemsFor(period, userID string, signals []model.ChecklistSignal) []model.PrepItem {
	items := make([]model.PrepItem, len(signals))
	for i, s := range signals {
		items[i] = model.PrepItem{
			UserID:  userID,
			Period:  period,
			Type:    s.Code,
			Status:  model.PrepStatusOpen,
			FixHint: s.Description,
		}
	}
	return items
}
