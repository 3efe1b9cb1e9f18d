package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/llm"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/prompt"
)

// Prompt context values used for every refinement.
const (
	DefaultIndustry = "서비스"
	DefaultBizType  = "간편장부"
)

const jsonOnlyInstruction = " 반드시 JSON만 출력하라. 키: account_code, tax_type, confidence, reason, flags"

// Diagnostic suffixes appended to the fallback reason.
const (
	invalidSuffix   = " | LLM JSON invalid: "
	exceptionSuffix = " | LLM 예외"
)

// Gateway is the part of llm.Gateway the refiner needs.
type Gateway interface {
	Call(ctx context.Context, model string, messages []llm.Message, retries int, opts llm.CallOptions) (llm.Response, error)
}

// Config holds refiner configuration.
type Config struct {
	Model       string
	Industry    string
	BizType     string
	RuleSummary string
	Retries     int
}

// Result is the outcome of one refinement.
type Result struct {
	// Err explains why the initial guess was kept. It is nil when Refined.
	Err            error
	Model          string
	Diagnostic     string
	Classification model.Classification
	// Refined is true when the model output replaced the initial guess.
	Refined bool
}

// Refiner asks the model to improve a low-confidence rule classification.
type Refiner struct {
	gateway   Gateway
	templates *prompt.Set
	logger    *slog.Logger
	cfg       Config
}

// NewRefiner creates a refiner. A nil template set uses the built-in templates.
func NewRefiner(gateway Gateway, templates *prompt.Set, cfg Config, logger *slog.Logger) *Refiner {
	if templates == nil {
		templates = prompt.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	if cfg.Industry == "" {
		cfg.Industry = DefaultIndustry
	}
	if cfg.BizType == "" {
		cfg.BizType = DefaultBizType
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Refiner{
		gateway:   gateway,
		templates: templates,
		logger:    common.LoggerOrDefault(logger),
		cfg:       cfg,
	}
}

// Refine never fails: any problem yields the initial classification with a
// diagnostic appended to its reason.
func (r *Refiner) Refine(ctx context.Context, entry model.NormalizedEntry, initial model.Classification) (result Result) {
	fallback := func(suffix, diagnostic string, err error) Result {
		c := initial.Clone()
		c.Reason += suffix
		return Result{Classification: c, Diagnostic: diagnostic, Err: err, Model: r.cfg.Model}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("refinement panicked", "entry_id", entry.ID, "panic", rec)
			result = fallback(exceptionSuffix, fmt.Sprint(rec),
				fmt.Errorf("%w: panic: %v", common.ErrClassificationFailed, rec))
		}
	}()

	messages, err := r.messages(entry)
	if err != nil {
		r.logger.Warn("failed to build refinement prompt", "entry_id", entry.ID, "error", err)
		return fallback(exceptionSuffix, err.Error(), fmt.Errorf("%w: %w", common.ErrClassificationFailed, err))
	}

	temperature := 0.0
	resp, err := r.gateway.Call(ctx, r.cfg.Model, messages, r.cfg.Retries, llm.CallOptions{Temperature: &temperature})
	if err != nil {
		r.logger.Warn("model call failed, keeping rule classification",
			"entry_id", entry.ID,
			"kind", common.KindOf(err),
			"error", err)
		return fallback(exceptionSuffix, err.Error(), err)
	}

	payload := parsePayload(resp.Content)
	why := "empty"
	ok := false
	if !isEmpty(payload) {
		ok, why = Validate(payload)
	}
	if !ok {
		r.logger.Debug("model output rejected", "entry_id", entry.ID, "reason", why)
		res := fallback(invalidSuffix+why, why, common.NewKindError(common.KindInvalidResponse, "refine",
			fmt.Errorf("%w: %s", common.ErrInvalidResponse, why)))
		res.Model = resp.Model
		return res
	}

	return Result{
		Classification: fromPayload(payload.(map[string]any)),
		Refined:        true,
		Model:          resp.Model,
	}
}

func (r *Refiner) messages(entry model.NormalizedEntry) ([]llm.Message, error) {
	tpl, err := r.templates.Get(prompt.ClassifyV1)
	if err != nil {
		return nil, err
	}

	user := tpl.Render(map[string]string{
		"trx_date":     entry.TrxDate,
		"vendor":       entry.Vendor,
		"amount":       entry.Amount.String(),
		"vat":          entry.VAT.String(),
		"memo":         entry.Memo,
		"industry":     r.cfg.Industry,
		"biz_type":     r.cfg.BizType,
		"hints":        "",
		"rule_summary": r.cfg.RuleSummary,
	})

	return []llm.Message{
		{Role: llm.RoleSystem, Content: tpl.System + jsonOnlyInstruction},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

func isEmpty(payload any) bool {
	switch v := payload.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	}
	return false
}

// fromPayload converts a validated payload into a classification.
func fromPayload(payload map[string]any) model.Classification {
	confidence, _ := toFloat(payload["confidence"])

	reason := stringValue(payload["reason"])
	if reason == "" {
		reason = stringValue(payload["reasoning"])
	}

	return model.Classification{
		AccountCode: stringValue(payload["account_code"]),
		TaxType:     model.TaxType(payload["tax_type"].(string)),
		Confidence:  confidence,
		Reason:      reason,
		Flags:       flagsValue(payload["flags"]),
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// flagsValue accepts a list, an encoded list, or a single flag.
func flagsValue(v any) []string {
	flags := []string{}
	switch f := v.(type) {
	case []any:
		for _, item := range f {
			if s := strings.TrimSpace(stringValue(item)); s != "" {
				flags = append(flags, s)
			}
		}
	case string:
		f = strings.TrimSpace(f)
		if f == "" {
			break
		}
		var decoded []string
		if err := json.Unmarshal([]byte(f), &decoded); err == nil {
			return append(flags, decoded...)
		}
		flags = append(flags, f)
	}
	return flags
}
